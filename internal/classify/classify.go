// Package classify turns raw field strings into tagged values and resolves
// per-column types from the per-field tags.
//
// Classification is a fixed cascade with first-match-wins semantics, so a
// value has exactly one tag and reclassifying the same string always yields
// the same result. Column type resolution is deferred to end of stream; the
// per-field tags are tallied during the pass and resolved once.
package classify

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"datainspect/internal/config"
)

// Kind tags a single classified field value.
type Kind uint8

const (
	KindMissing Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindText

	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// FieldValue is one classified field. Exactly one payload field is
// meaningful, selected by Kind. Values are produced fresh per field and are
// never mutated.
type FieldValue struct {
	Kind  Kind
	Int   int64
	Float float64
	Bool  bool
	Text  string
}

// Classifier classifies raw field strings. It is pure and safe for
// concurrent use once constructed.
type Classifier struct {
	missing  map[string]struct{}
	boolTrue map[string]struct{}
	boolNo   map[string]struct{}
}

// NewClassifier builds a classifier from the policy token sets.
func NewClassifier(p config.Policy) *Classifier {
	c := &Classifier{
		missing:  make(map[string]struct{}, len(p.MissingTokens)+1),
		boolTrue: make(map[string]struct{}, len(p.TrueTokens)),
		boolNo:   make(map[string]struct{}, len(p.FalseTokens)),
	}
	c.missing[""] = struct{}{}
	for _, tok := range p.MissingTokens {
		c.missing[strings.ToLower(tok)] = struct{}{}
	}
	for _, tok := range p.TrueTokens {
		c.boolTrue[strings.ToLower(tok)] = struct{}{}
	}
	for _, tok := range p.FalseTokens {
		c.boolNo[strings.ToLower(tok)] = struct{}{}
	}
	return c
}

// Classify runs the cascade: missing token, base-10 integer, float literal
// (including scientific notation), boolean token, then text. Unparseable
// numeric-looking strings fall through to text rather than erroring.
func (c *Classifier) Classify(raw string) FieldValue {
	v := raw
	if hasEdgeSpace(v) {
		v = strings.TrimSpace(v)
	}

	lower := strings.ToLower(v)
	if _, ok := c.missing[lower]; ok {
		return FieldValue{Kind: KindMissing}
	}

	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return FieldValue{Kind: KindInteger, Int: i}
	}

	if f, err := strconv.ParseFloat(v, 64); err == nil {
		// strconv accepts "inf" and "nan" spellings; keep those textual,
		// they are almost never intended as measurements in tabular data.
		if !isNonFinite(lower) {
			return FieldValue{Kind: KindFloat, Float: f}
		}
	}

	if _, ok := c.boolTrue[lower]; ok {
		return FieldValue{Kind: KindBoolean, Bool: true}
	}
	if _, ok := c.boolNo[lower]; ok {
		return FieldValue{Kind: KindBoolean, Bool: false}
	}

	return FieldValue{Kind: KindText, Text: v}
}

// AsFloat returns the numeric payload of an integer or float value.
// Callers must not pass other kinds.
func (v FieldValue) AsFloat() float64 {
	if v.Kind == KindInteger {
		return float64(v.Int)
	}
	return v.Float
}

// CanonicalText returns the value as the string form used for categorical
// frequency tracking. Booleans fold to "true"/"false" so that "Yes" and "y"
// count as one distinct value.
func (v FieldValue) CanonicalText() string {
	switch v.Kind {
	case KindBoolean:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.Text
	}
}

func isNonFinite(lower string) bool {
	switch strings.TrimPrefix(strings.TrimPrefix(lower, "+"), "-") {
	case "inf", "infinity", "nan":
		return true
	}
	return false
}

// hasEdgeSpace reports whether s starts or ends with whitespace under the
// same definition strings.TrimSpace uses, letting the common no-trim case
// skip an allocation. Unicode padding (NBSP and friends) counts; fields
// pasted from spreadsheets carry it routinely.
func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(first) || unicode.IsSpace(last)
}
