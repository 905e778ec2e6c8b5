// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// Observations are buffered in-memory under a mutex, flushed periodically
// by a ticker loop, and flushed one final time on Close. Histograms are
// summarized into count/avg/max gauges at flush; the raw samples never
// leave the process.
//
// Concurrency model:
//   - engine goroutines call IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under the mutex, then submits out-of-lock
//   - the flush loop calls Flush periodically; Close stops the loop
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"datainspect/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to
	// "datainspect".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them; unit tests
	// use them to avoid real submission and nondeterministic clocks.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal slice of the Datadog SDK the backend
// needs. The SDK exposes a concrete *datadogV2.MetricsApi; depending on
// this interface instead lets tests substitute a fake.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu         sync.Mutex
	counters   map[seriesKey]float64
	histograms map[seriesKey][]float64
}

// seriesKey identifies one buffered series: metric name plus its label set
// rendered as sorted "k:v" tags joined by commas.
type seriesKey struct {
	name string
	tags string
}

func keyFor(name string, labels metrics.Labels) seriesKey {
	if len(labels) == 0 {
		return seriesKey{name: name}
	}
	tags := make([]string, 0, len(labels))
	for k, v := range labels {
		tags = append(tags, k+":"+v)
	}
	sort.Strings(tags)
	return seriesKey{name: name, tags: strings.Join(tags, ",")}
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "datainspect"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		counters:   make(map[seriesKey]float64),
		histograms: make(map[seriesKey][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	k := keyFor(name, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[k] += delta
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	k := keyFor(name, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.histograms[k] = append(b.histograms[k], value)
}

type snapshot struct {
	counters   map[seriesKey]float64
	histograms map[seriesKey][]float64
}

// snapshotAndReset grabs buffered metrics and resets the buffers, so Flush
// can submit out-of-lock.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{counters: b.counters, histograms: b.histograms}
	b.counters = make(map[seriesKey]float64)
	b.histograms = make(map[seriesKey][]float64)
	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.counters) == 0 && len(s.histograms) == 0
}

// Flush submits buffered metrics and resets local buffers. Buffers reset
// even when submission fails; blocking future writes on redelivery is not
// worth it for run telemetry.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// Close stops the flush loop and performs one final Flush. Close once;
// a second Close panics like any double-close.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// buildSeries is pure (no locks, clocks, or network), which keeps the
// naming and tagging contract unit-testable.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	point := func(metric string, typ datadogV2.MetricIntakeType, value float64, key seriesKey) datadogV2.MetricSeries {
		tags := append([]string(nil), b.baseTags...)
		if key.tags != "" {
			tags = append(tags, strings.Split(key.tags, ",")...)
		}
		return datadogV2.MetricSeries{
			Metric: "datainspect." + strings.ReplaceAll(metric, "_", "."),
			Type:   typ.Ptr(),
			Points: []datadogV2.MetricPoint{
				{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
			},
			Tags: tags,
		}
	}

	series := make([]datadogV2.MetricSeries, 0, len(s.counters)+3*len(s.histograms))

	counterKeys := make([]seriesKey, 0, len(s.counters))
	for k := range s.counters {
		counterKeys = append(counterKeys, k)
	}
	sort.Slice(counterKeys, func(i, j int) bool {
		if counterKeys[i].name != counterKeys[j].name {
			return counterKeys[i].name < counterKeys[j].name
		}
		return counterKeys[i].tags < counterKeys[j].tags
	})
	for _, k := range counterKeys {
		if v := s.counters[k]; v != 0 {
			series = append(series, point(k.name+".total", datadogV2.METRICINTAKETYPE_COUNT, v, k))
		}
	}

	histKeys := make([]seriesKey, 0, len(s.histograms))
	for k := range s.histograms {
		histKeys = append(histKeys, k)
	}
	sort.Slice(histKeys, func(i, j int) bool {
		if histKeys[i].name != histKeys[j].name {
			return histKeys[i].name < histKeys[j].name
		}
		return histKeys[i].tags < histKeys[j].tags
	})
	for _, k := range histKeys {
		samples := s.histograms[k]
		if len(samples) == 0 {
			continue
		}
		var sum, max float64
		for i, v := range samples {
			sum += v
			if i == 0 || v > max {
				max = v
			}
		}
		series = append(series,
			point(k.name+".count", datadogV2.METRICINTAKETYPE_COUNT, float64(len(samples)), k),
			point(k.name+".avg", datadogV2.METRICINTAKETYPE_GAUGE, sum/float64(len(samples)), k),
			point(k.name+".max", datadogV2.METRICINTAKETYPE_GAUGE, max, k),
		)
	}

	return series
}

// ParseTagsCSV splits a comma-separated "k:v,k:v" tag list from config or
// environment, dropping empty entries.
func ParseTagsCSV(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

var _ metrics.Backend = (*Backend)(nil)
