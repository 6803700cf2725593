package observability

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sync outcomes recorded by Metrics.SyncOutcome.
const (
	SyncSynced         = "synced"
	SyncIneligible     = "ineligible"
	SyncHubUnavailable = "hub_unavailable"
	SyncDropped        = "dropped"
)

// Metrics exports listing lifecycle and syndication counters. All methods
// are safe on a nil receiver.
type Metrics struct {
	transitions *prometheus.CounterVec
	syncs       *prometheus.CounterVec
	hubLatency  *prometheus.HistogramVec
	uploads     *prometheus.CounterVec
	swept       prometheus.Counter
}

// NewMetrics registers collectors on reg (the default registerer when nil).
// Registering twice on the same registry reuses the existing collectors.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "tongass"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	var err error
	if m.transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listing_transitions_total",
		Help:      "Listing state transitions by kind.",
	}, []string{"transition"})); err != nil {
		return nil, err
	}
	if m.syncs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ecosystem_sync_total",
		Help:      "Ecosystem hub sync attempts by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if m.hubLatency, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ecosystem_hub_request_seconds",
		Help:      "Latency of hub publish requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if m.uploads, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "image_uploads_total",
		Help:      "Listing image uploads by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.swept, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listings_expired_total",
		Help:      "Listings moved to expired by the sweeper.",
	})); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

func (m *Metrics) Transition(kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind).Inc()
}

func (m *Metrics) SyncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(outcome).Inc()
}

// ObserveHubCall records one hub request.
func (m *Metrics) ObserveHubCall(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.hubLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) Upload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) Expired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}
