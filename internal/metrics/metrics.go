// Package metrics exposes Prometheus collectors for block validation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "klingnet_stake",
		Subsystem: "consensus",
		Name:      "validations_total",
		Help:      "Count of block validations by block type and status.",
	}, []string{"type", "status"})
	rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "klingnet_stake",
		Subsystem: "consensus",
		Name:      "rejections_total",
		Help:      "Count of rejected blocks by reason code.",
	}, []string{"reason"})
	validationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "klingnet_stake",
		Subsystem: "consensus",
		Name:      "validation_duration_seconds",
		Help:      "Duration of block validations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type", "status"})
	modifierCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "klingnet_stake",
		Subsystem: "consensus",
		Name:      "modifier_cache_lookups_total",
		Help:      "Effective stake modifier lookups by cache result.",
	}, []string{"result"})
	tipHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "klingnet_stake",
		Subsystem: "chain",
		Name:      "tip_height",
		Help:      "Height of the best chain tip.",
	})
)

// Consensus records block validation outcomes.
type Consensus struct{}

// NewConsensus constructs the consensus metrics collector.
func NewConsensus() *Consensus {
	return &Consensus{}
}

// ObserveValidation records a validation of a block of type blockType.
// reason is the rejection reason, empty when the block was accepted.
func (Consensus) ObserveValidation(blockType string, reason string, started time.Time) {
	status := "accepted"
	if reason != "" {
		status = "rejected"
		rejectionsTotal.WithLabelValues(reason).Inc()
	}
	validationsTotal.WithLabelValues(blockType, status).Inc()
	validationDuration.WithLabelValues(blockType, status).Observe(time.Since(started).Seconds())
}

// ObserveModifierCache records an effective-modifier cache lookup.
func (Consensus) ObserveModifierCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	modifierCacheTotal.WithLabelValues(result).Inc()
}

// SetTipHeight records the height of the best chain tip.
func (Consensus) SetTipHeight(height uint64) {
	tipHeight.Set(float64(height))
}
