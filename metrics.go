package authcore

import (
	internalmetrics "github.com/carewire/authcore/internal/metrics"
)

// MetricID defines a public type used by authcore APIs.
type MetricID = internalmetrics.MetricID

// Metric identifiers exported for snapshot consumers and exporters.
const (
	MetricTokenIssued         = internalmetrics.MetricTokenIssued
	MetricValidateSuccess     = internalmetrics.MetricValidateSuccess
	MetricValidateFailure     = internalmetrics.MetricValidateFailure
	MetricRefreshSuccess      = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure      = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseBlocked = internalmetrics.MetricRefreshReuseBlocked
	MetricTokenBlacklisted    = internalmetrics.MetricTokenBlacklisted
	MetricSessionCreated      = internalmetrics.MetricSessionCreated
	MetricSessionEvicted      = internalmetrics.MetricSessionEvicted
	MetricSessionRevoked      = internalmetrics.MetricSessionRevoked
	MetricChallengeIssued     = internalmetrics.MetricChallengeIssued
	MetricChallengeAccepted   = internalmetrics.MetricChallengeAccepted
	MetricChallengeRejected   = internalmetrics.MetricChallengeRejected
	MetricRateLimitHit        = internalmetrics.MetricRateLimitHit
	MetricValidateLatency     = internalmetrics.MetricValidateLatency
	MetricIDCount             = internalmetrics.MetricIDCount
)

// MetricsSnapshot defines a public type used by authcore APIs.
type MetricsSnapshot = internalmetrics.Snapshot
