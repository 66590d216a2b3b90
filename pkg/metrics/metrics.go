package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Redemptions records invitation redemption attempts by outcome
	// (success|not_found|role_mismatch|exhausted|already_redeemed|invalid|error).
	Redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classdesk_invitation_redemptions_total",
			Help: "Total number of invitation redemption attempts",
		},
		[]string{"result"},
	)

	// InvitationsIssued counts invitation codes created, split by whether the code was generated.
	InvitationsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classdesk_invitations_issued_total",
			Help: "Total number of invitation codes issued",
		},
		[]string{"generated"},
	)

	// RedeemLockWait observes how long redeemers wait for the per-code lock.
	RedeemLockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "classdesk_redeem_lock_wait_seconds",
			Help:    "Time spent waiting for the per-code redemption lock",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
	)

	// AttachmentsIngested counts files processed by ingestion, by result (stored|rejected).
	AttachmentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classdesk_attachments_ingested_total",
			Help: "Total number of submission files processed",
		},
		[]string{"result"},
	)

	// AttachmentBytes observes stored attachment sizes.
	AttachmentBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "classdesk_attachment_bytes",
			Help:    "Size of stored submission attachments",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	// OrphanBlobsRemoved counts blobs deleted by the maintenance sweep.
	OrphanBlobsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classdesk_orphan_blobs_removed_total",
			Help: "Total number of unreferenced blobs removed",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classdesk_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
