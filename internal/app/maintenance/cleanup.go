package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/classdesk/internal/models"
	"github.com/charlesng35/classdesk/internal/services"
	"github.com/charlesng35/classdesk/pkg/logger"
	"github.com/charlesng35/classdesk/pkg/metrics"
)

const (
	defaultAuditRetentionDays = 90
	defaultOrphanGracePeriod  = time.Hour
	defaultOrphanSpec         = "@hourly"
	defaultAuditSpec          = "@daily"

	// orphanLookupBatch bounds the IN clause used to check blob references.
	orphanLookupBatch = 200
)

// Cleaner coordinates background maintenance tasks: removing attachment blobs
// no row references and pruning stale audit logs.
type Cleaner struct {
	db        *gorm.DB
	store     services.BlobStore
	audit     *services.AuditService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	enabled   bool
	retention int
	grace     time.Duration

	orphanSchedule string
	auditSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for scheduling and cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithOrphanGracePeriod sets the minimum blob age before an unreferenced blob
// is removed. Uploads in flight are younger than this.
func WithOrphanGracePeriod(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.grace = d
		}
	}
}

// WithOrphanSchedule overrides the cron specification for the orphan blob sweep.
func WithOrphanSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.orphanSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil store or audit
// service skips the corresponding job.
func NewCleaner(db *gorm.DB, store services.BlobStore, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:             db,
		store:          store,
		audit:          audit,
		now:            time.Now,
		retention:      defaultAuditRetentionDays,
		grace:          defaultOrphanGracePeriod,
		orphanSchedule: defaultOrphanSpec,
		auditSchedule:  defaultAuditSpec,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.sweepsOrphans() || cleaner.audit != nil

	return cleaner
}

func (c *Cleaner) sweepsOrphans() bool {
	return c.db != nil && c.store != nil
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.sweepsOrphans() {
		if _, err := c.cron.AddFunc(c.orphanSchedule, func() {
			if _, err := c.sweepOrphans(context.Background()); err != nil {
				c.log.Warn("orphan blob sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			ctx := context.Background()
			if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sweepsOrphans() {
		if _, err := c.sweepOrphans(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) sweepOrphans(ctx context.Context) (OrphanStats, error) {
	stats, err := CleanupOrphanBlobs(ctx, c.db, c.store, c.now().Add(-c.grace))
	if stats.Removed > 0 {
		c.log.Info("removed orphan blobs",
			zap.Int("scanned", stats.Scanned),
			zap.Int("removed", stats.Removed),
		)
	}
	return stats, err
}

// OrphanStats reports the outcome of an orphan blob sweep.
type OrphanStats struct {
	Scanned int
	Removed int
}

// CleanupOrphanBlobs deletes blobs last modified before cutoff that no
// attachment row references. Delete failures are collected and the sweep
// continues.
func CleanupOrphanBlobs(ctx context.Context, db *gorm.DB, store services.BlobStore, cutoff time.Time) (OrphanStats, error) {
	if db == nil {
		return OrphanStats{}, errors.New("cleanup orphans: db is required")
	}
	if store == nil {
		return OrphanStats{}, errors.New("cleanup orphans: blob store is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stats := OrphanStats{}
	var candidates []string
	if err := store.Walk(ctx, func(info services.BlobInfo) error {
		stats.Scanned++
		if info.ModTime.Before(cutoff) {
			candidates = append(candidates, info.Path)
		}
		return nil
	}); err != nil {
		return stats, fmt.Errorf("cleanup orphans: walk blobs: %w", err)
	}

	var errs error
	for start := 0; start < len(candidates); start += orphanLookupBatch {
		end := start + orphanLookupBatch
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		var referenced []string
		if err := db.WithContext(ctx).
			Model(&models.SubmissionAttachment{}).
			Where("blob_path IN ?", batch).
			Pluck("blob_path", &referenced).Error; err != nil {
			return stats, multierr.Append(errs, fmt.Errorf("cleanup orphans: load references: %w", err))
		}

		inUse := make(map[string]struct{}, len(referenced))
		for _, path := range referenced {
			inUse[path] = struct{}{}
		}

		for _, path := range batch {
			if _, ok := inUse[path]; ok {
				continue
			}
			if err := store.Delete(ctx, path); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("cleanup orphans: delete %s: %w", path, err))
				continue
			}
			stats.Removed++
			metrics.OrphanBlobsRemoved.Inc()
		}
	}

	return stats, errs
}
