package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/queuekit/queue-analytics/pkg/async"
)

// ShopLister enumerates the shops the snapshotter walks
type ShopLister interface {
	ListShopIDs(ctx context.Context) ([]string, error)
}

// ReportArchive stores rendered reports
type ReportArchive interface {
	PutReport(ctx context.Context, key, contentType string, data []byte) error
}

// CaptureSnapshot computes the overall aggregate of the window, bypassing
// the cache, and persists it as a history snapshot.
func (s *Service) CaptureSnapshot(ctx context.Context, shopID string, r DateRange, filters Filters) (*Snapshot, error) {
	const op = "CaptureSnapshot"
	if s.snapshots == nil {
		return nil, operationFailed(op, "no snapshot store configured", errorContext(shopID, &r, filters), nil)
	}

	overall, err := s.calc.Overall(ctx, shopID, r, filters)
	if err != nil {
		s.metrics.ObserveSnapshot(err)
		return nil, err
	}

	snap := &Snapshot{
		ID:        uuid.New().String(),
		ShopID:    shopID,
		DateRange: r,
		Filters:   filters,
		Analytics: *overall,
		CreatedAt: s.now(),
	}
	if err := s.snapshots.SaveSnapshot(ctx, snap); err != nil {
		err = operationFailed(op, "failed to save snapshot", errorContext(shopID, &r, filters), err)
		s.metrics.ObserveSnapshot(err)
		return nil, err
	}
	s.metrics.ObserveSnapshot(nil)
	return snap, nil
}

// SnapshotterConfig tunes a Snapshotter
type SnapshotterConfig struct {
	Workers     int
	TaskTimeout time.Duration
	// ArchiveFormat renders and uploads a report per shop when set and an
	// archive is configured.
	ArchiveFormat string
}

// CaptureResult summarizes one CaptureDaily run
type CaptureResult struct {
	Day      DateRange
	Shops    int
	Captured int
	Archived int
	Errors   []error
}

// Snapshotter captures one snapshot per shop per day
type Snapshotter struct {
	service *Service
	shops   ShopLister
	archive ReportArchive
	cfg     SnapshotterConfig
	log     *logrus.Logger
}

// NewSnapshotter creates a snapshotter. archive may be nil.
func NewSnapshotter(service *Service, shops ShopLister, archive ReportArchive, cfg SnapshotterConfig, log *logrus.Logger) *Snapshotter {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Snapshotter{service: service, shops: shops, archive: archive, cfg: cfg, log: log}
}

// DayRange returns [00:00, 23:59:59.999999999] of day in loc
func DayRange(day time.Time, loc *time.Location) DateRange {
	if loc == nil {
		loc = time.Local
	}
	d := day.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return DateRange{From: start, To: start.AddDate(0, 0, 1).Add(-time.Nanosecond)}
}

// CaptureDaily snapshots every shop for the given day. A failing shop is
// logged and collected without stopping the others.
func (s *Snapshotter) CaptureDaily(ctx context.Context, day time.Time) (*CaptureResult, error) {
	shopIDs, err := s.shops.ListShopIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}

	r := DayRange(day, s.service.loc)
	result := &CaptureResult{Day: r, Shops: len(shopIDs)}

	var mu sync.Mutex
	result.Errors = async.Batch(ctx, shopIDs, s.cfg.Workers, "daily snapshot", s.cfg.TaskTimeout, func(ctx context.Context, shopID string) error {
		archived, err := s.captureShop(ctx, shopID, r)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		result.Captured++
		if archived {
			result.Archived++
		}
		return nil
	})

	s.log.WithFields(logrus.Fields{
		"day":      r.From.Format("2006-01-02"),
		"shops":    result.Shops,
		"captured": result.Captured,
		"archived": result.Archived,
		"failed":   len(result.Errors),
	}).Info("Daily snapshot run finished")
	return result, nil
}

func (s *Snapshotter) captureShop(ctx context.Context, shopID string, r DateRange) (bool, error) {
	entry := s.log.WithField("shop_id", shopID)

	snap, err := s.service.CaptureSnapshot(ctx, shopID, r, Filters{})
	if err != nil {
		entry.WithError(err).Error("Failed to capture snapshot")
		return false, err
	}
	entry.WithFields(logrus.Fields{
		"snapshot_id": snap.ID,
		"total":       snap.Analytics.TotalQueues,
	}).Debug("Snapshot captured")

	if s.archive == nil || s.cfg.ArchiveFormat == "" {
		return false, nil
	}

	export, err := s.service.ExportAnalyticsData(ctx, shopID, r, s.cfg.ArchiveFormat)
	if err != nil {
		entry.WithError(err).Error("Failed to render report")
		return false, err
	}
	key := fmt.Sprintf("reports/%s/%s/%s", shopID, r.From.Format("2006/01/02"), export.Filename)
	if err := s.archive.PutReport(ctx, key, export.ContentType, export.Data); err != nil {
		entry.WithError(err).WithField("key", key).Error("Failed to archive report")
		return false, err
	}
	entry.WithField("key", key).Debug("Report archived")
	return true, nil
}
