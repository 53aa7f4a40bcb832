package analytics

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/queuekit/queue-analytics/pkg/observability"
)

// SnapshotStore persists overall aggregates for history queries
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
	ListSnapshots(ctx context.Context, shopID string, query SnapshotQuery) ([]Snapshot, error)
}

// Service is the analytics facade used by the HTTP API and the snapshotter
type Service struct {
	calc      *Calculator
	cache     *Cache
	snapshots SnapshotStore
	metrics   *observability.Metrics
	logger    *observability.Logger
	loc       *time.Location
	now       func() time.Time
	ttl       time.Duration
}

// Option configures a Service
type Option func(*Service)

// WithMetrics enables Prometheus instrumentation
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source used for windows and cache expiry
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the zone used for hour buckets and summary windows
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithSnapshotStore enables history queries and snapshot capture
func WithSnapshotStore(store SnapshotStore) Option {
	return func(s *Service) { s.snapshots = store }
}

// WithCacheTTL overrides the TTL of entries written by the service
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// NewService creates the analytics service
func NewService(source RecordSource, cache *Cache, opts ...Option) *Service {
	s := &Service{
		cache: cache,
		loc:   time.Local,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	s.calc = NewCalculator(source, s.loc, s.metrics)
	s.calc.now = s.now
	s.cache.now = s.now
	return s
}

// GetQueueAnalytics returns overall analytics for the window, served from
// the cache when a live entry covers it.
func (s *Service) GetQueueAnalytics(ctx context.Context, shopID string, from, to time.Time, filters Filters) (*QueueAnalyticsEntity, error) {
	const op = "GetQueueAnalytics"
	r := DateRange{From: from, To: to}
	if err := validateInput(op, shopID, r, filters); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "analytics.Service."+op)
	defer span.End()
	span.SetAttributes(attribute.String("shop_id", shopID))

	cached, err := s.readCached(ctx, shopID, r, filters)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cache read failed")
		return nil, err
	}
	if cached != nil {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))

	result, err := s.calc.Overall(ctx, shopID, r, filters)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute failed")
		return nil, err
	}

	if _, err := s.cache.Set(ctx, shopID, AggregateOverall, r, filters, result, s.ttl); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cache write failed")
		return nil, err
	}
	return result, nil
}

// readCached returns the cached overall aggregate when it is live, covers
// the window and was computed for the same filters.
func (s *Service) readCached(ctx context.Context, shopID string, r DateRange, filters Filters) (*QueueAnalyticsEntity, error) {
	entry, err := s.cache.Lookup(ctx, shopID, r, filters)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Kind != AggregateOverall || entry.Filters != filters || !IsValid(entry, r.From, r.To) {
		s.metrics.CacheMiss(s.cache.Backend(), AggregateOverall)
		return nil, nil
	}

	var result QueueAnalyticsEntity
	if err := entry.Decode(&result); err != nil {
		s.logger.WithError(err).WithField("shop_id", shopID).WithWindow(r.From, r.To).Warn("discarding undecodable cache entry")
		s.metrics.CacheMiss(s.cache.Backend(), AggregateOverall)
		return nil, nil
	}
	s.metrics.CacheHit(s.cache.Backend(), AggregateOverall)
	return &result, nil
}

// GetQueueTimeAnalytics returns wait and service time distributions
func (s *Service) GetQueueTimeAnalytics(ctx context.Context, shopID string, from, to time.Time, filters Filters) (*QueueTimeAnalyticsEntity, error) {
	return s.calc.Time(ctx, shopID, DateRange{From: from, To: to}, filters)
}

// GetQueuePeakHours returns the hourly classification, NOT_FOUND when the
// window holds no records.
func (s *Service) GetQueuePeakHours(ctx context.Context, shopID string, from, to time.Time, filters Filters) (*QueuePeakHoursEntity, error) {
	r := DateRange{From: from, To: to}
	result, n, err := s.calc.PeakHours(ctx, shopID, r, filters)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, notFound("GetQueuePeakHours", errorContext(shopID, &r, filters))
	}
	return result, nil
}

// GetQueueServiceAnalytics returns the service ranking, NOT_FOUND when the
// window holds no records.
func (s *Service) GetQueueServiceAnalytics(ctx context.Context, shopID string, from, to time.Time, filters Filters) (*QueueServiceAnalyticsEntity, error) {
	r := DateRange{From: from, To: to}
	result, n, err := s.calc.Services(ctx, shopID, r, filters)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, notFound("GetQueueServiceAnalytics", errorContext(shopID, &r, filters))
	}
	return result, nil
}

// GetCachedQueueAnalytics returns the latest cached overall aggregate of
// the shop, or nil without error on a miss.
func (s *Service) GetCachedQueueAnalytics(ctx context.Context, shopID string) (*QueueAnalyticsEntity, error) {
	if shopID == "" {
		return nil, validationError("GetCachedQueueAnalytics", errorContext(shopID, nil, Filters{}), ErrShopIDRequired)
	}
	entry, err := s.cache.Get(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Kind != AggregateOverall {
		s.metrics.CacheMiss(s.cache.Backend(), AggregateOverall)
		return nil, nil
	}
	var result QueueAnalyticsEntity
	if err := entry.Decode(&result); err != nil {
		return nil, operationFailed("GetCachedQueueAnalytics", "failed to decode cached entry", errorContext(shopID, nil, Filters{}), err)
	}
	s.metrics.CacheHit(s.cache.Backend(), AggregateOverall)
	return &result, nil
}

// Windows returns today, this week (from Sunday) and this month, each
// ending at now, in the service location.
func (s *Service) Windows() (today, week, month DateRange) {
	now := s.now().In(s.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	today = DateRange{From: midnight, To: now}
	week = DateRange{From: midnight.AddDate(0, 0, -int(now.Weekday())), To: now}
	month = DateRange{From: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc), To: now}
	return today, week, month
}

// GetQueueAnalyticsSummary fetches the dashboard bundle concurrently. Any
// failure fails the whole summary.
func (s *Service) GetQueueAnalyticsSummary(ctx context.Context, shopID string) (*Summary, error) {
	const op = "GetQueueAnalyticsSummary"
	if shopID == "" {
		return nil, validationError(op, errorContext(shopID, nil, Filters{}), ErrShopIDRequired)
	}

	ctx, span := tracer.Start(ctx, "analytics.Service."+op)
	defer span.End()
	span.SetAttributes(attribute.String("shop_id", shopID))

	today, week, month := s.Windows()
	var summary Summary

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary.Today, err = s.GetQueueAnalytics(gctx, shopID, today.From, today.To, Filters{})
		return err
	})
	g.Go(func() error {
		var err error
		summary.Weekly, err = s.GetQueueAnalytics(gctx, shopID, week.From, week.To, Filters{})
		return err
	})
	g.Go(func() error {
		var err error
		summary.Monthly, err = s.GetQueueAnalytics(gctx, shopID, month.From, month.To, Filters{})
		return err
	})
	g.Go(func() error {
		var err error
		summary.PeakHours, _, err = s.calc.PeakHours(gctx, shopID, week, Filters{})
		return err
	})
	g.Go(func() error {
		var err error
		summary.ServiceAnalytics, _, err = s.calc.Services(gctx, shopID, month, Filters{})
		return err
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "summary failed")
		return nil, wrapUnknown(op, errorContext(shopID, nil, Filters{}), err)
	}
	return &summary, nil
}

// GetPaginatedQueueAnalyticsHistory pages through persisted snapshots,
// newest first.
func (s *Service) GetPaginatedQueueAnalyticsHistory(ctx context.Context, params HistoryParams) (*HistoryPage, error) {
	const op = "GetPaginatedQueueAnalyticsHistory"
	errCtx := errorContext(params.ShopID, params.Range, params.Filters)

	if params.ShopID == "" {
		return nil, validationError(op, errCtx, ErrShopIDRequired)
	}
	if params.Page < 1 || params.Limit < 1 {
		return nil, validationError(op, errCtx, ErrInvalidPage)
	}
	if err := params.Filters.Validate(); err != nil {
		return nil, validationError(op, errCtx, err)
	}
	if params.Range != nil {
		if err := params.Range.Validate(); err != nil {
			return nil, validationError(op, errCtx, err)
		}
	}
	if s.snapshots == nil {
		return nil, operationFailed(op, "no snapshot store configured", errCtx, nil)
	}

	snapshots, err := s.snapshots.ListSnapshots(ctx, params.ShopID, SnapshotQuery{Range: params.Range, Filters: params.Filters})
	if err != nil {
		return nil, operationFailed(op, "failed to list snapshots", errCtx, err)
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})

	return paginate(snapshots, params.Page, params.Limit), nil
}

func paginate(snapshots []Snapshot, page, limit int) *HistoryPage {
	total := len(snapshots)
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	start := total
	if page-1 < pages {
		start = (page - 1) * limit
	}
	end := total
	if limit < total-start {
		end = start + limit
	}

	data := make([]Snapshot, end-start)
	copy(data, snapshots[start:end])

	return &HistoryPage{
		Data: data,
		Pagination: Pagination{
			Page:       page,
			PerPage:    limit,
			Total:      total,
			TotalPages: pages,
		},
	}
}

// InvalidateAnalyticsCache drops every cached entry of the shop
func (s *Service) InvalidateAnalyticsCache(ctx context.Context, shopID string) error {
	if err := s.cache.Invalidate(ctx, shopID); err != nil {
		return err
	}
	s.metrics.CacheInvalidated(s.cache.Backend())
	s.logger.WithField("shop_id", shopID).Info("analytics cache invalidated")
	return nil
}
