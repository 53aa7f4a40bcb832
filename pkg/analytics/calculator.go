package analytics

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/queuekit/queue-analytics/pkg/observability"
)

var tracer = otel.Tracer("queue-analytics/analytics")

// Aggregate names, used for cache entries, metrics and exports
const (
	AggregateOverall  = "overall"
	AggregateTime     = "time"
	AggregatePeak     = "peak_hours"
	AggregateServices = "services"
)

const rankingSize = 5

// RecordSource returns the raw queue records of a shop created within
// [from, to], narrowed by the optional filters.
type RecordSource interface {
	GetRecords(ctx context.Context, shopID string, from, to time.Time, filters Filters) ([]QueueRecord, error)
}

// Report bundles the four aggregates computed from one record fetch
type Report struct {
	Overall  *QueueAnalyticsEntity        `json:"overall"`
	Time     *QueueTimeAnalyticsEntity    `json:"time"`
	Peak     *QueuePeakHoursEntity        `json:"peak_hours"`
	Services *QueueServiceAnalyticsEntity `json:"services"`
}

// Calculator turns raw queue records into aggregate entities. It has no
// side effects besides reading from the record source.
type Calculator struct {
	source  RecordSource
	loc     *time.Location
	now     func() time.Time
	metrics *observability.Metrics
}

// NewCalculator creates a calculator that buckets hours in loc (time.Local when nil)
func NewCalculator(source RecordSource, loc *time.Location, metrics *observability.Metrics) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	return &Calculator{source: source, loc: loc, now: time.Now, metrics: metrics}
}

// Overall computes status counts, rates and average times
func (c *Calculator) Overall(ctx context.Context, shopID string, r DateRange, filters Filters) (*QueueAnalyticsEntity, error) {
	records, err := c.load(ctx, "Overall", AggregateOverall, shopID, r, filters)
	if err != nil {
		return nil, err
	}
	return c.overall(shopID, r, records), nil
}

// Time computes the wait and service time distributions
func (c *Calculator) Time(ctx context.Context, shopID string, r DateRange, filters Filters) (*QueueTimeAnalyticsEntity, error) {
	records, err := c.load(ctx, "Time", AggregateTime, shopID, r, filters)
	if err != nil {
		return nil, err
	}
	return c.timeStats(shopID, r, records), nil
}

// PeakHours classifies each hour of the day and suggests staffing. The
// returned count is the number of records the classification was built from.
func (c *Calculator) PeakHours(ctx context.Context, shopID string, r DateRange, filters Filters) (*QueuePeakHoursEntity, int, error) {
	records, err := c.load(ctx, "PeakHours", AggregatePeak, shopID, r, filters)
	if err != nil {
		return nil, 0, err
	}
	return c.peakHours(shopID, r, records), len(records), nil
}

// Services ranks services by popularity. The returned count is the number
// of records the ranking was built from.
func (c *Calculator) Services(ctx context.Context, shopID string, r DateRange, filters Filters) (*QueueServiceAnalyticsEntity, int, error) {
	records, err := c.load(ctx, "Services", AggregateServices, shopID, r, filters)
	if err != nil {
		return nil, 0, err
	}
	return c.services(shopID, r, records), len(records), nil
}

// Report computes all four aggregates from a single fetch
func (c *Calculator) Report(ctx context.Context, shopID string, r DateRange, filters Filters) (*Report, error) {
	records, err := c.load(ctx, "Report", "report", shopID, r, filters)
	if err != nil {
		return nil, err
	}
	return &Report{
		Overall:  c.overall(shopID, r, records),
		Time:     c.timeStats(shopID, r, records),
		Peak:     c.peakHours(shopID, r, records),
		Services: c.services(shopID, r, records),
	}, nil
}

func validateInput(op, shopID string, r DateRange, filters Filters) error {
	if shopID == "" {
		return validationError(op, errorContext(shopID, &r, filters), ErrShopIDRequired)
	}
	if err := r.Validate(); err != nil {
		return validationError(op, errorContext(shopID, &r, filters), err)
	}
	if err := filters.Validate(); err != nil {
		return validationError(op, errorContext(shopID, &r, filters), err)
	}
	return nil
}

func (c *Calculator) load(ctx context.Context, op, aggregate, shopID string, r DateRange, filters Filters) ([]QueueRecord, error) {
	if err := validateInput(op, shopID, r, filters); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "analytics.Calculator."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("shop_id", shopID),
		attribute.String("aggregate", aggregate),
		attribute.String("from", r.From.Format(time.RFC3339)),
		attribute.String("to", r.To.Format(time.RFC3339)),
	)

	start := time.Now()
	records, err := c.source.GetRecords(ctx, shopID, r.From, r.To, filters)
	c.metrics.ObserveComputation(aggregate, len(records), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch queue records")
		return nil, operationFailed(op, "failed to fetch queue records", errorContext(shopID, &r, filters), err)
	}

	span.SetAttributes(attribute.Int("records", len(records)))
	return records, nil
}

func (c *Calculator) overall(shopID string, r DateRange, records []QueueRecord) *QueueAnalyticsEntity {
	now := c.now()
	e := &QueueAnalyticsEntity{
		ShopID:    shopID,
		DateRange: r,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, rec := range records {
		switch rec.Status {
		case StatusCompleted:
			e.CompletedQueues++
		case StatusCancelled:
			e.CancelledQueues++
		case StatusNoShow:
			e.NoShowQueues++
		case StatusInProgress:
			e.InProgressQueues++
		case StatusWaiting:
			e.WaitingQueues++
		}
	}
	// Records with an unknown status are not counted anywhere, so the total
	// always equals the sum of the five buckets.
	e.TotalQueues = e.CompletedQueues + e.CancelledQueues + e.NoShowQueues + e.InProgressQueues + e.WaitingQueues

	e.CompletionRate = percentage(e.CompletedQueues, e.TotalQueues)
	e.CancellationRate = percentage(e.CancelledQueues, e.TotalQueues)
	e.NoShowRate = percentage(e.NoShowQueues, e.TotalQueues)
	e.AverageWaitTime = Average(ExtractWaitTimes(records))
	e.AverageServiceTime = Average(ExtractServiceTimes(records))
	return e
}

func (c *Calculator) timeStats(shopID string, r DateRange, records []QueueRecord) *QueueTimeAnalyticsEntity {
	wait := ExtractWaitTimes(records)
	service := ExtractServiceTimes(records)
	return &QueueTimeAnalyticsEntity{
		ShopID:             shopID,
		DateRange:          r,
		AverageWaitTime:    Average(wait),
		MedianWaitTime:     Median(wait),
		MinWaitTime:        Min(wait),
		MaxWaitTime:        Max(wait),
		AverageServiceTime: Average(service),
		MedianServiceTime:  Median(service),
		MinServiceTime:     Min(service),
		MaxServiceTime:     Max(service),
		TotalServiceTime:   Sum(service),
		CreatedAt:          c.now(),
	}
}

func (c *Calculator) peakHours(shopID string, r DateRange, records []QueueRecord) *QueuePeakHoursEntity {
	byHour := GroupByHour(records, c.loc)
	averageVolume := float64(len(records)) / 24

	e := &QueuePeakHoursEntity{
		ShopID:              shopID,
		DateRange:           r,
		PeakHours:           []PeakHour{},
		QuietHours:          []QuietHour{},
		RecommendedStaffing: make([]StaffingRecommendation, 0, 24),
		CreatedAt:           c.now(),
	}

	for hour := 0; hour < 24; hour++ {
		bucket := byHour[hour]
		count := len(bucket)
		avgWait := Average(ExtractWaitTimes(bucket))
		completion := percentage(countStatus(bucket, StatusCompleted), count)

		if float64(count) > averageVolume {
			e.PeakHours = append(e.PeakHours, PeakHour{
				Hour:            hour,
				QueueCount:      count,
				AverageWaitTime: avgWait,
				CompletionRate:  completion,
			})
		} else {
			e.QuietHours = append(e.QuietHours, QuietHour{
				Hour:            hour,
				QueueCount:      count,
				AverageWaitTime: avgWait,
			})
		}

		e.RecommendedStaffing = append(e.RecommendedStaffing, StaffingRecommendation{
			Hour:                 hour,
			RecommendedEmployees: RecommendedEmployees(count),
			Reason:               StaffingReason(count, completion, avgWait),
		})
	}
	return e
}

func (c *Calculator) services(shopID string, r DateRange, records []QueueRecord) *QueueServiceAnalyticsEntity {
	groups := GroupByService(records)

	stats := make([]ServiceStat, 0, len(groups))
	for id, bucket := range groups {
		completed := countStatus(bucket, StatusCompleted)
		completion := percentage(completed, len(bucket))
		revenue := Revenue(bucket)
		stats = append(stats, ServiceStat{
			ServiceID:          id,
			ServiceName:        serviceName(id, bucket),
			TotalQueues:        len(bucket),
			CompletedQueues:    completed,
			AverageWaitTime:    Average(ExtractWaitTimes(bucket)),
			AverageServiceTime: Average(ExtractServiceTimes(bucket)),
			Revenue:            revenue,
			PopularityScore:    PopularityScore(len(bucket), completion, revenue),
		})
	}

	// Map iteration order is random; tie-break on id for stable output.
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].PopularityScore != stats[j].PopularityScore {
			return stats[i].PopularityScore > stats[j].PopularityScore
		}
		return stats[i].ServiceID < stats[j].ServiceID
	})

	top := stats
	if len(top) > rankingSize {
		top = top[:rankingSize]
	}
	least := stats
	if len(least) > rankingSize {
		least = least[len(least)-rankingSize:]
	}

	return &QueueServiceAnalyticsEntity{
		ShopID:               shopID,
		DateRange:            r,
		ServiceStats:         stats,
		TopServices:          rankings(top),
		LeastPopularServices: rankings(least),
		CreatedAt:            c.now(),
	}
}

func rankings(stats []ServiceStat) []ServiceRanking {
	out := make([]ServiceRanking, 0, len(stats))
	for _, s := range stats {
		out = append(out, ServiceRanking{
			ServiceID:   s.ServiceID,
			ServiceName: s.ServiceName,
			QueueCount:  s.TotalQueues,
			Revenue:     s.Revenue,
		})
	}
	return out
}

func serviceName(id string, bucket []QueueRecord) string {
	for _, r := range bucket {
		if r.ServiceName != "" {
			return r.ServiceName
		}
	}
	return id
}

func countStatus(records []QueueRecord, status QueueStatus) int {
	n := 0
	for _, r := range records {
		if r.Status == status {
			n++
		}
	}
	return n
}
