package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCalculator(source RecordSource) *Calculator {
	c := NewCalculator(source, time.UTC, nil)
	c.now = fixedClock
	return c
}

func TestCalculator_Overall(t *testing.T) {
	c := newTestCalculator(&fakeSource{records: januaryRecords()})

	got, err := c.Overall(context.Background(), "S1", january(), Filters{})
	require.NoError(t, err)

	assert.Equal(t, "S1", got.ShopID)
	assert.Equal(t, 10, got.TotalQueues)
	assert.Equal(t, 6, got.CompletedQueues)
	assert.Equal(t, 2, got.CancelledQueues)
	assert.Equal(t, 1, got.NoShowQueues)
	assert.Equal(t, 1, got.WaitingQueues)
	assert.Equal(t, 0, got.InProgressQueues)
	assert.Equal(t, got.TotalQueues,
		got.CompletedQueues+got.CancelledQueues+got.NoShowQueues+got.InProgressQueues+got.WaitingQueues)

	assert.Equal(t, 60.0, got.CompletionRate)
	assert.Equal(t, 20.0, got.CancellationRate)
	assert.Equal(t, 10.0, got.NoShowRate)
	assert.Equal(t, 20.0, got.AverageWaitTime)
	assert.InDelta(t, 26.667, got.AverageServiceTime, 0.001)
	assert.Equal(t, fixedNow, got.CreatedAt)
}

func TestCalculator_Overall_Empty(t *testing.T) {
	c := newTestCalculator(&fakeSource{})

	got, err := c.Overall(context.Background(), "S1", january(), Filters{})
	require.NoError(t, err)
	assert.Equal(t, 0, got.TotalQueues)
	assert.Equal(t, 0.0, got.CompletionRate)
	assert.Equal(t, 0.0, got.CancellationRate)
	assert.Equal(t, 0.0, got.NoShowRate)
}

func TestCalculator_Overall_AppliesFilters(t *testing.T) {
	c := newTestCalculator(&fakeSource{records: januaryRecords()})

	got, err := c.Overall(context.Background(), "S1", january(), Filters{ServiceID: "cut"})
	require.NoError(t, err)
	assert.Equal(t, 5, got.TotalQueues)
	assert.Equal(t, 60.0, got.CompletionRate)
}

func TestCalculator_Time(t *testing.T) {
	c := newTestCalculator(&fakeSource{records: januaryRecords()})

	got, err := c.Time(context.Background(), "S1", january(), Filters{})
	require.NoError(t, err)

	assert.Equal(t, 20.0, got.AverageWaitTime)
	assert.Equal(t, 17.5, got.MedianWaitTime)
	assert.Equal(t, 5.0, got.MinWaitTime)
	assert.Equal(t, 40.0, got.MaxWaitTime)
	assert.Equal(t, 27.5, got.MedianServiceTime)
	assert.Equal(t, 10.0, got.MinServiceTime)
	assert.Equal(t, 40.0, got.MaxServiceTime)
	assert.Equal(t, 160.0, got.TotalServiceTime)
	assert.LessOrEqual(t, got.MinWaitTime, got.MedianWaitTime)
	assert.LessOrEqual(t, got.MedianWaitTime, got.MaxWaitTime)
}

func TestCalculator_Time_EmptySampleIsZero(t *testing.T) {
	c := newTestCalculator(&fakeSource{})

	got, err := c.Time(context.Background(), "S1", january(), Filters{})
	require.NoError(t, err)
	assert.Equal(t, QueueTimeAnalyticsEntity{ShopID: "S1", DateRange: january(), CreatedAt: fixedNow}, *got)
}

func TestCalculator_PeakHours_SingleSpike(t *testing.T) {
	records := make([]QueueRecord, 50)
	for i := range records {
		records[i] = QueueRecord{
			ID:        string(rune('a' + i%26)),
			Status:    StatusCompleted,
			CreatedAt: time.Date(2024, 1, 10, 13, i%60, 0, 0, time.UTC),
		}
	}
	c := newTestCalculator(&fakeSource{records: records})

	got, n, err := c.PeakHours(context.Background(), "S1", january(), Filters{})
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	require.Len(t, got.PeakHours, 1)
	assert.Equal(t, 13, got.PeakHours[0].Hour)
	assert.Equal(t, 50, got.PeakHours[0].QueueCount)
	assert.Equal(t, 100.0, got.PeakHours[0].CompletionRate)
	assert.Len(t, got.QuietHours, 23)

	require.Len(t, got.RecommendedStaffing, 24)
	for hour, rec := range got.RecommendedStaffing {
		assert.Equal(t, hour, rec.Hour)
		if hour == 13 {
			assert.Equal(t, 5, rec.RecommendedEmployees)
			assert.Equal(t, ReasonMonitorClosely, rec.Reason)
		} else {
			assert.Equal(t, 0, rec.RecommendedEmployees)
			assert.Equal(t, ReasonNoActivity, rec.Reason)
		}
	}
}

func TestCalculator_PeakHours_EveryHourClassifiedOnce(t *testing.T) {
	c := newTestCalculator(&fakeSource{records: januaryRecords()})

	got, _, err := c.PeakHours(context.Background(), "S1", january(), Filters{})
	require.NoError(t, err)

	seen := make(map[int]int)
	for _, h := range got.PeakHours {
		seen[h.Hour]++
	}
	for _, h := range got.QuietHours {
		seen[h.Hour]++
	}
	assert.Len(t, seen, 24)
	for hour, count := range seen {
		assert.Equal(t, 1, count, "hour %d", hour)
	}

	peak := make([]int, 0, len(got.PeakHours))
	for _, h := range got.PeakHours {
		peak = append(peak, h.Hour)
	}
	assert.Equal(t, []int{9, 10, 11, 12, 14, 16}, peak)

	assert.Equal(t, ReasonIncreaseStaff, got.RecommendedStaffing[11].Reason)
	assert.Equal(t, ReasonAdequateStaffed, got.RecommendedStaffing[10].Reason)
	assert.Equal(t, 1, got.RecommendedStaffing[10].RecommendedEmployees)
}

func TestCalculator_Services(t *testing.T) {
	c := newTestCalculator(&fakeSource{records: januaryRecords()})

	got, n, err := c.Services(context.Background(), "S1", january(), Filters{})
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	require.Len(t, got.ServiceStats, 4)
	ids := make([]string, 0, 4)
	for _, s := range got.ServiceStats {
		ids = append(ids, s.ServiceID)
		assert.GreaterOrEqual(t, s.PopularityScore, 0.0)
		assert.LessOrEqual(t, s.PopularityScore, 100.0)
	}
	assert.Equal(t, []string{"color", "cut", "shave", "unknown"}, ids)

	cut := got.ServiceStats[1]
	assert.Equal(t, "Haircut", cut.ServiceName)
	assert.Equal(t, 5, cut.TotalQueues)
	assert.Equal(t, 3, cut.CompletedQueues)
	assert.Equal(t, 75.0, cut.Revenue)
	assert.InDelta(t, (10+60+0.75)/3, cut.PopularityScore, 1e-9)

	assert.Equal(t, "unknown", got.ServiceStats[3].ServiceName)

	// Fewer than ten services: top and least lists overlap
	assert.Len(t, got.TopServices, 4)
	assert.Len(t, got.LeastPopularServices, 4)
	assert.Equal(t, "color", got.TopServices[0].ServiceID)
	assert.Equal(t, 160.0, got.TopServices[0].Revenue)
}

func TestCalculator_Services_RankingSize(t *testing.T) {
	var records []QueueRecord
	base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		for j := 0; j <= i; j++ {
			records = append(records, QueueRecord{
				Status:    StatusCompleted,
				CreatedAt: base,
				ServiceID: string(rune('a' + i)),
			})
		}
	}
	c := newTestCalculator(&fakeSource{records: records})

	got, _, err := c.Services(context.Background(), "S1", january(), Filters{})
	require.NoError(t, err)
	assert.Len(t, got.ServiceStats, 12)
	require.Len(t, got.TopServices, 5)
	require.Len(t, got.LeastPopularServices, 5)
	assert.Equal(t, "l", got.TopServices[0].ServiceID)
	assert.Equal(t, "a", got.LeastPopularServices[4].ServiceID)
}

func TestCalculator_ValidationErrors(t *testing.T) {
	src := &fakeSource{records: januaryRecords()}
	c := newTestCalculator(src)
	jan := january()

	tests := []struct {
		name   string
		shopID string
		r      DateRange
		cause  error
	}{
		{"missing shop", "", jan, ErrShopIDRequired},
		{"inverted range", "S1", DateRange{From: jan.To, To: jan.From}, ErrDateRangeInverted},
		{"zero bounds", "S1", DateRange{}, ErrDateRangeRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Overall(context.Background(), tt.shopID, tt.r, Filters{})
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.ErrorIs(t, err, tt.cause)
		})
	}
	assert.Equal(t, 0, src.Calls())
}

func TestCalculator_SourceFailureIsOperationFailed(t *testing.T) {
	cause := errors.New("connection refused")
	c := newTestCalculator(&fakeSource{err: cause})

	_, err := c.Overall(context.Background(), "S1", january(), Filters{ServiceID: "cut"})
	require.Error(t, err)

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, KindOperationFailed, ae.Kind)
	assert.Equal(t, "Overall", ae.Op)
	assert.Equal(t, "S1", ae.Context["shop_id"])
	assert.Equal(t, january().From, ae.Context["from"])
	assert.Equal(t, map[string]interface{}{"service_id": "cut"}, ae.Context["filters"])
	assert.ErrorIs(t, err, cause)
}

func TestCalculator_Report(t *testing.T) {
	src := &fakeSource{records: januaryRecords()}
	c := newTestCalculator(src)

	report, err := c.Report(context.Background(), "S1", january(), Filters{})
	require.NoError(t, err)
	assert.Equal(t, 1, src.Calls())
	assert.Equal(t, 10, report.Overall.TotalQueues)
	assert.Equal(t, 160.0, report.Time.TotalServiceTime)
	assert.Len(t, report.Peak.RecommendedStaffing, 24)
	assert.Len(t, report.Services.ServiceStats, 4)
}
