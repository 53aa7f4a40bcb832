package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Staffing reasons, checked in this order
const (
	ReasonNoActivity      = "No activity"
	ReasonIncreaseStaff   = "Increase staff immediately"
	ReasonConsiderAdding  = "Consider adding staff"
	ReasonMonitorClosely  = "Monitor closely"
	ReasonAdequateStaffed = "Adequate staffing"
)

const unknownService = "unknown"

// Average returns the arithmetic mean of xs, 0 for an empty slice
func Average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Median returns the middle value of xs (mean of the two middle values for
// even lengths), 0 for an empty slice. xs is not modified.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Min returns the smallest value, 0 for an empty slice
func Min(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// Max returns the largest value, 0 for an empty slice
func Max(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// Sum adds xs
func Sum(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum
}

// ExtractWaitTimes returns the positive wait times in minutes. A missing
// ActualWaitTime counts as 0 and is dropped.
func ExtractWaitTimes(records []QueueRecord) []float64 {
	out := make([]float64, 0, len(records))
	for _, r := range records {
		var w float64
		if r.ActualWaitTime != nil {
			w = *r.ActualWaitTime
		}
		if w > 0 {
			out = append(out, w)
		}
	}
	return out
}

// ExtractServiceTimes returns CompletedAt-CreatedAt in minutes for every
// record where that duration is positive.
func ExtractServiceTimes(records []QueueRecord) []float64 {
	out := make([]float64, 0, len(records))
	for _, r := range records {
		end := r.CreatedAt
		if r.CompletedAt != nil {
			end = *r.CompletedAt
		}
		if m := end.Sub(r.CreatedAt).Minutes(); m > 0 {
			out = append(out, m)
		}
	}
	return out
}

// GroupByHour buckets records by the hour of CreatedAt in loc.
// A nil loc uses time.Local.
func GroupByHour(records []QueueRecord, loc *time.Location) map[int][]QueueRecord {
	if loc == nil {
		loc = time.Local
	}
	groups := make(map[int][]QueueRecord)
	for _, r := range records {
		h := r.CreatedAt.In(loc).Hour()
		groups[h] = append(groups[h], r)
	}
	return groups
}

// GroupByService buckets records by ServiceID, falling back to "unknown"
func GroupByService(records []QueueRecord) map[string][]QueueRecord {
	groups := make(map[string][]QueueRecord)
	for _, r := range records {
		id := r.ServiceID
		if id == "" {
			id = unknownService
		}
		groups[id] = append(groups[id], r)
	}
	return groups
}

// Revenue sums TotalAmount in decimal arithmetic and returns it as a float
func Revenue(records []QueueRecord) float64 {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(decimal.NewFromFloat(r.TotalAmount))
	}
	f, _ := total.Float64()
	return f
}

// PopularityScore blends volume, completion rate and revenue into [0,100]
func PopularityScore(totalQueues int, completionRate, revenue float64) float64 {
	volume := math.Min(float64(totalQueues)*2, 100)
	money := math.Min(revenue/100, 100)
	return (volume + completionRate + money) / 3
}

// StaffingReason picks the staffing advice for an hour, first match wins
func StaffingReason(totalQueues int, completionRate, averageWaitTime float64) string {
	switch {
	case totalQueues == 0:
		return ReasonNoActivity
	case completionRate < 50:
		return ReasonIncreaseStaff
	case averageWaitTime > 30:
		return ReasonConsiderAdding
	case totalQueues > 10:
		return ReasonMonitorClosely
	default:
		return ReasonAdequateStaffed
	}
}

// RecommendedEmployees is one employee per started block of ten queues
func RecommendedEmployees(totalQueues int) int {
	return int(math.Ceil(float64(totalQueues) / 10))
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}
