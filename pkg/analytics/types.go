package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// QueueStatus is the lifecycle state of a queue record
type QueueStatus string

const (
	StatusWaiting    QueueStatus = "waiting"
	StatusInProgress QueueStatus = "in_progress"
	StatusCompleted  QueueStatus = "completed"
	StatusCancelled  QueueStatus = "cancelled"
	StatusNoShow     QueueStatus = "no_show"
)

// Valid reports whether s is one of the known statuses
func (s QueueStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// QueueRecord is one customer's journey through a shop queue.
// ActualWaitTime is expressed in minutes.
type QueueRecord struct {
	ID             string      `json:"id"`
	Status         QueueStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	ActualWaitTime *float64    `json:"actual_wait_time,omitempty"`
	ServiceID      string      `json:"service_id"`
	ServiceName    string      `json:"service_name,omitempty"`
	TotalAmount    float64     `json:"total_amount"`
}

// DateRange is an inclusive time window
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// NewDateRange builds a DateRange
func NewDateRange(from, to time.Time) DateRange {
	return DateRange{From: from, To: to}
}

// Validate checks that both bounds are set and From <= To
func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return ErrDateRangeRequired
	}
	if r.From.After(r.To) {
		return ErrDateRangeInverted
	}
	return nil
}

// Covers reports whether r fully contains other
func (r DateRange) Covers(other DateRange) bool {
	return !r.From.After(other.From) && !r.To.Before(other.To)
}

// Filters are optional equality predicates applied by the record source
// in addition to the shop and date-range predicates.
type Filters struct {
	EmployeeID   string `json:"employee_id,omitempty"`
	ServiceID    string `json:"service_id,omitempty"`
	Status       string `json:"status,omitempty"`
	DepartmentID string `json:"department_id,omitempty"`
}

// Validate rejects a status filter that names no known status
func (f Filters) Validate() error {
	if f.Status != "" && !QueueStatus(f.Status).Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
	}
	return nil
}

// IsZero reports whether no filter is set
func (f Filters) IsZero() bool {
	return f == Filters{}
}

// Hash returns a short stable digest of the filter set, empty for no filters
func (f Filters) Hash() string {
	if f.IsZero() {
		return ""
	}
	raw := strings.Join([]string{f.EmployeeID, f.ServiceID, f.Status, f.DepartmentID}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

func (f Filters) fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if f.EmployeeID != "" {
		fields["employee_id"] = f.EmployeeID
	}
	if f.ServiceID != "" {
		fields["service_id"] = f.ServiceID
	}
	if f.Status != "" {
		fields["status"] = f.Status
	}
	if f.DepartmentID != "" {
		fields["department_id"] = f.DepartmentID
	}
	return fields
}

// QueueAnalyticsEntity holds overall throughput statistics for a window.
// Rates are percentages in [0,100]; times are minutes.
type QueueAnalyticsEntity struct {
	ShopID             string    `json:"shop_id"`
	DateRange          DateRange `json:"date_range"`
	TotalQueues        int       `json:"total_queues"`
	CompletedQueues    int       `json:"completed_queues"`
	CancelledQueues    int       `json:"cancelled_queues"`
	NoShowQueues       int       `json:"no_show_queues"`
	InProgressQueues   int       `json:"in_progress_queues"`
	WaitingQueues      int       `json:"waiting_queues"`
	CompletionRate     float64   `json:"completion_rate"`
	CancellationRate   float64   `json:"cancellation_rate"`
	NoShowRate         float64   `json:"no_show_rate"`
	AverageWaitTime    float64   `json:"average_wait_time"`
	AverageServiceTime float64   `json:"average_service_time"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// QueueTimeAnalyticsEntity holds wait and service time distributions
type QueueTimeAnalyticsEntity struct {
	ShopID             string    `json:"shop_id"`
	DateRange          DateRange `json:"date_range"`
	AverageWaitTime    float64   `json:"average_wait_time"`
	MedianWaitTime     float64   `json:"median_wait_time"`
	MinWaitTime        float64   `json:"min_wait_time"`
	MaxWaitTime        float64   `json:"max_wait_time"`
	AverageServiceTime float64   `json:"average_service_time"`
	MedianServiceTime  float64   `json:"median_service_time"`
	MinServiceTime     float64   `json:"min_service_time"`
	MaxServiceTime     float64   `json:"max_service_time"`
	TotalServiceTime   float64   `json:"total_service_time"`
	CreatedAt          time.Time `json:"created_at"`
}

// PeakHour is an hour whose volume exceeds the hourly average
type PeakHour struct {
	Hour            int     `json:"hour"`
	QueueCount      int     `json:"queue_count"`
	AverageWaitTime float64 `json:"average_wait_time"`
	CompletionRate  float64 `json:"completion_rate"`
}

// QuietHour is an hour at or below the hourly average
type QuietHour struct {
	Hour            int     `json:"hour"`
	QueueCount      int     `json:"queue_count"`
	AverageWaitTime float64 `json:"average_wait_time"`
}

// StaffingRecommendation is the suggested headcount for one hour
type StaffingRecommendation struct {
	Hour                 int    `json:"hour"`
	RecommendedEmployees int    `json:"recommended_employees"`
	Reason               string `json:"reason"`
}

// QueuePeakHoursEntity classifies every hour of the day as peak or quiet
type QueuePeakHoursEntity struct {
	ShopID              string                   `json:"shop_id"`
	DateRange           DateRange                `json:"date_range"`
	PeakHours           []PeakHour               `json:"peak_hours"`
	QuietHours          []QuietHour              `json:"quiet_hours"`
	RecommendedStaffing []StaffingRecommendation `json:"recommended_staffing"`
	CreatedAt           time.Time                `json:"created_at"`
}

// ServiceStat is the per-service breakdown
type ServiceStat struct {
	ServiceID          string  `json:"service_id"`
	ServiceName        string  `json:"service_name"`
	TotalQueues        int     `json:"total_queues"`
	CompletedQueues    int     `json:"completed_queues"`
	AverageWaitTime    float64 `json:"average_wait_time"`
	AverageServiceTime float64 `json:"average_service_time"`
	Revenue            float64 `json:"revenue"`
	PopularityScore    float64 `json:"popularity_score"`
}

// ServiceRanking is an entry in the top/least popular lists
type ServiceRanking struct {
	ServiceID   string  `json:"service_id"`
	ServiceName string  `json:"service_name"`
	QueueCount  int     `json:"queue_count"`
	Revenue     float64 `json:"revenue"`
}

// QueueServiceAnalyticsEntity ranks services by popularity
type QueueServiceAnalyticsEntity struct {
	ShopID               string           `json:"shop_id"`
	DateRange            DateRange        `json:"date_range"`
	ServiceStats         []ServiceStat    `json:"service_stats"`
	TopServices          []ServiceRanking `json:"top_services"`
	LeastPopularServices []ServiceRanking `json:"least_popular_services"`
	CreatedAt            time.Time        `json:"created_at"`
}

// Summary is the dashboard bundle returned by GetQueueAnalyticsSummary
type Summary struct {
	Today            *QueueAnalyticsEntity        `json:"today"`
	Weekly           *QueueAnalyticsEntity        `json:"weekly"`
	Monthly          *QueueAnalyticsEntity        `json:"monthly"`
	PeakHours        *QueuePeakHoursEntity        `json:"peak_hours"`
	ServiceAnalytics *QueueServiceAnalyticsEntity `json:"service_analytics"`
}

// Snapshot is a persisted overall aggregate used for history
type Snapshot struct {
	ID        string               `json:"id"`
	ShopID    string               `json:"shop_id"`
	DateRange DateRange            `json:"date_range"`
	Filters   Filters              `json:"filters"`
	Analytics QueueAnalyticsEntity `json:"analytics"`
	CreatedAt time.Time            `json:"created_at"`
}

// SnapshotQuery narrows a snapshot listing. A nil Range returns every snapshot.
type SnapshotQuery struct {
	Range   *DateRange
	Filters Filters
}

// HistoryParams are the inputs of GetPaginatedQueueAnalyticsHistory
type HistoryParams struct {
	ShopID  string
	Page    int
	Limit   int
	Range   *DateRange
	Filters Filters
}

// Pagination describes a page of results
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// HistoryPage is one page of persisted snapshots
type HistoryPage struct {
	Data       []Snapshot `json:"data"`
	Pagination Pagination `json:"pagination"`
}
