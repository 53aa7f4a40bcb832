package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/queuekit/queue-analytics/pkg/analytics"
	"github.com/queuekit/queue-analytics/pkg/httputil"
	"github.com/queuekit/queue-analytics/pkg/observability"
)

// AnalyticsService is the analytics surface served over HTTP
type AnalyticsService interface {
	GetQueueAnalytics(ctx context.Context, shopID string, from, to time.Time, filters analytics.Filters) (*analytics.QueueAnalyticsEntity, error)
	GetQueueTimeAnalytics(ctx context.Context, shopID string, from, to time.Time, filters analytics.Filters) (*analytics.QueueTimeAnalyticsEntity, error)
	GetQueuePeakHours(ctx context.Context, shopID string, from, to time.Time, filters analytics.Filters) (*analytics.QueuePeakHoursEntity, error)
	GetQueueServiceAnalytics(ctx context.Context, shopID string, from, to time.Time, filters analytics.Filters) (*analytics.QueueServiceAnalyticsEntity, error)
	GetQueueAnalyticsSummary(ctx context.Context, shopID string) (*analytics.Summary, error)
	GetCachedQueueAnalytics(ctx context.Context, shopID string) (*analytics.QueueAnalyticsEntity, error)
	GetPaginatedQueueAnalyticsHistory(ctx context.Context, params analytics.HistoryParams) (*analytics.HistoryPage, error)
	ExportAnalyticsData(ctx context.Context, shopID string, r analytics.DateRange, format string) (*analytics.ExportResult, error)
	InvalidateAnalyticsCache(ctx context.Context, shopID string) error
}

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// AnalyticsHandlers provides the queue analytics endpoints
type AnalyticsHandlers struct {
	service AnalyticsService
	loc     *time.Location
}

// NewAnalyticsHandlers creates handlers. Bare dates in query params are
// interpreted in loc.
func NewAnalyticsHandlers(service AnalyticsService, loc *time.Location) *AnalyticsHandlers {
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsHandlers{service: service, loc: loc}
}

// RegisterRoutes registers the analytics routes
func (h *AnalyticsHandlers) RegisterRoutes(r *mux.Router) {
	shop := r.PathPrefix("/api/v1/shops/{shopId}/analytics").Subrouter()
	shop.Use(shopContext)

	shop.HandleFunc("", h.getAnalytics).Methods(http.MethodGet)
	shop.HandleFunc("/time", h.getTimeAnalytics).Methods(http.MethodGet)
	shop.HandleFunc("/peak-hours", h.getPeakHours).Methods(http.MethodGet)
	shop.HandleFunc("/services", h.getServiceAnalytics).Methods(http.MethodGet)
	shop.HandleFunc("/summary", h.getSummary).Methods(http.MethodGet)
	shop.HandleFunc("/cached", h.getCached).Methods(http.MethodGet)
	shop.HandleFunc("/history", h.getHistory).Methods(http.MethodGet)
	shop.HandleFunc("/export", h.exportAnalytics).Methods(http.MethodGet)
	shop.HandleFunc("/cache", h.invalidateCache).Methods(http.MethodDelete)
}

// shopContext tags the request context and logger with the shop
func shopContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shopID := mux.Vars(r)["shopId"]
		ctx := observability.WithShopID(r.Context(), shopID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func parseFilters(r *http.Request) analytics.Filters {
	q := r.URL.Query()
	return analytics.Filters{
		EmployeeID:   q.Get("employee_id"),
		ServiceID:    q.Get("service_id"),
		Status:       q.Get("status"),
		DepartmentID: q.Get("department_id"),
	}
}

// windowRequest holds the common inputs of windowed endpoints
type windowRequest struct {
	shopID   string
	from, to time.Time
	filters  analytics.Filters
}

// parseWindow reads the shop, the window and the filters, writing a 400 on
// malformed input.
func (h *AnalyticsHandlers) parseWindow(w http.ResponseWriter, r *http.Request) (windowRequest, bool) {
	shopID, ok := httputil.ParsePathStringOrError(w, r, "shopId")
	if !ok {
		return windowRequest{}, false
	}
	from, to, err := httputil.ParseQueryWindow(r, h.loc)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return windowRequest{}, false
	}
	filters := parseFilters(r)
	if err := filters.Validate(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return windowRequest{}, false
	}
	return windowRequest{shopID: shopID, from: from, to: to, filters: filters}, true
}

// getAnalytics handles GET /api/v1/shops/{shopId}/analytics
func (h *AnalyticsHandlers) getAnalytics(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseWindow(w, r)
	if !ok {
		return
	}
	result, err := h.service.GetQueueAnalytics(r.Context(), req.shopID, req.from, req.to, req.filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// getTimeAnalytics handles GET /api/v1/shops/{shopId}/analytics/time
func (h *AnalyticsHandlers) getTimeAnalytics(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseWindow(w, r)
	if !ok {
		return
	}
	result, err := h.service.GetQueueTimeAnalytics(r.Context(), req.shopID, req.from, req.to, req.filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// getPeakHours handles GET /api/v1/shops/{shopId}/analytics/peak-hours
func (h *AnalyticsHandlers) getPeakHours(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseWindow(w, r)
	if !ok {
		return
	}
	result, err := h.service.GetQueuePeakHours(r.Context(), req.shopID, req.from, req.to, req.filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// getServiceAnalytics handles GET /api/v1/shops/{shopId}/analytics/services
func (h *AnalyticsHandlers) getServiceAnalytics(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseWindow(w, r)
	if !ok {
		return
	}
	result, err := h.service.GetQueueServiceAnalytics(r.Context(), req.shopID, req.from, req.to, req.filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// getSummary handles GET /api/v1/shops/{shopId}/analytics/summary
func (h *AnalyticsHandlers) getSummary(w http.ResponseWriter, r *http.Request) {
	shopID, ok := httputil.ParsePathStringOrError(w, r, "shopId")
	if !ok {
		return
	}
	result, err := h.service.GetQueueAnalyticsSummary(r.Context(), shopID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// getCached handles GET /api/v1/shops/{shopId}/analytics/cached.
// A cache miss is 204 No Content.
func (h *AnalyticsHandlers) getCached(w http.ResponseWriter, r *http.Request) {
	shopID, ok := httputil.ParsePathStringOrError(w, r, "shopId")
	if !ok {
		return
	}
	result, err := h.service.GetCachedQueueAnalytics(r.Context(), shopID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if result == nil {
		httputil.WriteNoContent(w)
		return
	}
	httputil.WriteSuccess(w, result)
}

// getHistory handles GET /api/v1/shops/{shopId}/analytics/history
// Query params:
//   - page: 1-based page number, default 1
//   - limit: page size (1-100), default 20
//   - from, to: optional window; both or neither
func (h *AnalyticsHandlers) getHistory(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseWindow(w, r)
	if !ok {
		return
	}
	page, err := httputil.ParseQueryInt(r, "page", defaultPage)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", defaultLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	params := analytics.HistoryParams{
		ShopID:  req.shopID,
		Page:    page,
		Limit:   limit,
		Filters: req.filters,
	}
	if !req.from.IsZero() || !req.to.IsZero() {
		params.Range = &analytics.DateRange{From: req.from, To: req.to}
	}

	result, err := h.service.GetPaginatedQueueAnalyticsHistory(r.Context(), params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// exportAnalytics handles GET /api/v1/shops/{shopId}/analytics/export
// Query params:
//   - format: csv, json, pdf or xlsx, default csv
func (h *AnalyticsHandlers) exportAnalytics(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseWindow(w, r)
	if !ok {
		return
	}
	format := httputil.ParseQueryString(r, "format", analytics.FormatCSV)

	result, err := h.service.ExportAnalyticsData(r.Context(), req.shopID, analytics.NewDateRange(req.from, req.to), format)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteAttachment(w, result.Filename, result.ContentType, result.Data)
}

// invalidateCache handles DELETE /api/v1/shops/{shopId}/analytics/cache
func (h *AnalyticsHandlers) invalidateCache(w http.ResponseWriter, r *http.Request) {
	shopID, ok := httputil.ParsePathStringOrError(w, r, "shopId")
	if !ok {
		return
	}
	if err := h.service.InvalidateAnalyticsCache(r.Context(), shopID); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// fail logs server-side failures and writes the mapped error response
func (h *AnalyticsHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httputil.StatusForError(err); status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).Error("analytics request failed")
	}
	httputil.WriteError(w, err)
}
