// Package api serves queue analytics over HTTP.
//
// All routes live under /api/v1/shops/{shopId}/analytics:
//
//	GET    /               overall analytics for ?from&to
//	GET    /time           wait and service time distributions
//	GET    /peak-hours     hourly peak/quiet classification
//	GET    /services       service ranking
//	GET    /summary        today, this week and this month
//	GET    /cached         latest cached aggregate, 204 on miss
//	GET    /history        persisted snapshots, ?page&limit
//	GET    /export         report download, ?format=csv|json|pdf|xlsx
//	DELETE /cache          drop every cached entry of the shop
//
// Windowed routes also accept employee_id, service_id, status and
// department_id filters. Dates are RFC3339 or YYYY-MM-DD in the configured
// timezone.
package api
