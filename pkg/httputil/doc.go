// Package httputil holds the JSON writers, error mapping, query parsing and
// middleware shared by the queue analytics HTTP handlers.
//
// Analytics error kinds map to statuses as follows:
//
//	VALIDATION_ERROR  400
//	NOT_FOUND         404
//	OPERATION_FAILED  502
//	anything else     500
//
// Time query parameters accept RFC3339 timestamps or YYYY-MM-DD dates; a
// bare "to" date covers the whole day.
package httputil
