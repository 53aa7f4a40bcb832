package analytics

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies analytics failures so callers can tell
// "no data yet" apart from "upstream failure".
type ErrorKind string

const (
	KindValidation      ErrorKind = "VALIDATION_ERROR"
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindOperationFailed ErrorKind = "OPERATION_FAILED"
	KindUnknown         ErrorKind = "UNKNOWN"
)

var (
	ErrShopIDRequired    = errors.New("shop id is required")
	ErrDateRangeRequired = errors.New("date range requires both from and to")
	ErrDateRangeInverted = errors.New("date range from must not be after to")
	ErrInvalidPage       = errors.New("page and limit must be positive")
	ErrInvalidStatus     = errors.New("unknown queue status filter")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrNoData            = errors.New("no queue data for the requested window")
)

// Error carries the kind, originating operation and input context of a failure
type Error struct {
	Kind    ErrorKind
	Message string
	Op      string
	Context map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
	case e.Message == "" || e.Message == e.Err.Error():
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// LogFields exposes the kind, operation and input context for structured logs
func (e *Error) LogFields() map[string]interface{} {
	fields := make(map[string]interface{}, len(e.Context)+2)
	for k, v := range e.Context {
		if t, ok := v.(time.Time); ok {
			v = t.Format(time.RFC3339)
		}
		fields[k] = v
	}
	fields["error_kind"] = string(e.Kind)
	fields["op"] = e.Op
	return fields
}

// KindOf returns the kind of err, or KindUnknown when err is not an *Error
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a NOT_FOUND analytics error
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

func newError(kind ErrorKind, op, message string, ctx map[string]interface{}, err error) *Error {
	return &Error{Kind: kind, Message: message, Op: op, Context: ctx, Err: err}
}

func validationError(op string, ctx map[string]interface{}, err error) *Error {
	return newError(KindValidation, op, err.Error(), ctx, err)
}

func operationFailed(op, message string, ctx map[string]interface{}, err error) *Error {
	return newError(KindOperationFailed, op, message, ctx, err)
}

func notFound(op string, ctx map[string]interface{}) *Error {
	return newError(KindNotFound, op, ErrNoData.Error(), ctx, ErrNoData)
}

// errorContext builds the diagnostic context attached to every error
func errorContext(shopID string, r *DateRange, filters Filters) map[string]interface{} {
	ctx := map[string]interface{}{"shop_id": shopID}
	if r != nil {
		ctx["from"] = r.From
		ctx["to"] = r.To
	}
	if f := filters.fields(); len(f) > 0 {
		ctx["filters"] = f
	}
	return ctx
}

// wrapUnknown preserves typed errors and classifies anything else as UNKNOWN
func wrapUnknown(op string, ctx map[string]interface{}, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return newError(KindUnknown, op, "unexpected failure", ctx, err)
}
