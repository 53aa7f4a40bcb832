package httputil

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

const dateLayout = "2006-01-02"

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return str, nil
}

// ParsePathStringOrError extracts a string path parameter and writes error on failure
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val, err := ParsePathString(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return "", false
	}
	return val, true
}

// ParseQueryInt extracts and parses an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for query param %s: %s", key, str)
	}
	return val, nil
}

// ParseQueryString extracts a string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// ParseQueryTime parses an RFC3339 timestamp or a YYYY-MM-DD date in loc.
// A bare date resolves to the start of the day, or to its last nanosecond
// when endOfDay is set. An absent parameter yields the zero time.
func ParseQueryTime(r *http.Request, key string, loc *time.Location, endOfDay bool) (time.Time, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, str); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(dateLayout, str, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time for query param %s: %s (want RFC3339 or YYYY-MM-DD)", key, str)
	}
	if endOfDay {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}

// ParseQueryWindow reads the from and to query parameters
func ParseQueryWindow(r *http.Request, loc *time.Location) (from, to time.Time, err error) {
	if from, err = ParseQueryTime(r, "from", loc, false); err != nil {
		return
	}
	to, err = ParseQueryTime(r, "to", loc, true)
	return
}
