package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuekit/queue-analytics/pkg/analytics"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(w, map[string]int{"total_queues": 10}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"total_queues":10}`, w.Body.String())
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		kind analytics.ErrorKind
		want int
	}{
		{analytics.KindValidation, http.StatusBadRequest},
		{analytics.KindNotFound, http.StatusNotFound},
		{analytics.KindOperationFailed, http.StatusBadGateway},
		{analytics.KindUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := fmt.Errorf("handler: %w", &analytics.Error{Kind: tt.kind, Message: "x"})
			assert.Equal(t, tt.want, StatusForError(err))
		})
	}
	assert.Equal(t, http.StatusInternalServerError, StatusForError(errors.New("plain")))
}

func TestWriteError_AnalyticsError(t *testing.T) {
	w := httptest.NewRecorder()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	WriteError(w, &analytics.Error{
		Kind:    analytics.KindNotFound,
		Message: "no queue data for the requested window",
		Op:      "GetQueuePeakHours",
		Context: map[string]interface{}{"shop_id": "S1", "from": from},
		Err:     analytics.ErrNoData,
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_FOUND", resp.Error)
	assert.Equal(t, "no queue data for the requested window", resp.Message)
	assert.Equal(t, map[string]string{
		"operation": "GetQueuePeakHours",
		"shop_id":   "S1",
		"from":      "2024-01-01T00:00:00Z",
	}, resp.Details)
}

func TestWriteError_HidesUnknownDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.Contains(t, w.Body.String(), "UNKNOWN")
}

func TestWriteBadRequest(t *testing.T) {
	w := httptest.NewRecorder()
	WriteBadRequest(w, "invalid integer for query param page: x")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"VALIDATION_ERROR","message":"invalid integer for query param page: x"}`, w.Body.String())
}

func TestWriteAttachment(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAttachment(w, "queue_analytics_S1_2024-01-01_2024-01-31.csv", "text/csv", []byte("a,b\n"))

	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="queue_analytics_S1_2024-01-01_2024-01-31.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\n", w.Body.String())
}
