package jobs

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestHandler() http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(nil, nil, logger)
	r := chi.NewRouter()
	r.Route("/jobs", func(r chi.Router) {
		h.MountRoutes(r)
	})
	return r
}

func TestRunRejectsUnknownTask(t *testing.T) {
	router := newTestHandler()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/run/bogus:task", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunWithoutClientIsUnavailable(t *testing.T) {
	router := newTestHandler()
	for _, task := range []string{TaskExpiryScan, TaskIntegrityCheck, TaskRetentionCleanup} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/run/"+task, nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, task)
	}
}

func TestHealthWithoutInspectorReportsEmptyQueue(t *testing.T) {
	router := newTestHandler()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}
