package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTaskOutcome(t *testing.T) {
	cases := map[string]error{
		"success": nil,
		"retry":   errors.New("minio down"),
		"dropped": fmt.Errorf("bad payload: %w", asynq.SkipRetry),
	}
	for want, err := range cases {
		if got := TaskOutcome(err); got != want {
			t.Fatalf("TaskOutcome(%v) = %s, want %s", err, got, want)
		}
	}
}

func TestAsynqMiddlewareCountsOutcome(t *testing.T) {
	handler := AsynqMetricsMiddleware()(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		return errors.New("boom")
	}))
	before := testutil.ToFloat64(taskOutcomes.WithLabelValues("test:fail", "retry"))
	_ = handler.ProcessTask(context.Background(), asynq.NewTask("test:fail", nil))
	if got := testutil.ToFloat64(taskOutcomes.WithLabelValues("test:fail", "retry")); got != before+1 {
		t.Fatalf("expected retry counter to grow, got %v", got)
	}
}

func TestGinMiddlewareCountsErrorKind(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware())
	router.GET("/v1/things/:id", func(c *gin.Context) {
		c.Set(ErrorKindKey, "not_found")
		c.Status(http.StatusNotFound)
	})

	before := testutil.ToFloat64(requestErrors.WithLabelValues("/v1/things/:id", "not_found"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/things/42", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if got := testutil.ToFloat64(requestErrors.WithLabelValues("/v1/things/:id", "not_found")); got != before+1 {
		t.Fatalf("expected error counter to grow, got %v", got)
	}
}
