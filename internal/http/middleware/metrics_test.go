package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_LabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/meetings/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	route := httpReqs.WithLabelValues("GET", "/meetings/:id", "200")
	missing := httpReqs.WithLabelValues("GET", "/unknown", "404")
	baseRoute, baseMissing := testutil.ToFloat64(route), testutil.ToFloat64(missing)

	serve(r, http.MethodGet, "/meetings/1", nil)
	serve(r, http.MethodGet, "/meetings/2", nil)
	serve(r, http.MethodGet, "/unknown", nil)

	if got := testutil.ToFloat64(route); got != baseRoute+2 {
		t.Fatalf("route counter = %v, want %v", got, baseRoute+2)
	}
	if got := testutil.ToFloat64(missing); got != baseMissing+1 {
		t.Fatalf("unmatched counter = %v, want %v", got, baseMissing+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v", got)
	}
	if n := testutil.CollectAndCount(httpLat, "http_request_duration_seconds"); n < 2 {
		t.Fatalf("latency series = %d", n)
	}
}

func TestMetrics_CountsErrorCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.POST("/api/v1/meetings", func(c *gin.Context) {
		SetErrorCode(c, "conflict")
		c.Status(http.StatusConflict)
	})

	counter := apiErrors.WithLabelValues("/api/v1/meetings", "conflict")
	base := testutil.ToFloat64(counter)
	serve(r, http.MethodPost, "/api/v1/meetings", nil)
	if got := testutil.ToFloat64(counter); got != base+1 {
		t.Fatalf("conflicts = %v, want %v", got, base+1)
	}
}
