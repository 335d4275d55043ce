package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveNetworkRequest(t *testing.T) {
	before := testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("graphql", "200"))
	ObserveNetworkRequest("graphql", http.StatusOK, 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("graphql", "200")))

	before = testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("graphql", "error"))
	ObserveNetworkRequest("graphql", 0, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("graphql", "error")))
}

func TestAddFilterDroppedIgnoresEmptySteps(t *testing.T) {
	before := testutil.ToFloat64(filterDroppedTotal.WithLabelValues("minimum_score"))
	AddFilterDropped("minimum_score", 0)
	AddFilterDropped("minimum_score", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(filterDroppedTotal.WithLabelValues("minimum_score")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/funding-requests/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/funding-requests/{id}", "418"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/funding-requests/12", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/funding-requests/{id}", "418")))
}
