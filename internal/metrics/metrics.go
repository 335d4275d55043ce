package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	registerOnce sync.Once

	upstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spotter_upstream_requests_total",
		Help: "Requests sent to the marketplace, by target and status.",
	}, []string{"target", "status"})

	upstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spotter_upstream_request_duration_seconds",
		Help:    "Duration of the requests sent to the marketplace.",
		Buckets: prometheus.DefBuckets,
	}, []string{"target"})

	rejectedRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spotter_rejected_records_total",
		Help: "Upstream funding requests dropped because they could not be normalized.",
	}, []string{"source"})

	filterDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spotter_filter_dropped_total",
		Help: "Funding requests dropped by each filter.",
	}, []string{"filter"})

	notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spotter_notifications_total",
		Help: "Notification tasks by outcome.",
	}, []string{"outcome"})

	webhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spotter_webhook_deliveries_total",
		Help: "Webhook calls made by the worker, by status.",
	}, []string{"status"})

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spotter_http_requests_total",
		Help: "Requests served by the spotter API.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spotter_http_request_duration_seconds",
		Help:    "Duration of the requests served by the spotter API.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// MustRegister registers the package collectors in the given registry.
func MustRegister(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		registerer.MustRegister(
			upstreamRequestsTotal,
			upstreamRequestDuration,
			rejectedRecordsTotal,
			filterDroppedTotal,
			notificationsTotal,
			webhookDeliveriesTotal,
			httpRequestsTotal,
			httpRequestDuration,
		)
	})
}

// ObserveNetworkRequest records one call to the marketplace. A zero status means a transport error.
func ObserveNetworkRequest(target string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	upstreamRequestsTotal.WithLabelValues(target, label).Inc()
	upstreamRequestDuration.WithLabelValues(target).Observe(duration.Seconds())
}

func IncRejectedRecord(source string) {
	rejectedRecordsTotal.WithLabelValues(source).Inc()
}

func AddFilterDropped(filter string, dropped int) {
	if dropped <= 0 {
		return
	}
	filterDroppedTotal.WithLabelValues(filter).Add(float64(dropped))
}

// IncNotification counts a notification outcome: enqueued, duplicate, empty or failed.
func IncNotification(outcome string) {
	notificationsTotal.WithLabelValues(outcome).Inc()
}

func ObserveWebhookDelivery(status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	webhookDeliveriesTotal.WithLabelValues(label).Inc()
}

// Middleware collects request metrics labeled by the matched chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer serves the metrics endpoint on its own address until ctx is done.
func StartServer(ctx context.Context, logger *zap.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server shutdown failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("metrics server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
}
