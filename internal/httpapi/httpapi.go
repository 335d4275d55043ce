package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/logger"
	"github.com/cumplo-spotter/cumplo-spotter/internal/metrics"
	"github.com/cumplo-spotter/cumplo-spotter/internal/spotter"
	"github.com/cumplo-spotter/cumplo-spotter/internal/store"
	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

const (
	apiKeyHeader        = "X-API-Key"
	internalTokenHeader = "X-Internal-Token"

	defaultTimeout  = 60 * time.Second
	maxRequestBytes = 8 << 20
)

// Service is the part of spotter.Service exposed over HTTP.
type Service interface {
	FetchAvailable(ctx context.Context) ([]*funding.Request, error)
	UserByAPIKey(ctx context.Context, apiKey string) (*users.User, error)
	Promising(user *users.User, requests []*funding.Request) []*funding.Request
	Notify(ctx context.Context, user *users.User, requests []*funding.Request) (int, error)
	NotifyAll(ctx context.Context) (int, error)
}

type Config struct {
	Addr              string        `mapstructure:"addr"`
	Timeout           time.Duration `mapstructure:"timeout"`
	InternalToken     string        `mapstructure:"internal-token"`
	InternalTokenFile string        `mapstructure:"internal-token-file"`
}

type ctxKey struct{}

type Handler struct {
	service       Service
	logger        *zap.Logger
	internalToken string
	timeout       time.Duration
}

// NewHandler builds the API handler. An empty internal token disables the internal routes.
func NewHandler(logger *zap.Logger, service Service, internalToken string, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Handler{
		service:       service,
		logger:        logger,
		internalToken: internalToken,
		timeout:       timeout,
	}
}

func (h *Handler) InitRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		metrics.Middleware,
		middleware.Timeout(h.timeout),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/funding-requests", func(r chi.Router) {
		r.Get("/", h.available)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)
			r.Get("/promising", h.promising)
			r.Post("/filter", h.filter)
		})
	})

	r.Route("/internal/funding-requests", func(r chi.Router) {
		r.Use(h.internal)
		r.Post("/fetch", h.fetch)
	})

	return r
}

// Serve runs the API until ctx is done and then shuts it down gracefully.
func Serve(ctx context.Context, log *zap.Logger, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api server started", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("api server stopped")
	return nil
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		user, err := h.service.UserByAPIKey(r.Context(), key)
		if errors.Is(err, store.ErrUserNotFound) {
			h.logger.Info("unknown api key", zap.String(logger.FieldAPIKey, users.SecureAPIKey(key)))
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		if err != nil {
			h.logger.Error("looking up api key", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

func (h *Handler) internal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(internalTokenHeader)
		if h.internalToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.internalToken)) != 1 {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFrom(ctx context.Context) *users.User {
	user, _ := ctx.Value(ctxKey{}).(*users.User)
	return user
}

func (h *Handler) available(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.FetchAvailable(r.Context())
	if err != nil {
		h.logger.Error("fetching available funding requests", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(requests))
}

func (h *Handler) promising(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	log := logger.WithUser(h.logger, user.ID, users.SecureAPIKey(user.APIKey))

	requests, err := h.service.FetchAvailable(r.Context())
	if err != nil {
		log.Error("fetching available funding requests", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}

	promising := h.service.Promising(user, requests)
	log.Info("promising funding requests", zap.Int("available", len(requests)), zap.Int("promising", len(promising)))
	writeJSON(w, http.StatusOK, nonNil(promising))
}

func (h *Handler) filter(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	log := logger.WithUser(h.logger, user.ID, users.SecureAPIKey(user.APIKey))

	var requests []*funding.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&requests); err != nil {
		writeError(w, http.StatusBadRequest, "invalid funding requests payload")
		return
	}
	if err := funding.ValidateAll(requests); err != nil {
		log.Info("rejected funding requests payload", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := h.service.Notify(r.Context(), user, requests)
	switch {
	case errors.Is(err, spotter.ErrNoWebhook):
		writeError(w, http.StatusUnprocessableEntity, "user has no webhook configured")
		return
	case err != nil:
		log.Error("notifying funding requests", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Info("funding requests filtered", zap.Int("received", len(requests)), zap.Int("notified", n))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.NotifyAll(r.Context())
	if err != nil {
		// partial failures still notified the other users
		h.logger.Error("notifying users", zap.Int("notified", n), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(requests []*funding.Request) []*funding.Request {
	if requests == nil {
		return []*funding.Request{}
	}
	return requests
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
