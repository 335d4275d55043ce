package spotter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cumplo-spotter/cumplo-spotter/internal/dispatch"
	"github.com/cumplo-spotter/cumplo-spotter/internal/filtering"
	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/metrics"
	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

// ErrNoWebhook is returned when notifying a user that has no webhook configured.
var ErrNoWebhook = errors.New("user has no webhook")

const (
	defaultNotificationsTTL = 24 * time.Hour
	defaultConcurrency      = 4
)

// Source provides the available funding requests.
type Source interface {
	FundingRequests(ctx context.Context) ([]*funding.Request, error)
}

type Store interface {
	GetUserByAPIKey(ctx context.Context, apiKey string) (*users.User, error)
	ListUsers(ctx context.Context) ([]*users.User, error)
	SetNotificationDate(ctx context.Context, userID string, fundingRequestID int, date time.Time) error
	DeleteNotification(ctx context.Context, userID string, fundingRequestID int) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, task dispatch.Task) error
}

// Summarizer writes a short human digest of the promising requests of a user.
type Summarizer interface {
	Summarize(ctx context.Context, user *users.User, requests []*funding.Request) (string, error)
}

type Config struct {
	NotificationsTTL time.Duration `mapstructure:"notifications-ttl"`
	Concurrency      int           `mapstructure:"concurrency"`
}

// Deps aggregates the collaborators of the service. Evaluator and Summarizer are optional.
type Deps struct {
	Source     Source
	Store      Store
	Queue      Enqueuer
	Evaluator  *filtering.Evaluator
	Summarizer Summarizer
	Logger     *zap.Logger
}

type Service struct {
	cfg  Config
	deps Deps
	now  func() time.Time
}

func New(cfg Config, deps Deps) *Service {
	if cfg.NotificationsTTL <= 0 {
		cfg.NotificationsTTL = defaultNotificationsTTL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Evaluator == nil {
		deps.Evaluator = filtering.NewEvaluator(deps.Logger, func(_ int, step filtering.Step) {
			metrics.AddFilterDropped(step.Name, step.Dropped)
		})
	}
	return &Service{cfg: cfg, deps: deps, now: time.Now}
}

// FetchAvailable returns the funding requests currently open for investment.
func (s *Service) FetchAvailable(ctx context.Context) ([]*funding.Request, error) {
	return s.deps.Source.FundingRequests(ctx)
}

func (s *Service) UserByAPIKey(ctx context.Context, apiKey string) (*users.User, error) {
	return s.deps.Store.GetUserByAPIKey(ctx, apiKey)
}

// Promising returns the requests matching at least one configuration of the user.
func (s *Service) Promising(user *users.User, requests []*funding.Request) []*funding.Request {
	return s.deps.Evaluator.EvaluateForUser(user, requests)
}

type webhookPayload struct {
	FundingRequests map[int]*funding.Request `json:"funding_requests"`
	Digest          string                   `json:"digest,omitempty"`
}

// Notify enqueues a webhook with the promising requests not notified within the notifications ttl
// and records the notification dates. It returns how many requests were sent.
func (s *Service) Notify(ctx context.Context, user *users.User, requests []*funding.Request) (int, error) {
	if user.WebhookURL == "" {
		return 0, fmt.Errorf("%w: %s", ErrNoWebhook, user.ID)
	}
	logger := s.deps.Logger.With(zap.String("user", user.ID))

	now := s.now()
	since := now.Add(-s.cfg.NotificationsTTL)

	for id, n := range user.Notifications {
		if n.Date.After(since) {
			continue
		}
		if err := s.deps.Store.DeleteNotification(ctx, user.ID, id); err != nil {
			return 0, err
		}
		logger.Debug("expired notification deleted", zap.Int("funding_request", id))
	}

	promising := s.Promising(user, requests)
	fresh := make([]*funding.Request, 0, len(promising))
	for _, r := range promising {
		if user.NotifiedSince(r.ID, since) {
			continue
		}
		fresh = append(fresh, r)
	}

	if len(fresh) == 0 {
		logger.Info("no new promising funding requests", zap.Int("promising", len(promising)))
		metrics.IncNotification("empty")
		return 0, nil
	}

	payload := webhookPayload{FundingRequests: make(map[int]*funding.Request, len(fresh))}
	for _, r := range fresh {
		payload.FundingRequests[r.ID] = r
	}
	if s.deps.Summarizer != nil {
		digest, err := s.deps.Summarizer.Summarize(ctx, user, fresh)
		if err != nil {
			logger.Warn("digest failed", zap.Error(err))
		}
		payload.Digest = digest
	}

	task, err := dispatch.NewTask(dispatch.WebhookTaskKey(user.ID), user.ID, user.WebhookURL, payload)
	if err != nil {
		return 0, err
	}

	if err := s.deps.Queue.Enqueue(ctx, task); err != nil {
		if errors.Is(err, dispatch.ErrDuplicateTask) {
			logger.Info("webhook already scheduled", zap.String("key", task.Key))
			metrics.IncNotification("duplicate")
			return 0, nil
		}
		metrics.IncNotification("failed")
		return 0, fmt.Errorf("enqueue webhook of user %s: %w", user.ID, err)
	}
	metrics.IncNotification("enqueued")

	for _, r := range fresh {
		if err := s.deps.Store.SetNotificationDate(ctx, user.ID, r.ID, now); err != nil {
			return len(fresh), err
		}
	}

	logger.Info("webhook scheduled",
		zap.String("task", task.ID),
		zap.Ints("funding_requests", funding.IDs(fresh)),
	)
	return len(fresh), nil
}

// NotifyAll fetches the available requests once and notifies every user with a webhook.
// A failing user does not stop the others; all failures are returned together.
func (s *Service) NotifyAll(ctx context.Context) (int, error) {
	requests, err := s.FetchAvailable(ctx)
	if err != nil {
		return 0, err
	}

	list, err := s.deps.Store.ListUsers(ctx)
	if err != nil {
		return 0, err
	}

	var (
		mu       sync.Mutex
		notified int
		errs     []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, user := range list {
		if user.WebhookURL == "" {
			s.deps.Logger.Info("user without webhook skipped", zap.String("user", user.ID))
			continue
		}
		g.Go(func() error {
			n, err := s.Notify(gctx, user, requests)
			mu.Lock()
			defer mu.Unlock()
			notified += n
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.deps.Logger.Info("users notified",
		zap.Int("users", len(list)),
		zap.Int("requests", len(requests)),
		zap.Int("notified", notified),
	)
	return notified, errors.Join(errs...)
}
