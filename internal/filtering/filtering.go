package filtering

import (
	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

// Step describes the result of executing a filtering step.
type Step struct {
	Name    string
	Initial int
	Dropped int
	Left    int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Set is the ordered conjunction of every filter built from one configuration.
type Set struct {
	ConfigurationID int
	filters         []Filter
}

// Build creates the full filter set for the configuration.
func Build(cfg *users.Configuration) *Set {
	set := &Set{filters: make([]Filter, 0, kindCount)}
	if cfg != nil {
		set.ConfigurationID = cfg.ID
	}
	for _, kind := range Kinds() {
		set.filters = append(set.filters, New(kind, cfg))
	}
	return set
}

func (s *Set) Filters() []Filter {
	return s.filters
}

// Accepts reports whether every filter keeps the request. It stops at the first rejection.
func (s *Set) Accepts(r *funding.Request) bool {
	for _, f := range s.filters {
		if !f.Apply(r) {
			return false
		}
	}
	return true
}

// Select narrows the batch filter by filter and returns the survivors with one step per enabled filter.
func (s *Set) Select(requests []*funding.Request) ([]*funding.Request, []Step) {
	left := requests
	steps := make([]Step, 0, len(s.filters))
	for _, f := range s.filters {
		if !f.IsEnabled() {
			continue
		}
		kept := make([]*funding.Request, 0, len(left))
		for _, r := range left {
			if f.Apply(r) {
				kept = append(kept, r)
			}
		}
		steps = append(steps, Step{
			Name:    f.Name(),
			Initial: len(left),
			Dropped: len(left) - len(kept),
			Left:    len(kept),
		})
		left = kept
	}
	if len(steps) == 0 {
		left = append([]*funding.Request(nil), requests...)
	}
	return left, steps
}

// Describe returns status entries for the filters of the set.
func (s *Set) Describe() []Status {
	statuses := make([]Status, 0, len(s.filters))
	for _, f := range s.filters {
		statuses = append(statuses, f.Status())
	}
	return statuses
}

// Evaluate returns the requests accepted by the configuration, in input order.
func Evaluate(cfg *users.Configuration, requests []*funding.Request) []*funding.Request {
	return defaultEvaluator.Evaluate(cfg, requests)
}

// EvaluateForUser returns the requests accepted by at least one of the user's configurations.
// A user without configurations gets nothing.
func EvaluateForUser(user *users.User, requests []*funding.Request) []*funding.Request {
	return defaultEvaluator.EvaluateForUser(user, requests)
}

var defaultEvaluator = NewEvaluator(nil, nil)

// StepObserver receives every filtering step, usually to feed metrics.
type StepObserver func(configurationID int, step Step)

// Evaluator runs filter sets and reports each step to its logger and observer.
type Evaluator struct {
	logger   *zap.Logger
	observer StepObserver
}

func NewEvaluator(logger *zap.Logger, observer StepObserver) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{logger: logger, observer: observer}
}

func (e *Evaluator) Evaluate(cfg *users.Configuration, requests []*funding.Request) []*funding.Request {
	set := Build(cfg)
	selected, steps := set.Select(requests)
	for _, step := range steps {
		e.logger.Debug("filter step",
			zap.Int("configuration", set.ConfigurationID),
			zap.String("name", step.Name),
			zap.Int("initial", step.Initial),
			zap.Int("dropped", step.Dropped),
			zap.Int("left", step.Left),
		)
		if e.observer != nil {
			e.observer(set.ConfigurationID, step)
		}
	}
	return selected
}

func (e *Evaluator) EvaluateForUser(user *users.User, requests []*funding.Request) []*funding.Request {
	result := make([]*funding.Request, 0)
	if user == nil || len(user.Configurations) == 0 {
		return result
	}

	accepted := make(map[int]struct{})
	for _, id := range user.ConfigurationIDs() {
		cfg := user.Configurations[id]
		if cfg == nil {
			continue
		}
		for _, r := range e.Evaluate(cfg, requests) {
			accepted[r.ID] = struct{}{}
		}
	}

	for _, r := range requests {
		if _, ok := accepted[r.ID]; !ok {
			continue
		}
		result = append(result, r)
		delete(accepted, r.ID)
	}

	e.logger.Info("user evaluated",
		zap.String("user", user.ID),
		zap.Int("configurations", len(user.Configurations)),
		zap.Int("requests", len(requests)),
		zap.Int("promising", len(result)),
	)
	return result
}
