package cumplo

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/metrics"
)

const rejectSource = "cumplo"

// FundingRequests returns the available funding requests enriched with the borrower credit history,
// sorted by monthly profit rate, highest first. Records that cannot be normalized are dropped.
// A failing credit history fetch fails the whole batch.
func (c *Client) FundingRequests(ctx context.Context) ([]*funding.Request, error) {
	records, err := c.RawFundingRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch funding requests: %w", err)
	}
	c.logger.Info("found funding requests", zap.Int("count", len(records)))

	drafts := make([]funding.Draft, 0, len(records))
	for _, record := range records {
		draft, err := decodeDraft(record)
		if err != nil {
			c.reject(record["id_operacion"], err)
			continue
		}

		r, err := funding.Normalize(draft, c.Lexicon)
		if err != nil {
			c.reject(draft.ID, err)
			continue
		}
		if r.IsCompleted() {
			continue
		}
		drafts = append(drafts, draft)
	}

	c.logger.Info("gathering credit histories", zap.Int("count", len(drafts)))
	if err := c.enrich(ctx, drafts); err != nil {
		return nil, err
	}

	requests := make([]*funding.Request, 0, len(drafts))
	for _, draft := range drafts {
		r, err := funding.Normalize(draft, c.Lexicon)
		if err != nil {
			c.reject(draft.ID, err)
			continue
		}
		requests = append(requests, r)
	}

	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].MonthlyProfitRate.GreaterThan(requests[j].MonthlyProfitRate)
	})

	c.logger.Info("available funding requests", zap.Int("count", len(requests)))
	return requests, nil
}

func (c *Client) enrich(ctx context.Context, drafts []funding.Draft) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Concurrency, 1))

	for i := range drafts {
		g.Go(func() error {
			history, err := c.CreditHistory(gctx, drafts[i].ID)
			if err != nil {
				return fmt.Errorf("credit history of funding request %d: %w", drafts[i].ID, err)
			}
			drafts[i].History = history
			return nil
		})
	}

	return g.Wait()
}

func (c *Client) reject(id any, err error) {
	c.logger.Warn("funding request rejected", zap.Any("id", id), zap.Error(err))
	metrics.IncRejectedRecord(rejectSource)
}
