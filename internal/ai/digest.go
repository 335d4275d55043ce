package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

// Plain writes a deterministic digest without calling any model.
type Plain struct{}

func (Plain) Summarize(_ context.Context, user *users.User, requests []*funding.Request) (string, error) {
	return PlainDigest(user, requests), nil
}

// PlainDigest lists each request on its own line.
func PlainDigest(user *users.User, requests []*funding.Request) string {
	var b strings.Builder
	name := user.Name
	if name == "" {
		name = user.ID
	}
	fmt.Fprintf(&b, "%s, %d new funding requests match your configurations:", name, len(requests))
	for _, r := range requests {
		fmt.Fprintf(&b, "\n#%d %s, %s%% monthly, score %s, %d days, %s %d",
			r.ID, r.CreditType, r.MonthlyProfitRate.StringFixed(2), r.Score.String(), r.DurationDays(), r.Currency, r.Amount)
	}
	return b.String()
}
