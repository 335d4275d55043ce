package filtering

import (
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

// Filter is a single predicate over funding requests holding the threshold it was built with.
// A filter without a configured threshold accepts everything.
type Filter struct {
	kind      Kind
	threshold string
	accept    func(*funding.Request) bool
}

// New builds the filter of the given kind out of the configuration.
func New(kind Kind, cfg *users.Configuration) Filter {
	if cfg == nil {
		cfg = &users.Configuration{}
	}
	return builders[kind](cfg)
}

func (f Filter) Kind() Kind { return f.kind }

func (f Filter) Name() string { return f.kind.String() }

func (f Filter) IsEnabled() bool { return f.accept != nil }

// Apply reports whether the request is kept by the filter.
func (f Filter) Apply(r *funding.Request) bool {
	if f.accept == nil {
		return true
	}
	return f.accept(r)
}

func (f Filter) Status() Status {
	status := Status{Name: f.Name(), Enabled: f.IsEnabled()}
	if f.threshold != "" {
		status.Details = map[string]string{"threshold": f.threshold}
	} else if !f.IsEnabled() {
		status.Reason = "threshold not configured"
	}
	return status
}

var builders = [kindCount]func(*users.Configuration) Filter{
	KindCreditType: func(c *users.Configuration) Filter {
		if len(c.TargetCreditTypes) == 0 {
			return disabled(KindCreditType)
		}
		targets := slices.Clone(c.TargetCreditTypes)
		names := make([]string, 0, len(targets))
		for _, t := range targets {
			names = append(names, string(t))
		}
		return Filter{
			kind:      KindCreditType,
			threshold: strings.Join(names, ","),
			accept: func(r *funding.Request) bool {
				return slices.Contains(targets, r.CreditType)
			},
		}
	},
	KindMinimumInvestment: func(c *users.Configuration) Filter {
		return minimumInt64(KindMinimumInvestment, c.MinimumInvestmentAmount, func(r *funding.Request) int64 {
			return r.MaximumInvestment
		})
	},
	KindMinimumScore: func(c *users.Configuration) Filter {
		return minimumDecimal(KindMinimumScore, c.MinimumScore, func(r *funding.Request) decimal.Decimal {
			return r.Score
		})
	},
	KindMinimumMonthlyProfit: func(c *users.Configuration) Filter {
		return minimumDecimal(KindMinimumMonthlyProfit, c.MinimumMonthlyProfitRate, func(r *funding.Request) decimal.Decimal {
			return r.MonthlyProfitRate
		})
	},
	KindMinimumIRR: func(c *users.Configuration) Filter {
		return minimumDecimal(KindMinimumIRR, c.MinimumIRR, func(r *funding.Request) decimal.Decimal {
			return r.IRR
		})
	},
	KindMinimumDuration: func(c *users.Configuration) Filter {
		if !intSet(c.MinimumDuration) {
			return disabled(KindMinimumDuration)
		}
		minimum := *c.MinimumDuration
		return Filter{
			kind:      KindMinimumDuration,
			threshold: strconv.Itoa(minimum),
			accept: func(r *funding.Request) bool {
				return r.DurationDays() >= minimum
			},
		}
	},
	KindMaximumDuration: func(c *users.Configuration) Filter {
		if !intSet(c.MaximumDuration) {
			return disabled(KindMaximumDuration)
		}
		maximum := *c.MaximumDuration
		return Filter{
			kind:      KindMaximumDuration,
			threshold: strconv.Itoa(maximum),
			accept: func(r *funding.Request) bool {
				return r.DurationDays() <= maximum
			},
		}
	},
	KindDebtorDicom: func(c *users.Configuration) Filter {
		if c.Debtor.IgnoreDicom {
			return disabled(KindDebtorDicom)
		}
		return Filter{
			kind: KindDebtorDicom,
			accept: func(r *funding.Request) bool {
				for _, d := range r.Debtors {
					if d.Dicom.Flagged() {
						return false
					}
				}
				return true
			},
		}
	},
	KindBorrowerDicom: func(c *users.Configuration) Filter {
		if c.Borrower.IgnoreDicom {
			return disabled(KindBorrowerDicom)
		}
		return Filter{
			kind: KindBorrowerDicom,
			accept: func(r *funding.Request) bool {
				return !r.Borrower.Dicom.Flagged()
			},
		}
	},
	KindMinimumCreditsRequested: func(c *users.Configuration) Filter {
		return minimumInt(KindMinimumCreditsRequested, c.MinimumRequestedCredits, func(r *funding.Request) int {
			return r.Borrower.Portfolio.TotalRequests
		})
	},
	KindMinimumAmountRequested: func(c *users.Configuration) Filter {
		return minimumInt64(KindMinimumAmountRequested, c.MinimumRequestedAmount, func(r *funding.Request) int64 {
			return r.Borrower.Portfolio.TotalAmount
		})
	},
	KindBorrowerMaximumAverageDaysDelinquent: func(c *users.Configuration) Filter {
		if !intSet(c.Borrower.MaximumAverageDaysDelinquent) {
			return disabled(KindBorrowerMaximumAverageDaysDelinquent)
		}
		maximum := *c.Borrower.MaximumAverageDaysDelinquent
		return Filter{
			kind:      KindBorrowerMaximumAverageDaysDelinquent,
			threshold: strconv.Itoa(maximum),
			accept: func(r *funding.Request) bool {
				days := r.Borrower.Portfolio.AverageDaysDelinquent
				return days == nil || *days <= maximum
			},
		}
	},
	KindBorrowerMinimumPaidInTime: func(c *users.Configuration) Filter {
		if !decimalSet(c.Borrower.MinimumPaidInTimePercentage) {
			return disabled(KindBorrowerMinimumPaidInTime)
		}
		minimum := *c.Borrower.MinimumPaidInTimePercentage
		return Filter{
			kind:      KindBorrowerMinimumPaidInTime,
			threshold: minimum.String(),
			accept: func(r *funding.Request) bool {
				p := r.Borrower.Portfolio
				if p.TotalRequests == 0 || p.PaidInTime == nil {
					return true
				}
				return p.PaidInTime.GreaterThanOrEqual(minimum)
			},
		}
	},
	KindDebtorMinimumPaidInTime: func(c *users.Configuration) Filter {
		if !decimalSet(c.Debtor.MinimumPaidInTimePercentage) {
			return disabled(KindDebtorMinimumPaidInTime)
		}
		minimum := *c.Debtor.MinimumPaidInTimePercentage
		return Filter{
			kind:      KindDebtorMinimumPaidInTime,
			threshold: minimum.String(),
			accept: func(r *funding.Request) bool {
				// debtors without history or without a paid in time figure do not count
				measured := false
				for _, d := range r.Debtors {
					if d.Portfolio.TotalRequests == 0 || d.Portfolio.PaidInTime == nil {
						continue
					}
					measured = true
					if d.Portfolio.PaidInTime.GreaterThanOrEqual(minimum) {
						return true
					}
				}
				return !measured
			},
		}
	},
	KindDebtorMinimumCreditsRequested: func(c *users.Configuration) Filter {
		return anyDebtorInt(KindDebtorMinimumCreditsRequested, c.Debtor.MinimumRequestedCredits)
	},
	KindDebtorMinimumAmountRequested: func(c *users.Configuration) Filter {
		return anyDebtorInt64(KindDebtorMinimumAmountRequested, c.Debtor.MinimumRequestedAmount)
	},
}

func disabled(kind Kind) Filter {
	return Filter{kind: kind}
}

func intSet(v *int) bool { return v != nil && *v != 0 }

func int64Set(v *int64) bool { return v != nil && *v != 0 }

func decimalSet(v *decimal.Decimal) bool { return v != nil && !v.IsZero() }

func minimumInt(kind Kind, threshold *int, value func(*funding.Request) int) Filter {
	if !intSet(threshold) {
		return disabled(kind)
	}
	minimum := *threshold
	return Filter{
		kind:      kind,
		threshold: strconv.Itoa(minimum),
		accept: func(r *funding.Request) bool {
			return value(r) >= minimum
		},
	}
}

func minimumInt64(kind Kind, threshold *int64, value func(*funding.Request) int64) Filter {
	if !int64Set(threshold) {
		return disabled(kind)
	}
	minimum := *threshold
	return Filter{
		kind:      kind,
		threshold: strconv.FormatInt(minimum, 10),
		accept: func(r *funding.Request) bool {
			return value(r) >= minimum
		},
	}
}

func minimumDecimal(kind Kind, threshold *decimal.Decimal, value func(*funding.Request) decimal.Decimal) Filter {
	if !decimalSet(threshold) {
		return disabled(kind)
	}
	minimum := *threshold
	return Filter{
		kind:      kind,
		threshold: minimum.String(),
		accept: func(r *funding.Request) bool {
			return value(r).GreaterThanOrEqual(minimum)
		},
	}
}

func anyDebtorInt(kind Kind, threshold *int) Filter {
	if !intSet(threshold) {
		return disabled(kind)
	}
	minimum := *threshold
	return Filter{
		kind:      kind,
		threshold: strconv.Itoa(minimum),
		accept: func(r *funding.Request) bool {
			for _, d := range r.Debtors {
				if d.Portfolio.TotalRequests >= minimum {
					return true
				}
			}
			return false
		},
	}
}

func anyDebtorInt64(kind Kind, threshold *int64) Filter {
	if !int64Set(threshold) {
		return disabled(kind)
	}
	minimum := *threshold
	return Filter{
		kind:      kind,
		threshold: strconv.FormatInt(minimum, 10),
		accept: func(r *funding.Request) bool {
			for _, d := range r.Debtors {
				if d.Portfolio.TotalAmount >= minimum {
					return true
				}
			}
			return false
		},
	}
}
