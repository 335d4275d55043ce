package users

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
)

// Configuration is a named set of thresholds. A nil or zero threshold means no constraint.
type Configuration struct {
	ID   int    `json:"id" mapstructure:"id"`
	Name string `json:"name,omitempty" mapstructure:"name"`

	TargetCreditTypes        []funding.CreditType `json:"target_credit_types,omitempty" mapstructure:"target-credit-types" validate:"dive,credit_type"`
	MinimumInvestmentAmount  *int64               `json:"minimum_investment_amount,omitempty" mapstructure:"minimum-investment-amount" validate:"omitnil,gte=0"`
	MinimumScore             *decimal.Decimal     `json:"minimum_score,omitempty" mapstructure:"minimum-score"`
	MinimumMonthlyProfitRate *decimal.Decimal     `json:"minimum_monthly_profit_rate,omitempty" mapstructure:"minimum-monthly-profit-rate"`
	MinimumIRR               *decimal.Decimal     `json:"minimum_irr,omitempty" mapstructure:"minimum-irr"`
	MinimumDuration          *int                 `json:"minimum_duration,omitempty" mapstructure:"minimum-duration" validate:"omitnil,gte=0"`
	MaximumDuration          *int                 `json:"maximum_duration,omitempty" mapstructure:"maximum-duration" validate:"omitnil,gte=0"`
	MinimumRequestedCredits  *int                 `json:"minimum_requested_credits,omitempty" mapstructure:"minimum-requested-credits" validate:"omitnil,gte=0"`
	MinimumRequestedAmount   *int64               `json:"minimum_requested_amount,omitempty" mapstructure:"minimum-requested-amount" validate:"omitnil,gte=0"`

	Borrower BorrowerConfiguration `json:"borrower" mapstructure:"borrower"`
	Debtor   DebtorConfiguration   `json:"debtor" mapstructure:"debtor"`
}

type BorrowerConfiguration struct {
	IgnoreDicom                  bool             `json:"ignore_dicom" mapstructure:"ignore-dicom"`
	MaximumAverageDaysDelinquent *int             `json:"maximum_average_days_delinquent,omitempty" mapstructure:"maximum-average-days-delinquent" validate:"omitnil,gte=0"`
	MinimumPaidInTimePercentage  *decimal.Decimal `json:"minimum_paid_in_time_percentage,omitempty" mapstructure:"minimum-paid-in-time-percentage"`
}

type DebtorConfiguration struct {
	IgnoreDicom                 bool             `json:"ignore_dicom" mapstructure:"ignore-dicom"`
	MinimumPaidInTimePercentage *decimal.Decimal `json:"minimum_paid_in_time_percentage,omitempty" mapstructure:"minimum-paid-in-time-percentage"`
	MinimumRequestedCredits     *int             `json:"minimum_requested_credits,omitempty" mapstructure:"minimum-requested-credits" validate:"omitnil,gte=0"`
	MinimumRequestedAmount      *int64           `json:"minimum_requested_amount,omitempty" mapstructure:"minimum-requested-amount" validate:"omitnil,gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("credit_type", func(fl validator.FieldLevel) bool {
		return funding.CreditType(fl.Field().String()).Valid()
	}); err != nil {
		panic(err)
	}
	return v
}

// Validate checks the configuration thresholds are coherent.
func (c *Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration %d: %w", c.ID, err)
	}

	if c.MinimumDuration != nil && c.MaximumDuration != nil && *c.MaximumDuration > 0 && *c.MinimumDuration > *c.MaximumDuration {
		return fmt.Errorf("configuration %d: minimum duration %d exceeds maximum duration %d", c.ID, *c.MinimumDuration, *c.MaximumDuration)
	}

	for name, d := range map[string]*decimal.Decimal{
		"minimum score":                 c.MinimumScore,
		"minimum monthly profit rate":   c.MinimumMonthlyProfitRate,
		"minimum irr":                   c.MinimumIRR,
		"borrower minimum paid in time": c.Borrower.MinimumPaidInTimePercentage,
		"debtor minimum paid in time":   c.Debtor.MinimumPaidInTimePercentage,
	} {
		if d != nil && d.IsNegative() {
			return fmt.Errorf("configuration %d: %s must not be negative", c.ID, name)
		}
	}

	return nil
}

// Validate checks the user profile and every configuration it holds.
func (u *User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}

	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("user %s: %w", u.ID, err)
	}

	for id, c := range u.Configurations {
		if c == nil {
			return fmt.Errorf("user %s: configuration %d is empty", u.ID, id)
		}
		if c.ID != id {
			return fmt.Errorf("user %s: configuration key %d does not match id %d", u.ID, id, c.ID)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("user %s: %w", u.ID, err)
		}
	}

	return nil
}

// ConfigurationIDs returns the configuration ids in ascending order.
func (u *User) ConfigurationIDs() []int {
	ids := make([]int, 0, len(u.Configurations))
	for id := range u.Configurations {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
