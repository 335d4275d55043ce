package funding

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Request is a normalized funding request. It is built once by Normalize and never mutated afterwards.
type Request struct {
	ID                  int             `json:"id" validate:"gt=0"`
	Score               decimal.Decimal `json:"score"`
	IRR                 decimal.Decimal `json:"irr"`
	MonthlyProfitRate   decimal.Decimal `json:"monthly_profit_rate"`
	Amount              int64           `json:"amount"`
	RaisedAmount        int64           `json:"raised_amount"`
	MaximumInvestment   int64           `json:"maximum_investment"`
	FundedPercentage    decimal.Decimal `json:"funded_percentage"`
	Investors           int             `json:"investors"`
	Installments        int             `json:"installments"`
	Currency            string          `json:"currency"`
	CreditType          CreditType      `json:"credit_type" validate:"credit_type"`
	Duration            Duration        `json:"duration"`
	DueDate             string          `json:"due_date,omitempty"`
	SupportingDocuments []string        `json:"supporting_documents,omitempty"`
	Borrower            Borrower        `json:"borrower"`
	Debtors             []Debtor        `json:"debtors" validate:"min=1"`
}

// Portfolio summarizes the funding history of a borrower or debtor.
type Portfolio struct {
	TotalRequests         int              `json:"total_requests"`
	TotalAmount           int64            `json:"total_amount"`
	PaidInTime            *decimal.Decimal `json:"paid_in_time"`
	AverageDaysDelinquent *int             `json:"average_days_delinquent"`
}

// Borrower is the party receiving the funds.
type Borrower struct {
	ID        int       `json:"id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Dicom     Dicom     `json:"dicom"`
	Portfolio Portfolio `json:"portfolio"`
}

// Debtor is a party obligated to repay the request.
type Debtor struct {
	ID        int       `json:"id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Dicom     Dicom     `json:"dicom"`
	Portfolio Portfolio `json:"portfolio"`
}

var one = decimal.NewFromInt(1)

// Validate checks a request that was not built by Normalize, such as one decoded from a client payload,
// holds the same invariants: canonical credit type, known duration unit, funded percentage in [0,1]
// and at least one debtor.
func (r *Request) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w %d: %w", ErrInvalidRequest, r.ID, err)
	}
	if r.FundedPercentage.IsNegative() || r.FundedPercentage.GreaterThan(one) {
		return fmt.Errorf("%w %d: funded percentage %s out of [0,1]", ErrInvalidRequest, r.ID, r.FundedPercentage)
	}
	return nil
}

// ValidateAll validates every request and stops at the first invalid one.
func ValidateAll(requests []*Request) error {
	for i, r := range requests {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("request #%d: %w", i, err)
		}
	}
	return nil
}

// IsCompleted reports whether the request is fully funded.
func (r *Request) IsCompleted() bool {
	return r.FundedPercentage.Equal(one)
}

// DurationDays is a shortcut for r.Duration.Days().
func (r *Request) DurationDays() int {
	return r.Duration.Days()
}

// IDs returns the identifiers of the given requests in order.
func IDs(requests []*Request) []int {
	ids := make([]int, 0, len(requests))
	for _, r := range requests {
		ids = append(ids, r.ID)
	}
	return ids
}
