package funding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/cumplo-spotter/cumplo-spotter/internal/textutil"
)

// ErrInvalidRequest is returned when an upstream record cannot be normalized.
var ErrInvalidRequest = errors.New("invalid funding request")

const (
	// raw funded percentage comes in hundredths of a percent: 5000 means 50%.
	fundedPercentageScale = 10000
	monthsPerYear         = 12
	profitRatePlaces      = 4
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("credit_type", func(fl validator.FieldLevel) bool {
		return CreditType(fl.Field().String()).Valid()
	}); err != nil {
		panic(err)
	}
	return v
}

// Draft is the intermediate, not yet validated shape of a funding request.
// DICOM markers of the parties are filled by Normalize.
type Draft struct {
	ID                  int              `validate:"gt=0"`
	Score               *decimal.Decimal `validate:"required"`
	IRR                 *decimal.Decimal `validate:"required"`
	Installments        int              `validate:"gte=0"`
	Currency            string           `validate:"required"`
	Amount              int64            `validate:"gt=0"`
	CreditType          string           `validate:"required"`
	DueDate             string
	RaisedAmount        int64  `validate:"gte=0"`
	MaximumInvestment   int64  `validate:"gte=0"`
	Investors           int    `validate:"gte=0"`
	FundedPercentage    *int64 `validate:"required"`
	SupportingDocuments []string
	Duration            *DraftDuration `validate:"required"`
	Simulation          *DraftSimulation
	Borrower            *DraftParty  `validate:"required"`
	Debtors             []DraftParty `validate:"min=1,dive"`
	History             *CreditHistory
}

type DraftDuration struct {
	Unit  string `validate:"required,oneof=DAY MONTH"`
	Value int    `validate:"gt=0"`
}

type DraftSimulation struct {
	// ProfitRate is the total percentage earned over the whole duration.
	ProfitRate *decimal.Decimal
}

type DraftParty struct {
	ID                    int
	Name                  string
	Description           string
	TotalRequests         int   `validate:"gte=0"`
	TotalAmount           int64 `validate:"gte=0"`
	PaidInTime            *decimal.Decimal
	AverageDaysDelinquent *int
}

// CreditHistory is the borrower data scraped from the request detail page.
type CreditHistory struct {
	AverageDaysDelinquent *int
	PaidInTime            *decimal.Decimal
	Dicom                 bool
}

// Normalize validates a draft and builds the immutable Request out of it.
func Normalize(d Draft, lex Lexicon) (*Request, error) {
	if err := validate.Struct(d); err != nil {
		return nil, fmt.Errorf("%w %d: %w", ErrInvalidRequest, d.ID, err)
	}

	creditType, err := TranslateCreditType(d.CreditType)
	if err != nil {
		return nil, fmt.Errorf("request %d: %w", d.ID, err)
	}

	funded := decimal.NewFromInt(*d.FundedPercentage).Div(decimal.NewFromInt(fundedPercentageScale)).Round(2)
	if funded.IsNegative() || funded.GreaterThan(one) {
		return nil, fmt.Errorf("%w %d: funded percentage %s out of range", ErrInvalidRequest, d.ID, funded)
	}

	debtorDicom, borrowerDicom := InferDicom(textutil.Clean(d.Borrower.Description), lex)

	borrower := Borrower{
		ID:        d.Borrower.ID,
		Name:      strings.TrimSpace(d.Borrower.Name),
		Dicom:     borrowerDicom,
		Portfolio: d.Borrower.portfolio(),
	}

	if h := d.History; h != nil {
		if borrower.Portfolio.AverageDaysDelinquent == nil {
			borrower.Portfolio.AverageDaysDelinquent = h.AverageDaysDelinquent
		}
		if borrower.Portfolio.PaidInTime == nil {
			borrower.Portfolio.PaidInTime = h.PaidInTime
		}
		if h.Dicom {
			borrower.Dicom = DicomFlagged
		}
	}

	debtors := make([]Debtor, 0, len(d.Debtors))
	for _, p := range d.Debtors {
		debtors = append(debtors, Debtor{
			ID:        p.ID,
			Name:      strings.TrimSpace(p.Name),
			Dicom:     debtorDicom,
			Portfolio: p.portfolio(),
		})
	}

	documents := make([]string, 0, len(d.SupportingDocuments))
	for _, doc := range d.SupportingDocuments {
		if cleaned := textutil.Clean(doc); cleaned != "" {
			documents = append(documents, cleaned)
		}
	}

	duration := Duration{Value: d.Duration.Value, Unit: DurationUnit(d.Duration.Unit)}

	return &Request{
		ID:                  d.ID,
		Score:               *d.Score,
		IRR:                 *d.IRR,
		MonthlyProfitRate:   monthlyProfitRate(*d.IRR, duration, d.Simulation),
		Amount:              d.Amount,
		RaisedAmount:        d.RaisedAmount,
		MaximumInvestment:   d.MaximumInvestment,
		FundedPercentage:    funded,
		Investors:           d.Investors,
		Installments:        d.Installments,
		Currency:            strings.ToUpper(strings.TrimSpace(d.Currency)),
		CreditType:          creditType,
		Duration:            duration,
		DueDate:             d.DueDate,
		SupportingDocuments: documents,
		Borrower:            borrower,
		Debtors:             debtors,
	}, nil
}

func (p DraftParty) portfolio() Portfolio {
	return Portfolio{
		TotalRequests:         p.TotalRequests,
		TotalAmount:           p.TotalAmount,
		PaidInTime:            p.PaidInTime,
		AverageDaysDelinquent: p.AverageDaysDelinquent,
	}
}

func monthlyProfitRate(irr decimal.Decimal, d Duration, sim *DraftSimulation) decimal.Decimal {
	if sim != nil && sim.ProfitRate != nil {
		months := int64(d.Days() / daysPerMonth)
		if months < 1 {
			months = 1
		}
		return sim.ProfitRate.Div(decimal.NewFromInt(months)).Round(profitRatePlaces)
	}

	return irr.Div(decimal.NewFromInt(monthsPerYear)).Round(profitRatePlaces)
}
