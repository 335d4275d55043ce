package funding

import (
	"fmt"
	"strings"
)

// CreditType is the canonical classification of a funding request.
type CreditType string

const (
	CreditTypeStateSubsidy   CreditType = "state_subsidy"
	CreditTypeWorkingCapital CreditType = "working_capital"
	CreditTypeBulletLoan     CreditType = "bullet_loan"
	CreditTypeFactoring      CreditType = "factoring"
)

// CreditTypes lists every canonical credit type.
var CreditTypes = []CreditType{
	CreditTypeStateSubsidy,
	CreditTypeWorkingCapital,
	CreditTypeBulletLoan,
	CreditTypeFactoring,
}

// upstream credit types as the marketplace reports them.
var upstreamCreditTypes = map[string]CreditType{
	"irrigation": CreditTypeStateSubsidy,
	"simple":     CreditTypeWorkingCapital,
	"balloon":    CreditTypeBulletLoan,
	"bullet":     CreditTypeBulletLoan,
	"invoice":    CreditTypeFactoring,
}

// TranslateCreditType maps an upstream credit type into the canonical taxonomy.
func TranslateCreditType(upstream string) (CreditType, error) {
	ct, ok := upstreamCreditTypes[strings.ToLower(strings.TrimSpace(upstream))]
	if !ok {
		return "", fmt.Errorf("%w: unknown credit type %q", ErrInvalidRequest, upstream)
	}
	return ct, nil
}

// Valid reports whether c is one of the canonical credit types.
func (c CreditType) Valid() bool {
	for _, known := range CreditTypes {
		if c == known {
			return true
		}
	}
	return false
}
