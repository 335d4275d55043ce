package filtering

// Kind identifies one filter of the closed catalog.
type Kind int

const (
	KindCreditType Kind = iota
	KindMinimumInvestment
	KindMinimumScore
	KindMinimumMonthlyProfit
	KindMinimumIRR
	KindMinimumDuration
	KindMaximumDuration
	KindDebtorDicom
	KindBorrowerDicom
	KindMinimumCreditsRequested
	KindMinimumAmountRequested
	KindBorrowerMaximumAverageDaysDelinquent
	KindBorrowerMinimumPaidInTime
	KindDebtorMinimumPaidInTime
	KindDebtorMinimumCreditsRequested
	KindDebtorMinimumAmountRequested

	kindCount
)

var kindNames = [kindCount]string{
	KindCreditType:                           "credit_type",
	KindMinimumInvestment:                    "minimum_investment",
	KindMinimumScore:                         "minimum_score",
	KindMinimumMonthlyProfit:                 "minimum_monthly_profit",
	KindMinimumIRR:                           "minimum_irr",
	KindMinimumDuration:                      "minimum_duration",
	KindMaximumDuration:                      "maximum_duration",
	KindDebtorDicom:                          "debtor_dicom",
	KindBorrowerDicom:                        "borrower_dicom",
	KindMinimumCreditsRequested:              "minimum_credits_requested",
	KindMinimumAmountRequested:               "minimum_amount_requested",
	KindBorrowerMaximumAverageDaysDelinquent: "borrower_maximum_average_days_delinquent",
	KindBorrowerMinimumPaidInTime:            "borrower_minimum_paid_in_time",
	KindDebtorMinimumPaidInTime:              "debtor_minimum_paid_in_time",
	KindDebtorMinimumCreditsRequested:        "debtor_minimum_credits_requested",
	KindDebtorMinimumAmountRequested:         "debtor_minimum_amount_requested",
}

// Kinds returns every filter kind in evaluation order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "unknown"
	}
	return kindNames[k]
}
