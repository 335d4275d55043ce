package cumplo

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/utils"
)

// rawFundingRequest mirrors a marketplace record as returned by the api.
type rawFundingRequest struct {
	ID                  int              `mapstructure:"id_operacion"`
	Score               *decimal.Decimal `mapstructure:"score"`
	IRR                 *decimal.Decimal `mapstructure:"tir"`
	Installments        int              `mapstructure:"cuotas"`
	Currency            string           `mapstructure:"moneda"`
	Amount              int64            `mapstructure:"monto_financiar"`
	CreditType          string           `mapstructure:"tipo_credito"`
	DueDate             string           `mapstructure:"fecha_vencimiento"`
	RaisedAmount        int64            `mapstructure:"total_inversion"`
	MaximumInvestment   int64            `mapstructure:"max_inversion"`
	Investors           int              `mapstructure:"cantidad_inversionistas"`
	FundedPercentage    *int64           `mapstructure:"porcentaje_inversion"`
	SupportingDocuments []string         `mapstructure:"tipo_respaldo"`
	Duration            *rawDuration     `mapstructure:"plazo"`
	Simulation          *rawSimulation   `mapstructure:"simulacion"`
	Borrower            *rawParty        `mapstructure:"solicitante"`
	Debtors             []rawParty       `mapstructure:"pagadores"`
}

type rawDuration struct {
	Unit  string `mapstructure:"tipo"`
	Value int    `mapstructure:"valor"`
}

type rawSimulation struct {
	ProfitRate *decimal.Decimal `mapstructure:"tasa_rentabilidad"`
}

type rawParty struct {
	ID                    int              `mapstructure:"id"`
	Name                  string           `mapstructure:"nombre"`
	Description           string           `mapstructure:"descripcion"`
	TotalRequests         int              `mapstructure:"cantidad_creditos"`
	TotalAmount           int64            `mapstructure:"monto_total_creditos"`
	PaidInTime            *decimal.Decimal `mapstructure:"porcentaje_pagado_a_tiempo"`
	AverageDaysDelinquent *int             `mapstructure:"promedio_dias_mora"`
}

// decodeDraft turns one upstream record into a draft ready for normalization.
func decodeDraft(record map[string]any) (funding.Draft, error) {
	var raw rawFundingRequest
	if err := utils.Decode(record, &raw, "mapstructure", false); err != nil {
		return funding.Draft{}, fmt.Errorf("%w: %w", funding.ErrInvalidRequest, err)
	}
	return raw.draft(), nil
}

func (r *rawFundingRequest) draft() funding.Draft {
	d := funding.Draft{
		ID:                  r.ID,
		Score:               r.Score,
		IRR:                 r.IRR,
		Installments:        r.Installments,
		Currency:            r.Currency,
		Amount:              r.Amount,
		CreditType:          r.CreditType,
		DueDate:             r.DueDate,
		RaisedAmount:        r.RaisedAmount,
		MaximumInvestment:   r.MaximumInvestment,
		Investors:           r.Investors,
		FundedPercentage:    r.FundedPercentage,
		SupportingDocuments: r.SupportingDocuments,
	}

	if r.Duration != nil {
		d.Duration = &funding.DraftDuration{
			Unit:  strings.ToUpper(strings.TrimSpace(r.Duration.Unit)),
			Value: r.Duration.Value,
		}
	}
	if r.Simulation != nil {
		d.Simulation = &funding.DraftSimulation{ProfitRate: r.Simulation.ProfitRate}
	}
	if r.Borrower != nil {
		p := r.Borrower.party()
		d.Borrower = &p
	}
	for _, debtor := range r.Debtors {
		d.Debtors = append(d.Debtors, debtor.party())
	}

	return d
}

func (p rawParty) party() funding.DraftParty {
	return funding.DraftParty{
		ID:                    p.ID,
		Name:                  p.Name,
		Description:           p.Description,
		TotalRequests:         p.TotalRequests,
		TotalAmount:           p.TotalAmount,
		PaidInTime:            p.PaidInTime,
		AverageDaysDelinquent: p.AverageDaysDelinquent,
	}
}
