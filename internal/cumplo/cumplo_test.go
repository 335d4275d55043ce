package cumplo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
)

func record(id int, tir string, funded int, creditType string) map[string]any {
	return map[string]any{
		"id_operacion":            id,
		"score":                   0.8,
		"tir":                     tir,
		"cuotas":                  1,
		"moneda":                  "clp",
		"monto_financiar":         10_000_000,
		"tipo_credito":            creditType,
		"fecha_vencimiento":       "2026-12-01",
		"total_inversion":         5_000_000,
		"max_inversion":           5_000_000,
		"cantidad_inversionistas": 12,
		"porcentaje_inversion":    funded,
		"tipo_respaldo":           []string{"Factura  Electrónica"},
		"plazo":                   map[string]any{"tipo": "day", "valor": 45},
		"solicitante": map[string]any{
			"id":                id * 10,
			"nombre":            "Agrícola Sur",
			"descripcion":       "Empresa del rubro agrícola.",
			"cantidad_creditos": 3,
		},
		"pagadores": []map[string]any{{"id": id*10 + 1, "nombre": "Retail SpA"}},
	}
}

const historyPage = `<html><body>
<p>Cliente con DICOM</p>
<div>
	<span class="loan-view-optional-visibility">Mora</span>
	<span>Promedio días de mora:
	5</span>
</div>
<div>
	<span class="loan-view-optional-visibility">Pagos</span>
	<span>Pagado en plazo: 95,5%(*)</span>
</div>
</body></html>`

type upstream struct {
	mu      sync.Mutex
	pages   [][]map[string]any
	count   int
	history map[int]string
	queried []int
}

func (u *upstream) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "FundingRequests", req.OperationName)
		assert.Equal(t, "es-CL", r.Header.Get("Accept-Language"))

		page := int(req.Variables["page"].(float64))
		u.mu.Lock()
		u.queried = append(u.queried, page)
		u.mu.Unlock()

		var results []map[string]any
		if page-1 < len(u.pages) {
			results = u.pages[page-1]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"fundingRequests": map[string]any{"count": u.count, "results": results},
			},
		})
	})
	mux.HandleFunc("GET /details/{id}", func(w http.ResponseWriter, r *http.Request) {
		var id int
		_, _ = fmt.Sscan(r.PathValue("id"), &id)
		page, ok := u.history[id]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(page))
	})
	return mux
}

func newTestClient(url string) *Client {
	return New(zap.NewNop(), Config{
		APIURL:     url + "/graphql",
		DetailsURL: url + "/details/",
		PageSize:   2,
	}, funding.DefaultLexicon)
}

func TestFundingRequests(t *testing.T) {
	t.Parallel()

	u := &upstream{
		pages: [][]map[string]any{
			{record(1, "12", 5000, "invoice"), record(2, "30", 10000, "invoice")},
			{record(3, "30", 5000, "mortgage"), record(4, "24", 0, "simple")},
		},
		count: 4,
		history: map[int]string{
			1: historyPage,
			4: "<html><body><p>Sin antecedentes</p></body></html>",
		},
	}
	srv := httptest.NewServer(u.handler(t))
	defer srv.Close()

	requests, err := newTestClient(srv.URL).FundingRequests(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, u.queried)
	require.Equal(t, []int{4, 1}, funding.IDs(requests))

	first, second := requests[0], requests[1]
	assert.Equal(t, "2", first.MonthlyProfitRate.String())
	assert.Equal(t, funding.CreditTypeWorkingCapital, first.CreditType)
	assert.False(t, first.Borrower.Dicom.Flagged())
	assert.Nil(t, first.Borrower.Portfolio.PaidInTime)

	assert.Equal(t, "1", second.MonthlyProfitRate.String())
	assert.Equal(t, "0.5", second.FundedPercentage.String())
	assert.Equal(t, funding.CreditTypeFactoring, second.CreditType)
	assert.Equal(t, []string{"factura electronica"}, second.SupportingDocuments)
	assert.True(t, second.Borrower.Dicom.Flagged())
	require.NotNil(t, second.Borrower.Portfolio.PaidInTime)
	assert.Equal(t, "95.5", second.Borrower.Portfolio.PaidInTime.String())
	require.NotNil(t, second.Borrower.Portfolio.AverageDaysDelinquent)
	assert.Equal(t, 5, *second.Borrower.Portfolio.AverageDaysDelinquent)
}

func TestFundingRequestsFailsWhenHistoryFails(t *testing.T) {
	t.Parallel()

	u := &upstream{
		pages:   [][]map[string]any{{record(1, "12", 5000, "invoice")}},
		count:   1,
		history: map[int]string{},
	}
	srv := httptest.NewServer(u.handler(t))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FundingRequests(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credit history of funding request 1")
}

func TestFundingRequestsWithoutConcurrency(t *testing.T) {
	t.Parallel()

	u := &upstream{
		pages: [][]map[string]any{{record(1, "12", 5000, "invoice"), record(2, "30", 10000, "invoice")}},
		count: 2,
		history: map[int]string{
			1: historyPage,
			2: historyPage,
		},
	}
	srv := httptest.NewServer(u.handler(t))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.Concurrency = 0

	done := make(chan error, 1)
	go func() {
		_, err := c.FundingRequests(t.Context())
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("credit histories were never fetched")
	}
}

func TestRawFundingRequestsStopsAtMaxPages(t *testing.T) {
	t.Parallel()

	u := &upstream{
		pages: [][]map[string]any{
			{record(1, "12", 5000, "invoice"), record(2, "12", 5000, "invoice")},
			{record(3, "12", 5000, "invoice"), record(4, "12", 5000, "invoice")},
		},
		count: 10,
	}
	srv := httptest.NewServer(u.handler(t))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.MaxPages = 1

	records, err := c.RawFundingRequests(t.Context())
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, []int{1}, u.queried)
}

func TestRawFundingRequestsGraphQLErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"limit too high"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).RawFundingRequests(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit too high")
}

func TestParseCreditHistory(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(historyPage))
	require.NoError(t, err)

	h := parseCreditHistory(doc, "CLIENTE CON DICOM")
	assert.True(t, h.Dicom)
	require.NotNil(t, h.AverageDaysDelinquent)
	assert.Equal(t, 5, *h.AverageDaysDelinquent)
	require.NotNil(t, h.PaidInTime)
	assert.Equal(t, "95.5", h.PaidInTime.String())

	empty, err := goquery.NewDocumentFromReader(strings.NewReader("<p>-</p>"))
	require.NoError(t, err)

	h = parseCreditHistory(empty, "CLIENTE CON DICOM")
	assert.False(t, h.Dicom)
	assert.Nil(t, h.AverageDaysDelinquent)
	assert.Nil(t, h.PaidInTime)
}

func TestHistoryValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "95,5", historyValue("Pagado en plazo:\n 95,5%(*)"))
	assert.Equal(t, "N/A", historyValue("Mora: N/A"))
	assert.Equal(t, "12", historyValue(" 12 "))
}

func TestDecodeDraft(t *testing.T) {
	t.Parallel()

	rec := record(9, "18.5", 3333, "bullet")
	rec["simulacion"] = map[string]any{"tasa_rentabilidad": json.Number("3.1")}
	rec["pagadores"] = []any{
		map[string]any{"id": json.Number("91"), "porcentaje_pagado_a_tiempo": "88.2", "promedio_dias_mora": nil},
	}

	d, err := decodeDraft(rec)
	require.NoError(t, err)

	assert.Equal(t, 9, d.ID)
	assert.Equal(t, "18.5", d.IRR.String())
	assert.Equal(t, "DAY", d.Duration.Unit)
	require.NotNil(t, d.Simulation)
	assert.Equal(t, "3.1", d.Simulation.ProfitRate.String())
	require.Len(t, d.Debtors, 1)
	assert.Equal(t, 91, d.Debtors[0].ID)
	assert.Equal(t, "88.2", d.Debtors[0].PaidInTime.String())
	assert.Nil(t, d.Debtors[0].AverageDaysDelinquent)
	assert.Equal(t, "Empresa del rubro agrícola.", d.Borrower.Description)
}

func TestDecodeDraftRejectsMalformedRecords(t *testing.T) {
	t.Parallel()

	rec := record(9, "not a number", 3333, "bullet")

	_, err := decodeDraft(rec)
	require.ErrorIs(t, err, funding.ErrInvalidRequest)
}
