package cumplo

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
)

const historySelector = "span.loan-view-optional-visibility + span"

// CreditHistory scrapes the borrower credit history from the funding request detail page.
func (c *Client) CreditHistory(ctx context.Context, id int) (*funding.CreditHistory, error) {
	url := fmt.Sprintf("%s/%d", strings.TrimRight(c.DetailsURL, "/"), id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req = c.setHeaders(req)

	resp, err := c.request(req, targetDetails)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	body, err := responseBody(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse credit history page: %w", err)
	}

	return parseCreditHistory(doc, c.DicomString), nil
}

// parseCreditHistory reads the "label: value" segments of the page. The first one is the
// average of days delinquent and the second one the paid in time percentage.
// Missing or unreadable values are left empty.
func parseCreditHistory(doc *goquery.Document, dicom string) *funding.CreditHistory {
	history := &funding.CreditHistory{
		Dicom: dicom != "" && strings.Contains(strings.ToUpper(doc.Text()), strings.ToUpper(dicom)),
	}

	segments := doc.Find(historySelector)
	if segments.Length() > 0 {
		if days, ok := parseNumber(historyValue(segments.Eq(0).Text())); ok {
			v := int(days.Round(0).IntPart())
			history.AverageDaysDelinquent = &v
		}
	}
	if segments.Length() > 1 {
		if paid, ok := parseNumber(historyValue(segments.Eq(1).Text())); ok {
			history.PaidInTime = &paid
		}
	}

	return history
}

func historyValue(text string) string {
	text = strings.ReplaceAll(text, "\n", "")
	text = strings.ReplaceAll(text, "(*)", "")
	text = strings.ReplaceAll(text, "%", "")
	if i := strings.LastIndex(text, ":"); i >= 0 {
		text = text[i+1:]
	}
	return strings.TrimSpace(text)
}

func parseNumber(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
