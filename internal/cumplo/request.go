package cumplo

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/metrics"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	acceptLanguage  = "es-CL"

	targetGraphQL = "graphql"
	targetDetails = "details"
)

const fundingRequestsQuery = `
query FundingRequests($page: Int!, $limit: Int!) {
	fundingRequests(page: $page, limit: $limit) {
		count
		results {
			id_operacion score tir cuotas moneda monto_financiar tipo_credito
			fecha_vencimiento total_inversion max_inversion cantidad_inversionistas
			porcentaje_inversion tipo_respaldo
			plazo { tipo valor }
			simulacion { tasa_rentabilidad }
			solicitante {
				id nombre descripcion cantidad_creditos monto_total_creditos
				porcentaje_pagado_a_tiempo promedio_dias_mora
			}
			pagadores {
				id nombre cantidad_creditos monto_total_creditos
				porcentaje_pagado_a_tiempo promedio_dias_mora
			}
		}
	}
}`

type graphQLRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Query         string         `json:"query"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type fundingRequestsResponse struct {
	Data struct {
		FundingRequests struct {
			Count   int              `json:"count"`
			Results []map[string]any `json:"results"`
		} `json:"fundingRequests"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// RawFundingRequests queries every page of funding requests and returns the records undecoded.
func (c *Client) RawFundingRequests(ctx context.Context) ([]map[string]any, error) {
	var items []map[string]any

	for page := 1; ; page++ {
		response, err := c.queryPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		results := response.Data.FundingRequests.Results
		count := response.Data.FundingRequests.Count
		items = append(items, results...)

		c.logger.Debug("got funding requests page",
			zap.Int("page", page),
			zap.Int("results", len(results)),
			zap.Int("count", count),
		)

		if len(results) < c.PageSize || len(items) >= count {
			break
		}
		if c.MaxPages > 0 && page >= c.MaxPages {
			c.logger.Warn("max pages reached", zap.Int("pages", page), zap.Int("count", count))
			break
		}

		c.logger.Debug("additional request needed", zap.String("reason", fmt.Sprintf(
			"fetched %d of %d funding requests", len(items), count),
		))
	}

	return items, nil
}

func (c *Client) queryPage(ctx context.Context, page int) (*fundingRequestsResponse, error) {
	payload, err := json.Marshal(graphQLRequest{
		OperationName: "FundingRequests",
		Variables:     map[string]any{"limit": c.PageSize, "page": page},
		Query:         fundingRequestsQuery,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req = c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.request(req, targetGraphQL)
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

	var response fundingRequestsResponse
	decoder := json.NewDecoder(body)
	decoder.UseNumber()
	if err := decoder.Decode(&response); err != nil {
		return nil, err
	}

	if len(response.Errors) > 0 {
		messages := make([]string, 0, len(response.Errors))
		for _, e := range response.Errors {
			messages = append(messages, e.Message)
		}
		return nil, fmt.Errorf("graphql: %s", strings.Join(messages, "; "))
	}

	return &response, nil
}

func (c *Client) request(req *http.Request, target string) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest(target, 0, time.Since(start))
		return nil, err
	}
	metrics.ObserveNetworkRequest(target, resp.StatusCode, time.Since(start))

	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)
	req.Header.Set("Accept-Language", acceptLanguage)

	return req
}

// responseBody unwraps gzip encoded bodies. Accept-Encoding is set by hand so the transport does not do it.
func responseBody(resp *http.Response) (io.ReadCloser, error) {
	if resp.Header.Get("Content-Encoding") != "gzip" {
		return io.NopCloser(resp.Body), nil
	}
	return gzip.NewReader(resp.Body)
}
