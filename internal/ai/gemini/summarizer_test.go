package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/cumplo-spotter/cumplo-spotter/internal/ai"
	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

type stubGenerator struct {
	response   string
	err        error
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func requests() []*funding.Request {
	return []*funding.Request{{
		ID:                77,
		CreditType:        funding.CreditTypeFactoring,
		MonthlyProfitRate: decimal.RequireFromString("1.9"),
		Duration:          funding.Duration{Value: 45, Unit: funding.DurationUnitDay},
	}}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{response: "```text\nUna solicitud nueva, #77 al 1.9% mensual.\n```"}
	s := NewSummarizer(stub, zap.NewNop(), "", 0)

	digest, err := s.Summarize(t.Context(), &users.User{ID: "u1", Name: "Ana"}, requests())
	require.NoError(t, err)
	assert.Equal(t, "Una solicitud nueva, #77 al 1.9% mensual.", digest)

	assert.Contains(t, stub.lastPrompt, "Write in Spanish.")
	assert.Contains(t, stub.lastPrompt, "Investor: Ana")
	assert.Contains(t, stub.lastPrompt, `"id": 77`)
	assert.NotContains(t, stub.lastPrompt, "{{")
}

func TestSummarizeFallsBackToPlainDigest(t *testing.T) {
	t.Parallel()

	user := &users.User{ID: "u1"}
	stub := &stubGenerator{err: errors.New("quota exceeded")}

	digest, err := NewSummarizer(stub, zap.NewNop(), "English", 0).Summarize(t.Context(), user, requests())
	require.NoError(t, err)
	assert.Equal(t, ai.PlainDigest(user, requests()), digest)
	assert.True(t, strings.HasPrefix(stub.lastPrompt, "You write short notification digests"))
}

func TestSummarizeWithoutRequests(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{response: "unused"}
	digest, err := NewSummarizer(stub, zap.NewNop(), "", 0).Summarize(t.Context(), &users.User{ID: "u1"}, nil)
	require.NoError(t, err)
	assert.Empty(t, digest)
	assert.Empty(t, stub.lastPrompt)
}

func TestResponseText(t *testing.T) {
	t.Parallel()

	text, err := responseText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			nil,
			{Content: &genai.Content{Parts: []*genai.Part{{Text: " first "}, nil, {Text: ""}}}},
			{Content: &genai.Content{Parts: []*genai.Part{{Text: "second"}}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", text)

	_, err = responseText(&genai.GenerateContentResponse{})
	require.Error(t, err)

	_, err = responseText(nil)
	require.Error(t, err)
}

func TestGeneratorRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewGenerator(t.Context(), " ", "", 1)
	require.Error(t, err)
}
