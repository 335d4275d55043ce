package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/ai"
	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/textutil"
	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength = 200
	defaultLanguage     = "Spanish"
	defaultMaxLines     = 8
)

// Summarizer asks Gemini for a digest and falls back to the plain digest when the model fails.
type Summarizer struct {
	generator contentGenerator
	logger    *zap.Logger
	language  string
	maxLogLen int
}

func NewSummarizer(generator contentGenerator, logger *zap.Logger, language string, maxLogLength int) *Summarizer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if strings.TrimSpace(language) == "" {
		language = defaultLanguage
	}

	return &Summarizer{
		generator: generator,
		logger:    logger,
		language:  language,
		maxLogLen: maxLogLength,
	}
}

func (s *Summarizer) Summarize(ctx context.Context, user *users.User, requests []*funding.Request) (string, error) {
	if len(requests) == 0 {
		return "", nil
	}

	requestsJSON, err := json.MarshalIndent(requests, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal funding requests: %w", err)
	}

	prompt := buildPrompt(s.language, displayName(user), string(requestsJSON))

	s.logger.Debug("gemini generate content request",
		zap.String("user", user.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", textutil.TruncateForLog(prompt, s.maxLogLen)),
	)

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		s.logger.Warn("gemini digest failed, using plain digest", zap.String("user", user.ID), zap.Error(err))
		return ai.PlainDigest(user, requests), nil
	}

	s.logger.Debug("gemini generate content response",
		zap.String("user", user.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", textutil.TruncateForLog(raw, s.maxLogLen)),
	)

	return cleanDigest(raw), nil
}

func displayName(user *users.User) string {
	if user.Name != "" {
		return user.Name
	}
	return user.ID
}

func buildPrompt(language, userName, requestsJSON string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Investor: {{USER_NAME}}\n\nFunding requests:\n{{REQUESTS_JSON}}\n\nDigest:"
	}
	return strings.NewReplacer(
		"{{LANGUAGE}}", language,
		"{{MAX_LINES}}", strconv.Itoa(defaultMaxLines),
		"{{USER_NAME}}", userName,
		"{{REQUESTS_JSON}}", requestsJSON,
	).Replace(template)
}

// cleanDigest removes code fences the model sometimes wraps plain text in.
func cleanDigest(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```text")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}
