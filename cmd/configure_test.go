package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumplo-spotter/cumplo-spotter/internal/dispatch"
	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/store"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefinitionYAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "ana.yaml", `
id: ana
name: Ana
api-key: key-ana
webhook-url: https://hooks.example.com/ana
configurations:
  - id: 1
    name: short factoring
    target-credit-types: [factoring]
    minimum-score: 0.7
    maximum-duration: 60
    borrower:
      ignore-dicom: true
  - id: 2
    minimum-monthly-profit-rate: "0.012"
`)

	user, err := loadDefinition(path)
	require.NoError(t, err)

	assert.Equal(t, "ana", user.ID)
	assert.Equal(t, "https://hooks.example.com/ana", user.WebhookURL)
	assert.Equal(t, []int{1, 2}, user.ConfigurationIDs())

	first := user.Configurations[1]
	assert.Equal(t, []funding.CreditType{funding.CreditTypeFactoring}, first.TargetCreditTypes)
	require.NotNil(t, first.MinimumScore)
	assert.True(t, first.MinimumScore.Equal(decimal.RequireFromString("0.7")))
	require.NotNil(t, first.MaximumDuration)
	assert.Equal(t, 60, *first.MaximumDuration)
	assert.True(t, first.Borrower.IgnoreDicom)

	second := user.Configurations[2]
	require.NotNil(t, second.MinimumMonthlyProfitRate)
	assert.True(t, second.MinimumMonthlyProfitRate.Equal(decimal.RequireFromString("0.012")))
}

func TestLoadDefinitionJSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "bruno.json", `{"id": "bruno", "configurations": [{"id": 7, "minimum-duration": 30}]}`)

	user, err := loadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, user.ConfigurationIDs())
}

func TestLoadDefinitionRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown credit type": "id: ana\nconfigurations:\n  - id: 1\n    target-credit-types: [mortgage]\n",
		"inverted durations":  "id: ana\nconfigurations:\n  - id: 1\n    minimum-duration: 90\n    maximum-duration: 30\n",
		"unknown key":         "id: ana\nconfigurations:\n  - id: 1\n    minimum-sore: 0.5\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadDefinition(writeFile(t, "user.yaml", content))
			assert.Error(t, err)
		})
	}

	_, err := loadDefinition(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	cfg := Config{AI: &AIConfig{Gemini: &GeminiConfig{APIKey: "gemini-secret"}}}
	cfg.Store.Redis.Password = "redis-secret"
	cfg.API.InternalToken = "token"

	out := redacted(cfg)
	assert.Equal(t, "***", out.Store.Redis.Password)
	assert.Equal(t, "***", out.API.InternalToken)
	assert.Equal(t, "***", out.AI.Gemini.APIKey)
	// the original config keeps its secrets
	assert.Equal(t, "gemini-secret", cfg.AI.Gemini.APIKey)
}

func TestLexiconOverride(t *testing.T) {
	t.Parallel()

	d := &deps{cfg: &Config{}}
	assert.Equal(t, funding.DefaultLexicon, d.lexicon())

	d.cfg.Dicom = &funding.Lexicon{DebtorPositive: "Deudor con DICOM"}
	assert.Equal(t, "deudor con dicom", d.lexicon().DebtorPositive)
}

func TestRedisDispatchKeys(t *testing.T) {
	t.Parallel()

	for _, prefix := range []string{"cumplo-spotter", "cumplo-spotter:"} {
		d := &deps{cfg: &Config{
			Store:    store.Config{Redis: store.RedisConfig{Prefix: prefix}},
			Dispatch: dispatch.Config{Queue: "webhooks"},
		}}
		assert.Equal(t, "cumplo-spotter:webhooks", d.queueKey())
		assert.Equal(t, "cumplo-spotter:dedupe:", d.dedupePrefix())
	}
}
