package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldUser          = "user"
	FieldAPIKey        = "api_key"
	FieldConfiguration = "configuration"
	FieldProvider      = "ai_provider"
	FieldModel         = "ai_model"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches the fields to the logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// WithUser tags the logger with the user id and an api key hint. Never pass the full key.
func WithUser(logger *zap.Logger, userID, apiKeyHint string) *zap.Logger {
	return WithFields(logger, StringFields(
		StringField{Key: FieldUser, Value: userID},
		StringField{Key: FieldAPIKey, Value: apiKeyHint},
	)...)
}

// WithAI tags the logger with the model provider and identifier.
func WithAI(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)...)
}
