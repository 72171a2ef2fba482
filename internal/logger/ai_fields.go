package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
)

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values. The arguments are
// interpreted as alternating key, value pairs.
func StringFields(pairs ...string) []zap.Field {
	result := make([]zap.Field, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		key := strings.TrimSpace(pairs[i])
		if key == "" {
			continue
		}

		value := strings.TrimSpace(pairs[i+1])
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithAIFields attaches provider and model fields to the logger. A nil logger
// is replaced with a no-op logger to avoid panics in optional AI paths.
func WithAIFields(logger *zap.Logger, provider, model string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	fields := StringFields(FieldProvider, provider, FieldModel, model)
	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}
