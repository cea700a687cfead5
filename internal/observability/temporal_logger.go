package observability

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

var _ log.WithLogger = (*TemporalLogger)(nil)

// TemporalLogger routes Temporal SDK log output into zerolog under the
// temporal-sdk component. SDK keys such as WorkflowID are rewritten to the
// snake_case names the rest of the service logs (workflow_id).
type TemporalLogger struct {
	logger zerolog.Logger
}

func NewTemporalLogger(logger zerolog.Logger) *TemporalLogger {
	return &TemporalLogger{logger: WithComponent(logger, "temporal-sdk")}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug().Fields(sdkFields(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info().Fields(sdkFields(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn().Fields(sdkFields(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error().Fields(sdkFields(keyvals)).Msg(msg)
}

// With is used by the SDK to pin workflow and activity identifiers.
func (l *TemporalLogger) With(keyvals ...interface{}) log.Logger {
	return &TemporalLogger{logger: l.logger.With().Fields(sdkFields(keyvals)).Logger()}
}

// sdkFields pairs up alternating keys and values. A dangling key is dropped.
func sdkFields(keyvals []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		fields[snakeCase(key)] = keyvals[i+1]
	}
	return fields
}

// snakeCase turns WorkflowID into workflow_id and ActivityType into activity_type.
func snakeCase(key string) string {
	runes := []rune(key)
	var b strings.Builder
	b.Grow(len(key) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1]) && runes[i-1] != '_'
			nextLower := i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
