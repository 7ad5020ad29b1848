package logging

import (
	"encoding/json"

	"go.uber.org/zap/zapcore"

	"github.com/hdcopilot/ticket-enrich-back/internal/policy"
)

// redactingCore filters every entry before it reaches the wrapped sink:
// messages and field values are pattern-scrubbed, nested structures
// included, and known-sensitive field names are replaced outright.
type redactingCore struct {
	zapcore.Core
}

func NewRedactingCore(inner zapcore.Core) zapcore.Core {
	return &redactingCore{Core: inner}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redactFields(fields))}
}

func (c *redactingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *redactingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = policy.RedactString(entry.Message)
	return c.Core.Write(entry, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	cloned := make([]zapcore.Field, len(fields))
	for i, field := range fields {
		cloned[i] = redactField(field)
	}
	return cloned
}

func redactField(field zapcore.Field) zapcore.Field {
	if policy.SensitiveKey(field.Key) {
		return zapcore.Field{Key: field.Key, Type: zapcore.StringType, String: policy.RedactionToken}
	}

	switch field.Type {
	case zapcore.StringType:
		field.String = policy.RedactString(field.String)
	case zapcore.ByteStringType:
		if raw, ok := field.Interface.([]byte); ok {
			field.Interface = []byte(policy.RedactString(string(raw)))
		}
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok {
			return zapcore.Field{
				Key:    field.Key,
				Type:   zapcore.StringType,
				String: policy.RedactString(err.Error()),
			}
		}
	case zapcore.ReflectType:
		field.Interface = policy.RedactValue(normalizeReflect(field.Interface))
	}
	return field
}

// normalizeReflect converts arbitrary reflected values into plain
// maps/slices/strings so the recursive redactor can walk them.
func normalizeReflect(value any) any {
	switch value.(type) {
	case map[string]any, []any, string, nil:
		return value
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return value
	}
	return decoded
}
