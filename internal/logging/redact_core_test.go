package logging

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hdcopilot/ticket-enrich-back/internal/policy"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(NewRedactingCore(core)), logs
}

func TestRedactingCoreScrubsMessages(t *testing.T) {
	logger, logs := observedLogger()

	logger.Info("calling with api_key=sk-super-secret")

	entry := logs.All()[0]
	if strings.Contains(entry.Message, "sk-super-secret") {
		t.Fatalf("message leaked credential: %q", entry.Message)
	}
}

func TestRedactingCoreReplacesSensitiveFieldKeys(t *testing.T) {
	logger, logs := observedLogger()

	logger.Info("tenant configured", zap.String("authtoken", "tok-abc123"))

	got := logs.All()[0].ContextMap()["authtoken"]
	if got != policy.RedactionToken {
		t.Fatalf("expected sensitive key value replaced, got %v", got)
	}
}

func TestRedactingCoreScrubsStringFieldValues(t *testing.T) {
	logger, logs := observedLogger()

	logger.Warn("upstream said", zap.String("detail", "rejected Bearer sk-live-9981 for tenant"))

	got := logs.All()[0].ContextMap()["detail"].(string)
	if strings.Contains(got, "sk-live-9981") {
		t.Fatalf("string field leaked credential: %q", got)
	}
}

func TestRedactingCoreScrubsErrorFields(t *testing.T) {
	logger, logs := observedLogger()

	logger.Error("call failed", zap.Error(errors.New("auth rejected: password=hunter2")))

	got := logs.All()[0].ContextMap()["error"].(string)
	if strings.Contains(got, "hunter2") {
		t.Fatalf("error field leaked credential: %q", got)
	}
}

func TestRedactingCoreScrubsFieldsBoundWithWith(t *testing.T) {
	logger, logs := observedLogger()

	logger.With(zap.String("secret", "raw-value")).Info("bound fields")

	got := logs.All()[0].ContextMap()["secret"]
	if got != policy.RedactionToken {
		t.Fatalf("expected With-bound sensitive field replaced, got %v", got)
	}
}

func TestRedactingCoreScrubsReflectedStructures(t *testing.T) {
	logger, logs := observedLogger()

	logger.Info("payload snapshot", zap.Any("payload", map[string]any{
		"requester": "eve@secret-corp.example",
		"api_key":   "sk-000",
	}))

	snapshot := logs.All()[0].ContextMap()["payload"].(map[string]any)
	if snapshot["api_key"] != policy.RedactionToken {
		t.Fatalf("expected nested api_key replaced, got %v", snapshot["api_key"])
	}
	if requester, _ := snapshot["requester"].(string); strings.Contains(requester, "secret-corp.example") {
		t.Fatalf("expected email domain masked, got %q", requester)
	}
}
