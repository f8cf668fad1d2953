// common/logger/logger_test.go
package logger_test

import (
	"context"
	"testing"

	"github.com/Muritor08/TB-WSS/common/logger"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := logger.New(logger.Config{Level: "invalid", DevMode: false})
	if err == nil {
		t.Error("expected error for invalid level, got nil")
	}
}

func TestNew_ValidLevels(t *testing.T) {
	levels := []string{"debug", "info", "warn", "error", ""}
	for _, lvl := range levels {
		if _, err := logger.New(logger.Config{Level: lvl, DevMode: true}); err != nil {
			t.Errorf("expected no error for level %q, got %v", lvl, err)
		}
	}
}

func TestWithContext_Fields(t *testing.T) {
	l := logger.Nop()
	ctx := context.Background()
	if got := l.WithContext(ctx); got != l {
		t.Error("expected the same logger when context carries no ids")
	}

	ctx = logger.ContextWithTraceID(ctx, "trace-123")
	ctx = logger.ContextWithRequestID(ctx, "req-456")
	ctx = logger.ContextWithSessionID(ctx, "sess-789")
	enh := l.WithContext(ctx)
	if enh == l {
		t.Error("expected a derived logger when ids are present")
	}
	enh.Info("test message")

	if rid, ok := logger.RequestIDFromContext(ctx); !ok || rid != "req-456" {
		t.Errorf("RequestIDFromContext = %q, %v", rid, ok)
	}
}

func TestSync_NoPanic(t *testing.T) {
	l, err := logger.New(logger.Config{Level: "info", DevMode: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Named("sub").Sync()
}
