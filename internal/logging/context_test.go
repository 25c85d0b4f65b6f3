// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestGenerateRequestID(t *testing.T) {
	t.Parallel()

	id1 := GenerateRequestID()
	id2 := GenerateRequestID()

	if len(id1) != 36 {
		t.Errorf("expected 36-character request ID, got %d", len(id1))
	}
	if id1 == id2 {
		t.Error("expected unique request IDs")
	}
}

func TestContextIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if RequestIDFromContext(ctx) != "" || ConnIDFromContext(ctx) != "" {
		t.Fatal("expected empty IDs on a bare context")
	}

	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithConnID(ctx, "7")

	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("RequestIDFromContext() = %q, want req-1", got)
	}
	if got := ConnIDFromContext(ctx); got != "7" {
		t.Errorf("ConnIDFromContext() = %q, want 7", got)
	}
}

func TestCtx(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), zerolog.New(&buf))
	ctx = ContextWithRequestID(ctx, "req-42")
	ctx = ContextWithConnID(ctx, "3")

	Ctx(ctx).Info().Msg("frame handled")

	output := buf.String()
	for _, want := range []string{`"request_id":"req-42"`, `"conn_id":"3"`, "frame handled"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output: %s", want, output)
		}
	}
}

func TestLoggerFromContext_NoLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	logger := LoggerFromContext(context.Background())
	logger.Info().Msg("fallback")

	if !strings.Contains(buf.String(), "fallback") {
		t.Errorf("expected global logger fallback, got: %s", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	logger := WithComponent("hub")
	logger.Info().Msg("started")

	if !strings.Contains(buf.String(), `"component":"hub"`) {
		t.Errorf("expected component field in output: %s", buf.String())
	}
}
