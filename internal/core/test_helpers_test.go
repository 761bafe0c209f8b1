package core

import (
	"context"
	"testing"
	"time"
)

func mustEnvelope(t *testing.T, sub *Subscription) Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	env, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("expected envelope, got error: %v", err)
	}
	return env
}

func mustNotReceive(t *testing.T, sub *Subscription) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if env, err := sub.Next(ctx); err == nil {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
