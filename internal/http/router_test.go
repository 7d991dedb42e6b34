package http

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestValidResultID(t *testing.T) {
	good := strings.Repeat("0a", 20)
	if !validResultID(good) {
		t.Fatalf("valid fingerprint rejected: %q", good)
	}
	for _, id := range []string{
		"",
		"a",
		"ab",
		strings.Repeat("a", 39),
		strings.Repeat("a", 41),
		strings.Repeat("A", 40),
		strings.Repeat("g", 40),
		"../" + strings.Repeat("a", 37),
	} {
		if validResultID(id) {
			t.Fatalf("accepted invalid id %q", id)
		}
	}
}

func TestAcquireSlot(t *testing.T) {
	sem := make(chan struct{}, 1)
	if err := acquireSlot(context.Background(), sem); err != nil {
		t.Fatalf("acquire with free slot: %v", err)
	}
	if len(sem) != 1 {
		t.Fatalf("slot not held after acquire")
	}

	// A saturated semaphore must not block past context cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := acquireSlot(ctx, sem); !errors.Is(err, context.Canceled) {
		t.Fatalf("acquire on full semaphore = %v, want context.Canceled", err)
	}
	if len(sem) != 1 {
		t.Fatalf("cancelled acquire leaked a slot")
	}
}
