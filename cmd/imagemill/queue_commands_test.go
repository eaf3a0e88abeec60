package main

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"imagemill/internal/queue"
)

func seedItem(t *testing.T, env *cliTestEnv, name, fingerprint string, status queue.Status) *queue.Item {
	t.Helper()
	ctx := context.Background()
	item, _, err := env.store.Enqueue(ctx, "/renders/"+name, "jpeg", fingerprint, 1000, false)
	if err != nil {
		t.Fatalf("enqueue %s: %v", name, err)
	}
	if status != queue.StatusPending {
		item.Status = status
		if err := env.store.Update(ctx, item); err != nil {
			t.Fatalf("update %s: %v", name, err)
		}
	}
	return item
}

func TestQueueStatusAndList(t *testing.T) {
	env := setupCLITestEnv(t)

	seedItem(t, env, "alpha.jpg", "fp-alpha", queue.StatusPending)
	seedItem(t, env, "beta.jpg", "fp-beta", queue.StatusFailed)

	out, _, err := runCLI(t, []string{"queue", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "pending")
	requireContains(t, out, "failed")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "alpha.jpg")
	requireContains(t, out, "beta.jpg")

	out, _, err = runCLI(t, []string{"queue", "list", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list --status: %v", err)
	}
	requireContains(t, out, "beta.jpg")
	if strings.Contains(out, "alpha.jpg") {
		t.Fatalf("status filter leaked pending item: %q", out)
	}
}

func TestQueueRetryAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	failed := seedItem(t, env, "alpha.jpg", "fp-alpha", queue.StatusFailed)

	out, _, err := runCLI(t, []string{"queue", "retry"}, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retried 1 failed items")

	updated, err := env.store.GetByID(ctx, failed.ID)
	if err != nil {
		t.Fatalf("lookup after retry: %v", err)
	}
	if updated.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", updated.Status)
	}

	seedItem(t, env, "done.jpg", "fp-done", queue.StatusCompleted)

	out, _, err = runCLI(t, []string{"queue", "clear", "--completed"}, env.configPath)
	if err != nil {
		t.Fatalf("queue clear --completed: %v", err)
	}
	requireContains(t, out, "Cleared 1 completed items")

	out, _, err = runCLI(t, []string{"queue", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 queue items")

	out, _, err = runCLI(t, []string{"queue", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status after clear: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestQueueRetrySpecificID(t *testing.T) {
	env := setupCLITestEnv(t)

	failed := seedItem(t, env, "alpha.jpg", "fp-alpha", queue.StatusFailed)
	pending := seedItem(t, env, "beta.jpg", "fp-beta", queue.StatusPending)

	out, _, err := runCLI(t, []string{"queue", "retry", fmt.Sprintf("%d", failed.ID)}, env.configPath)
	if err != nil {
		t.Fatalf("queue retry specific: %v", err)
	}
	requireContains(t, out, fmt.Sprintf("Item %d reset for retry", failed.ID))

	out, _, err = runCLI(t, []string{"queue", "retry", fmt.Sprintf("%d", pending.ID)}, env.configPath)
	if err != nil {
		t.Fatalf("queue retry non-failed: %v", err)
	}
	requireContains(t, out, fmt.Sprintf("Item %d is not in failed state", pending.ID))
}

func TestQueueRetryInvalidID(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"queue", "retry", "abc"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid item id") {
		t.Fatalf("expected invalid id error, got %v", err)
	}
}

func TestQueueResetStuck(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	stuck := seedItem(t, env, "alpha.jpg", "fp-alpha", queue.StatusOptimizing)

	out, _, err := runCLI(t, []string{"queue", "reset-stuck"}, env.configPath)
	if err != nil {
		t.Fatalf("queue reset-stuck: %v", err)
	}
	requireContains(t, out, "Reset 1 items")

	updated, err := env.store.GetByID(ctx, stuck.ID)
	if err != nil {
		t.Fatalf("lookup after reset: %v", err)
	}
	if updated.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", updated.Status)
	}
}

func TestQueueHealthCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	seedItem(t, env, "alpha.jpg", "fp-alpha", queue.StatusPending)

	out, _, err := runCLI(t, []string{"queue", "health"}, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Database path:")
	requireContains(t, out, "Total: 1")
	requireContains(t, out, "Pending: 1")
}
