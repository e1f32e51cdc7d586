package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/STRATINT/eventcatalog/internal/models"
)

func newTestRecorder() (*Recorder, *MemoryStore) {
	store := NewMemoryStore()
	return NewRecorder(store, nil), store
}

func TestAttempt_FinishOnce(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestRecorder()

	attempt, err := rec.Start(ctx, 7, models.EnrichmentModeAI, "prompt")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	pending, _ := store.GetByID(ctx, attempt.ID)
	if pending == nil || pending.Status != models.LogStatusPending {
		t.Fatalf("expected pending log, got %+v", pending)
	}

	tokens := 42
	if err := attempt.Succeed(ctx, `{"category":"music"}`, &tokens, nil); err != nil {
		t.Fatalf("Succeed: %v", err)
	}

	err = attempt.Fail(ctx, nil, "late failure")
	if !errors.Is(err, ErrLogFinalized) {
		t.Fatalf("second finish: expected ErrLogFinalized, got %v", err)
	}

	got, _ := store.GetByID(ctx, attempt.ID)
	if got.Status != models.LogStatusSuccess {
		t.Errorf("status = %s, want success", got.Status)
	}
	if got.Error != nil {
		t.Errorf("error should stay unset, got %q", *got.Error)
	}
	if got.TokensPrompt == nil || *got.TokensPrompt != 42 {
		t.Errorf("tokens_prompt = %v", got.TokensPrompt)
	}
	if got.DurationMs == nil {
		t.Error("duration should be recorded")
	}
}

func TestAttempt_FailTruncatesError(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestRecorder()

	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := start
	rec.now = func() time.Time { return clock }

	attempt, err := rec.Start(ctx, 1, models.EnrichmentModeAI, "p")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock = start.Add(1500 * time.Millisecond)

	body := "not json"
	if err := attempt.Fail(ctx, &body, strings.Repeat("é", MaxErrorLength+50)); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	got, _ := store.GetByID(ctx, attempt.ID)
	if got.Status != models.LogStatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if n := len([]rune(*got.Error)); n != MaxErrorLength {
		t.Errorf("error length = %d runes, want %d", n, MaxErrorLength)
	}
	if got.Response == nil || *got.Response != body {
		t.Errorf("response = %v", got.Response)
	}
	if *got.DurationMs != 1500 {
		t.Errorf("duration = %d, want 1500", *got.DurationMs)
	}
}

func TestRecorder_RecordRejectsPending(t *testing.T) {
	rec, _ := newTestRecorder()
	_, err := rec.Record(context.Background(), 1, models.EnrichmentModeRules, "p", models.LogOutcome{Status: models.LogStatusPending})
	if err == nil {
		t.Fatal("expected error for pending outcome")
	}
}

func TestRecorder_LogsNewestFirst(t *testing.T) {
	ctx := context.Background()
	rec, _ := newTestRecorder()

	for _, status := range []models.LogStatus{models.LogStatusSuccess, models.LogStatusFallback, models.LogStatusSuccess} {
		if _, err := rec.Record(ctx, 3, models.EnrichmentModeRules, "p", models.LogOutcome{Status: status}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if _, err := rec.Record(ctx, 4, models.EnrichmentModeRules, "p", models.LogOutcome{Status: models.LogStatusSuccess}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	logs, err := rec.Logs(ctx, 3, ListQuery{})
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(logs) != 3 || logs[0].ID != 3 || logs[2].ID != 1 {
		t.Fatalf("unexpected logs: %+v", logs)
	}

	fallback, _ := rec.Logs(ctx, 3, ListQuery{Status: models.LogStatusFallback})
	if len(fallback) != 1 || fallback[0].ID != 2 {
		t.Fatalf("status filter: %+v", fallback)
	}

	limited, _ := rec.Logs(ctx, 3, ListQuery{Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("limit ignored: %d", len(limited))
	}
}

func TestMemoryStore_FinishMissing(t *testing.T) {
	store := NewMemoryStore()
	err := store.Finish(context.Background(), 99, models.LogOutcome{Status: models.LogStatusFailed})
	if !errors.Is(err, ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}
}
