// Package tests provides reusable contract suites for ports implementations.
// Adapter packages call these from their own tests so every store honors the
// same commit and checkpoint semantics.
package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// ConversationStoreContractTest verifies an adapter complies with
// ports.ConversationStore. The factory must return an empty store.
func ConversationStoreContractTest(t *testing.T, factory func(t *testing.T) ports.ConversationStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		store := factory(t)
		state := domain.NewConversation("conv-1", "user-1")
		if err := store.Create(ctx, state); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := store.Get(ctx, "conv-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ID != "conv-1" || got.UserID != "user-1" || got.Step != 0 {
			t.Errorf("unexpected state: %+v", got)
		}
		if got.Phase != domain.PhaseAwaitingInput {
			t.Errorf("Phase = %q, want %q", got.Phase, domain.PhaseAwaitingInput)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		store := factory(t)
		if err := store.Create(ctx, domain.NewConversation("conv-1", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		err := store.Create(ctx, domain.NewConversation("conv-1", ""))
		if !errors.Is(err, domain.ErrConversationExists) {
			t.Errorf("Create duplicate = %v, want ErrConversationExists", err)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		store := factory(t)
		_, err := store.Get(ctx, "missing")
		if !errors.Is(err, domain.ErrConversationNotFound) {
			t.Errorf("Get missing = %v, want ErrConversationNotFound", err)
		}
	})

	t.Run("CommitAdvancesStep", func(t *testing.T) {
		store := factory(t)
		if err := store.Create(ctx, domain.NewConversation("conv-1", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}

		next, err := store.Commit(ctx, "conv-1", 0, domain.Delta{
			Messages: []domain.Message{{Role: domain.RoleUser, Text: "hello"}},
			Phase:    domain.PhaseRouting,
		})
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if next.Step != 1 {
			t.Errorf("Step = %d, want 1", next.Step)
		}
		if next.MessageCount() != 1 {
			t.Errorf("MessageCount = %d, want 1", next.MessageCount())
		}

		got, err := store.Get(ctx, "conv-1")
		if err != nil {
			t.Fatalf("Get after commit: %v", err)
		}
		if got.Step != 1 || got.Phase != domain.PhaseRouting {
			t.Errorf("persisted state = step %d phase %q", got.Step, got.Phase)
		}
	})

	t.Run("CommitStaleStep", func(t *testing.T) {
		store := factory(t)
		if err := store.Create(ctx, domain.NewConversation("conv-1", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := store.Commit(ctx, "conv-1", 0, domain.Delta{Phase: domain.PhaseRouting}); err != nil {
			t.Fatalf("Commit: %v", err)
		}

		// second writer still believes the counter is 0
		_, err := store.Commit(ctx, "conv-1", 0, domain.Delta{
			Messages: []domain.Message{{Role: domain.RoleAssistant, Text: "late"}},
		})
		var stale *domain.StaleWriteError
		if !errors.As(err, &stale) {
			t.Fatalf("Commit stale = %v, want *StaleWriteError", err)
		}
		if stale.ExpectedStep != 0 || stale.ActualStep != 1 {
			t.Errorf("stale = expected %d actual %d, want 0/1", stale.ExpectedStep, stale.ActualStep)
		}

		// the losing delta must leave no trace
		got, err := store.Get(ctx, "conv-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Step != 1 || got.MessageCount() != 0 {
			t.Errorf("stale commit left effects: step %d, %d messages", got.Step, got.MessageCount())
		}
	})

	t.Run("CommitNotFound", func(t *testing.T) {
		store := factory(t)
		_, err := store.Commit(ctx, "missing", 0, domain.Delta{Phase: domain.PhaseRouting})
		if !errors.Is(err, domain.ErrConversationNotFound) {
			t.Errorf("Commit missing = %v, want ErrConversationNotFound", err)
		}
	})

	t.Run("DefensiveCopies", func(t *testing.T) {
		store := factory(t)
		seed := domain.NewConversation("conv-1", "")
		if err := store.Create(ctx, seed); err != nil {
			t.Fatalf("Create: %v", err)
		}
		// mutating the seed after Create must not reach the store
		seed.Title = "mutated"
		seed.Executors[domain.ExecutorAnalysis] = domain.ExecutorState{Status: domain.ExecFailed}

		got, err := store.Get(ctx, "conv-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Title != domain.DefaultTitle || len(got.Executors) != 0 {
			t.Error("store shares memory with caller-owned state")
		}

		// mutating a returned state must not reach the store either
		got.Messages = append(got.Messages, domain.Message{Role: domain.RoleUser, Text: "x"})
		again, err := store.Get(ctx, "conv-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if again.MessageCount() != 0 {
			t.Error("mutation of returned state leaked into store")
		}
	})

	t.Run("ListMostRecentFirst", func(t *testing.T) {
		store := factory(t)
		for _, id := range []string{"conv-a", "conv-b", "conv-c"} {
			if err := store.Create(ctx, domain.NewConversation(id, "")); err != nil {
				t.Fatalf("Create %s: %v", id, err)
			}
			time.Sleep(5 * time.Millisecond)
		}
		// touching conv-a makes it the most recent
		if _, err := store.Commit(ctx, "conv-a", 0, domain.Delta{Phase: domain.PhaseRouting}); err != nil {
			t.Fatalf("Commit: %v", err)
		}

		summaries, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(summaries) != 3 {
			t.Fatalf("len(List) = %d, want 3", len(summaries))
		}
		if summaries[0].ID != "conv-a" {
			t.Errorf("List[0] = %s, want conv-a", summaries[0].ID)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		store := factory(t)
		if err := store.Create(ctx, domain.NewConversation("conv-1", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Delete(ctx, "conv-1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := store.Get(ctx, "conv-1"); !errors.Is(err, domain.ErrConversationNotFound) {
			t.Errorf("Get after delete = %v, want ErrConversationNotFound", err)
		}
		if err := store.Delete(ctx, "conv-1"); !errors.Is(err, domain.ErrConversationNotFound) {
			t.Errorf("Delete missing = %v, want ErrConversationNotFound", err)
		}
	})
}

// CheckpointStoreContractTest verifies an adapter complies with
// ports.CheckpointStore.
func CheckpointStoreContractTest(t *testing.T, factory func(t *testing.T) ports.CheckpointStore) {
	t.Helper()
	ctx := context.Background()

	snapshot := func(id string, step uint64) *domain.Checkpoint {
		state := domain.NewConversation(id, "")
		state.Step = step
		state.Phase = domain.PhaseRouting
		return domain.NewCheckpoint(state)
	}

	t.Run("SaveAndLatest", func(t *testing.T) {
		store := factory(t)
		for step := uint64(1); step <= 3; step++ {
			if err := store.Save(ctx, snapshot("conv-1", step)); err != nil {
				t.Fatalf("Save step %d: %v", step, err)
			}
		}

		latest, err := store.Latest(ctx, "conv-1")
		if err != nil {
			t.Fatalf("Latest: %v", err)
		}
		if latest.Step != 3 {
			t.Errorf("Latest.Step = %d, want 3", latest.Step)
		}
		if latest.State == nil || latest.State.Step != 3 {
			t.Error("Latest carries no usable state snapshot")
		}
	})

	t.Run("SaveIdempotent", func(t *testing.T) {
		store := factory(t)
		cp := snapshot("conv-1", 2)
		if err := store.Save(ctx, cp); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := store.Save(ctx, snapshot("conv-1", 2)); err != nil {
			t.Fatalf("Save duplicate step: %v", err)
		}

		all, err := store.List(ctx, "conv-1")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("len(List) = %d after duplicate save, want 1", len(all))
		}
	})

	t.Run("LatestNone", func(t *testing.T) {
		store := factory(t)
		_, err := store.Latest(ctx, "missing")
		if !errors.Is(err, domain.ErrNoCheckpoint) {
			t.Errorf("Latest missing = %v, want ErrNoCheckpoint", err)
		}
	})

	t.Run("ListAscending", func(t *testing.T) {
		store := factory(t)
		for _, step := range []uint64{3, 1, 2} {
			if err := store.Save(ctx, snapshot("conv-1", step)); err != nil {
				t.Fatalf("Save: %v", err)
			}
		}
		all, err := store.List(ctx, "conv-1")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("len(List) = %d, want 3", len(all))
		}
		for i, cp := range all {
			if cp.Step != uint64(i+1) {
				t.Errorf("List[%d].Step = %d, want %d", i, cp.Step, i+1)
			}
		}
	})

	t.Run("PurgeAndIsolation", func(t *testing.T) {
		store := factory(t)
		if err := store.Save(ctx, snapshot("conv-1", 1)); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := store.Save(ctx, snapshot("conv-2", 1)); err != nil {
			t.Fatalf("Save: %v", err)
		}

		if err := store.Purge(ctx, "conv-1"); err != nil {
			t.Fatalf("Purge: %v", err)
		}
		if _, err := store.Latest(ctx, "conv-1"); !errors.Is(err, domain.ErrNoCheckpoint) {
			t.Errorf("Latest after purge = %v, want ErrNoCheckpoint", err)
		}
		if _, err := store.Latest(ctx, "conv-2"); err != nil {
			t.Errorf("Purge removed another conversation's checkpoints: %v", err)
		}
	})
}
