package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/droverlabs/drover/pkg/adapters/memory"
	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
	"github.com/droverlabs/drover/pkg/ports/tests"
)

func TestStoreContract(t *testing.T) {
	tests.ConversationStoreContractTest(t, func(t *testing.T) ports.ConversationStore {
		return memory.NewStore()
	})
}

func TestCheckpointContract(t *testing.T) {
	tests.CheckpointStoreContractTest(t, func(t *testing.T) ports.CheckpointStore {
		return memory.NewCheckpointStore()
	})
}

// Two writers racing the same expected step: exactly one commit wins, the
// loser gets a stale-write error carrying the real counter.
func TestCommitRaceSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if err := store.Create(ctx, domain.NewConversation("conv-1", "")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Commit(ctx, "conv-1", 0, domain.Delta{
				Messages: []domain.Message{{Role: domain.RoleAssistant, Text: "racer"}},
				Phase:    domain.PhaseRouting,
			})
		}(i)
	}
	wg.Wait()

	var wins, stales int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case domain.IsStaleWrite(err):
			stales++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
	if stales != writers-1 {
		t.Fatalf("stales = %d, want %d", stales, writers-1)
	}

	state, err := store.Get(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Step != 1 || state.MessageCount() != 1 {
		t.Fatalf("state after race: step %d, %d messages; want 1/1", state.Step, state.MessageCount())
	}
}
