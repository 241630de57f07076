package supervisor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/droverlabs/drover/pkg/adapters/memory"
	"github.com/droverlabs/drover/pkg/supervisor"
)

// TestNoGoroutineLeaks runs a full engine lifecycle (turns, an event
// subscriber, shutdown) and verifies every goroutine it started is gone
// afterwards.
func TestNoGoroutineLeaks(t *testing.T) {
	defer goleak.VerifyNone(t)

	sup, _ := engineOn(t, memory.NewStore())

	result, err := sup.Handle(context.Background(), supervisor.TurnRequest{
		Message: "Load the sales data",
		UserID:  "leak-check",
	})
	require.NoError(t, err)
	require.NoError(t, result.Err)

	events, cancel := sup.Events().Subscribe(result.ConversationID)

	_, err = sup.Handle(context.Background(), supervisor.TurnRequest{
		ConversationID: result.ConversationID,
		Message:        "Analyze it",
	})
	require.NoError(t, err)

	cancel()
	for range events {
		// drain until the cancelled subscription closes the channel
	}

	sup.Close()
}
