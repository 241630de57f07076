package file_test

import (
	"context"
	"strings"
	"testing"

	"github.com/droverlabs/drover/pkg/adapters/file"
	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
	"github.com/droverlabs/drover/pkg/ports/tests"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationStoreContract(t *testing.T) {
	tests.ConversationStoreContractTest(t, func(t *testing.T) ports.ConversationStore {
		return file.NewStore("state", file.WithFs(afero.NewMemMapFs()))
	})
}

func TestCheckpointStoreContract(t *testing.T) {
	tests.CheckpointStoreContractTest(t, func(t *testing.T) ports.CheckpointStore {
		return file.NewCheckpointStore("state", file.WithFs(afero.NewMemMapFs()))
	})
}

// A second store over the same filesystem must see everything the first one
// wrote. This is what the file backend exists for.
func TestStateSurvivesReopen(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := context.Background()

	store := file.NewStore("state", file.WithFs(fs))
	require.NoError(t, store.Create(ctx, domain.NewConversation("conv-1", "user-1")))
	_, err := store.Commit(ctx, "conv-1", 0, domain.Delta{
		Messages: []domain.Message{{Role: domain.RoleUser, Text: "hello"}},
		Phase:    domain.PhaseRouting,
	})
	require.NoError(t, err)

	reopened := file.NewStore("state", file.WithFs(fs))
	state, err := reopened.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), state.Step)
	assert.Equal(t, domain.PhaseRouting, state.Phase)
	assert.Equal(t, 1, state.MessageCount())
}

func TestFilesAreInspectable(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := context.Background()

	store := file.NewStore("state", file.WithFs(fs))
	require.NoError(t, store.Create(ctx, domain.NewConversation("conv-1", "")))

	data, err := afero.ReadFile(fs, "state/conversations/conv-1.json")
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "{\n"), "state files should be indented JSON")
	assert.Contains(t, text, `"phase": "awaiting_input"`)
}

func TestListIgnoresStrayFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := context.Background()

	store := file.NewStore("state", file.WithFs(fs))
	require.NoError(t, store.Create(ctx, domain.NewConversation("conv-1", "")))
	require.NoError(t, afero.WriteFile(fs, "state/conversations/.tmp-leftover", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "state/conversations/notes.txt", []byte("x"), 0o644))

	summaries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "conv-1", summaries[0].ID)
}

func TestCheckpointFilesOrderedByName(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := context.Background()

	cps := file.NewCheckpointStore("state", file.WithFs(fs))
	for _, step := range []uint64{12, 3} {
		state := domain.NewConversation("conv-1", "")
		state.Step = step
		require.NoError(t, cps.Save(ctx, domain.NewCheckpoint(state)))
	}

	// Zero padding keeps lexical and numeric order identical.
	for _, name := range []string{"000003.json", "000012.json"} {
		exists, err := afero.Exists(fs, "state/checkpoints/conv-1/"+name)
		require.NoError(t, err)
		assert.True(t, exists, "expected %s", name)
	}
}
