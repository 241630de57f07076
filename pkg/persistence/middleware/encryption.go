package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// envelopeKey is the metadata key carrying the ciphertext in stored
// envelopes.
const envelopeKey = "__encrypted__"

// envelopeTitle replaces the real title at rest; titles derive from user
// messages and are content too.
const envelopeTitle = "encrypted"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new data. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are older keys tried when decryption with the active key
	// fails. This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.ConversationStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that stores conversations as
// AES-GCM envelopes. The envelope keeps the step counter and phase in the
// clear, so compare-and-swap commits and monitoring work against the inner
// store unchanged, while the transcript, scratch payloads, and title travel
// encrypted.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.ConversationStore) ports.ConversationStore {
		return &encryptionMiddleware{next: next, config: config}
	}
}

func (m *encryptionMiddleware) Create(ctx context.Context, state *domain.ConversationState) error {
	sealed, err := seal(state, m.config.ActiveKey)
	if err != nil {
		return err
	}

	envelope := domain.NewConversation(state.ID, "")
	envelope.Title = envelopeTitle
	envelope.Step = state.Step
	envelope.Phase = state.Phase
	envelope.CreatedAt = state.CreatedAt
	envelope.UpdatedAt = state.UpdatedAt
	envelope.Metadata = map[string]any{envelopeKey: sealed}
	return m.next.Create(ctx, envelope)
}

func (m *encryptionMiddleware) Get(ctx context.Context, id string) (*domain.ConversationState, error) {
	envelope, err := m.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

// Commit applies the delta to the decrypted state, then swaps the new
// ciphertext into the envelope under the same step CAS. Envelope and real
// state advance in lockstep (both move by exactly one per commit), so the
// inner store's stale detection carries over untouched.
func (m *encryptionMiddleware) Commit(ctx context.Context, id string, expectedStep uint64, delta domain.Delta) (*domain.ConversationState, error) {
	current, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Step != expectedStep {
		return nil, &domain.StaleWriteError{
			ConversationID: id,
			ExpectedStep:   expectedStep,
			ActualStep:     current.Step,
		}
	}

	next := delta.Apply(current)
	sealed, err := seal(next, m.config.ActiveKey)
	if err != nil {
		return nil, err
	}

	_, err = m.next.Commit(ctx, id, expectedStep, domain.Delta{
		Phase:    next.Phase,
		Metadata: map[string]any{envelopeKey: sealed},
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// List returns the envelope summaries: id, phase, and step are real, while
// title and message count stay hidden.
func (m *encryptionMiddleware) List(ctx context.Context) ([]ports.ConversationSummary, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *encryptionMiddleware) open(envelope *domain.ConversationState) (*domain.ConversationState, error) {
	sealed, ok := envelope.Metadata[envelopeKey].(string)
	if !ok {
		// Fail secure: with encryption configured, a plain state at rest is
		// a misconfiguration, not something to pass through.
		return nil, errors.New("stored conversation is missing its encryption envelope")
	}

	var state domain.ConversationState
	if err := unseal(sealed, &state, m.config.ActiveKey, m.config.FallbackKeys); err != nil {
		return nil, err
	}
	return &state, nil
}

type checkpointEncryption struct {
	next   ports.CheckpointStore
	config EncryptionConfig
}

// NewCheckpointEncryptionMiddleware encrypts the state snapshot inside each
// checkpoint, keeping conversation id and step clear for indexing.
func NewCheckpointEncryptionMiddleware(config EncryptionConfig) CheckpointMiddleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &checkpointEncryption{next: next, config: config}
	}
}

func (m *checkpointEncryption) Save(ctx context.Context, checkpoint *domain.Checkpoint) error {
	sealed, err := seal(checkpoint.State, m.config.ActiveKey)
	if err != nil {
		return err
	}

	stub := domain.NewConversation(checkpoint.ConversationID, "")
	stub.Title = envelopeTitle
	stub.Step = checkpoint.Step
	stub.Metadata = map[string]any{envelopeKey: sealed}
	return m.next.Save(ctx, &domain.Checkpoint{
		ConversationID: checkpoint.ConversationID,
		Step:           checkpoint.Step,
		State:          stub,
		TakenAt:        checkpoint.TakenAt,
	})
}

func (m *checkpointEncryption) Latest(ctx context.Context, conversationID string) (*domain.Checkpoint, error) {
	cp, err := m.next.Latest(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return m.open(cp)
}

func (m *checkpointEncryption) List(ctx context.Context, conversationID string) ([]*domain.Checkpoint, error) {
	envelopes, err := m.next.List(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Checkpoint, 0, len(envelopes))
	for _, cp := range envelopes {
		opened, err := m.open(cp)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	return out, nil
}

func (m *checkpointEncryption) Purge(ctx context.Context, conversationID string) error {
	return m.next.Purge(ctx, conversationID)
}

func (m *checkpointEncryption) open(envelope *domain.Checkpoint) (*domain.Checkpoint, error) {
	if envelope.State == nil {
		return nil, errors.New("stored checkpoint is missing its encryption envelope")
	}
	sealed, ok := envelope.State.Metadata[envelopeKey].(string)
	if !ok {
		return nil, errors.New("stored checkpoint is missing its encryption envelope")
	}

	var state domain.ConversationState
	if err := unseal(sealed, &state, m.config.ActiveKey, m.config.FallbackKeys); err != nil {
		return nil, err
	}
	return &domain.Checkpoint{
		ConversationID: envelope.ConversationID,
		Step:           envelope.Step,
		State:          &state,
		TakenAt:        envelope.TakenAt,
	}, nil
}

// seal marshals and encrypts a state, returning the base64 envelope payload.
func seal(state *domain.ConversationState, key []byte) (string, error) {
	plaintext, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	ciphertext, err := encrypt(plaintext, key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt state: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// unseal decodes and decrypts an envelope payload into out, trying the
// active key first and then each fallback.
func unseal(sealed string, out *domain.ConversationState, activeKey []byte, fallbackKeys [][]byte) error {
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plaintext, err := decryptWithRotation(ciphertext, activeKey, fallbackKeys)
	if err != nil {
		return fmt.Errorf("failed to decrypt state: %w", err)
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("failed to unmarshal decrypted state: %w", err)
	}
	return nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
