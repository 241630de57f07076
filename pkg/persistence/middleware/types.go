// Package middleware provides wrappers around the persistence ports that add
// at-rest behavior: AES-GCM encryption with key rotation and masking of
// sensitive payload keys. Middlewares compose; when combining both, mask
// outside and encrypt inside so the masker sees plaintext:
//
//	store := middleware.NewPIIMiddleware(patterns)(
//		middleware.NewEncryptionMiddleware(cfg)(inner))
package middleware

import "github.com/droverlabs/drover/pkg/ports"

// Middleware wraps a ConversationStore to add behavior.
type Middleware func(ports.ConversationStore) ports.ConversationStore

// CheckpointMiddleware wraps a CheckpointStore to add behavior.
type CheckpointMiddleware func(ports.CheckpointStore) ports.CheckpointStore
