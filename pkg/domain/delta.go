package domain

import "time"

// Delta is the change set one committed step applies: messages to append,
// one executor entry to update, one routing record, and the resulting phase.
// Commit applies the whole delta atomically and increments Step by exactly
// one; there is no other way to mutate a conversation.
type Delta struct {
	// Messages to append to the transcript, in order.
	Messages []Message
	// Executor names the executor entry to update; empty for steps that
	// touch no executor (message intake, terminal actions).
	Executor string
	// Status is the executor's new status. Ignored when Executor is empty.
	Status ExecStatus
	// Scratch replaces the executor's scratch payload when non-nil.
	Scratch map[string]any
	// Failure is the failure detail recorded on the executor entry; empty
	// clears the previous one on success.
	Failure string
	// StartedAt, CompletedAt and DurationMS record run timing on the entry.
	StartedAt   time.Time
	CompletedAt time.Time
	DurationMS  int64
	// Routing appends one routing-history record, stamped with the step the
	// decision was computed against.
	Routing *RoutingRecord
	// Phase is the at-rest phase after this step; empty leaves it unchanged.
	Phase Phase
	// TurnID stamps the current turn; empty leaves it unchanged.
	TurnID string
	// Title renames the conversation when non-empty.
	Title string
	// Metadata merges keys into the conversation metadata, overwriting
	// existing entries key by key.
	Metadata map[string]any
}

// Apply produces the state after this step. The receiver state is not
// modified; stores call Apply on their own copy inside the commit critical
// section so a failed commit leaves nothing behind.
func (d Delta) Apply(c *ConversationState) *ConversationState {
	next := c.Clone()
	now := time.Now().UTC()
	next.Step = c.Step + 1
	next.UpdatedAt = now

	for _, m := range d.Messages {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		next.Messages = append(next.Messages, m)
	}

	if d.Executor != "" {
		es := next.Executors[d.Executor]
		if d.Status != "" {
			es.Status = d.Status
		}
		if d.Scratch != nil {
			es.Scratch = cloneAnyMap(d.Scratch)
		}
		es.LastError = d.Failure
		switch d.Status {
		case ExecFailed:
			es.Runs++
			es.Failures++
		case ExecCompleted:
			es.Runs++
			es.Failures = 0
		}
		if !d.StartedAt.IsZero() {
			es.StartedAt = d.StartedAt
		}
		if !d.CompletedAt.IsZero() {
			es.CompletedAt = d.CompletedAt
		}
		if d.DurationMS > 0 {
			es.DurationMS = d.DurationMS
		}
		next.Executors[d.Executor] = es
	}

	if d.TurnID != "" {
		next.TurnID = d.TurnID
	}

	if d.Routing != nil {
		rec := *d.Routing
		rec.Step = c.Step
		if rec.At.IsZero() {
			rec.At = now
		}
		if rec.TurnID == "" {
			rec.TurnID = next.TurnID
		}
		next.Routing = append(next.Routing, rec)
	}

	if d.Phase != "" {
		next.Phase = d.Phase
	}
	if d.Title != "" {
		next.Title = d.Title
	}
	if len(d.Metadata) > 0 {
		if next.Metadata == nil {
			next.Metadata = make(map[string]any, len(d.Metadata))
		}
		for k, v := range d.Metadata {
			next.Metadata[k] = v
		}
	}
	return next
}
