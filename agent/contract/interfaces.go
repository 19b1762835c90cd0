package contract

import "context"

// Specialist is the contract every conversation agent implements.
//
// SystemPrompt and ShouldHandle are pure; Process is the only operation
// allowed to perform I/O, and it absorbs business-logic failures into a
// graceful AgentResponse instead of returning them.
type Specialist interface {
	Type() AgentType

	// SystemPrompt builds the model instruction set personalized with the
	// lead attributes collected so far.
	SystemPrompt(actx AgentContext) string

	// ShouldHandle reports whether this specialist owns the current turn.
	ShouldHandle(actx AgentContext) bool

	// Process turns one inbound message into one AgentResponse.
	Process(ctx context.Context, message string, actx AgentContext) (AgentResponse, error)

	// ShouldHandoff returns the handoff signal for the produced response,
	// or nil to keep the conversation. The default is to pass through
	// resp.Handoff unchanged.
	ShouldHandoff(resp AgentResponse, actx AgentContext) *HandoffSignal
}

// Registry exposes the specialists constructed at startup. InPriorityOrder
// returns them most-specific first (followup, scheduler, qualifier), the
// order the supervisor polls ownership in.
type Registry interface {
	Qualifier() Specialist
	Scheduler() Specialist
	FollowUp() Specialist
	InPriorityOrder() []Specialist
}

// MemoryStore persists compounding conversation summaries.
type MemoryStore interface {
	ReadSummary(ctx context.Context, leadID string) (string, error)
	WriteSummary(ctx context.Context, leadID string, summary string) error
}
