package specialists

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
	statex "github.com/ggonzalezcastro/inmo-sub001/agent/state"
)

// requiredFields are the lead attributes that must be collected before the
// conversation moves to scheduling.
var requiredFields = []string{"name", "phone", "budget", "zone"}

// Qualifier greets new leads, collects the required profile fields and runs
// the financial gate before handing the conversation to the scheduler.
type Qualifier struct {
	runner     compose.Runnable[map[string]any, llmReply]
	basePrompt string
}

var _ contractx.Specialist = (*Qualifier)(nil)

func NewQualifier(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
) (*Qualifier, error) {
	if systemPrompt == "" {
		return nil, fmt.Errorf("%w: qualifier prompt is empty", contractx.ErrPromptMissing)
	}
	runner, err := compileReplyGraph(ctx, chatModel, "qualifier.reply_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile qualifier graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Qualifier{runner: runner, basePrompt: systemPrompt}, nil
}

func (q *Qualifier) Type() contractx.AgentType {
	return contractx.AgentTypeQualifier
}

func (q *Qualifier) SystemPrompt(actx contractx.AgentContext) string {
	return q.basePrompt + knownFieldsBlock(actx, requiredFields)
}

// ShouldHandle claims the intake and profiling stages regardless of the
// persisted conversation state, every unassigned lead, and the early states
// until the profile is complete.
func (q *Qualifier) ShouldHandle(actx contractx.AgentContext) bool {
	if actx.FlagSet(contractx.KeyAppointmentPending) {
		return false
	}
	switch stageOwner(actx.PipelineStage) {
	case contractx.AgentTypeQualifier:
		return true
	case contractx.AgentTypeFollowUp:
		return false
	case contractx.AgentTypeScheduler:
		return !actx.FlagSet(contractx.KeyDataComplete)
	}
	if actx.CurrentAgent == "" {
		return true
	}
	switch actx.State {
	case statex.StateGreeting, statex.StateInterestCheck, statex.StateDataCollection:
		return true
	case statex.StateFinancialQualification:
		return !actx.FlagSet(contractx.KeyDataComplete)
	}
	return false
}

func (q *Qualifier) Process(ctx context.Context, message string, actx contractx.AgentContext) (contractx.AgentResponse, error) {
	reply, err := invokeReply(ctx, q.runner, q.SystemPrompt(actx), message, actx, nil)
	if err != nil {
		log.Warn().Err(err).Str("lead_id", actx.LeadID).Msg("qualifier turn failed, replying with fallback")
		return fallbackResponse(q.Type()), nil
	}

	updates := q.mergeFieldUpdates(actx, reply.ContextUpdates)
	merged := actx.WithUpdates(updates)

	resp := contractx.AgentResponse{
		Message:        reply.Message,
		Agent:          q.Type(),
		ContextUpdates: updates,
	}

	if merged.FlagSet(contractx.KeyDisqualified) {
		return resp, nil
	}
	if merged.StringField(contractx.KeyCreditStatus) == contractx.CreditHasDebt {
		resp.ContextUpdates[contractx.KeyDisqualified] = true
		return resp, nil
	}

	if q.profileComplete(merged) {
		resp.ContextUpdates[contractx.KeyDataComplete] = true
		resp.Handoff = &contractx.HandoffSignal{
			Target: contractx.AgentTypeScheduler,
			Reason: "profile complete and credit gate passed",
			ContextUpdates: map[string]any{
				contractx.KeyPipelineStage: contractx.StageCalificacionFinanciera,
				contractx.KeyDataComplete:  true,
			},
		}
	}

	return resp, nil
}

func (q *Qualifier) ShouldHandoff(resp contractx.AgentResponse, actx contractx.AgentContext) *contractx.HandoffSignal {
	return resp.Handoff
}

// mergeFieldUpdates keeps profile collection idempotent: a required field
// already present in the context is never overwritten by a later extraction.
func (q *Qualifier) mergeFieldUpdates(actx contractx.AgentContext, updates map[string]any) map[string]any {
	out := make(map[string]any, len(updates))
	for k, v := range updates {
		if isRequiredField(k) && fieldValue(actx, k) != "" {
			continue
		}
		out[k] = v
	}
	return out
}

func (q *Qualifier) profileComplete(actx contractx.AgentContext) bool {
	for _, field := range requiredFields {
		if fieldValue(actx, field) == "" {
			return false
		}
	}
	return true
}

func isRequiredField(key string) bool {
	for _, field := range requiredFields {
		if field == key {
			return true
		}
	}
	return false
}
