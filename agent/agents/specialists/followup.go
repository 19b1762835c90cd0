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

// FollowUp nurtures the lead after an appointment is booked: reminders,
// post-visit check-ins and the referral ask.
type FollowUp struct {
	runner     compose.Runnable[map[string]any, llmReply]
	basePrompt string
}

var _ contractx.Specialist = (*FollowUp)(nil)

func NewFollowUp(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
) (*FollowUp, error) {
	if systemPrompt == "" {
		return nil, fmt.Errorf("%w: followup prompt is empty", contractx.ErrPromptMissing)
	}
	runner, err := compileReplyGraph(ctx, chatModel, "followup.reply_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile followup graph: %v", contractx.ErrModelInvoke, err)
	}
	return &FollowUp{runner: runner, basePrompt: systemPrompt}, nil
}

func (f *FollowUp) Type() contractx.AgentType {
	return contractx.AgentTypeFollowUp
}

func (f *FollowUp) SystemPrompt(actx contractx.AgentContext) string {
	return f.basePrompt + knownFieldsBlock(actx, requiredFields)
}

// ShouldHandle claims every turn after an appointment exists and the late
// pipeline stages. A completed conversation still belongs to an earlier
// specialist while the stage says the lead never got past it.
func (f *FollowUp) ShouldHandle(actx contractx.AgentContext) bool {
	if actx.FlagSet(contractx.KeyAppointmentPending) {
		return true
	}
	switch stageOwner(actx.PipelineStage) {
	case contractx.AgentTypeFollowUp:
		return true
	case contractx.AgentTypeQualifier, contractx.AgentTypeScheduler:
		return false
	}
	return actx.State == statex.StateCompleted
}

func (f *FollowUp) Process(ctx context.Context, message string, actx contractx.AgentContext) (contractx.AgentResponse, error) {
	reply, err := invokeReply(ctx, f.runner, f.SystemPrompt(actx), message, actx, nil)
	if err != nil {
		log.Warn().Err(err).Str("lead_id", actx.LeadID).Msg("followup turn failed, replying with fallback")
		return fallbackResponse(f.Type()), nil
	}

	return contractx.AgentResponse{
		Message:         reply.Message,
		Agent:           f.Type(),
		ContextUpdates:  reply.ContextUpdates,
		EndConversation: reply.EndConversation,
	}, nil
}

// ShouldHandoff never transfers: the follow-up agent is the end of the
// pipeline.
func (f *FollowUp) ShouldHandoff(resp contractx.AgentResponse, actx contractx.AgentContext) *contractx.HandoffSignal {
	return nil
}
