package specialists

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
	llmx "github.com/ggonzalezcastro/inmo-sub001/agent/llm"
	statex "github.com/ggonzalezcastro/inmo-sub001/agent/state"
	"github.com/ggonzalezcastro/inmo-sub001/pkg/calendar"
)

// CalendarService is the slice of the scheduling client the agent needs.
type CalendarService interface {
	Availability(ctx context.Context, brokerID string) ([]calendar.Slot, error)
	Book(ctx context.Context, slotID, leadID string) (calendar.Appointment, error)
}

// Scheduler negotiates a visit slot with a qualified lead using the
// broker's live availability.
type Scheduler struct {
	runner     compose.Runnable[map[string]any, llmReply]
	basePrompt string
	calendar   CalendarService
	breakers   *llmx.BreakerRegistry
}

var _ contractx.Specialist = (*Scheduler)(nil)

func NewScheduler(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
	cal CalendarService,
	breakers *llmx.BreakerRegistry,
) (*Scheduler, error) {
	if systemPrompt == "" {
		return nil, fmt.Errorf("%w: scheduler prompt is empty", contractx.ErrPromptMissing)
	}
	runner, err := compileReplyGraph(ctx, chatModel, "scheduler.reply_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile scheduler graph: %v", contractx.ErrModelInvoke, err)
	}
	if breakers == nil {
		breakers = llmx.NewBreakerRegistry()
	}
	return &Scheduler{runner: runner, basePrompt: systemPrompt, calendar: cal, breakers: breakers}, nil
}

func (s *Scheduler) Type() contractx.AgentType {
	return contractx.AgentTypeScheduler
}

func (s *Scheduler) SystemPrompt(actx contractx.AgentContext) string {
	return s.basePrompt + knownFieldsBlock(actx, requiredFields)
}

// ShouldHandle claims the financial-qualification stage and, when the stage
// carries no owner, the scheduling turns of a completed profile. Stages owned
// by another specialist are never claimed, whatever the persisted state says.
func (s *Scheduler) ShouldHandle(actx contractx.AgentContext) bool {
	if actx.FlagSet(contractx.KeyAppointmentPending) {
		return false
	}
	switch stageOwner(actx.PipelineStage) {
	case contractx.AgentTypeScheduler:
		return true
	case contractx.AgentTypeQualifier, contractx.AgentTypeFollowUp:
		return false
	}
	switch actx.State {
	case statex.StateScheduling:
		return true
	case statex.StateFinancialQualification:
		return actx.FlagSet(contractx.KeyDataComplete)
	}
	return false
}

func (s *Scheduler) Process(ctx context.Context, message string, actx contractx.AgentContext) (contractx.AgentResponse, error) {
	extra := map[string]any{}
	var invocations []contractx.ToolInvocation

	if slots, inv := s.fetchAvailability(ctx, actx); inv != nil {
		invocations = append(invocations, *inv)
		if len(slots) > 0 {
			extra["availability"] = formatSlots(slots)
		}
	}

	reply, err := invokeReply(ctx, s.runner, s.SystemPrompt(actx), message, actx, extra)
	if err != nil {
		log.Warn().Err(err).Str("lead_id", actx.LeadID).Msg("scheduler turn failed, replying with fallback")
		resp := fallbackResponse(s.Type())
		resp.ToolInvocations = invocations
		return resp, nil
	}

	updates := make(map[string]any, len(reply.ContextUpdates))
	for k, v := range reply.ContextUpdates {
		updates[k] = v
	}

	resp := contractx.AgentResponse{
		Message:         reply.Message,
		Agent:           s.Type(),
		ContextUpdates:  updates,
		ToolInvocations: invocations,
	}

	merged := actx.WithUpdates(updates)
	if merged.FlagSet(contractx.KeyDisqualified) {
		return resp, nil
	}

	// Confirmation needs both sides to agree: the model flags it and the
	// lead's own message reads as an acceptance.
	if merged.FlagSet(contractx.KeyAppointmentConfirmed) && leadAccepted(message) {
		if inv := s.bookSlot(ctx, actx, merged); inv != nil {
			resp.ToolInvocations = append(resp.ToolInvocations, *inv)
		}
		resp.Handoff = &contractx.HandoffSignal{
			Target: contractx.AgentTypeFollowUp,
			Reason: "appointment confirmed by lead",
			ContextUpdates: map[string]any{
				contractx.KeyPipelineStage:        contractx.StageAgendado,
				contractx.KeyAppointmentPending:   true,
				contractx.KeyAppointmentConfirmed: true,
			},
		}
	} else if merged.FlagSet(contractx.KeyAppointmentConfirmed) {
		// One-sided confirmation is optimism from the model, not a booking.
		delete(resp.ContextUpdates, contractx.KeyAppointmentConfirmed)
	}

	return resp, nil
}

func (s *Scheduler) ShouldHandoff(resp contractx.AgentResponse, actx contractx.AgentContext) *contractx.HandoffSignal {
	return resp.Handoff
}

// fetchAvailability pulls the broker's open slots through the calendar
// breaker. Failures degrade the turn, never break it.
func (s *Scheduler) fetchAvailability(ctx context.Context, actx contractx.AgentContext) ([]calendar.Slot, *contractx.ToolInvocation) {
	if s.calendar == nil || actx.BrokerID == "" {
		return nil, nil
	}

	inv := &contractx.ToolInvocation{
		Tool: "calendar.availability",
		Args: map[string]any{"broker_id": actx.BrokerID},
	}

	slots, err := llmx.Do(s.breakers, llmx.DependencyCalendar, func() ([]calendar.Slot, error) {
		return s.calendar.Availability(ctx, actx.BrokerID)
	})
	if err != nil {
		inv.Error = err.Error()
		log.Warn().Err(err).Str("broker_id", actx.BrokerID).Msg("calendar availability unavailable")
		return nil, inv
	}

	inv.Result = len(slots)
	return slots, inv
}

// bookSlot reserves the slot the model extracted, when it named one.
func (s *Scheduler) bookSlot(ctx context.Context, actx contractx.AgentContext, merged contractx.AgentContext) *contractx.ToolInvocation {
	slotID := merged.StringField("slot_id")
	if s.calendar == nil || slotID == "" {
		return nil
	}

	inv := &contractx.ToolInvocation{
		Tool: "calendar.book",
		Args: map[string]any{"slot_id": slotID, "lead_id": actx.LeadID},
	}

	appt, err := llmx.Do(s.breakers, llmx.DependencyCalendar, func() (calendar.Appointment, error) {
		return s.calendar.Book(ctx, slotID, actx.LeadID)
	})
	if err != nil {
		inv.Error = err.Error()
		log.Warn().Err(err).Str("slot_id", slotID).Msg("calendar booking failed, broker will confirm manually")
		return inv
	}

	inv.Result = appt.ID
	return inv
}

func formatSlots(slots []calendar.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, slot := range slots {
		out = append(out, fmt.Sprintf("%s (%s)", slot.Start.Format("Mon 02 Jan 15:04"), slot.ID))
	}
	return out
}

var acceptanceTokens = []string{
	"si", "sí", "claro", "perfecto", "de acuerdo", "confirmo",
	"me queda", "me parece", "va", "sale", "ok", "dale", "listo",
}

// leadAccepted is a conservative check that the lead's own words read as
// accepting a proposed slot. Punctuation is stripped before matching so
// "Sí." and "si," count, while words merely containing a token do not.
func leadAccepted(message string) bool {
	words := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return false
	}
	msg := " " + strings.Join(words, " ") + " "
	for _, token := range acceptanceTokens {
		if strings.Contains(msg, " "+token+" ") {
			return true
		}
	}
	return false
}
