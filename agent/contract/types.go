package contract

import (
	statex "github.com/ggonzalezcastro/inmo-sub001/agent/state"
)

type AgentType string

const (
	AgentTypeQualifier  AgentType = "qualifier"
	AgentTypeScheduler  AgentType = "scheduler"
	AgentTypeFollowUp   AgentType = "followup"
	AgentTypeSupervisor AgentType = "supervisor"
	AgentTypeSummarizer AgentType = "summarizer"
)

// Pipeline stages, the coarse business-process position of a lead. The CRM
// these conversations feed uses Spanish stage names.
const (
	StageEntrada                = "entrada"
	StagePerfilamiento          = "perfilamiento"
	StageCalificacionFinanciera = "calificacion_financiera"
	StageAgendado               = "agendado"
	StageSeguimiento            = "seguimiento"
	StageReferidos              = "referidos"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

// Reserved context-update keys. Everything else merges into LeadData.
const (
	KeyPipelineStage        = "pipeline_stage"
	KeyDataComplete         = "data_complete"
	KeyDisqualified         = "disqualified"
	KeyPreQualified         = "pre_qualified"
	KeyAppointmentConfirmed = "appointment_confirmed"
	KeyAppointmentPending   = "appointment_pending"
	KeyCreditStatus         = "credit_status"
)

// Credit-status signal values collected during qualification.
const (
	CreditClean   = "clean"
	CreditHasDebt = "has_debt"
	CreditUnknown = "unknown"
)

// AgentContext is the read-only snapshot handed to each turn. It is never
// mutated in place: every transformation returns a new value with merged
// fields, so no locking is needed around it.
type AgentContext struct {
	LeadID        string                   `json:"lead_id"`
	BrokerID      string                   `json:"broker_id"`
	PipelineStage string                   `json:"pipeline_stage"`
	State         statex.ConversationState `json:"conversation_state"`
	LeadData      map[string]any           `json:"lead_data,omitempty"`
	History       []Turn                   `json:"history,omitempty"`
	Summary       string                   `json:"summary,omitempty"`
	CurrentAgent  AgentType                `json:"current_agent,omitempty"`
	HandoffHops   int                      `json:"handoff_hops"`
}

// Clone returns a deep copy of the context.
func (c AgentContext) Clone() AgentContext {
	out := c
	if c.LeadData != nil {
		out.LeadData = make(map[string]any, len(c.LeadData))
		for k, v := range c.LeadData {
			out.LeadData[k] = v
		}
	}
	if c.History != nil {
		out.History = append([]Turn(nil), c.History...)
	}
	return out
}

// WithUpdates returns a copy of the context with updates merged in.
// "pipeline_stage" is reserved and moves the stage field; every other key
// lands in LeadData.
func (c AgentContext) WithUpdates(updates map[string]any) AgentContext {
	out := c.Clone()
	if len(updates) == 0 {
		return out
	}
	if out.LeadData == nil {
		out.LeadData = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		if k == KeyPipelineStage {
			if stage, ok := v.(string); ok && stage != "" {
				out.PipelineStage = stage
			}
			continue
		}
		out.LeadData[k] = v
	}
	return out
}

// WithAgent returns a copy of the context assigned to the given specialist.
func (c AgentContext) WithAgent(agent AgentType) AgentContext {
	out := c.Clone()
	out.CurrentAgent = agent
	return out
}

// WithState returns a copy of the context at the given conversation state.
func (c AgentContext) WithState(s statex.ConversationState) AgentContext {
	out := c.Clone()
	out.State = s
	return out
}

// FlagSet reports whether a lead-data key holds a true boolean.
func (c AgentContext) FlagSet(key string) bool {
	v, ok := c.LeadData[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// StringField returns a lead-data value as a string, or "" when absent.
func (c AgentContext) StringField(key string) string {
	v, ok := c.LeadData[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// HandoffSignal is a specialist's request to transfer the conversation.
// It is consumed exactly once by the supervisor; only the resulting context
// updates survive the turn.
type HandoffSignal struct {
	Target         AgentType      `json:"target_agent"`
	Reason         string         `json:"reason"`
	ContextUpdates map[string]any `json:"context_updates,omitempty"`
}

// ToolInvocation records one call a specialist made to an external
// collaborator while producing its reply.
type ToolInvocation struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Result any            `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// AgentResponse is the outcome of one processed turn. It is always
// constructible: model failures are absorbed into a graceful textual
// fallback, never surfaced to the lead.
type AgentResponse struct {
	Message         string           `json:"message"`
	Agent           AgentType        `json:"agent"`
	ContextUpdates  map[string]any   `json:"context_updates,omitempty"`
	Handoff         *HandoffSignal   `json:"handoff,omitempty"`
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`
	EndConversation bool             `json:"end_conversation,omitempty"`
}
