// Package specialists implements the conversation agents that handle lead
// qualification, appointment scheduling and post-appointment follow-up.
package specialists

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
)

// fallbackMessage is what the lead sees when a model call could not be
// completed. Business failures never surface as errors to the lead.
const fallbackMessage = "Disculpa, tuve un detalle tecnico. Dame un momento y te respondo enseguida."

// historyWindow caps the verbatim turns included in the model payload.
const historyWindow = 12

// invokeReply renders the payload for one turn and runs it through the
// specialist's reply graph.
func invokeReply(
	ctx context.Context,
	runner compose.Runnable[map[string]any, llmReply],
	systemPrompt string,
	message string,
	actx contractx.AgentContext,
	extra map[string]any,
) (llmReply, error) {
	payload := map[string]any{
		"user_message":   message,
		"pipeline_stage": actx.PipelineStage,
		"lead_data":      actx.LeadData,
		"summary":        actx.Summary,
		"history":        recentHistory(actx.History),
	}
	for k, v := range extra {
		payload[k] = v
	}

	input, err := json.Marshal(payload)
	if err != nil {
		return llmReply{}, fmt.Errorf("%w: marshal specialist payload: %v", contractx.ErrValidation, err)
	}

	out, err := runner.Invoke(ctx, map[string]any{
		"system": systemPrompt,
		"input":  string(input),
	})
	if err != nil {
		return llmReply{}, fmt.Errorf("%w: specialist invoke: %v", contractx.ErrModelInvoke, err)
	}

	if strings.TrimSpace(out.Message) == "" {
		return llmReply{}, fmt.Errorf("%w: specialist message is empty", contractx.ErrSchemaViolation)
	}
	out.Message = strings.TrimSpace(out.Message)
	return out, nil
}

func recentHistory(history []contractx.Turn) []contractx.Turn {
	if len(history) <= historyWindow {
		return history
	}
	return history[len(history)-historyWindow:]
}

// stageOwner maps a pipeline stage to the specialist that owns it. Unknown
// stages carry no owner and leave the decision to conversation state.
func stageOwner(stage string) contractx.AgentType {
	switch stage {
	case contractx.StageEntrada, contractx.StagePerfilamiento:
		return contractx.AgentTypeQualifier
	case contractx.StageCalificacionFinanciera:
		return contractx.AgentTypeScheduler
	case contractx.StageAgendado, contractx.StageSeguimiento, contractx.StageReferidos:
		return contractx.AgentTypeFollowUp
	}
	return ""
}

// fallbackResponse is the graceful reply used when a turn cannot be
// completed against the model.
func fallbackResponse(agent contractx.AgentType) contractx.AgentResponse {
	return contractx.AgentResponse{
		Message: fallbackMessage,
		Agent:   agent,
	}
}

// knownFieldsBlock renders the already-collected lead attributes for the
// system prompt so the model never re-asks for them.
func knownFieldsBlock(actx contractx.AgentContext, fields []string) string {
	var sb strings.Builder
	sb.WriteString("\n\nDatos ya recopilados del prospecto:\n")
	missing := make([]string, 0, len(fields))
	for _, field := range fields {
		if v := fieldValue(actx, field); v != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", field, v)
		} else {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sb.WriteString("Datos faltantes: ")
		sb.WriteString(strings.Join(missing, ", "))
		sb.WriteString("\n")
	}
	return sb.String()
}

// fieldValue renders a lead-data value as text; numbers collected by the
// model may arrive as float64.
func fieldValue(actx contractx.AgentContext, key string) string {
	v, ok := actx.LeadData[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", t), "0"), ".")
	case int:
		return fmt.Sprintf("%d", t)
	case bool:
		if t {
			return "si"
		}
		return "no"
	default:
		return fmt.Sprintf("%v", t)
	}
}
