// Package supervisor routes every inbound lead message to the right
// specialist and advances the conversation state machine once per turn.
package supervisor

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
	llmx "github.com/ggonzalezcastro/inmo-sub001/agent/llm"
	statex "github.com/ggonzalezcastro/inmo-sub001/agent/state"
)

// staticFallback is the reply used when even the selected specialist could
// not produce one.
const staticFallback = "Gracias por tu mensaje. En un momento te atendemos."

// defaultMaxHops bounds consecutive handoffs so two specialists can never
// pass a lead back and forth indefinitely.
const defaultMaxHops = 3

// Compressor folds older history into the running summary.
type Compressor interface {
	Compress(ctx context.Context, history []contractx.Turn, priorSummary string) (string, []contractx.Turn)
}

type Config struct {
	MaxHops int `envconfig:"MAX_HOPS" split_words:"true" default:"3"`
}

// Supervisor is the single entry point for a conversation turn.
type Supervisor struct {
	registry   contractx.Registry
	compressor Compressor
	breakers   *llmx.BreakerRegistry
	maxHops    int

	graphRunner compose.Runnable[GraphInput, GraphOutput]
}

func New(
	registry contractx.Registry,
	compressor Compressor,
	breakers *llmx.BreakerRegistry,
	cfg Config,
) (*Supervisor, error) {
	if registry == nil {
		return nil, errors.New("specialist registry is required")
	}
	if breakers == nil {
		breakers = llmx.NewBreakerRegistry()
	}
	maxHops := cfg.MaxHops
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}

	s := &Supervisor{
		registry:   registry,
		compressor: compressor,
		breakers:   breakers,
		maxHops:    maxHops,
	}

	graphRunner, err := s.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	s.graphRunner = graphRunner

	return s, nil
}

// Process handles one inbound message and returns the reply together with
// the context the caller should persist for the next turn.
func (s *Supervisor) Process(ctx context.Context, message string, actx contractx.AgentContext) (contractx.AgentResponse, contractx.AgentContext, error) {
	out, err := s.graphRunner.Invoke(ctx, GraphInput{
		Message: message,
		Context: actx,
	})
	if err != nil {
		return contractx.AgentResponse{}, actx, err
	}
	return out.Response, out.Context, nil
}

// Health reports the circuit state of every external dependency.
func (s *Supervisor) Health() map[string]string {
	return s.breakers.States()
}

// normalizeContext fills the zero values a fresh conversation starts with.
func normalizeContext(actx contractx.AgentContext) contractx.AgentContext {
	out := actx.Clone()
	if !out.State.Valid() {
		out.State = statex.StateGreeting
	}
	if out.PipelineStage == "" {
		out.PipelineStage = contractx.StageEntrada
	}
	if out.LeadData == nil {
		out.LeadData = map[string]any{}
	}
	return out
}

// selectAgent keeps the conversation sticky to its current owner and falls
// back to a priority poll, then to the qualifier.
func (s *Supervisor) selectAgent(actx contractx.AgentContext) contractx.Specialist {
	if actx.CurrentAgent != "" {
		for _, spec := range s.registry.InPriorityOrder() {
			if spec.Type() == actx.CurrentAgent && spec.ShouldHandle(actx) {
				return spec
			}
		}
	}
	for _, spec := range s.registry.InPriorityOrder() {
		if spec.ShouldHandle(actx) {
			return spec
		}
	}
	log.Warn().
		Str("lead_id", actx.LeadID).
		Str("state", string(actx.State)).
		Str("stage", actx.PipelineStage).
		Msg("no specialist claimed the turn, defaulting to qualifier")
	return s.registry.Qualifier()
}

// signalsFrom derives the turn's state-machine signals from the merged
// context flags.
func signalsFrom(actx contractx.AgentContext) statex.Signals {
	return statex.Signals{
		DataComplete:         actx.FlagSet(contractx.KeyDataComplete),
		Disqualified:         actx.FlagSet(contractx.KeyDisqualified),
		AppointmentConfirmed: actx.FlagSet(contractx.KeyAppointmentConfirmed),
		PreQualified:         actx.FlagSet(contractx.KeyPreQualified),
	}
}
