package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
	statex "github.com/ggonzalezcastro/inmo-sub001/agent/state"
)

type GraphInput struct {
	Message string
	Context contractx.AgentContext
}

type GraphOutput struct {
	Response contractx.AgentResponse
	Context  contractx.AgentContext
}

type graphState struct {
	Message string
	Ctx     contractx.AgentContext
	Agent   contractx.Specialist
	Resp    contractx.AgentResponse
}

func (s *Supervisor) compileTurnGraph(
	ctx context.Context,
) (compose.Runnable[GraphInput, GraphOutput], error) {
	graph := compose.NewGraph[GraphInput, GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in GraphInput) (*graphState, error) {
			message := strings.TrimSpace(in.Message)
			if message == "" {
				return nil, fmt.Errorf("%w: message is empty", contractx.ErrValidation)
			}
			if strings.TrimSpace(in.Context.LeadID) == "" {
				return nil, fmt.Errorf("%w: lead id is required", contractx.ErrValidation)
			}
			return &graphState{
				Message: message,
				Ctx:     normalizeContext(in.Context),
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("compress_history",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			if s.compressor == nil {
				return in, nil
			}
			summary, history := s.compressor.Compress(ctx, in.Ctx.History, in.Ctx.Summary)
			in.Ctx.Summary = summary
			in.Ctx.History = history
			return in, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node compress_history: %w", err)
	}

	if err := graph.AddLambdaNode("select_agent",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			agent := s.selectAgent(in.Ctx)
			if agent == nil {
				return nil, fmt.Errorf("%w: no specialist available", contractx.ErrValidation)
			}
			if in.Ctx.CurrentAgent != "" && in.Ctx.CurrentAgent != agent.Type() {
				log.Info().
					Str("lead_id", in.Ctx.LeadID).
					Str("from", string(in.Ctx.CurrentAgent)).
					Str("to", string(agent.Type())).
					Msg("conversation owner changed")
			}
			in.Agent = agent
			in.Ctx = in.Ctx.WithAgent(agent.Type())
			return in, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node select_agent: %w", err)
	}

	if err := graph.AddLambdaNode("process_message",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			resp, err := in.Agent.Process(ctx, in.Message, in.Ctx)
			if err != nil {
				log.Error().Err(err).
					Str("lead_id", in.Ctx.LeadID).
					Str("agent", string(in.Agent.Type())).
					Msg("specialist failed, using static fallback")
				resp = contractx.AgentResponse{
					Message: staticFallback,
					Agent:   in.Agent.Type(),
				}
			}
			in.Resp = resp
			return in, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node process_message: %w", err)
	}

	if err := graph.AddLambdaNode("advance_state",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			merged := in.Ctx.WithUpdates(in.Resp.ContextUpdates)

			next, trigger, fired := statex.Advance(merged.State, signalsFrom(merged))
			if fired {
				log.Info().
					Str("lead_id", merged.LeadID).
					Str("trigger", string(trigger)).
					Str("from", string(merged.State)).
					Str("to", string(next)).
					Msg("conversation state advanced")
				merged = merged.WithState(next)
			}

			in.Ctx = merged
			return in, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node advance_state: %w", err)
	}

	if err := graph.AddLambdaNode("apply_handoff",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			sig := in.Agent.ShouldHandoff(in.Resp, in.Ctx)
			if sig == nil {
				in.Ctx.HandoffHops = 0
				return in, nil
			}

			if in.Ctx.HandoffHops >= s.maxHops {
				log.Warn().
					Str("lead_id", in.Ctx.LeadID).
					Str("target", string(sig.Target)).
					Int("hops", in.Ctx.HandoffHops).
					Msg("handoff limit reached, keeping current agent")
				return in, nil
			}

			// The handoff takes effect on the next turn: this turn's reply
			// already went out under the current agent.
			in.Ctx = in.Ctx.WithUpdates(sig.ContextUpdates).WithAgent(sig.Target)
			in.Ctx.HandoffHops++
			log.Info().
				Str("lead_id", in.Ctx.LeadID).
				Str("target", string(sig.Target)).
				Str("reason", sig.Reason).
				Msg("conversation handed off")
			return in, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node apply_handoff: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_turn",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (GraphOutput, error) {
			in.Ctx.History = append(in.Ctx.History,
				contractx.Turn{Role: "user", Content: in.Message},
				contractx.Turn{Role: "assistant", Content: in.Resp.Message},
			)
			return GraphOutput{
				Response: in.Resp,
				Context:  in.Ctx,
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_turn: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "compress_history"},
		{"compress_history", "select_agent"},
		{"select_agent", "process_message"},
		{"process_message", "advance_state"},
		{"advance_state", "apply_handoff"},
		{"apply_handoff", "finalize_turn"},
		{"finalize_turn", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("supervisor.handle_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile supervisor graph: %w", err)
	}
	return runner, nil
}
