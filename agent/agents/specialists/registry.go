package specialists

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
	llmx "github.com/ggonzalezcastro/inmo-sub001/agent/llm"
	promptx "github.com/ggonzalezcastro/inmo-sub001/agent/prompt"
)

type registryImpl struct {
	qualifier contractx.Specialist
	scheduler contractx.Specialist
	followup  contractx.Specialist
}

func (r *registryImpl) Qualifier() contractx.Specialist {
	return r.qualifier
}

func (r *registryImpl) Scheduler() contractx.Specialist {
	return r.scheduler
}

func (r *registryImpl) FollowUp() contractx.Specialist {
	return r.followup
}

// InPriorityOrder returns the specialists most-specific first, the order
// ownership is polled in.
func (r *registryImpl) InPriorityOrder() []contractx.Specialist {
	return []contractx.Specialist{r.followup, r.scheduler, r.qualifier}
}

// NewRegistry builds every specialist against its own provider-routed model.
// The fallback model and breaker registry are shared across all of them.
func NewRegistry(
	ctx context.Context,
	cfg llmx.Config,
	breakers *llmx.BreakerRegistry,
	cal CalendarService,
) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if breakers == nil {
		breakers = llmx.NewBreakerRegistry()
	}

	prompts := promptx.LoadPromptSet()

	var fallbackModel einomodel.ToolCallingChatModel
	if cfg.HasFallback() {
		fallbackCfg := cfg.OpenRouterFallback()
		m, err := fallbackCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create fallback model: %v", contractx.ErrModelInvoke, err)
		}
		fallbackModel = m
	}

	routedModel := func(agentType contractx.AgentType) (einomodel.ToolCallingChatModel, error) {
		modelCfg := cfg.OpenRouterFor(agentType)
		primary, err := modelCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, agentType, err)
		}
		return llmx.NewRouter(primary, fallbackModel, breakers)
	}

	qualifierModel, err := routedModel(contractx.AgentTypeQualifier)
	if err != nil {
		return nil, err
	}
	schedulerModel, err := routedModel(contractx.AgentTypeScheduler)
	if err != nil {
		return nil, err
	}
	followupModel, err := routedModel(contractx.AgentTypeFollowUp)
	if err != nil {
		return nil, err
	}

	qualifier, err := NewQualifier(ctx, qualifierModel, prompts.Qualifier)
	if err != nil {
		return nil, err
	}
	scheduler, err := NewScheduler(ctx, schedulerModel, prompts.Scheduler, cal, breakers)
	if err != nil {
		return nil, err
	}
	followup, err := NewFollowUp(ctx, followupModel, prompts.FollowUp)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		qualifier: qualifier,
		scheduler: scheduler,
		followup:  followup,
	}, nil
}
