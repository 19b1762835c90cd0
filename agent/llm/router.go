package llm

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
	"github.com/ggonzalezcastro/inmo-sub001/pkg/metrics"
)

// Dependency names used against the breaker registry.
const (
	DependencyPrimary  = "llm-primary"
	DependencyFallback = "llm-fallback"
	DependencyCalendar = "calendar"
)

var _ einomodel.ToolCallingChatModel = (*Router)(nil)

// Router is a ToolCallingChatModel that fronts a primary provider with an
// optional fallback. Every call goes through the primary's breaker; when it
// fails with a retriable error (or the breaker is open) and a fallback is
// configured, exactly one fallback attempt is made through the fallback's
// own breaker. Non-retriable errors propagate untouched.
type Router struct {
	primary  einomodel.ToolCallingChatModel
	fallback einomodel.ToolCallingChatModel
	breakers *BreakerRegistry
}

// NewRouter wires a primary model, an optional fallback (nil disables
// failover) and the shared breaker registry.
func NewRouter(primary, fallback einomodel.ToolCallingChatModel, breakers *BreakerRegistry) (*Router, error) {
	if primary == nil {
		return nil, fmt.Errorf("%w: primary model is required", contractx.ErrValidation)
	}
	if breakers == nil {
		breakers = NewBreakerRegistry()
	}
	return &Router{primary: primary, fallback: fallback, breakers: breakers}, nil
}

func (r *Router) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	out, err := Do(r.breakers, DependencyPrimary, func() (*schema.Message, error) {
		return r.primary.Generate(ctx, input, opts...)
	})
	if err == nil {
		return out, nil
	}
	if r.fallback == nil || !Retriable(err) {
		return nil, err
	}

	metrics.Failovers.Inc()
	log.Warn().Err(err).Msg("primary provider failed, routing to fallback")

	return Do(r.breakers, DependencyFallback, func() (*schema.Message, error) {
		return r.fallback.Generate(ctx, input, opts...)
	})
}

func (r *Router) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := Do(r.breakers, DependencyPrimary, func() (*schema.StreamReader[*schema.Message], error) {
		return r.primary.Stream(ctx, input, opts...)
	})
	if err == nil {
		return out, nil
	}
	if r.fallback == nil || !Retriable(err) {
		return nil, err
	}

	metrics.Failovers.Inc()
	log.Warn().Err(err).Msg("primary provider failed, routing stream to fallback")

	return Do(r.breakers, DependencyFallback, func() (*schema.StreamReader[*schema.Message], error) {
		return r.fallback.Stream(ctx, input, opts...)
	})
}

// WithTools binds the tool set on both providers so a failover sees the
// same tool surface as the primary.
func (r *Router) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	primary, err := r.primary.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("bind tools on primary: %w", err)
	}

	var fallback einomodel.ToolCallingChatModel
	if r.fallback != nil {
		fallback, err = r.fallback.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("bind tools on fallback: %w", err)
		}
	}

	return &Router{primary: primary, fallback: fallback, breakers: r.breakers}, nil
}

// States reports the breaker state per dependency.
func (r *Router) States() map[string]string {
	return r.breakers.States()
}
