package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ggonzalezcastro/inmo-sub001/agent/agents/specialists"
	"github.com/ggonzalezcastro/inmo-sub001/agent/agents/supervisor"
	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
	leadx "github.com/ggonzalezcastro/inmo-sub001/agent/lead"
	llmx "github.com/ggonzalezcastro/inmo-sub001/agent/llm"
	memoryx "github.com/ggonzalezcastro/inmo-sub001/agent/memory"
	storex "github.com/ggonzalezcastro/inmo-sub001/agent/store"
	calendarx "github.com/ggonzalezcastro/inmo-sub001/pkg/calendar"
	configx "github.com/ggonzalezcastro/inmo-sub001/pkg/config"
	logx "github.com/ggonzalezcastro/inmo-sub001/pkg/logger"
)

type AppConfig struct {
	LeadID      string `envconfig:"LEAD_ID" split_words:"true" default:"demo-lead"`
	BrokerID    string `envconfig:"BROKER_ID" split_words:"true" default:"demo-broker"`
	MetricsAddr string `envconfig:"METRICS_ADDR" split_words:"true" default:":9102"`
}

func main() {
	logCfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*logCfg)

	ctx := context.Background()

	appCfg := configx.MustNew[AppConfig]("APP")
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")

	breakers := llmx.NewBreakerRegistry()
	breakers.Register(llmx.DependencyPrimary, llmx.DefaultBreakerConfig)
	breakers.Register(llmx.DependencyFallback, llmx.DefaultBreakerConfig)
	breakers.Register(llmx.DependencyCalendar, llmx.CalendarBreakerConfig)

	var cal specialists.CalendarService
	if calCfg, err := configx.New[calendarx.Config]("CALENDAR"); err == nil {
		client, err := calendarx.NewClient(*calCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid calendar configuration")
		}
		cal = client
	} else {
		log.Warn().Msg("calendar service not configured, scheduling runs without live availability")
	}

	registry, err := specialists.NewRegistry(ctx, *llmCfg, breakers, cal)
	if err != nil {
		log.Fatal().Err(err).Msg("build specialist registry")
	}

	compressor := memoryx.NewCompressor(
		newSummarizerModel(ctx, *llmCfg, breakers),
		*configx.MustNew[memoryx.CompressorConfig]("COMPRESSOR"),
	)

	sup, err := supervisor.New(registry, compressor, breakers, *configx.MustNew[supervisor.Config]("SUPERVISOR"))
	if err != nil {
		log.Fatal().Err(err).Msg("build supervisor")
	}

	var snapshots storex.Store
	if snapCfg, err := configx.New[storex.UpstashRedisConfig]("UPSTASH_REDIS"); err == nil {
		snapshots, err = storex.NewUpstashRedisStore(*snapCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid snapshot store configuration")
		}
	}

	var leads *leadx.Store
	if leadCfg, err := configx.New[leadx.Config]("POSTGRES"); err == nil {
		leads, err = leadx.NewStore(*leadCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid lead store configuration")
		}
		defer leads.Close()
		if err := leads.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres unreachable")
		}
	}

	go serveMetrics(appCfg.MetricsAddr, sup)

	actx := loadContext(ctx, appCfg, snapshots, leads)
	runConversation(ctx, sup, actx, snapshots, leads)
}

// newSummarizerModel builds the provider-routed model history compaction
// runs on.
func newSummarizerModel(ctx context.Context, cfg llmx.Config, breakers *llmx.BreakerRegistry) einomodel.ToolCallingChatModel {
	primaryCfg := cfg.OpenRouterFor(contractx.AgentTypeSummarizer)
	primary, err := primaryCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("create summarizer model")
	}

	var fallback einomodel.ToolCallingChatModel
	if cfg.HasFallback() {
		fallbackCfg := cfg.OpenRouterFallback()
		fallback, err = fallbackCfg.New(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("create summarizer fallback model")
		}
	}

	router, err := llmx.NewRouter(primary, fallback, breakers)
	if err != nil {
		log.Fatal().Err(err).Msg("build summarizer router")
	}
	return router
}

func serveMetrics(addr string, sup *supervisor.Supervisor) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sup.Health())
	})

	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics endpoint stopped")
	}
}

// loadContext restores the lead's conversation context from Postgres, then
// the snapshot store, and finally starts fresh.
func loadContext(ctx context.Context, cfg *AppConfig, snapshots storex.Store, leads *leadx.Store) contractx.AgentContext {
	if leads != nil {
		actx, err := leads.BuildContext(ctx, cfg.LeadID)
		if err == nil {
			return actx
		}
		if !errors.Is(err, leadx.ErrLeadNotFound) {
			log.Warn().Err(err).Msg("lead store context unavailable")
		}
	}

	if snapshots != nil {
		actx, err := snapshots.Load(ctx, cfg.LeadID)
		if err == nil {
			return actx
		}
		if !errors.Is(err, storex.ErrSnapshotNotFound) {
			log.Warn().Err(err).Msg("snapshot store unavailable")
		}
	}

	return contractx.AgentContext{
		LeadID:   cfg.LeadID,
		BrokerID: cfg.BrokerID,
	}
}

func runConversation(
	ctx context.Context,
	sup *supervisor.Supervisor,
	actx contractx.AgentContext,
	snapshots storex.Store,
	leads *leadx.Store,
) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Escribe como el prospecto (linea vacia para salir):")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		message := scanner.Text()
		if message == "" {
			break
		}

		resp, next, err := sup.Process(ctx, message, actx)
		if err != nil {
			log.Error().Err(err).Msg("turn failed")
			continue
		}
		actx = next

		fmt.Printf("[%s] %s\n", resp.Agent, resp.Message)

		persistTurn(ctx, actx, message, resp, snapshots, leads)

		if resp.EndConversation || actx.State.Terminal() {
			fmt.Printf("Conversacion finalizada en estado %s.\n", actx.State)
			break
		}
	}
}

func persistTurn(
	ctx context.Context,
	actx contractx.AgentContext,
	message string,
	resp contractx.AgentResponse,
	snapshots storex.Store,
	leads *leadx.Store,
) {
	if snapshots != nil {
		if err := snapshots.Save(ctx, actx); err != nil {
			log.Warn().Err(err).Msg("save snapshot")
		}
	}

	if leads == nil {
		return
	}
	if err := leads.ApplyResult(ctx, actx, message, resp); err != nil {
		log.Warn().Err(err).Msg("persist turn")
	}

	if resp.Handoff != nil && actx.FlagSet(contractx.KeyAppointmentConfirmed) {
		slotID := actx.StringField("slot_id")
		if err := leads.RecordAppointment(ctx, actx.LeadID, actx.BrokerID, slotID, time.Time{}); err != nil {
			log.Warn().Err(err).Msg("record appointment")
		}
	}
}
