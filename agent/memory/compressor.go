// Package memory compacts long conversation histories into compounding
// summaries so prompts stay inside the model context window.
package memory

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
	"github.com/ggonzalezcastro/inmo-sub001/pkg/metrics"
)

// CompressorConfig tunes when compaction triggers and how much verbatim
// history survives it.
type CompressorConfig struct {
	Threshold  int `envconfig:"THRESHOLD" split_words:"true" default:"10"`
	KeepRecent int `envconfig:"KEEP_RECENT" split_words:"true" default:"4"`
}

// Compressor folds older turns into a running summary through the
// summarizer model. Compression is best-effort: a summarization failure
// drops the older turns and keeps the prior summary rather than failing
// the conversation turn.
type Compressor struct {
	model einomodel.ToolCallingChatModel
	cfg   CompressorConfig
}

func NewCompressor(model einomodel.ToolCallingChatModel, cfg CompressorConfig) *Compressor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 10
	}
	if cfg.KeepRecent <= 0 {
		cfg.KeepRecent = 4
	}
	if cfg.KeepRecent > cfg.Threshold {
		cfg.KeepRecent = cfg.Threshold
	}
	return &Compressor{model: model, cfg: cfg}
}

const summarizerInstruction = `Eres el asistente de una inmobiliaria. Resume la conversacion con el prospecto en un parrafo corto en espanol. Conserva: datos de contacto, presupuesto, zona de interes, situacion crediticia, objeciones y compromisos de cita. Omite saludos y relleno. Responde solo con el resumen.`

// Compress returns the summary and the history that should feed the next
// prompt. Below the threshold both come back unchanged.
func (c *Compressor) Compress(ctx context.Context, history []contractx.Turn, priorSummary string) (string, []contractx.Turn) {
	if len(history) < c.cfg.Threshold {
		return priorSummary, history
	}

	cut := len(history) - c.cfg.KeepRecent
	older, recent := history[:cut], history[cut:]

	summary, err := c.summarize(ctx, older, priorSummary)
	if err != nil {
		metrics.Compressions.WithLabelValues(metrics.OutcomeFailure).Inc()
		log.Warn().Err(err).Int("turns", len(older)).Msg("history summarization failed, dropping older turns")
		return priorSummary, recent
	}

	metrics.Compressions.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return summary, recent
}

func (c *Compressor) summarize(ctx context.Context, older []contractx.Turn, priorSummary string) (string, error) {
	if c.model == nil {
		return "", fmt.Errorf("%w: summarizer model is not configured", contractx.ErrValidation)
	}

	var sb strings.Builder
	if priorSummary != "" {
		sb.WriteString("Resumen previo: ")
		sb.WriteString(priorSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Conversacion:\n")
	for _, turn := range older {
		sb.WriteString(turn.Role)
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
		sb.WriteString("\n")
	}

	out, err := c.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(summarizerInstruction),
		schema.UserMessage(sb.String()),
	})
	if err != nil {
		return "", fmt.Errorf("%w: summarize history: %v", contractx.ErrModelInvoke, err)
	}

	summary := strings.TrimSpace(out.Content)
	if summary == "" {
		return "", fmt.Errorf("%w: summarizer returned empty content", contractx.ErrSchemaViolation)
	}
	return summary, nil
}
