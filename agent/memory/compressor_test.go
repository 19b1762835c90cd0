package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
)

type fakeSummarizer struct {
	reply string
	err   error
	calls int
}

func (f *fakeSummarizer) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{Content: f.reply}, nil
}

func (f *fakeSummarizer) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeSummarizer) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return f, nil
}

func turns(n int) []contractx.Turn {
	out := make([]contractx.Turn, 0, n)
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		out = append(out, contractx.Turn{Role: role, Content: fmt.Sprintf("mensaje %d", i)})
	}
	return out
}

func TestCompressBelowThresholdIsPassthrough(t *testing.T) {
	t.Parallel()

	fake := &fakeSummarizer{reply: "resumen"}
	c := NewCompressor(fake, CompressorConfig{Threshold: 10, KeepRecent: 4})

	history := turns(9)
	summary, kept := c.Compress(context.Background(), history, "previo")

	if summary != "previo" {
		t.Fatalf("summary = %q, want prior summary unchanged", summary)
	}
	if len(kept) != 9 {
		t.Fatalf("kept %d turns, want 9", len(kept))
	}
	if fake.calls != 0 {
		t.Fatalf("summarizer called %d times, want 0", fake.calls)
	}
}

func TestCompressKeepsRecentTurns(t *testing.T) {
	t.Parallel()

	fake := &fakeSummarizer{reply: "prospecto busca depto en Polanco, presupuesto 3M"}
	c := NewCompressor(fake, CompressorConfig{Threshold: 10, KeepRecent: 4})

	history := turns(12)
	summary, kept := c.Compress(context.Background(), history, "")

	if summary != "prospecto busca depto en Polanco, presupuesto 3M" {
		t.Fatalf("unexpected summary: %q", summary)
	}
	if len(kept) != 4 {
		t.Fatalf("kept %d turns, want 4", len(kept))
	}
	if kept[0].Content != "mensaje 8" || kept[3].Content != "mensaje 11" {
		t.Fatalf("unexpected kept window: %#v", kept)
	}
	if fake.calls != 1 {
		t.Fatalf("summarizer called %d times, want 1", fake.calls)
	}
}

func TestCompressFailureKeepsPriorSummary(t *testing.T) {
	t.Parallel()

	fake := &fakeSummarizer{err: errors.New("provider returned 503")}
	c := NewCompressor(fake, CompressorConfig{Threshold: 10, KeepRecent: 4})

	summary, kept := c.Compress(context.Background(), turns(12), "resumen previo")

	if summary != "resumen previo" {
		t.Fatalf("summary = %q, want prior summary preserved", summary)
	}
	if len(kept) != 4 {
		t.Fatalf("kept %d turns, want 4", len(kept))
	}
}

func TestCompressEmptySummaryIsFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeSummarizer{reply: "   "}
	c := NewCompressor(fake, CompressorConfig{Threshold: 10, KeepRecent: 4})

	summary, kept := c.Compress(context.Background(), turns(10), "previo")
	if summary != "previo" {
		t.Fatalf("summary = %q, want prior summary preserved", summary)
	}
	if len(kept) != 4 {
		t.Fatalf("kept %d turns, want 4", len(kept))
	}
}
