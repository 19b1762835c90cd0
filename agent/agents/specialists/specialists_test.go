package specialists

import (
	"context"
	"errors"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ggonzalezcastro/inmo-sub001/agent/agents/supervisor"
	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
	llmx "github.com/ggonzalezcastro/inmo-sub001/agent/llm"
	statex "github.com/ggonzalezcastro/inmo-sub001/agent/state"
	"github.com/ggonzalezcastro/inmo-sub001/pkg/calendar"
)

type fakeToolCallingModel struct {
	responses []*schema.Message
	err       error
	idx       int
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return f, nil
}

type fakeCalendar struct {
	slots   []calendar.Slot
	appt    calendar.Appointment
	err     error
	lookups int
}

func (f *fakeCalendar) Availability(ctx context.Context, brokerID string) ([]calendar.Slot, error) {
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	return f.slots, nil
}

func (f *fakeCalendar) Book(ctx context.Context, slotID, leadID string) (calendar.Appointment, error) {
	if f.err != nil {
		return calendar.Appointment{}, f.err
	}
	return f.appt, nil
}

func baseContext() contractx.AgentContext {
	return contractx.AgentContext{
		LeadID:        "lead-1",
		BrokerID:      "broker-1",
		PipelineStage: contractx.StageEntrada,
		State:         statex.StateDataCollection,
		LeadData:      map[string]any{},
	}
}

func TestQualifierCollectsFields(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"message":"Mucho gusto Ana, en que zona te gustaria?","context_updates":{"name":"Ana","phone":"5512345678"}}`},
		},
	}

	q, err := NewQualifier(context.Background(), fake, "prompt")
	if err != nil {
		t.Fatalf("NewQualifier() error = %v", err)
	}

	resp, err := q.Process(context.Background(), "Hola, soy Ana, mi cel es 5512345678", baseContext())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if resp.ContextUpdates["name"] != "Ana" {
		t.Fatalf("unexpected updates: %#v", resp.ContextUpdates)
	}
	if resp.Handoff != nil {
		t.Fatalf("incomplete profile should not hand off, got %#v", resp.Handoff)
	}
}

func TestQualifierDoesNotOverwriteExistingFields(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"message":"Perfecto","context_updates":{"name":"Otro Nombre","zone":"Coyoacan"}}`},
		},
	}

	q, err := NewQualifier(context.Background(), fake, "prompt")
	if err != nil {
		t.Fatalf("NewQualifier() error = %v", err)
	}

	actx := baseContext()
	actx.LeadData["name"] = "Ana"

	resp, err := q.Process(context.Background(), "me llamo distinto ahora", actx)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if _, ok := resp.ContextUpdates["name"]; ok {
		t.Fatalf("existing name must not be overwritten: %#v", resp.ContextUpdates)
	}
	if resp.ContextUpdates["zone"] != "Coyoacan" {
		t.Fatalf("new field should pass through: %#v", resp.ContextUpdates)
	}
}

func TestQualifierHandsOffWhenProfileComplete(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"message":"Excelente, todo listo","context_updates":{"zone":"Polanco","credit_status":"clean"}}`},
		},
	}

	q, err := NewQualifier(context.Background(), fake, "prompt")
	if err != nil {
		t.Fatalf("NewQualifier() error = %v", err)
	}

	actx := baseContext()
	actx.State = statex.StateFinancialQualification
	actx.LeadData = map[string]any{"name": "Ana", "phone": "5512345678", "budget": "3000000"}

	resp, err := q.Process(context.Background(), "busco en Polanco, buro limpio", actx)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if resp.Handoff == nil {
		t.Fatal("complete profile with clean credit should hand off")
	}
	if resp.Handoff.Target != contractx.AgentTypeScheduler {
		t.Fatalf("handoff target = %s, want scheduler", resp.Handoff.Target)
	}
	if resp.Handoff.ContextUpdates[contractx.KeyPipelineStage] != contractx.StageCalificacionFinanciera {
		t.Fatalf("unexpected handoff updates: %#v", resp.Handoff.ContextUpdates)
	}
	if resp.ContextUpdates[contractx.KeyDataComplete] != true {
		t.Fatalf("data_complete should be flagged: %#v", resp.ContextUpdates)
	}
}

func TestQualifierDebtDisqualifies(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"message":"Entiendo, gracias por contarme","context_updates":{"credit_status":"has_debt"}}`},
		},
	}

	q, err := NewQualifier(context.Background(), fake, "prompt")
	if err != nil {
		t.Fatalf("NewQualifier() error = %v", err)
	}

	actx := baseContext()
	actx.LeadData = map[string]any{"name": "Ana", "phone": "5512345678", "budget": "3000000", "zone": "Polanco"}

	resp, err := q.Process(context.Background(), "tengo una deuda en buro", actx)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if resp.Handoff != nil {
		t.Fatal("lead with debt must not reach the scheduler")
	}
	if resp.ContextUpdates[contractx.KeyDisqualified] != true {
		t.Fatalf("debt should disqualify: %#v", resp.ContextUpdates)
	}
}

func TestQualifierModelFailureFallsBack(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{err: errors.New("provider returned 503")}

	q, err := NewQualifier(context.Background(), fake, "prompt")
	if err != nil {
		t.Fatalf("NewQualifier() error = %v", err)
	}

	resp, err := q.Process(context.Background(), "hola", baseContext())
	if err != nil {
		t.Fatalf("Process() must absorb model failures, got %v", err)
	}
	if resp.Message == "" {
		t.Fatal("fallback message must not be empty")
	}
	if resp.Handoff != nil {
		t.Fatal("fallback turn must not hand off")
	}
}

func newTestScheduler(t *testing.T, fake *fakeToolCallingModel, cal CalendarService) *Scheduler {
	t.Helper()
	breakers := llmx.NewBreakerRegistry()
	breakers.Register(llmx.DependencyCalendar, llmx.CalendarBreakerConfig)
	s, err := NewScheduler(context.Background(), fake, "prompt", cal, breakers)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	return s
}

func schedulingContext() contractx.AgentContext {
	actx := baseContext()
	actx.State = statex.StateScheduling
	actx.PipelineStage = contractx.StageCalificacionFinanciera
	actx.LeadData = map[string]any{
		"name": "Ana", "phone": "5512345678", "budget": "3000000", "zone": "Polanco",
		contractx.KeyDataComplete: true,
	}
	return actx
}

func TestSchedulerTwoSidedConfirmationHandsOff(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"message":"Confirmado, te esperamos el martes a las 10","context_updates":{"appointment_confirmed":true,"slot_id":"s1"}}`},
		},
	}
	cal := &fakeCalendar{
		slots: []calendar.Slot{{ID: "s1", BrokerID: "broker-1", Start: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)}},
		appt:  calendar.Appointment{ID: "a1", SlotID: "s1"},
	}

	s := newTestScheduler(t, fake, cal)

	resp, err := s.Process(context.Background(), "si, perfecto el martes", schedulingContext())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if resp.Handoff == nil || resp.Handoff.Target != contractx.AgentTypeFollowUp {
		t.Fatalf("confirmed appointment should hand off to followup, got %#v", resp.Handoff)
	}
	if resp.Handoff.ContextUpdates[contractx.KeyAppointmentPending] != true {
		t.Fatalf("unexpected handoff updates: %#v", resp.Handoff.ContextUpdates)
	}
	if resp.Handoff.ContextUpdates[contractx.KeyPipelineStage] != contractx.StageAgendado {
		t.Fatalf("unexpected stage: %#v", resp.Handoff.ContextUpdates)
	}
}

func TestSchedulerOneSidedConfirmationIsIgnored(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"message":"Entonces quedamos el martes?","context_updates":{"appointment_confirmed":true}}`},
		},
	}

	s := newTestScheduler(t, fake, &fakeCalendar{})

	resp, err := s.Process(context.Background(), "dejame revisar mi agenda", schedulingContext())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if resp.Handoff != nil {
		t.Fatal("model optimism without lead acceptance must not hand off")
	}
	if _, ok := resp.ContextUpdates[contractx.KeyAppointmentConfirmed]; ok {
		t.Fatalf("unconfirmed flag should be dropped: %#v", resp.ContextUpdates)
	}
}

func TestSchedulerCalendarFailureDegradesGracefully(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"message":"El asesor te llama para coordinar horario","context_updates":{}}`},
		},
	}
	cal := &fakeCalendar{err: errors.New("calendar service down")}

	s := newTestScheduler(t, fake, cal)

	resp, err := s.Process(context.Background(), "que horarios tienes?", schedulingContext())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(resp.ToolInvocations) != 1 {
		t.Fatalf("expected 1 tool invocation, got %d", len(resp.ToolInvocations))
	}
	if resp.ToolInvocations[0].Error == "" {
		t.Fatal("failed availability lookup should be recorded")
	}
	if resp.Message == "" {
		t.Fatal("reply must still be produced without availability")
	}
}

func TestFollowUpOwnership(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{}
	f, err := NewFollowUp(context.Background(), fake, "prompt")
	if err != nil {
		t.Fatalf("NewFollowUp() error = %v", err)
	}

	actx := baseContext()
	if f.ShouldHandle(actx) {
		t.Fatal("followup must not own an early-stage lead")
	}

	actx.LeadData[contractx.KeyAppointmentPending] = true
	if !f.ShouldHandle(actx) {
		t.Fatal("followup must own leads with a pending appointment")
	}

	actx = baseContext()
	actx.PipelineStage = contractx.StageReferidos
	if !f.ShouldHandle(actx) {
		t.Fatal("followup must own the referral stage")
	}

	if got := f.ShouldHandoff(contractx.AgentResponse{Handoff: &contractx.HandoffSignal{Target: contractx.AgentTypeQualifier}}, actx); got != nil {
		t.Fatalf("followup never hands off, got %#v", got)
	}
}

func TestFollowUpEndsConversation(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"message":"Gracias por tu tiempo, quedo al pendiente","context_updates":{},"end_conversation":true}`},
		},
	}

	f, err := NewFollowUp(context.Background(), fake, "prompt")
	if err != nil {
		t.Fatalf("NewFollowUp() error = %v", err)
	}

	actx := baseContext()
	actx.PipelineStage = contractx.StageSeguimiento

	resp, err := f.Process(context.Background(), "gracias, ya no necesito nada mas", actx)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !resp.EndConversation {
		t.Fatal("end_conversation should pass through")
	}
}

func TestQualifierOwnershipWindow(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{}
	q, err := NewQualifier(context.Background(), fake, "prompt")
	if err != nil {
		t.Fatalf("NewQualifier() error = %v", err)
	}

	actx := baseContext()
	actx.State = statex.StateGreeting
	if !q.ShouldHandle(actx) {
		t.Fatal("qualifier must own greeting turns")
	}

	actx.State = statex.StateFinancialQualification
	actx.PipelineStage = contractx.StageCalificacionFinanciera
	if !q.ShouldHandle(actx) {
		t.Fatal("qualifier owns financial qualification until data is complete")
	}

	actx.LeadData[contractx.KeyDataComplete] = true
	if q.ShouldHandle(actx) {
		t.Fatal("qualifier must release the lead once data is complete")
	}

	actx.State = statex.StateScheduling
	if q.ShouldHandle(actx) {
		t.Fatal("qualifier must not own scheduling turns")
	}
}

func TestEntryStageAlwaysRoutesToQualifier(t *testing.T) {
	t.Parallel()

	for _, state := range []statex.ConversationState{statex.StateScheduling, statex.StateCompleted} {
		state := state
		t.Run(string(state), func(t *testing.T) {
			t.Parallel()

			q, err := NewQualifier(context.Background(), &fakeToolCallingModel{
				responses: []*schema.Message{
					{Content: `{"message":"Hola, soy Sofia, cuentame que buscas","context_updates":{}}`},
				},
			}, "prompt")
			if err != nil {
				t.Fatalf("NewQualifier() error = %v", err)
			}
			s := newTestScheduler(t, &fakeToolCallingModel{}, &fakeCalendar{})
			f, err := NewFollowUp(context.Background(), &fakeToolCallingModel{}, "prompt")
			if err != nil {
				t.Fatalf("NewFollowUp() error = %v", err)
			}

			actx := contractx.AgentContext{
				LeadID:        "lead-1",
				PipelineStage: contractx.StageEntrada,
				State:         state,
				LeadData:      map[string]any{},
			}
			if s.ShouldHandle(actx) {
				t.Fatal("scheduler must not claim an entry-stage lead")
			}
			if f.ShouldHandle(actx) {
				t.Fatal("followup must not claim an entry-stage lead")
			}

			sup, err := supervisor.New(&registryImpl{qualifier: q, scheduler: s, followup: f}, nil, nil, supervisor.Config{})
			if err != nil {
				t.Fatalf("supervisor.New() error = %v", err)
			}

			resp, _, err := sup.Process(context.Background(), "hola", actx)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if resp.Agent != contractx.AgentTypeQualifier {
				t.Fatalf("entry-stage lead routed to %s, want qualifier", resp.Agent)
			}
		})
	}
}

func TestLeadAcceptedIgnoresPunctuation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		message string
		want    bool
	}{
		{"Sí.", true},
		{"si,", true},
		{"Claro!", true},
		{"estoy de acuerdo.", true},
		{"dejame revisar mi agenda", false},
		{"me avisas cuando haya visita", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := leadAccepted(tc.message); got != tc.want {
			t.Fatalf("leadAccepted(%q) = %v, want %v", tc.message, got, tc.want)
		}
	}
}

func TestSchedulerConfirmationWithPunctuatedAcceptance(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"message":"Confirmado, te esperamos el martes a las 10","context_updates":{"appointment_confirmed":true,"slot_id":"s1"}}`},
		},
	}
	s := newTestScheduler(t, fake, &fakeCalendar{appt: calendar.Appointment{ID: "a1", SlotID: "s1"}})

	resp, err := s.Process(context.Background(), "Sí.", schedulingContext())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if resp.Handoff == nil || resp.Handoff.Target != contractx.AgentTypeFollowUp {
		t.Fatalf("punctuated acceptance should confirm the appointment, got %#v", resp.Handoff)
	}
}
