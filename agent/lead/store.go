package lead

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
	statex "github.com/ggonzalezcastro/inmo-sub001/agent/state"
)

var ErrLeadNotFound = errors.New("lead not found")

// profileColumns are the lead-data keys promoted to dedicated columns.
var profileColumns = []string{"name", "phone", "budget", "zone", contractx.KeyCreditStatus}

type Config struct {
	DSN          string `envconfig:"DSN" split_words:"true" required:"true"`
	HistoryLimit int    `envconfig:"HISTORY_LIMIT" split_words:"true" default:"40"`
}

// Store reads and writes leads, their message log and appointments in
// Postgres.
type Store struct {
	db           *bun.DB
	historyLimit int
	now          func() time.Time
}

// NewStore opens a Postgres connection from the DSN.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	return NewStoreWithDB(bun.NewDB(sqldb, pgdialect.New()), cfg.HistoryLimit), nil
}

// NewStoreWithDB wraps an existing connection, mainly for tests.
func NewStoreWithDB(db *bun.DB, historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = 40
	}
	return &Store{db: db, historyLimit: historyLimit, now: time.Now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies connectivity at startup.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BuildContext assembles the conversation context for a lead from its row
// and the tail of its message log.
func (s *Store) BuildContext(ctx context.Context, leadID string) (contractx.AgentContext, error) {
	var row Lead
	err := s.db.NewSelect().Model(&row).Where("l.id = ?", leadID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.AgentContext{}, fmt.Errorf("%w: %s", ErrLeadNotFound, leadID)
	}
	if err != nil {
		return contractx.AgentContext{}, fmt.Errorf("load lead: %w", err)
	}

	var msgs []Message
	if err := s.db.NewSelect().Model(&msgs).
		Where("m.lead_id = ?", leadID).
		Order("created_at DESC").
		Limit(s.historyLimit).
		Scan(ctx); err != nil {
		return contractx.AgentContext{}, fmt.Errorf("load messages: %w", err)
	}

	history := make([]contractx.Turn, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		history = append(history, contractx.Turn{Role: msgs[i].Role, Content: msgs[i].Content})
	}

	leadData := map[string]any{}
	for k, v := range row.Data {
		leadData[k] = v
	}
	setIfNotEmpty(leadData, "name", row.Name)
	setIfNotEmpty(leadData, "phone", row.Phone)
	setIfNotEmpty(leadData, "budget", row.Budget)
	setIfNotEmpty(leadData, "zone", row.Zone)
	setIfNotEmpty(leadData, contractx.KeyCreditStatus, row.CreditStatus)
	if row.Disqualified {
		leadData[contractx.KeyDisqualified] = true
	}

	state := statex.ConversationState(row.State)
	if !state.Valid() {
		state = statex.StateGreeting
	}
	stage := row.PipelineStage
	if stage == "" {
		stage = contractx.StageEntrada
	}

	return contractx.AgentContext{
		LeadID:        row.ID,
		BrokerID:      row.BrokerID,
		PipelineStage: stage,
		State:         state,
		LeadData:      leadData,
		History:       history,
		Summary:       row.Summary,
	}, nil
}

// ApplyResult persists the outcome of one turn: the updated lead row and
// both messages of the exchange.
func (s *Store) ApplyResult(
	ctx context.Context,
	actx contractx.AgentContext,
	userMessage string,
	resp contractx.AgentResponse,
) error {
	now := s.now().UTC()

	data := map[string]any{}
	for k, v := range actx.LeadData {
		if isProfileColumn(k) || k == contractx.KeyDisqualified {
			continue
		}
		data[k] = v
	}

	row := &Lead{
		ID:            actx.LeadID,
		BrokerID:      actx.BrokerID,
		Name:          stringValue(actx, "name"),
		Phone:         stringValue(actx, "phone"),
		Budget:        stringValue(actx, "budget"),
		Zone:          stringValue(actx, "zone"),
		CreditStatus:  stringValue(actx, contractx.KeyCreditStatus),
		PipelineStage: actx.PipelineStage,
		State:         string(actx.State),
		Disqualified:  actx.FlagSet(contractx.KeyDisqualified),
		Data:          data,
		Summary:       actx.Summary,
		UpdatedAt:     now,
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(row).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("phone = EXCLUDED.phone").
			Set("budget = EXCLUDED.budget").
			Set("zone = EXCLUDED.zone").
			Set("credit_status = EXCLUDED.credit_status").
			Set("pipeline_stage = EXCLUDED.pipeline_stage").
			Set("conversation_state = EXCLUDED.conversation_state").
			Set("disqualified = EXCLUDED.disqualified").
			Set("data = EXCLUDED.data").
			Set("summary = EXCLUDED.summary").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return fmt.Errorf("upsert lead: %w", err)
		}

		turns := []*Message{
			{ID: uuid.NewString(), LeadID: actx.LeadID, Role: "user", Content: userMessage, CreatedAt: now},
			{ID: uuid.NewString(), LeadID: actx.LeadID, Role: "assistant", Agent: string(resp.Agent), Content: resp.Message, CreatedAt: now},
		}
		if _, err := tx.NewInsert().Model(&turns).Exec(ctx); err != nil {
			return fmt.Errorf("insert messages: %w", err)
		}

		return nil
	})
}

// RecordAppointment stores a confirmed booking.
func (s *Store) RecordAppointment(ctx context.Context, leadID, brokerID, slotID string, scheduledAt time.Time) error {
	appt := &Appointment{
		ID:          uuid.NewString(),
		LeadID:      leadID,
		BrokerID:    brokerID,
		SlotID:      slotID,
		ScheduledAt: scheduledAt,
		CreatedAt:   s.now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(appt).Exec(ctx); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func isProfileColumn(key string) bool {
	for _, col := range profileColumns {
		if col == key {
			return true
		}
	}
	return false
}

func stringValue(actx contractx.AgentContext, key string) string {
	return actx.StringField(key)
}

func setIfNotEmpty(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
