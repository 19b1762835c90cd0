// Package lead persists the CRM side of a conversation: the lead profile,
// its message log and booked appointments.
package lead

import (
	"time"

	"github.com/uptrace/bun"
)

// Lead is one prospect row. Structured profile fields collected during
// qualification are promoted to columns; everything else stays in Data.
type Lead struct {
	bun.BaseModel `bun:"table:leads,alias:l"`

	ID            string         `bun:"id,pk"`
	BrokerID      string         `bun:"broker_id,notnull"`
	Name          string         `bun:"name"`
	Phone         string         `bun:"phone"`
	Budget        string         `bun:"budget"`
	Zone          string         `bun:"zone"`
	CreditStatus  string         `bun:"credit_status"`
	PipelineStage string         `bun:"pipeline_stage,notnull"`
	State         string         `bun:"conversation_state,notnull"`
	Disqualified  bool           `bun:"disqualified"`
	Data          map[string]any `bun:"data,type:jsonb"`
	Summary       string         `bun:"summary"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Message is one turn of the conversation log.
type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID        string    `bun:"id,pk"`
	LeadID    string    `bun:"lead_id,notnull"`
	Role      string    `bun:"role,notnull"`
	Agent     string    `bun:"agent"`
	Content   string    `bun:"content,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Appointment is one booked broker visit.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments,alias:a"`

	ID          string    `bun:"id,pk"`
	LeadID      string    `bun:"lead_id,notnull"`
	BrokerID    string    `bun:"broker_id,notnull"`
	SlotID      string    `bun:"slot_id"`
	ScheduledAt time.Time `bun:"scheduled_at,nullzero"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
