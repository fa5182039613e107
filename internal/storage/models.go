package storage

import (
	"time"
)

// DueAtLayout is how due instants are persisted: a fixed-format local
// timestamp in the store's named time zone.
const DueAtLayout = "2006-01-02 15:04:05"

// ReminderStatus is the lifecycle state of a reminder.
type ReminderStatus string

const (
	StatusPending   ReminderStatus = "pending"
	StatusDelivered ReminderStatus = "delivered"
	// StatusMalformed marks a row whose due_at no longer parses. It is kept
	// on disk for inspection and never fired.
	StatusMalformed ReminderStatus = "malformed"
)

type Reminder struct {
	ID        string         `json:"id"`
	Owner     string         `json:"owner"`
	Message   string         `json:"message"`
	DueAt     time.Time      `json:"due_at"`
	Status    ReminderStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// HistoryKind tells chat exchanges apart from fired reminders.
type HistoryKind string

const (
	HistoryChat     HistoryKind = "chat"
	HistoryReminder HistoryKind = "reminder"
)

// HistoryEntry is one line of a user's conversation log.
type HistoryEntry struct {
	ID        string      `json:"id"`
	Owner     string      `json:"owner"`
	Kind      HistoryKind `json:"kind"`
	User      string      `json:"usuario"`
	Assistant string      `json:"foschi"`
	Fecha     string      `json:"fecha"`
	CreatedAt time.Time   `json:"created_at"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
