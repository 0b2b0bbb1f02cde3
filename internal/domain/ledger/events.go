package ledger

import (
	"context"
	"time"
)

type EventType string

const (
	EventTransactionCreated   EventType = "transaction.created"
	EventTransactionUpdated   EventType = "transaction.updated"
	EventTransactionCompleted EventType = "transaction.completed"
	EventTransactionCanceled  EventType = "transaction.canceled"
	EventTransactionDeleted   EventType = "transaction.deleted"
	EventBalanceAdjusted      EventType = "account.balance_adjusted"
	EventLimitAlert           EventType = "card.limit_alert"
	EventInvoiceClosed        EventType = "invoice.closed"
	EventInvoicePaid          EventType = "invoice.paid"
	EventInvoiceOverdue       EventType = "invoice.overdue"
	EventInstallmentCreated   EventType = "installment.created"
	EventInstallmentCanceled  EventType = "installment.canceled"
)

// EventTypes lists every event the engine emits.
var EventTypes = []EventType{
	EventTransactionCreated,
	EventTransactionUpdated,
	EventTransactionCompleted,
	EventTransactionCanceled,
	EventTransactionDeleted,
	EventBalanceAdjusted,
	EventLimitAlert,
	EventInvoiceClosed,
	EventInvoicePaid,
	EventInvoiceOverdue,
	EventInstallmentCreated,
	EventInstallmentCanceled,
}

// Event describes a committed ledger change.
type Event struct {
	Type       EventType `json:"type"`
	CompanyID  int64     `json:"companyId"`
	EntityID   int64     `json:"entityId"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data,omitempty"`
}

// EventPublisher receives events after their unit of work committed.
type EventPublisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
