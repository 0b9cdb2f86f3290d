package store

// AlertType distinguishes early warnings from actual breaches.
type AlertType string

const (
	AlertWarning AlertType = "warning"
	AlertBreach  AlertType = "breach"
)

// DeliveryStatus tracks the transport outcome of an alert.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// ResolvedAction records how an alert chain was closed. Once set the alert is
// immutable.
type ResolvedAction string

const (
	ResolvedMarkResolved        ResolvedAction = "mark_resolved"
	ResolvedAccountantResponded ResolvedAction = "accountant_responded"
	ResolvedAutoExpired         ResolvedAction = "auto_expired"
)

// SlaAlert is one escalation-level notification addressed to one manager.
// Uniqueness on (request_id, alert_type, escalation_level,
// manager_telegram_id) keeps at most one alert per type, level and recipient.
type SlaAlert struct {
	ID                int64
	RequestID         int64
	AlertType         AlertType
	EscalationLevel   int32
	MinutesElapsed    int32
	ManagerTelegramID int64
	AlertSentTs       *int64
	DeliveryStatus    DeliveryStatus
	TelegramMessageID *int64
	ResolvedAction    *ResolvedAction
	AcknowledgedBy    *int64
	AcknowledgedTs    *int64
	ResolutionNotes   *string
	CreatedTs         int64
}

type FindSlaAlert struct {
	ID              *int64
	RequestID       *int64
	AlertType       *AlertType
	EscalationLevel *int32
	DeliveryStatus  *DeliveryStatus
	OnlyUnresolved  bool
	Limit           *int
	Offset          *int
}

type UpdateSlaAlert struct {
	ID                int64
	AlertSentTs       *int64
	DeliveryStatus    *DeliveryStatus
	TelegramMessageID *int64
	ResolvedAction    *ResolvedAction
	AcknowledgedBy    *int64
	AcknowledgedTs    *int64
	ResolutionNotes   *string
}
