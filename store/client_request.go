package store

// RequestStatus is the lifecycle state of a tracked client request.
type RequestStatus string

const (
	RequestPending       RequestStatus = "pending"
	RequestInProgress    RequestStatus = "in_progress"
	RequestWaitingClient RequestStatus = "waiting_client"
	RequestTransferred   RequestStatus = "transferred"
	RequestAnswered      RequestStatus = "answered"
	RequestEscalated     RequestStatus = "escalated"
	RequestClosed        RequestStatus = "closed"
)

// IsOpen reports whether the request still awaits an accountant response.
func (s RequestStatus) IsOpen() bool {
	return s != RequestAnswered && s != RequestClosed
}

// ClientRequest is a classified, SLA-tracked client message.
type ClientRequest struct {
	ID                  int64
	UID                 string
	ChatID              int64
	MessageID           int64
	Status              RequestStatus
	ReceivedTs          int64
	Category            string
	Confidence          float64
	ClassifierModel     string
	SlaThresholdMinutes int32
	SlaTimerStartedTs   *int64
	SlaTimerPausedTs    *int64
	SlaBreached         bool
	ResponseTs          *int64
	ResponseTimeMinutes *int32
	ResponseMessageID   *int64
	RespondedBy         *int64
	SlaWorkingMinutes   *int32
	CreatedTs           int64
	UpdatedTs           int64
}

type FindClientRequest struct {
	ID           *int64
	UID          *string
	ChatID       *int64
	MessageID    *int64
	Status       *RequestStatus
	OnlyOpen     bool
	TimerStarted *bool
	Limit        *int
	Offset       *int
}

type UpdateClientRequest struct {
	ID                  int64
	Status              *RequestStatus
	SlaTimerStartedTs   *int64
	SlaTimerPausedTs    *int64
	ClearTimerPaused    bool
	SlaBreached         *bool
	ResponseTs          *int64
	ResponseTimeMinutes *int32
	ResponseMessageID   *int64
	RespondedBy         *int64
	SlaWorkingMinutes   *int32
	UpdatedTs           *int64
}
