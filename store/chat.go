package store

// ChatType is the transport-native chat type.
type ChatType string

const (
	ChatTypePrivate    ChatType = "private"
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
)

// Chat is a monitored conversation. The primary key is the transport-native
// chat identifier (64-bit signed).
type Chat struct {
	ID                   int64
	Type                 ChatType
	Title                string
	AccountantTelegramID *int64
	AccountantUsernames  []string
	SlaThresholdMinutes  int32
	MonitoringEnabled    bool
	Is24x7               bool
	ManagerTelegramIDs   []int64
	RowStatus            RowStatus
	CreatedTs            int64
	UpdatedTs            int64
}

type FindChat struct {
	ID                *int64
	Type              *ChatType
	MonitoringEnabled *bool
	RowStatus         *RowStatus
}

type UpdateChat struct {
	ID                   int64
	Title                *string
	Type                 *ChatType
	AccountantTelegramID *int64
	AccountantUsernames  []string
	SlaThresholdMinutes  *int32
	MonitoringEnabled    *bool
	Is24x7               *bool
	ManagerTelegramIDs   []int64
	RowStatus            *RowStatus
	UpdatedTs            *int64
}
