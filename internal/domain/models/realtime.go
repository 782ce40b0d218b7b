package models

// Realtime message types.
const (
	MsgSubscribe         = "subscribe"
	MsgUnsubscribe       = "unsubscribe"
	MsgPing              = "ping"
	MsgConnected         = "connected"
	MsgSubscribed        = "subscribed"
	MsgUnsubscribed      = "unsubscribed"
	MsgUpdate            = "update"
	MsgLeaderboardUpdate = "leaderboard_update"
	MsgPong              = "pong"
	MsgError             = "error"
)

// ClientMessage is what a realtime client sends.
type ClientMessage struct {
	Type           string   `json:"type" validate:"required,oneof=subscribe unsubscribe ping"`
	TokenAddresses []string `json:"tokenAddresses,omitempty" validate:"omitempty,max=50,dive,required,max=128"`
}

// ServerMessage is what the broadcaster sends. Only the fields relevant to
// Type are populated.
type ServerMessage struct {
	Type           string      `json:"type"`
	ClientID       string      `json:"clientId,omitempty"`
	TokenAddresses []string    `json:"tokenAddresses,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Message        string      `json:"message,omitempty"`
	Timestamp      int64       `json:"timestamp"`
}

// UpdateEvent is published to other processes after each poll tick.
type UpdateEvent struct {
	TokenAddresses []string          `json:"tokenAddresses"`
	Data           []AggregatedToken `json:"data"`
	Timestamp      int64             `json:"timestamp"`
}
