package ws

// ClientMsg é uma mensagem de controle enviada pelo cliente WebSocket
// Type: subscribe | unsubscribe | ping
type ClientMsg struct {
	Type  string `json:"type"`
	Topic string `json:"topic"` // requerido em subscribe/unsubscribe
}

// ControlMsg é a resposta do gateway a uma ClientMsg
// Type: subscribed | unsubscribed | pong | error
type ControlMsg struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
	Error string `json:"error,omitempty"`
}

const (
	MsgSubscribe    = "subscribe"
	MsgUnsubscribe  = "unsubscribe"
	MsgPing         = "ping"
	MsgSubscribed   = "subscribed"
	MsgUnsubscribed = "unsubscribed"
	MsgPong         = "pong"
	MsgError        = "error"
)
