package protocol

// ClientMessage is a frame sent from the client to the server.
type ClientMessage struct {
	Type    EventType `json:"type"`
	Token   string    `json:"token,omitempty"`
	Channel string    `json:"channel,omitempty"`
	Data    *int64    `json:"data,omitempty"`
}

func Authenticate(token string) ClientMessage {
	return ClientMessage{Type: "Authenticate", Token: token}
}

func BeginTyping(channelID string) ClientMessage {
	return ClientMessage{Type: "BeginTyping", Channel: channelID}
}

func EndTyping(channelID string) ClientMessage {
	return ClientMessage{Type: "EndTyping", Channel: channelID}
}

func Ping(data int64) ClientMessage {
	return ClientMessage{Type: TypePing, Data: &data}
}

func Pong(data int64) ClientMessage {
	return ClientMessage{Type: TypePong, Data: &data}
}
