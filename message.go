package ws2mongo

import "fmt"

type MessageType byte

const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
	CloseMessage  MessageType = 8
	PingMessage   MessageType = 9
	PongMessage   MessageType = 10
)

func (t MessageType) Is(other MessageType) bool {
	return t == other
}

// IsData reports whether frames of this type carry an application payload.
func (t MessageType) IsData() bool {
	return t.Is(TextMessage) || t.Is(BinaryMessage)
}

func (t MessageType) IsPing() bool {
	return t.Is(PingMessage)
}

func (t MessageType) IsPong() bool {
	return t.Is(PongMessage)
}

func (t MessageType) IsClose() bool {
	return t.Is(CloseMessage)
}

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	case CloseMessage:
		return "close"
	case PingMessage:
		return "ping"
	case PongMessage:
		return "pong"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

type Message interface {
	Type() MessageType
	Data() []byte
	String() string
}

// CloseFrame is the Message delivered when the peer closes the connection. Code and
// reason are optional on the wire; HasDetails is false when the peer sent neither.
type CloseFrame interface {
	Message
	Code() int
	Reason() string
	HasDetails() bool
}

type message struct {
	MessageType MessageType
	MessageData []byte
}

func (m message) Type() MessageType {
	return m.MessageType
}

func (m message) Data() []byte {
	return m.MessageData
}

func (m message) String() string {
	return fmt.Sprintf("Message{type=%s,data=%s}",
		m.MessageType, m.MessageData)
}

type closeMessage struct {
	message
	code int
}

func (m closeMessage) Code() int {
	return m.code
}

func (m closeMessage) Reason() string {
	return string(m.MessageData)
}

func (m closeMessage) HasDetails() bool {
	return m.code != 0 || len(m.MessageData) > 0
}

func (m closeMessage) String() string {
	if !m.HasDetails() {
		return "Message{type=close}"
	}
	return fmt.Sprintf("Message{type=%s,code=%d,reason=%s}",
		m.message.Type(), m.code, m.message.Data())
}

func NewMessage(mt MessageType, data []byte) Message {
	return message{MessageType: mt, MessageData: data}
}

func NewTextMessage(text string) Message {
	return NewMessage(TextMessage, []byte(text))
}

func NewBinaryMessage(data []byte) Message {
	return NewMessage(BinaryMessage, data)
}

func NewPingMessage(data []byte) Message {
	return NewMessage(PingMessage, data)
}

func NewPongMessage(data []byte) Message {
	return NewMessage(PongMessage, data)
}

// NewCloseMessage builds a close frame. A zero code with an empty reason means the
// peer supplied no details.
func NewCloseMessage(code int, reason string) CloseFrame {
	return closeMessage{
		message: message{MessageType: CloseMessage, MessageData: []byte(reason)},
		code:    code,
	}
}
