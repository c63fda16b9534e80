package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeConnectionEstablished = "connection_established"
	TypePing                  = "ping"
	TypePong                  = "pong"
)

// TimestampLayout renders UTC instants with millisecond precision and a Z suffix.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in the wire timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ServerMessage is a message sent from the server to a client.
// Implementations are ConnectionEstablished, Pong and Message.
type ServerMessage interface {
	MessageType() string
	// Frame encodes the message as a JSON text frame stamped with at.
	Frame(at time.Time) ([]byte, error)
	isServerMessage()
}

// ConnectionEstablished acknowledges a successful handshake.
type ConnectionEstablished struct {
	Message string
	UserID  string
}

func (ConnectionEstablished) isServerMessage()    {}
func (ConnectionEstablished) MessageType() string { return TypeConnectionEstablished }

func (m ConnectionEstablished) Frame(at time.Time) ([]byte, error) {
	frame := struct {
		Type      string `json:"type"`
		Message   string `json:"message"`
		UserID    string `json:"userId"`
		Timestamp string `json:"timestamp"`
	}{
		Type:      TypeConnectionEstablished,
		Message:   m.Message,
		UserID:    m.UserID,
		Timestamp: FormatTimestamp(at),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", TypeConnectionEstablished, err)
	}
	return data, nil
}

// Pong answers a client ping.
type Pong struct{}

func (Pong) isServerMessage()    {}
func (Pong) MessageType() string { return TypePong }

func (Pong) Frame(at time.Time) ([]byte, error) {
	frame := struct {
		Type      string `json:"type"`
		Timestamp string `json:"timestamp"`
	}{
		Type:      TypePong,
		Timestamp: FormatTimestamp(at),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", TypePong, err)
	}
	return data, nil
}

// Message is an application event published to clients. Type is required;
// Data carries the remaining top-level fields.
type Message struct {
	Type string
	Data map[string]any
}

func (Message) isServerMessage()      {}
func (m Message) MessageType() string { return m.Type }

// Validate checks that the message can be published.
func (m Message) Validate() error {
	if m.Type == "" {
		return ErrMissingType
	}
	return nil
}

// Frame merges type and a server timestamp into the payload fields.
// A caller-supplied "type" or "timestamp" field is overwritten.
func (m Message) Frame(at time.Time) ([]byte, error) {
	fields := make(map[string]any, len(m.Data)+2)
	for k, v := range m.Data {
		fields[k] = v
	}
	fields["type"] = m.Type
	fields["timestamp"] = FormatTimestamp(at)

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", m.Type, err)
	}
	return data, nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(m.Data)+1)
	for k, v := range m.Data {
		fields[k] = v
	}
	fields["type"] = m.Type
	return json.Marshal(fields)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if fields == nil {
		return fmt.Errorf("%w: expected a JSON object", ErrMalformedMessage)
	}

	typ, _ := fields["type"].(string)
	delete(fields, "type")

	m.Type = typ
	m.Data = fields
	return nil
}

// ClientMessage is a message received from a client.
// Implementations are Ping and UnknownMessage.
type ClientMessage interface {
	isClientMessage()
}

// Ping is a liveness check from the client.
type Ping struct{}

func (Ping) isClientMessage() {}

// UnknownMessage is any well-formed client message without defined behavior.
type UnknownMessage struct {
	Type string
}

func (UnknownMessage) isClientMessage() {}

// ParseClientMessage decodes an inbound text payload. Payloads that are not a
// JSON object yield ErrMalformedMessage.
func ParseClientMessage(payload []byte) (ClientMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedMessage)
	}

	var typ string
	if raw, ok := fields["type"]; ok {
		// non-string types are just unknown
		_ = json.Unmarshal(raw, &typ)
	}

	switch typ {
	case TypePing:
		return Ping{}, nil
	default:
		return UnknownMessage{Type: typ}, nil
	}
}
