package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	ActionSendConnectionID = "sendConnectionId"
	ActionSendMessage      = "sendMessage"

	FrameTypeMessage    = "message"
	FrameTypeConnection = "connection"
	FrameTypeError      = "error"
)

// ErrMalformedFrame is wrapped by every decoding failure.
var ErrMalformedFrame = errors.New("malformed frame")

// Action is the envelope for frames sent from the client.
type Action struct {
	Action string `json:"action"`
	Data   any    `json:"data,omitempty"`
}

// SendMessageData carries an outgoing chat message.
type SendMessageData struct {
	RoomID string `json:"room_id"`
	Text   string `json:"text"`
}

// HandshakeAction asks the server to report the connection identity.
func HandshakeAction() Action {
	return Action{Action: ActionSendConnectionID}
}

// SendMessageAction builds the frame for one outgoing chat message.
func SendMessageAction(roomID, text string) Action {
	return Action{
		Action: ActionSendMessage,
		Data:   SendMessageData{RoomID: roomID, Text: text},
	}
}

// ActionEnvelope is the server-side view of an Action before Data is decoded.
type ActionEnvelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Frame is an inbound frame from the server, discriminated by its type tag.
type Frame interface {
	FrameType() string
}

// MessageFrame delivers a new chat message.
type MessageFrame struct {
	Message Message
}

func (MessageFrame) FrameType() string { return FrameTypeMessage }

// ConnectionFrame delivers the identity assigned to this connection.
type ConnectionFrame struct {
	ConnectionID string
}

func (ConnectionFrame) FrameType() string { return FrameTypeConnection }

// UnknownFrame is any well-formed frame with an unrecognized type.
type UnknownFrame struct {
	Type string
}

func (f UnknownFrame) FrameType() string { return f.Type }

// envelope is the union of all inbound fields.
type envelope struct {
	Type         string          `json:"type"`
	Message      json.RawMessage `json:"message,omitempty"`
	ConnectionID *string         `json:"connection_id,omitempty"`
}

type frameDecoder func(env envelope) (Frame, error)

var decoders = map[string]frameDecoder{
	FrameTypeMessage:    decodeMessageFrame,
	FrameTypeConnection: decodeConnectionFrame,
}

// DecodeFrame parses one inbound text frame.
func DecodeFrame(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	decode, ok := decoders[env.Type]
	if !ok {
		return UnknownFrame{Type: env.Type}, nil
	}
	return decode(env)
}

func decodeMessageFrame(env envelope) (Frame, error) {
	raw := bytes.TrimSpace(env.Message)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: message frame without payload", ErrMalformedFrame)
	}

	// The backend serializes the message into a JSON string; unwrap it first.
	if raw[0] == '"' {
		var serialized string
		if err := json.Unmarshal(raw, &serialized); err != nil {
			return nil, fmt.Errorf("%w: message payload: %v", ErrMalformedFrame, err)
		}
		raw = []byte(serialized)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: message payload: %v", ErrMalformedFrame, err)
	}
	return MessageFrame{Message: msg}, nil
}

func decodeConnectionFrame(env envelope) (Frame, error) {
	if env.ConnectionID == nil {
		return nil, fmt.Errorf("%w: connection frame without connection_id", ErrMalformedFrame)
	}
	return ConnectionFrame{ConnectionID: *env.ConnectionID}, nil
}

// EncodeMessageFrame builds the server-side "message" frame, serializing the
// message into a string the way the backend does.
func EncodeMessageFrame(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return json.Marshal(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{Type: FrameTypeMessage, Message: string(payload)})
}

// EncodeConnectionFrame builds the server-side "connection" frame.
func EncodeConnectionFrame(connectionID string) ([]byte, error) {
	return json.Marshal(struct {
		Type         string `json:"type"`
		ConnectionID string `json:"connection_id"`
	}{Type: FrameTypeConnection, ConnectionID: connectionID})
}

// EncodeErrorFrame builds the frame the backend sends when it rejects an
// action. Clients treat it as an unknown frame.
func EncodeErrorFrame(code, msg string) ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Code  string `json:"code"`
		Error string `json:"error"`
	}{Type: FrameTypeError, Code: code, Error: msg})
}
