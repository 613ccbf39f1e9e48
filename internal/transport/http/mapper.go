package http

import (
	"encoding/json"

	"github.com/vovakirdan/wirechat-room/internal/core"
	"github.com/vovakirdan/wirechat-room/internal/proto"
)

const errCodeInvalidAction = "invalid_action"

// actionToCommand maps one inbound action to a hub command. A non-nil
// CoreError means the action is rejected and should be reported back.
func actionToCommand(client *core.Client, raw []byte) (*core.Command, *core.CoreError) {
	var env proto.ActionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &core.CoreError{Code: errCodeInvalidAction, Message: "action is not valid json"}
	}

	switch env.Action {
	case proto.ActionSendConnectionID:
		return &core.Command{Kind: core.CommandRequestConnectionID, Client: client}, nil
	case proto.ActionSendMessage:
		var data proto.SendMessageData
		if len(env.Data) == 0 {
			return nil, &core.CoreError{Code: core.ErrCodeBadRequest, Message: "data is required"}
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, &core.CoreError{Code: core.ErrCodeBadRequest, Message: "invalid message data"}
		}
		if data.RoomID != "" && data.RoomID != client.Room {
			return nil, &core.CoreError{Code: core.ErrCodeBadRequest, Message: "room_id does not match connection"}
		}
		return &core.Command{Kind: core.CommandSendRoomMessage, Client: client, Text: data.Text}, nil
	default:
		return nil, &core.CoreError{Code: errCodeInvalidAction, Message: "unknown action"}
	}
}

// frameFromEvent renders a hub event as the frame the client receives.
func frameFromEvent(event *core.Event) ([]byte, error) {
	switch event.Kind {
	case core.EventConnectionID:
		return proto.EncodeConnectionFrame(event.ConnectionID)
	case core.EventRoomMessage:
		return proto.EncodeMessageFrame(proto.Message{
			ID:        event.Message.ID,
			Text:      event.Message.Text,
			CreatedAt: event.Message.CreatedAt.UTC().Format(timeLayout),
		})
	case core.EventError:
		if event.Error == nil {
			return proto.EncodeErrorFrame("unknown", "unknown error")
		}
		return proto.EncodeErrorFrame(event.Error.Code, event.Error.Message)
	default:
		return proto.EncodeErrorFrame("unknown", "unknown event")
	}
}
