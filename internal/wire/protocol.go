package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const ProtocolVersion = 1

const (
	MsgTypeJoinRoom    = "join_room"
	MsgTypeLeaveRoom   = "leave_room"
	MsgTypeNewMessage  = "new_message"
	MsgTypeSendMessage = "send_message"
	MsgTypeSendAck     = "send_ack"
	MsgTypeExecute     = "execute"
	MsgTypeExecResult  = "execution_result"
)

type Envelope struct {
	Type            string          `json:"type"`
	ID              string          `json:"id"`
	TS              int64           `json:"ts"`
	ProtocolVersion int             `json:"protocol_version"`
	Payload         json.RawMessage `json:"payload"`
}

func NewEnvelope(msgType string, id string, payload any) (Envelope, error) {
	typ := strings.TrimSpace(msgType)
	if typ == "" {
		return Envelope{}, errors.New("message type is required")
	}
	if strings.TrimSpace(id) == "" {
		id = NewID("msg")
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		raw = data
	}
	return Envelope{
		Type:            typ,
		ID:              strings.TrimSpace(id),
		TS:              time.Now().UTC().Unix(),
		ProtocolVersion: ProtocolVersion,
		Payload:         raw,
	}, nil
}

func (e Envelope) Marshal() ([]byte, error) {
	if strings.TrimSpace(e.Type) == "" {
		return nil, errors.New("envelope.type is required")
	}
	if strings.TrimSpace(e.ID) == "" {
		return nil, errors.New("envelope.id is required")
	}
	if e.ProtocolVersion == 0 {
		e.ProtocolVersion = ProtocolVersion
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	env.Type = strings.TrimSpace(env.Type)
	env.ID = strings.TrimSpace(env.ID)
	if env.Type == "" || env.ID == "" {
		return Envelope{}, fmt.Errorf("invalid envelope (type=%q id=%q)", env.Type, env.ID)
	}
	if env.ProtocolVersion == 0 {
		env.ProtocolVersion = ProtocolVersion
	}
	return env, nil
}

type JoinRoomPayload struct {
	TaskID   string `json:"task_id"`
	SenderID string `json:"sender_id,omitempty"`
}

type LeaveRoomPayload struct {
	TaskID   string `json:"task_id"`
	SenderID string `json:"sender_id,omitempty"`
}

// RawMessage is the wire shape of a chat message before normalization.
// History fetches and live pushes both deliver this shape.
type RawMessage struct {
	ID             string          `json:"id"`
	Content        string          `json:"content"`
	SenderID       string          `json:"sender_id,omitempty"`
	SenderType     string          `json:"sender_type,omitempty"`
	Type           string          `json:"type,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"`
	Status         string          `json:"status,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	FilePath       string          `json:"file_path,omitempty"`
	Mentions       []string        `json:"mentions,omitempty"`
	TaskSuggestion json.RawMessage `json:"task_suggestion,omitempty"`
}

// OutgoingMessage is what a client submits on send. Mentions may be
// pre-populated by the caller or filled in by the mention resolver.
type OutgoingMessage struct {
	TaskID   string   `json:"task_id"`
	SenderID string   `json:"sender_id"`
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
}

type SendAckPayload struct {
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

type ExecutePayload struct {
	TaskID   string         `json:"task_id"`
	Task     string         `json:"task"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
