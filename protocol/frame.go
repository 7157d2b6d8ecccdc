// Package protocol defines the framed events exchanged with clients.
// Frames travel as JSON text messages over the websocket transport.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"
)

// Client frame types.
const (
	TypeLogin      = "login"
	TypeRegister   = "register"
	TypeMessage    = "message"
	TypeAttachment = "attachment"
)

// Server frame types.
const (
	TypeAuthResult = "auth"
	TypeDelivered  = "message"
	TypeError      = "error"
	TypeInfo       = "info"
)

// ClientFrame is a single inbound event. Exactly one shape is valid per
// Type; anything else is a protocol violation.
type ClientFrame struct {
	Type       string `json:"type"`
	Login      string `json:"login,omitempty"`
	Credential string `json:"credential,omitempty"`
	Body       string `json:"body,omitempty"`
	Name       string `json:"name,omitempty"`
	Payload    []byte `json:"payload,omitempty"`
}

// ServerFrame is a single outbound event. Field usage depends on Type:
// auth results carry Ok/Reason/Token, deliveries carry Author/Body/SentAt.
type ServerFrame struct {
	Type   string    `json:"type"`
	Ok     bool      `json:"ok"`
	Reason string    `json:"reason,omitempty"`
	Token  string    `json:"token,omitempty"`
	Author string    `json:"author,omitempty"`
	Body   string    `json:"body,omitempty"`
	Lang   string    `json:"lang,omitempty"`
	SentAt time.Time `json:"sent_at,omitempty"`
}

// DecodeClientFrame parses and validates one inbound frame. Every failure
// maps to ErrProtocolViolation: the caller closes the session rather than
// silently ignoring malformed input.
func DecodeClientFrame(raw []byte) (ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: %v", errors.ErrProtocolViolation, err)
	}
	if err := f.validate(); err != nil {
		return ClientFrame{}, err
	}
	return f, nil
}

func (f ClientFrame) validate() error {
	switch f.Type {
	case TypeLogin, TypeRegister:
		if f.Login == "" || f.Credential == "" {
			return fmt.Errorf("%w: %s frame requires login and credential", errors.ErrProtocolViolation, f.Type)
		}
	case TypeMessage:
		if f.Body == "" {
			return fmt.Errorf("%w: message frame requires a body", errors.ErrProtocolViolation)
		}
	case TypeAttachment:
		if f.Name == "" || len(f.Payload) == 0 {
			return fmt.Errorf("%w: attachment frame requires a name and a payload", errors.ErrProtocolViolation)
		}
	default:
		return fmt.Errorf("%w: unknown frame type %q", errors.ErrProtocolViolation, f.Type)
	}
	return nil
}

// Encode serializes an outbound frame. Outbound frames only carry fields
// this package controls, so marshalling cannot fail in practice.
func (f ServerFrame) Encode() []byte {
	raw, _ := json.Marshal(f)
	return raw
}

func AuthOK(token string) ServerFrame {
	return ServerFrame{Type: TypeAuthResult, Ok: true, Token: token}
}

func AuthFailed(reason string) ServerFrame {
	return ServerFrame{Type: TypeAuthResult, Ok: false, Reason: reason}
}

func Error(reason string) ServerFrame {
	return ServerFrame{Type: TypeError, Reason: reason}
}

func Info(text string) ServerFrame {
	return ServerFrame{Type: TypeInfo, Body: text}
}

// Delivered wraps a stored message for fan-out to clients.
func Delivered(msg domain.Message) ServerFrame {
	return ServerFrame{
		Type:   TypeDelivered,
		Author: msg.Author,
		Body:   msg.Body,
		Lang:   msg.Lang,
		SentAt: msg.CreatedAt,
	}
}
