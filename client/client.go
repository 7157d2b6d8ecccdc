// Package client is a small websocket client for the chat server, used by
// the end-to-end scenarios and usable as a building block for console
// frontends.
package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/errors"
	"chat-relay/protocol"
)

type Client struct {
	conn        *websocket.Conn
	readTimeout time.Duration
}

// Dial connects to a server's /ws endpoint. The url uses the ws:// scheme.
func Dial(url string, readTimeout time.Duration) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &Client{conn: conn, readTimeout: readTimeout}, nil
}

// Login authenticates an existing account and returns the session token.
func (c *Client) Login(login, credential string) (string, error) {
	return c.authenticate(protocol.ClientFrame{
		Type:       protocol.TypeLogin,
		Login:      login,
		Credential: credential,
	})
}

// Register creates an account and returns the session token.
func (c *Client) Register(login, credential string) (string, error) {
	return c.authenticate(protocol.ClientFrame{
		Type:       protocol.TypeRegister,
		Login:      login,
		Credential: credential,
	})
}

func (c *Client) authenticate(frame protocol.ClientFrame) (string, error) {
	if err := c.send(frame); err != nil {
		return "", err
	}
	reply, err := c.Next()
	if err != nil {
		return "", err
	}
	if reply.Type != protocol.TypeAuthResult {
		return "", fmt.Errorf("%w: expected auth result, got %q", errors.ErrProtocolViolation, reply.Type)
	}
	if !reply.Ok {
		return "", fmt.Errorf("%w: %s", errors.ErrAuthFailure, reply.Reason)
	}
	return reply.Token, nil
}

// Send publishes one chat message.
func (c *Client) Send(body string) error {
	return c.send(protocol.ClientFrame{Type: protocol.TypeMessage, Body: body})
}

// SendAttachment shares a named payload; the server stores a placeholder
// describing it.
func (c *Client) SendAttachment(name string, payload []byte) error {
	return c.send(protocol.ClientFrame{Type: protocol.TypeAttachment, Name: name, Payload: payload})
}

// Next blocks for the next server frame, bounded by the read timeout.
func (c *Client) Next() (protocol.ServerFrame, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return protocol.ServerFrame{}, err
	}
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.ServerFrame{}, err
	}
	var frame protocol.ServerFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return protocol.ServerFrame{}, fmt.Errorf("%w: %v", errors.ErrProtocolViolation, err)
	}
	return frame, nil
}

func (c *Client) send(frame protocol.ClientFrame) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// Close performs a polite websocket close handshake.
func (c *Client) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}
