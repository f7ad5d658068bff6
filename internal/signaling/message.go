// Package signaling implements the client side of WebSocket signaling: a
// connection-state tracking Channel, a Client that republishes inbound text
// as an ordered message stream, the JSON message envelope, and a loopback
// relay for local runs.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	MsgTypeOffer     MessageType = "offer"
	MsgTypeAnswer    MessageType = "answer"
	MsgTypeCandidate MessageType = "candidate"
)

// Message is the JSON structure exchanged over the WebSocket during signaling.
type Message struct {
	Type      MessageType `json:"type"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate *Candidate  `json:"candidate,omitempty"`
}

// Candidate is a trickled ICE candidate.
type Candidate struct {
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
	SDP           string `json:"sdp"`
}

var errInvalidMessage = errors.New("invalid signaling message")

// ParseMessage decodes and validates a text frame.
func ParseMessage(text string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", errInvalidMessage, err)
	}

	switch msg.Type {
	case MsgTypeOffer, MsgTypeAnswer:
		if msg.SDP == "" {
			return Message{}, fmt.Errorf("%w: %s without sdp", errInvalidMessage, msg.Type)
		}
	case MsgTypeCandidate:
		if msg.Candidate == nil || msg.Candidate.SDP == "" {
			return Message{}, fmt.Errorf("%w: candidate without payload", errInvalidMessage)
		}
		if msg.Candidate.SDPMLineIndex < 0 {
			return Message{}, fmt.Errorf("%w: negative sdpMLineIndex %d", errInvalidMessage, msg.Candidate.SDPMLineIndex)
		}
	default:
		return Message{}, fmt.Errorf("%w: unknown type %q", errInvalidMessage, msg.Type)
	}

	return msg, nil
}

// Encode returns the JSON text frame for msg.
func (m Message) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
