package signaling

import "fmt"

// send encodes a signaling message and writes it as a text frame.
func (c *Client) send(msg Message) error {
	text, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Type, err)
	}
	return c.SendText(text)
}

// SendOffer sends a local SDP offer.
func (c *Client) SendOffer(sdp string) error {
	return c.send(Message{Type: MsgTypeOffer, SDP: sdp})
}

// SendAnswer sends a local SDP answer.
func (c *Client) SendAnswer(sdp string) error {
	return c.send(Message{Type: MsgTypeAnswer, SDP: sdp})
}

// SendCandidate sends a local ICE candidate.
func (c *Client) SendCandidate(candidate Candidate) error {
	return c.send(Message{Type: MsgTypeCandidate, Candidate: &candidate})
}
