package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

// ErrMalformed is returned when an envelope or its signal content cannot be decoded.
var ErrMalformed = errors.New("malformed signal")

// Kind identifies the type of an envelope.
type Kind string

const (
	KindJoin   Kind = "JOIN"
	KindLeave  Kind = "LEAVE"
	KindChat   Kind = "CHAT"
	KindFile   Kind = "FILE"
	KindSignal Kind = "SIGNAL"
)

// Envelope is the addressed message carried over the bus. For KindSignal
// the content is itself a JSON-encoded Signal.
type Envelope struct {
	Sender    string     `json:"sender"`
	Recipient string     `json:"recipient,omitempty"`
	Type      Kind       `json:"type"`
	Content   string     `json:"content,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Signal is the payload of a SIGNAL envelope: exactly one of SDP or ICE is set.
// Both use the browser JSON shapes, which pion shares.
type Signal struct {
	SDP *webrtc.SessionDescription `json:"sdp,omitempty"`
	ICE *webrtc.ICECandidateInit   `json:"ice,omitempty"`
}

// Description wraps a session description into a Signal.
func Description(sdp webrtc.SessionDescription) Signal {
	return Signal{SDP: &sdp}
}

// Candidate wraps a network candidate into a Signal.
func Candidate(c webrtc.ICECandidateInit) Signal {
	return Signal{ICE: &c}
}

// IsOffer reports whether the signal carries an offer descriptor.
func (s Signal) IsOffer() bool { return s.SDP != nil && s.SDP.Type == webrtc.SDPTypeOffer }

// IsAnswer reports whether the signal carries an answer descriptor.
func (s Signal) IsAnswer() bool { return s.SDP != nil && s.SDP.Type == webrtc.SDPTypeAnswer }

func (s Signal) validate() error {
	switch {
	case s.SDP != nil && s.ICE != nil:
		return fmt.Errorf("%w: both sdp and ice set", ErrMalformed)
	case s.SDP == nil && s.ICE == nil:
		return fmt.Errorf("%w: neither sdp nor ice set", ErrMalformed)
	case s.SDP != nil && s.SDP.Type != webrtc.SDPTypeOffer && s.SDP.Type != webrtc.SDPTypeAnswer:
		return fmt.Errorf("%w: unsupported description type %q", ErrMalformed, s.SDP.Type.String())
	}
	return nil
}

// EncodeSignal serializes a Signal into envelope content.
func EncodeSignal(s Signal) (string, error) {
	if err := s.validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeSignal parses the content of a SIGNAL envelope.
func DecodeSignal(content string) (Signal, error) {
	var s Signal
	if err := json.Unmarshal([]byte(content), &s); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := s.validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}

// Signal decodes the envelope content as a Signal.
func (e Envelope) Signal() (Signal, error) {
	if e.Type != KindSignal {
		return Signal{}, fmt.Errorf("%w: envelope type %s", ErrMalformed, e.Type)
	}
	return DecodeSignal(e.Content)
}

// DecodeEnvelope parses a raw bus message.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.Sender == "" || e.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing sender or type", ErrMalformed)
	}
	return e, nil
}
