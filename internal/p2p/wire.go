// Package p2p implements the signed, TLS-wrapped peer transport: framing,
// handshake, the tagged message schema, and peer discovery gossip (spec
// section 4.4/section 6). TLS secures the channel only; a connection's
// peer identity rides the application-layer RSA signing key exchanged
// during handshake.
//
// Grounded on DanDo385-go-edu's minis/33-tcp-echo-server-client (accept
// loop, per-connection goroutine, WaitGroup-joined graceful shutdown, and
// bufio.Scanner-based framing), adapted to a custom split function for the
// separator-delimited wire format and TLS instead of plaintext TCP.
package p2p

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/axiom-network/axiomd/internal/axiomerr"
)

// Separator delimits frames on the wire; it must never appear inside a
// payload (spec section 6).
const Separator = "\x00\x00\x00AXIOM-P2P-STOP\x00\x00\x00"

// SignatureSize is the fixed PSS-SHA256 signature length for a 2048-bit
// RSA key (spec section 4.4/keystore.KeyBits).
const SignatureSize = 256

var separatorBytes = []byte(Separator)

// MessageType tags the payload's shape (spec section 6).
type MessageType string

const (
	MessageTypePeersRequest MessageType = "PEERS_REQUEST"
	MessageTypePeersSharing MessageType = "PEERS_SHARING"
	MessageTypeApplication  MessageType = "APPLICATION"
)

// PeerAddress is one entry of a PEERS_SHARING message's peer list.
type PeerAddress struct {
	IP   string `json:"ip_address"`
	Port int    `json:"port"`
}

// Message is the decoded, shape-validated form of a wire payload: the
// content field matching Type is populated (PEERS_SHARING or APPLICATION);
// a PEERS_REQUEST carries no content, so both are nil.
type Message struct {
	Type         MessageType
	PeersSharing *PeersSharingContent
	Application  *ApplicationContent
}

type PeersSharingContent struct {
	Peers []PeerAddress `json:"peers"`
}

type ApplicationContent struct {
	Data string `json:"data"`
}

type wireEnvelope struct {
	MessageType MessageType     `json:"message_type"`
	Content     json.RawMessage `json:"content"`
}

// NewPeersRequest builds a PEERS_REQUEST message.
func NewPeersRequest() *Message {
	return &Message{Type: MessageTypePeersRequest}
}

// NewPeersSharing builds a PEERS_SHARING message advertising peers.
func NewPeersSharing(peers []PeerAddress) *Message {
	return &Message{Type: MessageTypePeersSharing, PeersSharing: &PeersSharingContent{Peers: peers}}
}

// NewApplication builds an opaque APPLICATION message.
func NewApplication(data string) *Message {
	return &Message{Type: MessageTypeApplication, Application: &ApplicationContent{Data: data}}
}

// EncodeMessage serializes m to its wire JSON payload.
func EncodeMessage(m *Message) ([]byte, error) {
	var content any
	switch m.Type {
	case MessageTypePeersRequest:
		content = struct{}{}
	case MessageTypePeersSharing:
		if m.PeersSharing == nil {
			return nil, axiomerr.ErrMessageContentShape
		}
		content = m.PeersSharing
	case MessageTypeApplication:
		if m.Application == nil {
			return nil, axiomerr.ErrMessageContentShape
		}
		content = m.Application
	default:
		return nil, axiomerr.ErrUnknownMessageType
	}

	rawContent, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal message content: %w", err)
	}
	return json.Marshal(wireEnvelope{MessageType: m.Type, Content: rawContent})
}

// DecodeMessage parses a wire payload, validating that content matches its
// declared message_type (spec section 6).
func DecodeMessage(payload []byte) (*Message, error) {
	var env wireEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode message envelope: %w", err)
	}

	switch env.MessageType {
	case MessageTypePeersRequest:
		return &Message{Type: MessageTypePeersRequest}, nil
	case MessageTypePeersSharing:
		var c PeersSharingContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", axiomerr.ErrMessageContentShape, err)
		}
		return &Message{Type: MessageTypePeersSharing, PeersSharing: &c}, nil
	case MessageTypeApplication:
		var c ApplicationContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", axiomerr.ErrMessageContentShape, err)
		}
		return &Message{Type: MessageTypeApplication, Application: &c}, nil
	default:
		return nil, axiomerr.ErrUnknownMessageType
	}
}

// EncodeFrame builds a full wire frame: signature ‖ payload ‖ separator.
// Payload must not itself contain the separator sequence.
func EncodeFrame(signature, payload []byte) ([]byte, error) {
	if len(signature) != SignatureSize {
		return nil, fmt.Errorf("signature is %d bytes, want %d", len(signature), SignatureSize)
	}
	if bytes.Contains(payload, separatorBytes) {
		return nil, axiomerr.ErrSeparatorInPayload
	}
	frame := make([]byte, 0, len(signature)+len(payload)+len(separatorBytes))
	frame = append(frame, signature...)
	frame = append(frame, payload...)
	frame = append(frame, separatorBytes...)
	return frame, nil
}

// SplitSignaturePayload separates a raw frame body (without its trailing
// separator) into its fixed-size signature and its payload.
func SplitSignaturePayload(frameBody []byte) (signature, payload []byte, err error) {
	if len(frameBody) < SignatureSize {
		return nil, nil, fmt.Errorf("frame body is %d bytes, shorter than signature size %d", len(frameBody), SignatureSize)
	}
	return frameBody[:SignatureSize], frameBody[SignatureSize:], nil
}

// ScanFrames is a bufio.SplitFunc that splits a byte stream on Separator
// occurrences, handing each call the raw frame body (signature ‖ payload)
// preceding one separator.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, separatorBytes); i >= 0 {
		return i + len(separatorBytes), data[:i], nil
	}
	// No separator yet: an incomplete frame is never handed to the caller,
	// even at EOF, since it has no signature/payload boundary guarantee.
	return 0, nil, nil
}
