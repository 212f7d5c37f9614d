package p2p

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	msg := NewPeersSharing([]PeerAddress{{IP: "10.0.0.1", Port: 7700}})
	payload, err := EncodeMessage(msg)
	require.NoError(t, err)

	decoded, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, MessageTypePeersSharing, decoded.Type)
	require.NotNil(t, decoded.PeersSharing)
	assert.Equal(t, "10.0.0.1", decoded.PeersSharing.Peers[0].IP)
}

func TestEncodeFrameRejectsPayloadContainingSeparator(t *testing.T) {
	sig := make([]byte, SignatureSize)
	_, err := EncodeFrame(sig, []byte("contains "+Separator+" inline"))
	assert.Error(t, err)
}

func TestEncodeFrameRejectsWrongSignatureSize(t *testing.T) {
	_, err := EncodeFrame([]byte("short"), []byte("payload"))
	assert.Error(t, err)
}

func TestScanFramesSplitsOnSeparator(t *testing.T) {
	sig := bytes.Repeat([]byte{0xAB}, SignatureSize)
	frame1, err := EncodeFrame(sig, []byte(`{"message_type":"PEERS_REQUEST","content":{}}`))
	require.NoError(t, err)
	frame2, err := EncodeFrame(sig, []byte(`{"message_type":"APPLICATION","content":{"data":"x"}}`))
	require.NoError(t, err)

	stream := append(append([]byte{}, frame1...), frame2...)
	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	scanner.Split(ScanFrames)

	var tokens [][]byte
	for scanner.Scan() {
		tokens = append(tokens, append([]byte{}, scanner.Bytes()...))
	}
	require.NoError(t, scanner.Err())
	require.Len(t, tokens, 2)

	_, payload, err := SplitSignaturePayload(tokens[0])
	require.NoError(t, err)
	decoded, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, MessageTypePeersRequest, decoded.Type)
}

func TestScanFramesWithoutSeparatorYieldsNothing(t *testing.T) {
	scanner := bufio.NewScanner(bytes.NewReader([]byte("no separator here")))
	scanner.Split(ScanFrames)
	assert.False(t, scanner.Scan())
}

func TestDecodeMessageRejectsUnknownType(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"message_type":"BOGUS","content":{}}`))
	assert.Error(t, err)
}
