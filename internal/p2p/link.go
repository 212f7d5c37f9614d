package p2p

import (
	"bufio"
	"crypto/rsa"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/axiom-network/axiomd/internal/axiomerr"
	"github.com/axiom-network/axiomd/internal/keystore"
	"github.com/axiom-network/axiomd/internal/telemetry"
)

// maxSignatureFailures is how many bad-signature frames, counted over the
// link's whole lifetime, a link tolerates before it is closed (spec section 4.4: "repeated failures
// close the link").
const maxSignatureFailures = 5

// handshakeStage tracks the two expected handshake frames (spec section
// 4.4): first the peer's PEM public key, then its listening port.
type handshakeStage int

const (
	stageAwaitPublicKey handshakeStage = iota
	stageAwaitPort
	stageComplete
)

// Link is one TLS connection to a peer, alive for the connection's
// lifetime. It owns no concurrency of its own beyond its write mutex; the
// read loop that drives it is run by Transport.
type Link struct {
	conn   net.Conn
	local  *keystore.KeyStore
	log    zerolog.Logger
	metric *telemetry.Metrics

	writeMu sync.Mutex

	stage          handshakeStage
	peerPublicKey  *rsa.PublicKey
	peerListenPort int
	remoteHost     string

	sigFailures atomic.Int32
	closed      atomic.Bool

	handshakeSent sync.Once
}

func newLink(conn net.Conn, local *keystore.KeyStore, log zerolog.Logger, metric *telemetry.Metrics) *Link {
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	return &Link{
		conn:       conn,
		local:      local,
		log:        log.With().Str("remote", conn.RemoteAddr().String()).Logger(),
		metric:     metric,
		remoteHost: host,
	}
}

// Handshaked reports whether both handshake frames have been processed.
func (l *Link) Handshaked() bool {
	return l.stage == stageComplete
}

// PeerListenPort is the port the peer advertised during handshake.
func (l *Link) PeerListenPort() int {
	return l.peerListenPort
}

// RemoteHost is the connection's remote IP, independent of the peer's
// advertised listening port.
func (l *Link) RemoteHost() string {
	return l.remoteHost
}

// PeerPublicKey returns the peer's handshake-declared public key, or nil
// before the first handshake frame has been processed.
func (l *Link) PeerPublicKey() *rsa.PublicKey {
	return l.peerPublicKey
}

// Address is the peer's advertised (host, port), the form used for
// self-identity filtering and reputation bookkeeping.
func (l *Link) Address() string {
	return net.JoinHostPort(l.remoteHost, strconv.Itoa(l.peerListenPort))
}

// sendFrame signs payload with the local identity and writes the framed
// bytes. Writes are serialized per-link since net.Conn.Write from two
// goroutines concurrently would interleave frames.
func (l *Link) sendFrame(payload []byte) error {
	sig, err := l.local.Sign(payload)
	if err != nil {
		return fmt.Errorf("sign outbound frame: %w", err)
	}
	frame, err := EncodeFrame(sig, payload)
	if err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_, err = l.conn.Write(frame)
	return err
}

// sendHandshake transmits the two handshake frames a new connection must
// send before anything else (spec section 4.4). It is idempotent: calling
// it more than once (Dial sends eagerly, serve sends again for symmetry
// with accepted connections) only sends once.
func (l *Link) sendHandshake(listenPort int) error {
	var sendErr error
	l.handshakeSent.Do(func() {
		pub, err := l.local.PublicPEM()
		if err != nil {
			sendErr = fmt.Errorf("marshal local public key: %w", err)
			return
		}
		if err := l.sendFrame(pub); err != nil {
			sendErr = fmt.Errorf("send handshake public key: %w", err)
			return
		}
		if err := l.sendFrame([]byte(strconv.Itoa(listenPort))); err != nil {
			sendErr = fmt.Errorf("send handshake port: %w", err)
			return
		}
	})
	return sendErr
}

// SendMessage signs and sends a tagged protocol message. It fails if the
// handshake has not completed (spec section 4.4: "until both are received
// from a peer, further frames are rejected" applies symmetrically to what
// we are willing to say has meaning).
func (l *Link) SendMessage(m *Message) error {
	if !l.Handshaked() {
		return axiomerr.ErrHandshakeIncomplete
	}
	payload, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	if err := l.sendFrame(payload); err != nil {
		return err
	}
	if l.metric != nil {
		l.metric.FramesTotal.WithLabelValues("out", string(m.Type)).Inc()
	}
	return nil
}

// handleFrame processes one raw frame body (signature ‖ payload). During
// handshake it advances l.stage; afterward it verifies the signature
// against the now-known peer key and dispatches a decoded Message to
// onMessage.
func (l *Link) handleFrame(frameBody []byte, onMessage func(*Link, *Message)) error {
	sig, payload, err := SplitSignaturePayload(frameBody)
	if err != nil {
		return err
	}

	switch l.stage {
	case stageAwaitPublicKey:
		pub, err := parsePublicKeyPEM(payload)
		if err != nil {
			return fmt.Errorf("handshake public key: %w", err)
		}
		if err := verifySignature(pub, payload, sig); err != nil {
			return l.noteSignatureFailure(err)
		}
		l.peerPublicKey = pub
		l.stage = stageAwaitPort
		return nil

	case stageAwaitPort:
		if err := verifySignature(l.peerPublicKey, payload, sig); err != nil {
			return l.noteSignatureFailure(err)
		}
		port, err := strconv.Atoi(string(payload))
		if err != nil {
			return fmt.Errorf("handshake port %q: %w", payload, err)
		}
		l.peerListenPort = port
		l.stage = stageComplete
		l.log.Debug().Int("peer_listen_port", port).Msg("handshake complete")
		return nil

	default:
		if err := verifySignature(l.peerPublicKey, payload, sig); err != nil {
			return l.noteSignatureFailure(err)
		}
		msg, err := DecodeMessage(payload)
		if err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		if l.metric != nil {
			l.metric.FramesTotal.WithLabelValues("in", string(msg.Type)).Inc()
		}
		onMessage(l, msg)
		return nil
	}
}

// noteSignatureFailure logs a dropped frame and returns a sentinel error
// once maxSignatureFailures bad signatures in total have been seen, so
// the caller can close the link (spec section 4.4).
func (l *Link) noteSignatureFailure(cause error) error {
	l.log.Warn().Err(cause).Msg("dropping frame with invalid signature")
	if l.sigFailures.Add(1) >= maxSignatureFailures {
		return axiomerr.ErrSignatureVerifyFail
	}
	return nil
}

func (l *Link) Close() error {
	if l.closed.CompareAndSwap(false, true) {
		return l.conn.Close()
	}
	return nil
}

func (l *Link) Closed() bool { return l.closed.Load() }

// readFrames runs handleFrame over every frame the connection yields until
// it closes or an unrecoverable protocol error occurs.
func (l *Link) readFrames(onMessage func(*Link, *Message)) error {
	scanner := bufio.NewScanner(l.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	scanner.Split(ScanFrames)

	for scanner.Scan() {
		if err := l.handleFrame(append([]byte(nil), scanner.Bytes()...), onMessage); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func parsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	return keystore.PublicKeyFromPEM(data)
}

func verifySignature(pub *rsa.PublicKey, payload, signature []byte) error {
	return keystore.Verify(pub, payload, signature)
}
