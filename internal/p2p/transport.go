package p2p

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/axiom-network/axiomd/internal/axiomerr"
	"github.com/axiom-network/axiomd/internal/keystore"
	"github.com/axiom-network/axiomd/internal/telemetry"
)

// DialTimeout bounds an outbound connection attempt (spec section 5).
const DialTimeout = 3 * time.Second

// Config configures a Transport.
type Config struct {
	ListenAddr      string // "host:port" to bind the TLS acceptor
	AdvertisedIP    string // this node's authoritative public IP
	AdvertisedPort  int    // this node's authoritative public port
	TLSCertPath     string
	TLSKeyPath      string
}

// Transport owns the TLS listener and every active peer Link. It is safe
// for concurrent use: callers submit outbound messages through Broadcast
// or a specific Link's SendMessage while the accept/read loops run on
// their own goroutines (spec section 5: "other workers enqueue outbound
// frames through a thread-safe submission method").
type Transport struct {
	cfg      Config
	identity *keystore.KeyStore
	log      zerolog.Logger
	metrics  *telemetry.Metrics

	listener net.Listener

	mu    sync.Mutex
	links map[string]*Link // keyed by Link.Address() once handshaked

	wg sync.WaitGroup
}

// New builds a Transport bound to cfg.ListenAddr using the TLS
// certificate/key at cfg.TLSCertPath/TLSKeyPath, signing outbound frames
// with identity.
func New(cfg Config, identity *keystore.KeyStore, log zerolog.Logger, metrics *telemetry.Metrics) (*Transport, error) {
	cert, err := keystore.LoadTLSCertificate(cfg.TLSCertPath, cfg.TLSKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", axiomerr.ErrCannotBindListener, err)
	}
	listener, err := tls.Listen("tcp", cfg.ListenAddr, &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", axiomerr.ErrCannotBindListener, err)
	}
	return &Transport{
		cfg:      cfg,
		identity: identity,
		log:      log.With().Str("component", "p2p").Logger(),
		metrics:  metrics,
		listener: listener,
		links:    make(map[string]*Link),
	}, nil
}

// selfAddress is the advertised address this node filters out of incoming
// peer shares to prevent self-connection loops (spec section 4.4).
func (t *Transport) selfAddress() string {
	return net.JoinHostPort(t.cfg.AdvertisedIP, strconv.Itoa(t.cfg.AdvertisedPort))
}

// OnMessage is called for every decoded APPLICATION message from any
// handshaked link. Transport itself answers PEERS_REQUEST/SHARING;
// everything else (APPLICATION, carrying sync's wire calls in this node's
// case) is forwarded here.
type OnMessage func(link *Link, msg *Message)

// Run starts the accept loop and blocks until ctx is cancelled, at which
// point the listener and every live link are closed and Run returns after
// all per-connection goroutines have exited.
func (t *Transport) Run(ctx context.Context, onMessage OnMessage) error {
	go func() {
		<-ctx.Done()
		t.Close()
	}()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				t.wg.Wait()
				return nil
			default:
				t.log.Warn().Err(err).Msg("accept error")
				continue
			}
		}
		link := newLink(conn, t.identity, t.log, t.metrics)
		t.wg.Add(1)
		go t.serve(link, onMessage)
	}
}

// Dial connects to addr ("host:port"), performs the handshake as
// initiator, and returns the Link once its handshake frames have been
// sent. The same Link is then driven by serve's read loop on its own
// goroutine for the rest of the connection's lifetime.
func (t *Transport) Dial(ctx context.Context, addr string, onMessage OnMessage) (*Link, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("dial address %q: %w", addr, err)
	}
	if addr == t.selfAddress() {
		return nil, axiomerr.ErrSelfConnection
	}

	dialer := &net.Dialer{Timeout: DialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	link := newLink(conn, t.identity, t.log, t.metrics)
	if err := link.sendHandshake(t.cfg.AdvertisedPort); err != nil {
		conn.Close()
		return nil, err
	}

	t.wg.Add(1)
	go t.serve(link, onMessage)
	return link, nil
}

// serve sends this side's handshake (a no-op if Dial already sent it for
// this link) and then reads frames off link until it closes. Both the
// dialing and the accepting side send the same two handshake frames, so
// an accepted connection's handshake is sent from here.
func (t *Transport) serve(link *Link, onMessage OnMessage) {
	defer t.wg.Done()
	defer link.Close()

	if err := link.sendHandshake(t.cfg.AdvertisedPort); err != nil {
		t.log.Warn().Err(err).Msg("failed to send handshake")
		return
	}

	wrapped := func(l *Link, msg *Message) {
		if l.stage == stageComplete && !t.registered(l) {
			t.register(l)
		}
		t.handleProtocolMessage(l, msg, onMessage)
	}

	if err := link.readFrames(wrapped); err != nil {
		t.log.Debug().Err(err).Msg("link closed")
	}
	t.unregister(link)
}

func (t *Transport) registered(l *Link) bool {
	return t.isConnectedTo(l.Address())
}

func (t *Transport) isConnectedTo(address string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.links[address]
	return ok
}

func (t *Transport) register(l *Link) {
	t.mu.Lock()
	t.links[l.Address()] = l
	count := len(t.links)
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.PeersConnected.Set(float64(count))
	}
	t.log.Info().Str("peer", l.Address()).Msg("peer handshaked")
}

func (t *Transport) unregister(l *Link) {
	t.mu.Lock()
	delete(t.links, l.Address())
	count := len(t.links)
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.PeersConnected.Set(float64(count))
	}
}

// handleProtocolMessage answers PEERS_REQUEST/PEERS_SHARING itself and
// forwards anything else (APPLICATION) to onMessage (spec section 4.4).
func (t *Transport) handleProtocolMessage(l *Link, msg *Message, onMessage OnMessage) {
	switch msg.Type {
	case MessageTypePeersRequest:
		if err := l.SendMessage(NewPeersSharing(t.connectedPeerAddresses())); err != nil {
			t.log.Warn().Err(err).Msg("failed to answer PEERS_REQUEST")
		}
	case MessageTypePeersSharing:
		t.handlePeersSharing(msg.PeersSharing, onMessage)
	default:
		onMessage(l, msg)
	}
}

func (t *Transport) connectedPeerAddresses() []PeerAddress {
	t.mu.Lock()
	defer t.mu.Unlock()
	peers := make([]PeerAddress, 0, len(t.links))
	for _, l := range t.links {
		if !l.Handshaked() {
			continue
		}
		peers = append(peers, PeerAddress{IP: l.RemoteHost(), Port: l.PeerListenPort()})
	}
	return peers
}

// handlePeersSharing dials any advertised (ip, port) not already linked
// and not matching this node's own self address (spec section 4.4).
func (t *Transport) handlePeersSharing(content *PeersSharingContent, onMessage OnMessage) {
	if content == nil {
		return
	}
	self := t.selfAddress()
	for _, p := range content.Peers {
		addr := net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
		if addr == self {
			continue
		}
		if t.isConnectedTo(addr) {
			continue
		}
		go func(addr string) {
			ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
			defer cancel()
			if _, err := t.Dial(ctx, addr, onMessage); err != nil {
				t.log.Debug().Err(err).Str("peer", addr).Msg("discovery dial failed")
			}
		}(addr)
	}
}

// Broadcast sends msg to every currently handshaked peer.
func (t *Transport) Broadcast(msg *Message) {
	t.mu.Lock()
	links := make([]*Link, 0, len(t.links))
	for _, l := range t.links {
		links = append(links, l)
	}
	t.mu.Unlock()

	for _, l := range links {
		if err := l.SendMessage(msg); err != nil {
			t.log.Warn().Err(err).Str("peer", l.Address()).Msg("broadcast failed")
		}
	}
}

// RequestPeers sends a PEERS_REQUEST to bootstrap, the first step of
// discovery on startup (spec section 4.4).
func (t *Transport) RequestPeers(ctx context.Context, bootstrap string, onMessage OnMessage) error {
	link, err := t.Dial(ctx, bootstrap, onMessage)
	if err != nil {
		return err
	}
	return link.SendMessage(NewPeersRequest())
}

// Peers returns every currently handshaked Link.
func (t *Transport) Peers() []*Link {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Link, 0, len(t.links))
	for _, l := range t.links {
		out = append(out, l)
	}
	return out
}

// Close shuts down the listener and every live link.
func (t *Transport) Close() error {
	t.mu.Lock()
	for _, l := range t.links {
		l.Close()
	}
	t.mu.Unlock()
	return t.listener.Close()
}
