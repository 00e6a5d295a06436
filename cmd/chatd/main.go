package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/sys/unix"

	"chatfed/chatserver"
	"chatfed/wire"
)

const maxDatagram = 8 * 1024

func main() {
	app := cli.NewApp()
	app.Name = "chatd"
	app.Usage = "federated store-and-forward chat server"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "client-listen", Value: ":4666", Usage: "address to listen for clients on"},
		cli.StringFlag{Name: "server-listen", Value: ":4667", Usage: "address to listen for peer servers on"},
		cli.StringFlag{Name: "metrics-listen", Value: ":9100", Usage: "address to serve Prometheus metrics on"},
		cli.IntFlag{Name: "mailbox-size", Value: chatserver.DefaultMailboxSize, Usage: "bound on per-client queued messages"},
		cli.UintFlag{Name: "workproof-strength", Value: 10, Usage: "required leading zero bits on client workproofs"},
		cli.StringSliceFlag{Name: "peer", Usage: "address of a neighbor server to announce routes to (repeatable)"},
		cli.DurationFlag{Name: "announce-interval", Value: 30 * time.Second, Usage: "how often to re-announce this server to its peers"},
		cli.StringFlag{Name: "log-level", Value: "info", Usage: "logrus level (debug, info, warn, error)"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	entry := logrus.NewEntry(log)

	selfID := wire.NewServerId()
	metrics := chatserver.NewMetrics(prometheus.DefaultRegisterer)
	srv := chatserver.NewServer(chatserver.Config{
		ID:                selfID,
		MailboxSize:       c.Int("mailbox-size"),
		WorkProofStrength: c.Uint("workproof-strength"),
		Metrics:           metrics,
		Log:               entry,
	})
	entry.WithField("server_id", selfID).Info("starting chatd")

	clientConn, err := listenUDPReuseAddr(c.String("client-listen"))
	if err != nil {
		return fmt.Errorf("client listener: %w", err)
	}
	defer clientConn.Close()

	serverConn, err := listenUDPReuseAddr(c.String("server-listen"))
	if err != nil {
		return fmt.Errorf("server listener: %w", err)
	}
	defer serverConn.Close()

	book := newPeerBook()
	for _, addr := range c.StringSlice("peer") {
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			entry.WithError(err).WithField("peer", addr).Warn("could not resolve static peer, skipping")
			continue
		}
		book.addStatic(udpAddr)
	}

	go announceLoop(serverConn, srv, book, c.Duration("announce-interval"), entry)
	go serveMetrics(c.String("metrics-listen"), entry)
	go serverLoop(serverConn, srv, book, entry)

	clientLoop(clientConn, srv, entry)
	return nil
}

func serveMetrics(addr string, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics server exited")
	}
}

// listenUDPReuseAddr binds a UDP socket with SO_REUSEADDR set, so a
// restarted process doesn't have to wait out the previous socket's
// TIME_WAIT before it can bind the same port again.
func listenUDPReuseAddr(addr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, rc syscall.RawConn) error {
			var sockErr error
			err := rc.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// peerBook maps a directly-connected neighbor's ServerId to the UDP
// address it was last heard from. Every route's first hop is, by
// construction, a direct neighbor, so this is the only address
// resolution chatd needs to relay an Outgoing frame onward. Transfer
// replies are sent back to the requesting client as they are; chatd does
// not relay their embedded frame.
type peerBook struct {
	mu      sync.RWMutex
	byID    map[wire.ServerId]*net.UDPAddr
	statics []*net.UDPAddr
}

func newPeerBook() *peerBook {
	return &peerBook{byID: make(map[wire.ServerId]*net.UDPAddr)}
}

func (b *peerBook) addStatic(addr *net.UDPAddr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statics = append(b.statics, addr)
}

func (b *peerBook) learn(id wire.ServerId, addr *net.UDPAddr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byID[id] = addr
}

func (b *peerBook) lookup(id wire.ServerId) (*net.UDPAddr, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	addr, ok := b.byID[id]
	return addr, ok
}

func (b *peerBook) staticAddrs() []*net.UDPAddr {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*net.UDPAddr, len(b.statics))
	copy(out, b.statics)
	return out
}

// announceLoop periodically advertises this server's own reachability,
// as the single-hop route [self] with its Local clients, to every
// configured static neighbor. Routes learned from other servers are not
// re-advertised.
func announceLoop(conn *net.UDPConn, srv *chatserver.Server, book *peerBook, interval time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		for _, addr := range book.staticAddrs() {
			ann := wire.Announce{Route: []wire.ServerId{srv.ID()}, Clients: srv.ListUsers()}
			if err := sendServerMessage(conn, addr, ann); err != nil {
				log.WithError(err).WithField("peer", addr).Warn("could not send announce")
			}
		}
	}
}

func sendServerMessage(conn *net.UDPConn, addr *net.UDPAddr, msg wire.ServerMessage) error {
	var buf bytes.Buffer
	if err := wire.EncodeServerMessage(&buf, msg); err != nil {
		return err
	}
	_, err := conn.WriteToUDP(buf.Bytes(), addr)
	return err
}

func serverLoop(conn *net.UDPConn, srv *chatserver.Server, book *peerBook, log *logrus.Entry) {
	buf := make([]byte, maxDatagram)
	for {
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			log.WithError(err).Error("server listener read failed")
			continue
		}
		msg, err := wire.DecodeServerMessage(bytes.NewReader(buf[:n]))
		if err != nil {
			log.WithError(err).WithField("peer", peer).Warn("could not decode server message")
			continue
		}
		if ann, ok := msg.(wire.Announce); ok && len(ann.Route) > 0 {
			book.learn(ann.Route[0], peer)
		}
		reply := srv.HandleServerMessage(msg)
		out, ok := reply.(chatserver.ReplyOutgoing)
		if !ok {
			continue
		}
		for _, item := range out.Items {
			addr, known := book.lookup(item.To)
			if !known {
				log.WithField("next_hop", item.To).Warn("no known address for next hop, dropping outgoing frame")
				continue
			}
			if err := sendServerMessage(conn, addr, item.Message); err != nil {
				log.WithError(err).WithField("peer", addr).Warn("could not relay outgoing frame")
			}
		}
	}
}

func clientLoop(conn *net.UDPConn, srv *chatserver.Server, log *logrus.Entry) {
	buf := make([]byte, maxDatagram)
	for {
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			log.WithError(err).Error("client listener read failed")
			continue
		}
		seq, err := wire.DecodeSequence(bytes.NewReader(buf[:n]), wire.DecodeClientQuery)
		if err != nil {
			log.WithError(err).WithField("peer", peer).Warn("could not decode client request")
			continue
		}

		reply, err := dispatchClientQuery(srv, seq)
		if err != nil {
			log.WithError(err).WithField("peer", peer).Warn("could not encode reply")
			continue
		}
		if _, err := conn.WriteToUDP(reply, peer); err != nil {
			log.WithError(err).WithField("peer", peer).Warn("could not send reply")
		}
	}
}

// dispatchClientQuery admits the envelope, runs the requested operation,
// and encodes whichever of the four reply shapes that operation uses.
// Register is special-cased: the client has no ClientId of its own yet,
// so it signs the request with a throwaway placeholder purely to satisfy
// the envelope's workproof requirement. See DESIGN.md for why this
// bypasses the normal "sender must already be a known Local client"
// admission check rather than running through it.
func dispatchClientQuery(srv *chatserver.Server, seq wire.Sequence[wire.ClientQuery]) ([]byte, error) {
	var buf bytes.Buffer

	if reg, ok := seq.Content.(wire.QueryRegister); ok {
		if !srv.VerifyWorkProofOnly(seq.Src, seq.WorkProof) {
			return encodeReplyBuf(&buf, wire.ErrWorkProof{})
		}
		id := srv.RegisterLocalClient(reg.Name)
		if err := wire.EncodeClientId(&buf, id); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	content, cerr := chatserver.HandleSequencedMessage(srv, seq)
	if cerr != nil {
		return encodeReplyBuf(&buf, cerr)
	}

	switch q := content.(type) {
	case wire.QueryMessage:
		replies := srv.HandleClientMessage(seq.Src, q.Msg)
		if err := wire.EncodeClientReplies(&buf, replies); err != nil {
			return nil, err
		}
	case wire.QueryListUsers:
		if err := wire.EncodeMap(&buf, srv.ListUsers(), wire.EncodeClientId, wire.EncodeString); err != nil {
			return nil, err
		}
	case wire.QueryPoll:
		if err := wire.EncodeClientPollReply(&buf, srv.ClientPoll(seq.Src)); err != nil {
			return nil, err
		}
	default:
		return encodeReplyBuf(&buf, wire.ErrInternal{})
	}
	return buf.Bytes(), nil
}

// encodeReplyBuf encodes a single ClientError as the one-element
// []ClientReply shape every rejected Message/Register/ListUsers/Poll
// request gets back, the same shape regardless of which operation
// failed admission.
func encodeReplyBuf(buf *bytes.Buffer, cerr wire.ClientError) ([]byte, error) {
	if err := wire.EncodeClientReplies(buf, []wire.ClientReply{wire.ReplyError{Err: cerr}}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
