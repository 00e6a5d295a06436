package main

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"chatfed/wire"
	"chatfed/workproof"
)

// workProofSearchBound caps how long Generate searches before giving up;
// a real deployment's WORKPROOF_STRENGTH should be tuned so this is
// never hit in practice.
const workProofSearchBound = 1 << 24

func main() {
	app := cli.NewApp()
	app.Name = "chatcli"
	app.Usage = "federated chat client"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "name", Usage: "display name to register as", Required: true},
		cli.StringFlag{Name: "server", Value: "127.0.0.1:4666", Usage: "address of the home server's client port"},
		cli.UintFlag{Name: "workproof-strength", Value: 10, Usage: "leading zero bits to target on generated workproofs"},
		cli.DurationFlag{Name: "poll-interval", Value: time.Second, Usage: "how often to poll the server for new messages"},
		cli.StringFlag{Name: "log-level", Value: "warn", Usage: "logrus level (debug, info, warn, error)"},
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

	serverAddr, err := net.ResolveUDPAddr("udp", c.String("server"))
	if err != nil {
		return fmt.Errorf("resolving server address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, serverAddr)
	if err != nil {
		return fmt.Errorf("dialing server: %w", err)
	}
	defer conn.Close()

	strength := c.Uint("workproof-strength")
	session := &clientSession{
		conn:     conn,
		strength: strength,
		nextSeq:  1,
		log:      entry,
	}

	id, err := session.register(c.String("name"))
	if err != nil {
		return fmt.Errorf("registering: %w", err)
	}
	session.self = id
	entry.WithField("client_id", id).Info("registered")

	go session.pollLoop(c.Duration("poll-interval"))
	return session.repl()
}

// clientSession tracks everything needed to keep sending well-formed
// Sequence envelopes to one home server: the assigned identity, the
// monotonically increasing seqid, and a resolved display-name index so
// a "<name> <message>" line can name its recipient instead of a raw
// ClientId.
type clientSession struct {
	conn     *net.UDPConn
	self     wire.ClientId
	strength uint
	nextSeq  uint64
	log      *logrus.Entry

	users map[string]wire.ClientId
}

// register performs the one request that precedes having a real
// identity: it signs with a throwaway placeholder id purely to satisfy
// the wire envelope, per the server's documented exception for this
// request kind.
func (s *clientSession) register(name string) (wire.ClientId, error) {
	placeholder := wire.NewClientId()
	proof, ok := workproof.Generate(placeholder.Nonce(), s.strength, workProofSearchBound)
	if !ok {
		return wire.ClientId{}, fmt.Errorf("could not find a workproof witness within bound")
	}
	seq := wire.Sequence[wire.ClientQuery]{
		SeqId:     wire.U128FromUint64(0),
		Src:       placeholder,
		WorkProof: proof,
		Content:   wire.QueryRegister{Name: name},
	}
	if err := s.send(seq); err != nil {
		return wire.ClientId{}, err
	}
	buf, err := s.recv()
	if err != nil {
		return wire.ClientId{}, err
	}
	return wire.DecodeClientId(bytes.NewReader(buf))
}

func (s *clientSession) send(seq wire.Sequence[wire.ClientQuery]) error {
	var buf bytes.Buffer
	if err := wire.EncodeSequence(&buf, seq, wire.EncodeClientQuery); err != nil {
		return err
	}
	_, err := s.conn.Write(buf.Bytes())
	return err
}

func (s *clientSession) recv() ([]byte, error) {
	buf := make([]byte, 8*1024)
	n, err := s.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// request wraps content in a freshly-sequenced, freshly-proven envelope
// and sends it. The seqid counter only advances after a successful
// send, matching the server's strictly-increasing-per-src requirement.
func (s *clientSession) request(content wire.ClientQuery) error {
	proof, ok := workproof.Generate(s.self.Nonce(), s.strength, workProofSearchBound)
	if !ok {
		return fmt.Errorf("could not find a workproof witness within bound")
	}
	seq := wire.Sequence[wire.ClientQuery]{
		SeqId:     wire.U128FromUint64(s.nextSeq),
		Src:       s.self,
		WorkProof: proof,
		Content:   content,
	}
	if err := s.send(seq); err != nil {
		return err
	}
	s.nextSeq++
	return nil
}

func (s *clientSession) listUsers() (map[wire.ClientId]string, error) {
	if err := s.request(wire.QueryListUsers{}); err != nil {
		return nil, err
	}
	buf, err := s.recv()
	if err != nil {
		return nil, err
	}
	return wire.DecodeMap(bytes.NewReader(buf), wire.DecodeClientId, wire.DecodeString)
}

func (s *clientSession) sendMessage(dest wire.ClientId, content string) ([]wire.ClientReply, error) {
	if err := s.request(wire.QueryMessage{Msg: wire.TextMessage{Dest: dest, Content: content}}); err != nil {
		return nil, err
	}
	buf, err := s.recv()
	if err != nil {
		return nil, err
	}
	return wire.DecodeClientReplies(bytes.NewReader(buf))
}

func (s *clientSession) poll() (wire.ClientPollReply, error) {
	if err := s.request(wire.QueryPoll{}); err != nil {
		return nil, err
	}
	buf, err := s.recv()
	if err != nil {
		return nil, err
	}
	return wire.DecodeClientPollReply(bytes.NewReader(buf))
}

func (s *clientSession) pollLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		reply, err := s.poll()
		if err != nil {
			s.log.WithError(err).Warn("poll failed")
			continue
		}
		switch r := reply.(type) {
		case wire.PollNothing:
		case wire.PollMessage:
			fmt.Printf("%s: %s\n", s.displayName(r.Src), r.Content)
		case wire.PollDelayedError:
			s.log.WithField("error", r.Err).Debug("delayed delivery error")
		}
	}
}

func (s *clientSession) displayName(id wire.ClientId) string {
	for name, cid := range s.users {
		if cid == id {
			return name
		}
	}
	return id.String()
}

// repl reads "/list", "/quit", and "<name> <message>" lines from stdin,
// mirroring the three commands the reference lab's client offered.
func (s *clientSession) repl() error {
	reader := bufio.NewReader(os.Stdin)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/list":
			users, err := s.listUsers()
			if err != nil {
				s.log.WithError(err).Warn("list failed")
				continue
			}
			s.users = make(map[string]wire.ClientId, len(users))
			for id, name := range users {
				s.users[name] = id
				fmt.Printf("%s - %s\n", name, id)
			}
		default:
			target, message, ok := strings.Cut(line, " ")
			if !ok {
				fmt.Fprintln(os.Stderr, "usage: <name> <message>")
				continue
			}
			dest, known := s.users[target]
			if !known {
				fmt.Fprintf(os.Stderr, "unknown user %q, try /list\n", target)
				continue
			}
			replies, err := s.sendMessage(dest, message)
			if err != nil {
				s.log.WithError(err).Warn("send failed")
				continue
			}
			for _, r := range replies {
				switch rr := r.(type) {
				case wire.ReplyDelivered:
				case wire.ReplyDelayed:
					fmt.Fprintln(os.Stderr, "delayed...")
				case wire.ReplyError:
					fmt.Fprintf(os.Stderr, "error: %s\n", rr.Err)
				case wire.ReplyTransfer:
					s.log.WithField("next_hop", rr.Next).Debug("message transferred to federation")
				}
			}
		}
	}
}
