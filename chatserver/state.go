package chatserver

import (
	"sync"

	"github.com/sirupsen/logrus"

	"chatfed/wire"
)

// DefaultMailboxSize is the recommended per-client mailbox bound.
const DefaultMailboxSize = 256

// Server is the (id, clients, routes) triple. The whole pair of maps
// shares one RWMutex: ListUsers and RouteTo take the shared lock, every
// other operation takes it exclusively for the full duration of its
// decision so that within one src, admission plus exclusive locking
// gives serial semantics.
type Server struct {
	id ServerID

	mu      sync.RWMutex
	clients map[wire.ClientId]*clientEntry
	routes  map[wire.ServerId][]wire.ServerId

	mailboxSize       int
	workproofStrength uint

	metrics *Metrics
	log     *logrus.Entry
}

// ServerID is an alias kept local to this package so call sites read
// "chatserver.ServerID" rather than reaching back into wire for the bare
// identifier type.
type ServerID = wire.ServerId

// Config bundles the tunables so tests and cmd/chatd can vary them
// without touching Server's field list.
type Config struct {
	ID                ServerID
	MailboxSize       int
	WorkProofStrength uint
	Metrics           *Metrics
	Log               *logrus.Entry
}

// NewServer builds an empty server with no clients and no known routes.
func NewServer(cfg Config) *Server {
	mailboxSize := cfg.MailboxSize
	if mailboxSize <= 0 {
		mailboxSize = DefaultMailboxSize
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Server{
		id:                cfg.ID,
		clients:           make(map[wire.ClientId]*clientEntry),
		routes:            make(map[wire.ServerId][]wire.ServerId),
		mailboxSize:       mailboxSize,
		workproofStrength: cfg.WorkProofStrength,
		metrics:           metrics,
		log:               log,
	}
}

// ID returns this server's own identifier.
func (s *Server) ID() ServerID { return s.id }

// RegisterLocalClient mints a fresh ClientId and inserts a Local record
// for it. Collisions against an existing id are astronomically
// unlikely but handled by retrying, never by overwriting.
func (s *Server) RegisterLocalClient(name string) wire.ClientId {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		id := wire.NewClientId()
		if _, exists := s.clients[id]; exists {
			continue
		}
		s.clients[id] = &clientEntry{
			record:  LocalClient{Name: name, LastSequence: wire.U128FromUint64(0)},
			mailbox: newMailbox(s.mailboxSize),
		}
		s.metrics.clientsRegistered.Inc()
		return id
	}
}

// ListUsers returns the names of every Local client; Remote clients
// never appear.
func (s *Server) ListUsers() map[wire.ClientId]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[wire.ClientId]string)
	for id, entry := range s.clients {
		if local, ok := entry.record.(LocalClient); ok {
			out[id] = local.Name
		}
	}
	return out
}
