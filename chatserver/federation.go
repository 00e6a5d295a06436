package chatserver

import "chatfed/wire"

// Outgoing is a ServerMessage this server has decided to send onward to
// a neighbor, produced by HandleServerMessage. It is never itself put on
// the wire: the server-to-server frame is the ServerMessage directly —
// the listener loop sends Message to To verbatim.
type Outgoing struct {
	To      wire.ServerId
	Message wire.ServerMessage
}

// ServerReply is the sum type HandleServerMessage returns:
// either the announced route was empty, or zero-or-more frames to relay.
type ServerReply interface{ isServerReply() }

// ReplyEmptyRoute reports that an Announce carried an empty route.
type ReplyEmptyRoute struct{}

// ReplyOutgoing carries the (possibly empty) set of frames to relay.
type ReplyOutgoing struct{ Items []Outgoing }

func (ReplyEmptyRoute) isServerReply() {}
func (ReplyOutgoing) isServerReply()   {}

// HandleServerMessage dispatches to the handler for whichever
// ServerMessage variant was decoded.
func (s *Server) HandleServerMessage(msg wire.ServerMessage) ServerReply {
	switch m := msg.(type) {
	case wire.Announce:
		return s.handleAnnounce(m)
	case wire.ServerForward:
		return s.handleForward(m.Msg)
	default:
		return ReplyOutgoing{}
	}
}

func (s *Server) handleAnnounce(ann wire.Announce) ServerReply {
	if len(ann.Route) == 0 {
		return ReplyEmptyRoute{}
	}
	dst := ann.Route[len(ann.Route)-1]
	nextHop := ann.Route[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	s.storeRouteLocked(dst, ann.Route)
	s.metrics.announcesHandled.Inc()

	var outgoing []Outgoing
	for cid := range ann.Clients {
		entry, exists := s.clients[cid]
		if exists {
			if _, isLocal := entry.record.(LocalClient); isLocal {
				// Local always wins; an announcement never downgrades
				// a local client to Remote.
				continue
			}
			entry.record = RemoteClient{Via: &dst}
			for {
				e, ok := entry.mailbox.pop()
				if !ok {
					break
				}
				outgoing = append(outgoing, Outgoing{
					To: nextHop,
					Message: wire.ServerForward{Msg: wire.FullyQualifiedMessage{
						Src:     e.Src,
						SrcSrv:  s.id,
						Dsts:    []wire.Destination{{Client: cid, Server: dst}},
						Content: e.Content,
					}},
				})
			}
			continue
		}
		s.clients[cid] = &clientEntry{
			record:  RemoteClient{Via: &dst},
			mailbox: newMailbox(s.mailboxSize),
		}
	}
	return ReplyOutgoing{Items: outgoing}
}

func (s *Server) handleForward(fqm wire.FullyQualifiedMessage) ServerReply {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outgoing []Outgoing
	for _, dst := range fqm.Dsts {
		if dst.Server == s.id {
			if delivered := s.deliverLocalLocked(fqm, dst, &outgoing); delivered {
				continue
			}
		}
		nextHop, ok := s.firstHopLocked(dst.Server)
		if !ok {
			s.metrics.outgoingDropped.Inc()
			s.log.WithField("destination_server", dst.Server).
				WithField("destination_client", dst.Client).
				Warn("dropping forwarded message: no known route")
			continue
		}
		outgoing = append(outgoing, Outgoing{
			To: nextHop,
			Message: wire.ServerForward{Msg: wire.FullyQualifiedMessage{
				Src:     fqm.Src,
				SrcSrv:  fqm.SrcSrv,
				Dsts:    []wire.Destination{dst},
				Content: fqm.Content,
			}},
		})
	}
	return ReplyOutgoing{Items: outgoing}
}

// deliverLocalLocked attempts local delivery for a forwarded message
// addressed to a client claimed to live on this server. It reports true
// once the destination has been handled one way or another (delivered,
// or an overflow has been surfaced/logged), so the caller does not also
// fall through to route-based forwarding for a Local client. It reports
// false only when dst.Client is not actually Local here, letting the
// caller's routing fallback take over (e.g. the client is unknown, or is
// itself a Remote record buffered on this server).
func (s *Server) deliverLocalLocked(fqm wire.FullyQualifiedMessage, dst wire.Destination, outgoing *[]Outgoing) bool {
	entry, ok := s.clients[dst.Client]
	if !ok {
		return false
	}
	if _, isLocal := entry.record.(LocalClient); !isLocal {
		return false
	}
	if err := entry.mailbox.push(MailboxEntry{Src: fqm.Src, Content: fqm.Content}); err != nil {
		s.metrics.mailboxFull.Inc()
		s.log.WithField("client", dst.Client).Warn("mailbox full on remotely-originated delivery")
		if nextHop, known := s.firstHopLocked(fqm.SrcSrv); known {
			*outgoing = append(*outgoing, Outgoing{
				To: nextHop,
				Message: wire.ServerForward{Msg: wire.FullyQualifiedMessage{
					Src:     dst.Client,
					SrcSrv:  s.id,
					Dsts:    []wire.Destination{{Client: fqm.Src, Server: fqm.SrcSrv}},
					Content: "internal-error: mailbox full",
				}},
			})
		}
		return true
	}
	s.metrics.mailboxOccupancy.Observe(float64(entry.mailbox.len()))
	return true
}
