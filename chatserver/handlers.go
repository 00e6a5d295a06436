package chatserver

import (
	"chatfed/wire"
	"chatfed/workproof"
)

// HandleSequencedMessage runs the admission sequence on any
// payload type T: verify proof-of-work, then check the source is a known
// Local client whose last accepted seqid is strictly less than this one.
// On success it advances LastSequence and returns the payload; on
// failure it returns the zero value of T and the ClientError to report.
// No state is mutated on any rejection path.
func HandleSequencedMessage[T any](s *Server, seq wire.Sequence[T]) (T, wire.ClientError) {
	var zero T

	nonce := seq.Src.Nonce()
	if !workproof.Verify(nonce, seq.WorkProof, s.workproofStrength) {
		s.metrics.workproofRejected.Inc()
		return zero, wire.ErrWorkProof{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.clients[seq.Src]
	if !ok {
		return zero, wire.ErrUnknownClient{}
	}
	local, isLocal := entry.record.(LocalClient)
	if !isLocal {
		return zero, wire.ErrUnknownClient{}
	}
	if local.LastSequence.Cmp(seq.SeqId) >= 0 {
		s.metrics.sequenceRejected.Inc()
		return zero, wire.ErrSequenceError{}
	}

	local.LastSequence = seq.SeqId
	entry.record = local
	return seq.Content, nil
}

// VerifyWorkProofOnly checks a workproof witness against src's nonce
// without requiring src to already be a known Local client. It exists
// for registration: a not-yet-registered client has no identity the
// admission table could recognize, so the listener uses this instead of
// the full HandleSequencedMessage gate for that one request kind.
func (s *Server) VerifyWorkProofOnly(src wire.ClientId, proof uint64) bool {
	ok := workproof.Verify(src.Nonce(), proof, s.workproofStrength)
	if !ok {
		s.metrics.workproofRejected.Inc()
	}
	return ok
}

// HandleClientMessage dispatches a ClientMessage to one or more
// recipients. Text yields one reply; MText yields one reply
// per destination, in order, all carrying the same content.
func (s *Server) HandleClientMessage(src wire.ClientId, msg wire.ClientMessage) []wire.ClientReply {
	switch m := msg.(type) {
	case wire.TextMessage:
		return []wire.ClientReply{s.dispatchOne(src, m.Dest, m.Content)}
	case wire.MTextMessage:
		replies := make([]wire.ClientReply, 0, len(m.Dest))
		for _, dest := range m.Dest {
			replies = append(replies, s.dispatchOne(src, dest, m.Content))
		}
		return replies
	default:
		// ClientMessage is sealed to the two variants above; an
		// unreachable default keeps the switch exhaustive for the
		// compiler without a panic on the hot path.
		return []wire.ClientReply{wire.ReplyError{Err: wire.ErrInternal{}}}
	}
}

// dispatchOne implements dispatch_one for a single recipient.
func (s *Server) dispatchOne(src, dest wire.ClientId, content string) wire.ClientReply {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.clients[dest]
	if !ok {
		entry = &clientEntry{record: RemoteClient{Via: nil}, mailbox: newMailbox(s.mailboxSize)}
		s.clients[dest] = entry
		// A brand new mailbox is always below capacity: NewServer
		// replaces a bound of 0 or less with DefaultMailboxSize.
		_ = entry.mailbox.push(MailboxEntry{Src: src, Content: content})
		return wire.ReplyDelayed{}
	}

	switch rec := entry.record.(type) {
	case LocalClient:
		if err := entry.mailbox.push(MailboxEntry{Src: src, Content: content}); err != nil {
			s.metrics.mailboxFull.Inc()
			return wire.ReplyError{Err: wire.ErrBoxFull{Client: dest}}
		}
		s.metrics.mailboxOccupancy.Observe(float64(entry.mailbox.len()))
		return wire.ReplyDelivered{}

	case RemoteClient:
		if rec.Via == nil {
			if err := entry.mailbox.push(MailboxEntry{Src: src, Content: content}); err != nil {
				// A full mailbox is refused the same way regardless of
				// whether the record is Local or a buffering Remote.
				s.metrics.mailboxFull.Inc()
				return wire.ReplyError{Err: wire.ErrBoxFull{Client: dest}}
			}
			return wire.ReplyDelayed{}
		}

		nextHop, ok := s.firstHopLocked(*rec.Via)
		if !ok {
			// A Remote record only ever gets Via set alongside a stored
			// route to that same server (see federation.go Announce
			// handling), so this should be unreachable; fail closed.
			return wire.ReplyError{Err: wire.ErrInternal{}}
		}
		s.metrics.transfersEmitted.Inc()
		return wire.ReplyTransfer{
			Next: nextHop,
			Message: wire.ServerForward{Msg: wire.FullyQualifiedMessage{
				Src:     src,
				SrcSrv:  s.id,
				Dsts:    []wire.Destination{{Client: dest, Server: *rec.Via}},
				Content: content,
			}},
		}

	default:
		return wire.ReplyError{Err: wire.ErrInternal{}}
	}
}

// ClientPoll implements client_poll: pop the front mailbox
// entry for client, or report why there is nothing to pop.
func (s *Server) ClientPoll(client wire.ClientId) wire.ClientPollReply {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.clients[client]
	if !ok {
		return wire.PollDelayedError{Err: wire.UnknownRecipient{Client: client}}
	}
	if e, ok := entry.mailbox.pop(); ok {
		return wire.PollMessage{Src: e.Src, Content: e.Content}
	}
	return wire.PollNothing{}
}
