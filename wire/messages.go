package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Every sum type in this file is tagged by a single raw leading byte,
// followed by its payload fields in declaration order. The
// Go encoding of a sum type is an interface with one struct per variant;
// switching on the concrete type at encode time and on the tag byte at
// decode time keeps both directions exhaustive.

// --- AuthMessage ---

type AuthMessage interface{ isAuthMessage() }

type AuthHello struct {
	User  ClientId
	Nonce [8]byte
}

type AuthNonce struct {
	Server ServerId
	Nonce  [8]byte
}

type AuthAuth struct {
	Response [16]byte
}

func (AuthHello) isAuthMessage() {}
func (AuthNonce) isAuthMessage() {}
func (AuthAuth) isAuthMessage()  {}

const (
	tagAuthHello = 0
	tagAuthNonce = 1
	tagAuthAuth  = 2
)

func EncodeAuthMessage(w io.Writer, m AuthMessage) error {
	switch v := m.(type) {
	case AuthHello:
		if err := writeTag(w, tagAuthHello); err != nil {
			return err
		}
		if err := EncodeClientId(w, v.User); err != nil {
			return err
		}
		return writeFixed(w, v.Nonce[:])
	case AuthNonce:
		if err := writeTag(w, tagAuthNonce); err != nil {
			return err
		}
		if err := EncodeServerId(w, v.Server); err != nil {
			return err
		}
		return writeFixed(w, v.Nonce[:])
	case AuthAuth:
		if err := writeTag(w, tagAuthAuth); err != nil {
			return err
		}
		return writeFixed(w, v.Response[:])
	default:
		return fmt.Errorf("wire: unknown AuthMessage variant %T", m)
	}
}

func DecodeAuthMessage(r io.Reader) (AuthMessage, error) {
	tag, err := readTag(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagAuthHello:
		user, err := DecodeClientId(r)
		if err != nil {
			return nil, err
		}
		var nonce [8]byte
		if err := readFixed(r, nonce[:]); err != nil {
			return nil, err
		}
		return AuthHello{User: user, Nonce: nonce}, nil
	case tagAuthNonce:
		server, err := DecodeServerId(r)
		if err != nil {
			return nil, err
		}
		var nonce [8]byte
		if err := readFixed(r, nonce[:]); err != nil {
			return nil, err
		}
		return AuthNonce{Server: server, Nonce: nonce}, nil
	case tagAuthAuth:
		var resp [16]byte
		if err := readFixed(r, resp[:]); err != nil {
			return nil, err
		}
		return AuthAuth{Response: resp}, nil
	default:
		return nil, unknownVariant("AuthMessage", tag)
	}
}

// --- ClientMessage ---

type ClientMessage interface{ isClientMessage() }

type TextMessage struct {
	Dest    ClientId
	Content string
}

type MTextMessage struct {
	Dest    []ClientId
	Content string
}

func (TextMessage) isClientMessage()  {}
func (MTextMessage) isClientMessage() {}

const (
	tagText  = 0
	tagMText = 1
)

func EncodeClientMessage(w io.Writer, m ClientMessage) error {
	switch v := m.(type) {
	case TextMessage:
		if err := writeTag(w, tagText); err != nil {
			return err
		}
		if err := EncodeClientId(w, v.Dest); err != nil {
			return err
		}
		return EncodeString(w, v.Content)
	case MTextMessage:
		if err := writeTag(w, tagMText); err != nil {
			return err
		}
		if err := EncodeSlice(w, v.Dest, EncodeClientId); err != nil {
			return err
		}
		return EncodeString(w, v.Content)
	default:
		return fmt.Errorf("wire: unknown ClientMessage variant %T", m)
	}
}

func DecodeClientMessage(r io.Reader) (ClientMessage, error) {
	tag, err := readTag(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagText:
		dest, err := DecodeClientId(r)
		if err != nil {
			return nil, err
		}
		content, err := DecodeString(r)
		if err != nil {
			return nil, err
		}
		return TextMessage{Dest: dest, Content: content}, nil
	case tagMText:
		dest, err := DecodeSlice(r, DecodeClientId)
		if err != nil {
			return nil, err
		}
		content, err := DecodeString(r)
		if err != nil {
			return nil, err
		}
		return MTextMessage{Dest: dest, Content: content}, nil
	default:
		return nil, unknownVariant("ClientMessage", tag)
	}
}

// --- ClientError ---

type ClientError interface{ isClientError() }

type ErrWorkProof struct{}
type ErrUnknownClient struct{}
type ErrSequenceError struct{}
type ErrBoxFull struct{ Client ClientId }
type ErrInternal struct{}

func (ErrWorkProof) isClientError()     {}
func (ErrUnknownClient) isClientError() {}
func (ErrSequenceError) isClientError() {}
func (ErrBoxFull) isClientError()       {}
func (ErrInternal) isClientError()      {}

func (ErrWorkProof) Error() string     { return "workproof verification failed" }
func (ErrUnknownClient) Error() string { return "unknown client" }
func (ErrSequenceError) Error() string { return "sequence number not strictly increasing" }
func (e ErrBoxFull) Error() string     { return fmt.Sprintf("mailbox full for %s", e.Client) }
func (ErrInternal) Error() string      { return "internal error" }

const (
	tagErrWorkProof     = 0
	tagErrUnknownClient = 1
	tagErrSequenceError = 2
	tagErrBoxFull       = 3
	tagErrInternal      = 4
)

func EncodeClientError(w io.Writer, e ClientError) error {
	switch v := e.(type) {
	case ErrWorkProof:
		return writeTag(w, tagErrWorkProof)
	case ErrUnknownClient:
		return writeTag(w, tagErrUnknownClient)
	case ErrSequenceError:
		return writeTag(w, tagErrSequenceError)
	case ErrBoxFull:
		if err := writeTag(w, tagErrBoxFull); err != nil {
			return err
		}
		return EncodeClientId(w, v.Client)
	case ErrInternal:
		return writeTag(w, tagErrInternal)
	default:
		return fmt.Errorf("wire: unknown ClientError variant %T", e)
	}
}

func DecodeClientError(r io.Reader) (ClientError, error) {
	tag, err := readTag(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagErrWorkProof:
		return ErrWorkProof{}, nil
	case tagErrUnknownClient:
		return ErrUnknownClient{}, nil
	case tagErrSequenceError:
		return ErrSequenceError{}, nil
	case tagErrBoxFull:
		c, err := DecodeClientId(r)
		if err != nil {
			return nil, err
		}
		return ErrBoxFull{Client: c}, nil
	case tagErrInternal:
		return ErrInternal{}, nil
	default:
		return nil, unknownVariant("ClientError", tag)
	}
}

// --- ClientReply ---

type ClientReply interface{ isClientReply() }

type ReplyDelivered struct{}
type ReplyError struct{ Err ClientError }
type ReplyDelayed struct{}
type ReplyTransfer struct {
	Next    ServerId
	Message ServerMessage
}

func (ReplyDelivered) isClientReply() {}
func (ReplyError) isClientReply()     {}
func (ReplyDelayed) isClientReply()   {}
func (ReplyTransfer) isClientReply()  {}

const (
	tagReplyDelivered = 0
	tagReplyError     = 1
	tagReplyDelayed   = 2
	tagReplyTransfer  = 3
)

func EncodeClientReply(w io.Writer, rep ClientReply) error {
	switch v := rep.(type) {
	case ReplyDelivered:
		return writeTag(w, tagReplyDelivered)
	case ReplyError:
		if err := writeTag(w, tagReplyError); err != nil {
			return err
		}
		return EncodeClientError(w, v.Err)
	case ReplyDelayed:
		return writeTag(w, tagReplyDelayed)
	case ReplyTransfer:
		if err := writeTag(w, tagReplyTransfer); err != nil {
			return err
		}
		if err := EncodeServerId(w, v.Next); err != nil {
			return err
		}
		return EncodeServerMessage(w, v.Message)
	default:
		return fmt.Errorf("wire: unknown ClientReply variant %T", rep)
	}
}

func DecodeClientReply(r io.Reader) (ClientReply, error) {
	tag, err := readTag(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagReplyDelivered:
		return ReplyDelivered{}, nil
	case tagReplyError:
		e, err := DecodeClientError(r)
		if err != nil {
			return nil, err
		}
		return ReplyError{Err: e}, nil
	case tagReplyDelayed:
		return ReplyDelayed{}, nil
	case tagReplyTransfer:
		next, err := DecodeServerId(r)
		if err != nil {
			return nil, err
		}
		msg, err := DecodeServerMessage(r)
		if err != nil {
			return nil, err
		}
		return ReplyTransfer{Next: next, Message: msg}, nil
	default:
		return nil, unknownVariant("ClientReply", tag)
	}
}

func EncodeClientReplies(w io.Writer, reps []ClientReply) error {
	return EncodeSlice(w, reps, EncodeClientReply)
}

func DecodeClientReplies(r io.Reader) ([]ClientReply, error) {
	return DecodeSlice(r, DecodeClientReply)
}

// --- DelayedError ---

type DelayedError interface{ isDelayedError() }

type UnknownRecipient struct{ Client ClientId }

func (UnknownRecipient) isDelayedError() {}

const tagUnknownRecipient = 0

func EncodeDelayedError(w io.Writer, e DelayedError) error {
	switch v := e.(type) {
	case UnknownRecipient:
		if err := writeTag(w, tagUnknownRecipient); err != nil {
			return err
		}
		return EncodeClientId(w, v.Client)
	default:
		return fmt.Errorf("wire: unknown DelayedError variant %T", e)
	}
}

func DecodeDelayedError(r io.Reader) (DelayedError, error) {
	tag, err := readTag(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagUnknownRecipient:
		c, err := DecodeClientId(r)
		if err != nil {
			return nil, err
		}
		return UnknownRecipient{Client: c}, nil
	default:
		return nil, unknownVariant("DelayedError", tag)
	}
}

// --- ClientPollReply ---

type ClientPollReply interface{ isClientPollReply() }

type PollMessage struct {
	Src     ClientId
	Content string
}
type PollDelayedError struct{ Err DelayedError }
type PollNothing struct{}

func (PollMessage) isClientPollReply()      {}
func (PollDelayedError) isClientPollReply() {}
func (PollNothing) isClientPollReply()      {}

const (
	tagPollMessage      = 0
	tagPollDelayedError = 1
	tagPollNothing      = 2
)

func EncodeClientPollReply(w io.Writer, rep ClientPollReply) error {
	switch v := rep.(type) {
	case PollMessage:
		if err := writeTag(w, tagPollMessage); err != nil {
			return err
		}
		if err := EncodeClientId(w, v.Src); err != nil {
			return err
		}
		return EncodeString(w, v.Content)
	case PollDelayedError:
		if err := writeTag(w, tagPollDelayedError); err != nil {
			return err
		}
		return EncodeDelayedError(w, v.Err)
	case PollNothing:
		return writeTag(w, tagPollNothing)
	default:
		return fmt.Errorf("wire: unknown ClientPollReply variant %T", rep)
	}
}

func DecodeClientPollReply(r io.Reader) (ClientPollReply, error) {
	tag, err := readTag(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagPollMessage:
		src, err := DecodeClientId(r)
		if err != nil {
			return nil, err
		}
		content, err := DecodeString(r)
		if err != nil {
			return nil, err
		}
		return PollMessage{Src: src, Content: content}, nil
	case tagPollDelayedError:
		e, err := DecodeDelayedError(r)
		if err != nil {
			return nil, err
		}
		return PollDelayedError{Err: e}, nil
	case tagPollNothing:
		return PollNothing{}, nil
	default:
		return nil, unknownVariant("ClientPollReply", tag)
	}
}

// --- ClientQuery ---

type ClientQuery interface{ isClientQuery() }

type QueryRegister struct{ Name string }
type QueryMessage struct{ Msg ClientMessage }
type QueryListUsers struct{}
type QueryPoll struct{}

func (QueryRegister) isClientQuery()  {}
func (QueryMessage) isClientQuery()   {}
func (QueryListUsers) isClientQuery() {}
func (QueryPoll) isClientQuery()      {}

const (
	tagQueryRegister  = 0
	tagQueryMessage   = 1
	tagQueryListUsers = 2
	tagQueryPoll      = 3
)

func EncodeClientQuery(w io.Writer, q ClientQuery) error {
	switch v := q.(type) {
	case QueryRegister:
		if err := writeTag(w, tagQueryRegister); err != nil {
			return err
		}
		return EncodeString(w, v.Name)
	case QueryMessage:
		if err := writeTag(w, tagQueryMessage); err != nil {
			return err
		}
		return EncodeClientMessage(w, v.Msg)
	case QueryListUsers:
		return writeTag(w, tagQueryListUsers)
	case QueryPoll:
		return writeTag(w, tagQueryPoll)
	default:
		return fmt.Errorf("wire: unknown ClientQuery variant %T", q)
	}
}

func DecodeClientQuery(r io.Reader) (ClientQuery, error) {
	tag, err := readTag(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagQueryRegister:
		name, err := DecodeString(r)
		if err != nil {
			return nil, err
		}
		return QueryRegister{Name: name}, nil
	case tagQueryMessage:
		msg, err := DecodeClientMessage(r)
		if err != nil {
			return nil, err
		}
		return QueryMessage{Msg: msg}, nil
	case tagQueryListUsers:
		return QueryListUsers{}, nil
	case tagQueryPoll:
		return QueryPoll{}, nil
	default:
		return nil, unknownVariant("ClientQuery", tag)
	}
}

// --- Destination / FullyQualifiedMessage ---

// Destination is one (client, server) pair in a FullyQualifiedMessage's
// destination list.
type Destination struct {
	Client ClientId
	Server ServerId
}

func EncodeDestination(w io.Writer, d Destination) error {
	if err := EncodeClientId(w, d.Client); err != nil {
		return err
	}
	return EncodeServerId(w, d.Server)
}

func DecodeDestination(r io.Reader) (Destination, error) {
	c, err := DecodeClientId(r)
	if err != nil {
		return Destination{}, err
	}
	s, err := DecodeServerId(r)
	if err != nil {
		return Destination{}, err
	}
	return Destination{Client: c, Server: s}, nil
}

// FullyQualifiedMessage is the inter-server envelope for a message that
// has a fully resolved (client, server) destination list.
type FullyQualifiedMessage struct {
	Src     ClientId
	SrcSrv  ServerId
	Dsts    []Destination
	Content string
}

func EncodeFullyQualifiedMessage(w io.Writer, m FullyQualifiedMessage) error {
	if err := EncodeClientId(w, m.Src); err != nil {
		return err
	}
	if err := EncodeServerId(w, m.SrcSrv); err != nil {
		return err
	}
	if err := EncodeSlice(w, m.Dsts, EncodeDestination); err != nil {
		return err
	}
	return EncodeString(w, m.Content)
}

func DecodeFullyQualifiedMessage(r io.Reader) (FullyQualifiedMessage, error) {
	src, err := DecodeClientId(r)
	if err != nil {
		return FullyQualifiedMessage{}, err
	}
	srcsrv, err := DecodeServerId(r)
	if err != nil {
		return FullyQualifiedMessage{}, err
	}
	dsts, err := DecodeSlice(r, DecodeDestination)
	if err != nil {
		return FullyQualifiedMessage{}, err
	}
	content, err := DecodeString(r)
	if err != nil {
		return FullyQualifiedMessage{}, err
	}
	return FullyQualifiedMessage{Src: src, SrcSrv: srcsrv, Dsts: dsts, Content: content}, nil
}

// --- ServerMessage ---

type ServerMessage interface{ isServerMessage() }

// Announce advertises a route back to the sender along with the clients
// local to it.
type Announce struct {
	Route   []ServerId
	Clients map[ClientId]string
}

// ServerForward carries a FullyQualifiedMessage between servers.
type ServerForward struct{ Msg FullyQualifiedMessage }

func (Announce) isServerMessage()      {}
func (ServerForward) isServerMessage() {}

const (
	tagServerAnnounce = 0
	tagServerForward  = 1
)

func EncodeServerMessage(w io.Writer, m ServerMessage) error {
	switch v := m.(type) {
	case Announce:
		if err := writeTag(w, tagServerAnnounce); err != nil {
			return err
		}
		if err := EncodeSlice(w, v.Route, EncodeServerId); err != nil {
			return err
		}
		return EncodeMap(w, v.Clients, EncodeClientId, EncodeString)
	case ServerForward:
		if err := writeTag(w, tagServerForward); err != nil {
			return err
		}
		return EncodeFullyQualifiedMessage(w, v.Msg)
	default:
		return fmt.Errorf("wire: unknown ServerMessage variant %T", m)
	}
}

func DecodeServerMessage(r io.Reader) (ServerMessage, error) {
	tag, err := readTag(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagServerAnnounce:
		route, err := DecodeSlice(r, DecodeServerId)
		if err != nil {
			return nil, err
		}
		clients, err := DecodeMap(r, DecodeClientId, DecodeString)
		if err != nil {
			return nil, err
		}
		return Announce{Route: route, Clients: clients}, nil
	case tagServerForward:
		fqm, err := DecodeFullyQualifiedMessage(r)
		if err != nil {
			return nil, err
		}
		return ServerForward{Msg: fqm}, nil
	default:
		return nil, unknownVariant("ServerMessage", tag)
	}
}

// --- Sequence[T] ---

// Sequence wraps any payload with the admission envelope the server
// requires of every client query: a strictly-increasing
// per-source id, the source itself, and a proof-of-work witness.
type Sequence[T any] struct {
	SeqId     U128
	Src       ClientId
	WorkProof uint64
	Content   T
}

// EncodeSequence writes a Sequence, given an encoder for its payload
// type, rather than hand-duplicating one Sequence codec per payload
// type.
func EncodeSequence[T any](w io.Writer, s Sequence[T], encodeContent func(io.Writer, T) error) error {
	if err := EncodeVarint(w, s.SeqId); err != nil {
		return err
	}
	if err := EncodeClientId(w, s.Src); err != nil {
		return err
	}
	if err := writeFixed(w, leU64(s.WorkProof)[:]); err != nil {
		return err
	}
	return encodeContent(w, s.Content)
}

func DecodeSequence[T any](r io.Reader, decodeContent func(io.Reader) (T, error)) (Sequence[T], error) {
	var zero Sequence[T]
	seqid, err := DecodeVarint(r)
	if err != nil {
		return zero, err
	}
	src, err := DecodeClientId(r)
	if err != nil {
		return zero, err
	}
	var wpBuf [8]byte
	if err := readFixed(r, wpBuf[:]); err != nil {
		return zero, err
	}
	content, err := decodeContent(r)
	if err != nil {
		return zero, err
	}
	return Sequence[T]{
		SeqId:     seqid,
		Src:       src,
		WorkProof: binary.LittleEndian.Uint64(wpBuf[:]),
		Content:   content,
	}, nil
}

// --- shared helpers ---

func writeTag(w io.Writer, tag byte) error {
	_, err := w.Write([]byte{tag})
	return err
}

func readTag(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func writeFixed(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

func leU64(v uint64) [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b
}

func unknownVariant(typeName string, tag byte) error {
	return fmt.Errorf("wire: unknown %s variant tag %d", typeName, tag)
}
