package chatserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatfed/wire"
	"chatfed/workproof"
)

const testStrength = 4

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(Config{
		ID:                wire.NewServerId(),
		MailboxSize:       4,
		WorkProofStrength: testStrength,
	})
}

func sequenceFor[T any](t *testing.T, src wire.ClientId, seqid uint64, content T) wire.Sequence[T] {
	t.Helper()
	proof, ok := workproof.Generate(src.Nonce(), testStrength, 1<<20)
	require.True(t, ok, "expected to find a workproof witness within bound")
	return wire.Sequence[T]{
		SeqId:     wire.U128FromUint64(seqid),
		Src:       src,
		WorkProof: proof,
		Content:   content,
	}
}

func TestRegisterLocalClientListsUser(t *testing.T) {
	s := newTestServer(t)
	id := s.RegisterLocalClient("alice")

	users := s.ListUsers()
	assert.Equal(t, map[wire.ClientId]string{id: "alice"}, users)
}

func TestSequenceReplayRejected(t *testing.T) {
	s := newTestServer(t)
	c1 := s.RegisterLocalClient("c1")

	seq := sequenceFor(t, c1, 1, wire.QueryListUsers{})
	_, cerr := HandleSequencedMessage(s, seq)
	require.Nil(t, cerr)

	_, cerr = HandleSequencedMessage(s, seq)
	assert.Equal(t, wire.ErrSequenceError{}, cerr)
}

func TestBadWorkProofRejectedWithoutMutation(t *testing.T) {
	s := newTestServer(t)
	c1 := s.RegisterLocalClient("c1")

	// Pick a witness that really fails at testStrength for c1's nonce; a
	// fixed value such as 0 passes for about one random id in 16.
	bad := uint64(0)
	for workproof.Verify(c1.Nonce(), bad, testStrength) {
		bad++
	}
	seq := wire.Sequence[wire.ClientQuery]{
		SeqId:     wire.U128FromUint64(1),
		Src:       c1,
		WorkProof: bad,
		Content:   wire.QueryListUsers{},
	}
	_, cerr := HandleSequencedMessage(s, seq)
	assert.Equal(t, wire.ErrWorkProof{}, cerr)

	// state unchanged: the same seqid should still be admissible once a
	// valid workproof is supplied.
	valid := sequenceFor(t, c1, 1, wire.QueryListUsers{})
	_, cerr = HandleSequencedMessage(s, valid)
	assert.Nil(t, cerr)
}

func TestUnknownClientRejected(t *testing.T) {
	s := newTestServer(t)
	stranger := wire.NewClientId()
	seq := sequenceFor(t, stranger, 1, wire.QueryListUsers{})

	_, cerr := HandleSequencedMessage(s, seq)
	assert.Equal(t, wire.ErrUnknownClient{}, cerr)
}

func TestSimpleDeliverAndPoll(t *testing.T) {
	s := newTestServer(t)
	c1 := s.RegisterLocalClient("c1")
	c2 := s.RegisterLocalClient("c2")

	replies := s.HandleClientMessage(c1, wire.TextMessage{Dest: c2, Content: "hello"})
	require.Equal(t, []wire.ClientReply{wire.ReplyDelivered{}}, replies)

	poll := s.ClientPoll(c2)
	assert.Equal(t, wire.PollMessage{Src: c1, Content: "hello"}, poll)

	assert.Equal(t, wire.PollNothing{}, s.ClientPoll(c2))
}

func TestMultiDestinationDelivery(t *testing.T) {
	s := newTestServer(t)
	c1 := s.RegisterLocalClient("c1")
	c2 := s.RegisterLocalClient("c2")
	c3 := s.RegisterLocalClient("c3")

	replies := s.HandleClientMessage(c1, wire.MTextMessage{Dest: []wire.ClientId{c2, c3}, Content: "x"})
	require.Equal(t, []wire.ClientReply{wire.ReplyDelivered{}, wire.ReplyDelivered{}}, replies)

	assert.Equal(t, wire.PollMessage{Src: c1, Content: "x"}, s.ClientPoll(c2))
	assert.Equal(t, wire.PollNothing{}, s.ClientPoll(c2))
	assert.Equal(t, wire.PollMessage{Src: c1, Content: "x"}, s.ClientPoll(c3))
	assert.Equal(t, wire.PollNothing{}, s.ClientPoll(c3))
}

func TestMailboxFull(t *testing.T) {
	s := newTestServer(t) // MailboxSize = 4
	c1 := s.RegisterLocalClient("c1")
	c2 := s.RegisterLocalClient("c2")

	for i := 0; i < 4; i++ {
		replies := s.HandleClientMessage(c1, wire.TextMessage{Dest: c2, Content: "m"})
		require.Equal(t, []wire.ClientReply{wire.ReplyDelivered{}}, replies)
	}

	replies := s.HandleClientMessage(c1, wire.TextMessage{Dest: c2, Content: "overflow"})
	assert.Equal(t, []wire.ClientReply{wire.ReplyError{Err: wire.ErrBoxFull{Client: c2}}}, replies)
}

func TestMessageToUnknownClientBuffersAndDelays(t *testing.T) {
	s := newTestServer(t)
	c1 := s.RegisterLocalClient("c1")
	unknown := wire.NewClientId()

	replies := s.HandleClientMessage(c1, wire.TextMessage{Dest: unknown, Content: "hi"})
	assert.Equal(t, []wire.ClientReply{wire.ReplyDelayed{}}, replies)

	// Sending again while still unresolved also delays (still buffered,
	// still room under the bound).
	replies = s.HandleClientMessage(c1, wire.TextMessage{Dest: unknown, Content: "hi again"})
	assert.Equal(t, []wire.ClientReply{wire.ReplyDelayed{}}, replies)
}

func TestPollUnknownClient(t *testing.T) {
	s := newTestServer(t)
	unknown := wire.NewClientId()
	assert.Equal(t, wire.PollDelayedError{Err: wire.UnknownRecipient{Client: unknown}}, s.ClientPoll(unknown))
}

func TestListUsersExcludesRemote(t *testing.T) {
	s := newTestServer(t)
	local := s.RegisterLocalClient("local")
	remote := wire.NewClientId()

	s.HandleServerMessage(wire.Announce{
		Route:   []wire.ServerId{wire.NewServerId(), wire.NewServerId()},
		Clients: map[wire.ClientId]string{remote: "someone-else"},
	})

	users := s.ListUsers()
	assert.Equal(t, map[wire.ClientId]string{local: "local"}, users)
}
