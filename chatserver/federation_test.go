package chatserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatfed/wire"
)

func TestAnnounceEmptyRoute(t *testing.T) {
	s := newTestServer(t)
	reply := s.HandleServerMessage(wire.Announce{Route: nil, Clients: nil})
	assert.Equal(t, ReplyEmptyRoute{}, reply)
}

func TestFederationTransferScenario(t *testing.T) {
	// Mirrors scenario 6: register c1; announce a route to s3
	// via s1/s2 naming remote client e; c1 sends to e and gets a
	// Transfer naming s1 as the next hop, whose embedded frame names s3
	// as the destination server.
	s := newTestServer(t)
	c1 := s.RegisterLocalClient("c1")

	s1, s2, s3 := wire.NewServerId(), wire.NewServerId(), wire.NewServerId()
	e := wire.NewClientId()

	reply := s.HandleServerMessage(wire.Announce{
		Route:   []wire.ServerId{s1, s2, s3},
		Clients: map[wire.ClientId]string{e: "ext"},
	})
	require.Equal(t, ReplyOutgoing{Items: nil}, reply)

	replies := s.HandleClientMessage(c1, wire.TextMessage{Dest: e, Content: "Hi"})
	require.Len(t, replies, 1)

	transfer, ok := replies[0].(wire.ReplyTransfer)
	require.True(t, ok, "expected a Transfer reply, got %#v", replies[0])
	assert.Equal(t, s1, transfer.Next)

	fwd, ok := transfer.Message.(wire.ServerForward)
	require.True(t, ok)
	assert.Equal(t, c1, fwd.Msg.Src)
	assert.Equal(t, s.ID(), fwd.Msg.SrcSrv)
	assert.Equal(t, []wire.Destination{{Client: e, Server: s3}}, fwd.Msg.Dsts)
	assert.Equal(t, "Hi", fwd.Msg.Content)
}

func TestAnnounceDrainsBufferedMailbox(t *testing.T) {
	s := newTestServer(t)
	c1 := s.RegisterLocalClient("c1")
	remote := wire.NewClientId()

	// Message arrives before any announcement names `remote`: buffered.
	replies := s.HandleClientMessage(c1, wire.TextMessage{Dest: remote, Content: "buffered"})
	assert.Equal(t, []wire.ClientReply{wire.ReplyDelayed{}}, replies)

	s1, s2 := wire.NewServerId(), wire.NewServerId()
	reply := s.HandleServerMessage(wire.Announce{
		Route:   []wire.ServerId{s1, s2},
		Clients: map[wire.ClientId]string{remote: "now-known"},
	})

	out, ok := reply.(ReplyOutgoing)
	require.True(t, ok)
	require.Len(t, out.Items, 1)
	assert.Equal(t, s1, out.Items[0].To)

	fwd, ok := out.Items[0].Message.(wire.ServerForward)
	require.True(t, ok)
	assert.Equal(t, "buffered", fwd.Msg.Content)
	assert.Equal(t, []wire.Destination{{Client: remote, Server: s2}}, fwd.Msg.Dsts)
}

func TestAnnounceNeverDowngradesLocal(t *testing.T) {
	s := newTestServer(t)
	local := s.RegisterLocalClient("local")

	s.HandleServerMessage(wire.Announce{
		Route:   []wire.ServerId{wire.NewServerId()},
		Clients: map[wire.ClientId]string{local: "impostor"},
	})

	users := s.ListUsers()
	assert.Equal(t, "local", users[local])
}

func TestForwardDeliversToLocalClient(t *testing.T) {
	s := newTestServer(t)
	dest := s.RegisterLocalClient("dest")
	srcSrv := wire.NewServerId()
	srcClient := wire.NewClientId()

	reply := s.HandleServerMessage(wire.ServerForward{Msg: wire.FullyQualifiedMessage{
		Src:     srcClient,
		SrcSrv:  srcSrv,
		Dsts:    []wire.Destination{{Client: dest, Server: s.ID()}},
		Content: "incoming",
	}})
	assert.Equal(t, ReplyOutgoing{}, reply)

	assert.Equal(t, wire.PollMessage{Src: srcClient, Content: "incoming"}, s.ClientPoll(dest))
}

func TestForwardRoutesOnwardWhenNotLocal(t *testing.T) {
	s := newTestServer(t)
	viaHop, farServer := wire.NewServerId(), wire.NewServerId()
	s.HandleServerMessage(wire.Announce{Route: []wire.ServerId{viaHop, farServer}, Clients: nil})

	srcSrv := wire.NewServerId()
	srcClient := wire.NewClientId()
	otherClient := wire.NewClientId()

	reply := s.HandleServerMessage(wire.ServerForward{Msg: wire.FullyQualifiedMessage{
		Src:     srcClient,
		SrcSrv:  srcSrv,
		Dsts:    []wire.Destination{{Client: otherClient, Server: farServer}},
		Content: "relay me",
	}})

	out, ok := reply.(ReplyOutgoing)
	require.True(t, ok)
	require.Len(t, out.Items, 1)
	assert.Equal(t, viaHop, out.Items[0].To)
}

func TestForwardDroppedWhenRouteUnknown(t *testing.T) {
	s := newTestServer(t)
	reply := s.HandleServerMessage(wire.ServerForward{Msg: wire.FullyQualifiedMessage{
		Src:     wire.NewClientId(),
		SrcSrv:  wire.NewServerId(),
		Dsts:    []wire.Destination{{Client: wire.NewClientId(), Server: wire.NewServerId()}},
		Content: "lost",
	}})
	assert.Equal(t, ReplyOutgoing{}, reply)
}
