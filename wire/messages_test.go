package wire

import (
	"bytes"
	"testing"
)

func TestAuthMessageRoundTrip(t *testing.T) {
	cases := []AuthMessage{
		AuthHello{User: NewClientId(), Nonce: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}},
		AuthNonce{Server: NewServerId(), Nonce: [8]byte{9, 9, 9, 9, 9, 9, 9, 9}},
		AuthAuth{Response: [16]byte{1}},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		if err := EncodeAuthMessage(&buf, c); err != nil {
			t.Fatalf("encode %T: %v", c, err)
		}
		got, err := DecodeAuthMessage(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("decode %T: %v", c, err)
		}
		if got != c {
			t.Fatalf("round trip %T: got %#v, want %#v", c, got, c)
		}
	}
}

func TestClientMessageRoundTrip(t *testing.T) {
	d1, d2 := NewClientId(), NewClientId()

	var buf bytes.Buffer
	text := TextMessage{Dest: d1, Content: "hello"}
	if err := EncodeClientMessage(&buf, text); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeClientMessage(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if got != text {
		t.Fatalf("got %#v want %#v", got, text)
	}

	buf.Reset()
	mtext := MTextMessage{Dest: []ClientId{d1, d2}, Content: "x"}
	if err := EncodeClientMessage(&buf, mtext); err != nil {
		t.Fatal(err)
	}
	got2, err := DecodeClientMessage(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	gotMtext, ok := got2.(MTextMessage)
	if !ok || gotMtext.Content != "x" || len(gotMtext.Dest) != 2 {
		t.Fatalf("got %#v", got2)
	}
}

func TestClientErrorRoundTrip(t *testing.T) {
	c := NewClientId()
	cases := []ClientError{
		ErrWorkProof{}, ErrUnknownClient{}, ErrSequenceError{}, ErrBoxFull{Client: c}, ErrInternal{},
	}
	for _, e := range cases {
		var buf bytes.Buffer
		if err := EncodeClientError(&buf, e); err != nil {
			t.Fatal(err)
		}
		got, err := DecodeClientError(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatal(err)
		}
		if got != e {
			t.Fatalf("got %#v want %#v", got, e)
		}
	}
}

func TestClientReplyRoundTripTransfer(t *testing.T) {
	next := NewServerId()
	fqm := FullyQualifiedMessage{
		Src:     NewClientId(),
		SrcSrv:  NewServerId(),
		Dsts:    []Destination{{Client: NewClientId(), Server: next}},
		Content: "hi",
	}
	rep := ReplyTransfer{Next: next, Message: ServerForward{Msg: fqm}}

	var buf bytes.Buffer
	if err := EncodeClientReply(&buf, rep); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeClientReply(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	gotT, ok := got.(ReplyTransfer)
	if !ok {
		t.Fatalf("got %#v", got)
	}
	if gotT.Next != next {
		t.Fatalf("next hop mismatch")
	}
	gotFwd, ok := gotT.Message.(ServerForward)
	if !ok || gotFwd.Msg.Content != "hi" {
		t.Fatalf("forward mismatch: %#v", gotT.Message)
	}
}

func TestClientQueryRoundTrip(t *testing.T) {
	cases := []ClientQuery{
		QueryRegister{Name: "alice"},
		QueryMessage{Msg: TextMessage{Dest: NewClientId(), Content: "hey"}},
		QueryListUsers{},
		QueryPoll{},
	}
	for _, q := range cases {
		var buf bytes.Buffer
		if err := EncodeClientQuery(&buf, q); err != nil {
			t.Fatal(err)
		}
		got, err := DecodeClientQuery(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatal(err)
		}
		if got != q {
			t.Fatalf("got %#v want %#v", got, q)
		}
	}
}

func TestServerMessageAnnounceRoundTrip(t *testing.T) {
	route := []ServerId{NewServerId(), NewServerId()}
	clients := map[ClientId]string{NewClientId(): "bob"}
	ann := Announce{Route: route, Clients: clients}

	var buf bytes.Buffer
	if err := EncodeServerMessage(&buf, ann); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeServerMessage(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	gotAnn, ok := got.(Announce)
	if !ok || len(gotAnn.Route) != 2 || len(gotAnn.Clients) != 1 {
		t.Fatalf("got %#v", got)
	}
}

func TestSequenceRoundTrip(t *testing.T) {
	seq := Sequence[ClientQuery]{
		SeqId:     U128FromUint64(42),
		Src:       NewClientId(),
		WorkProof: 0xdeadbeef,
		Content:   QueryListUsers{},
	}

	var buf bytes.Buffer
	if err := EncodeSequence(&buf, seq, EncodeClientQuery); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeSequence(bytes.NewReader(buf.Bytes()), DecodeClientQuery)
	if err != nil {
		t.Fatal(err)
	}
	if got.SeqId.Cmp(seq.SeqId) != 0 || got.Src != seq.Src || got.WorkProof != seq.WorkProof {
		t.Fatalf("got %#v want %#v", got, seq)
	}
	if _, ok := got.Content.(QueryListUsers); !ok {
		t.Fatalf("content mismatch: %#v", got.Content)
	}
}

func TestDecodeRejectsInvalidUTF8(t *testing.T) {
	var buf bytes.Buffer
	_ = EncodeUint(&buf, 1)
	buf.Write([]byte{0xff})
	if _, err := DecodeString(bytes.NewReader(buf.Bytes())); err == nil {
		t.Fatalf("expected invalid UTF-8 error")
	}
}
