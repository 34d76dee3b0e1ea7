package network

import (
	"context"
	"errors"
	"testing"

	"github.com/dusk-indust/coordinate/internal/agent"
	"github.com/dusk-indust/coordinate/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mute is an agent without a Communicator, so it receives via its inbox.
type mute struct{ id string }

func (m mute) ID() string             { return m.id }
func (m mute) Capabilities() []string { return nil }
func (m mute) Process(context.Context, agent.Input) (agent.Output, error) {
	return agent.Output{}, nil
}

func TestSend_ToCommunicatorReturnsReply(t *testing.T) {
	n := New(0, nil)
	n.Register(mute{id: "a"})

	var got agent.Message
	b := agent.NewEchoAgent("b").WithCommunicate(func(_ context.Context, peer string, msg agent.Message) (agent.Message, error) {
		got = msg
		return agent.Message{From: "b", To: peer, Payload: value.Map{"ack": value.Bool(true)}}, nil
	})
	n.Register(b)

	reply, err := n.Send(context.Background(), agent.Message{From: "a", To: "b"})
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.False(t, got.SentAt.IsZero())
	assert.Equal(t, agent.MessageDirect, got.Kind)
	ack, _ := reply.Payload["ack"].AsBool()
	assert.True(t, ack)
}

func TestSend_ToInbox(t *testing.T) {
	n := New(1, nil)
	n.Register(agent.NewEchoAgent("a"))
	n.Register(mute{id: "b"})

	_, err := n.Send(context.Background(), agent.Message{From: "a", To: "b", Payload: value.Map{"n": value.Int(1)}})
	require.NoError(t, err)

	_, err = n.Send(context.Background(), agent.Message{From: "a", To: "b"})
	require.ErrorIs(t, err, ErrInboxFull)

	inbox, err := n.Inbox("b")
	require.NoError(t, err)
	msg := <-inbox
	assert.Equal(t, "a", msg.From)
}

func TestSend_UnknownAgents(t *testing.T) {
	n := New(0, nil)
	n.Register(mute{id: "a"})

	_, err := n.Send(context.Background(), agent.Message{From: "ghost", To: "a"})
	assert.ErrorIs(t, err, ErrUnknownAgent)
	_, err = n.Send(context.Background(), agent.Message{From: "a", To: "ghost"})
	assert.ErrorIs(t, err, ErrUnknownAgent)
	_, err = n.Inbox("ghost")
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestBroadcast_SkipsSenderAndJoinsFailures(t *testing.T) {
	n := New(0, nil)
	var seen []string
	for _, id := range []string{"c", "a", "b"} {
		n.Register(agent.NewEchoAgent(id).WithCommunicate(func(_ context.Context, _ string, msg agent.Message) (agent.Message, error) {
			seen = append(seen, msg.To)
			if msg.To == "c" {
				return agent.Message{}, errors.New("busy")
			}
			return agent.Message{}, nil
		}))
	}

	err := n.Broadcast(context.Background(), agent.Message{From: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "busy")
	assert.Equal(t, []string{"b", "c"}, seen)
}

func TestMulticast_RestrictedRecipients(t *testing.T) {
	n := New(0, nil)
	for _, id := range []string{"a", "b", "c"} {
		n.Register(mute{id: id})
	}

	require.NoError(t, n.Multicast(context.Background(), agent.Message{From: "a", Kind: agent.MessageCoordination}, []string{"a", "c"}))

	inboxB, _ := n.Inbox("b")
	inboxC, _ := n.Inbox("c")
	assert.Len(t, inboxB, 0)
	require.Len(t, inboxC, 1)
	assert.Equal(t, agent.MessageCoordination, (<-inboxC).Kind)
}

func TestUnregister_ClosesInbox(t *testing.T) {
	n := New(0, nil)
	n.Register(mute{id: "a"})
	inbox, err := n.Inbox("a")
	require.NoError(t, err)

	n.Unregister("a")
	_, open := <-inbox
	assert.False(t, open)
	assert.Empty(t, n.Peers())
}
