package graph

import (
	"context"
	"testing"
	"time"

	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
	"github.com/stretchr/testify/require"
)

func TestFindOrCreateDirectChannelIsIdempotent(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	ch1, created1, err := s.FindOrCreateDirectChannel(ctx, "alice", "bob", "alice")
	require.NoError(t, err)
	require.True(t, created1)

	ch2, created2, err := s.FindOrCreateDirectChannel(ctx, "bob", "alice", "bob")
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, ch1.ID, ch2.ID)
}

func TestFindOrCreateDirectChannelRequiresActorBeAParticipant(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, _, err := s.FindOrCreateDirectChannel(ctx, "alice", "bob", "carol")
	require.Error(t, err)
}

func TestAddChannelMemberIsIdempotentAndEmitsOneEvent(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	ch := types.NewChannel("el-c1", "alice", time.Now(), types.ChannelGroup, "team")
	ch.Members = []string{"alice"}
	ch.Permissions.ModifyMembers = []string{"alice"}
	require.NoError(t, s.Create(ctx, ch, "alice"))

	updated, err := s.AddChannelMember(ctx, "el-c1", "bob", "alice")
	require.NoError(t, err)
	require.True(t, updated.HasMember("bob"))

	again, err := s.AddChannelMember(ctx, "el-c1", "bob", "alice")
	require.NoError(t, err)
	require.True(t, again.HasMember("bob"))

	events, err := s.GetEvents(ctx, "el-c1", storage.EventFilter{})
	require.NoError(t, err)
	count := 0
	for _, e := range events {
		if e.Type == types.EventMemberAdded {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestAddChannelMemberRejectsUnauthorizedActor(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	ch := types.NewChannel("el-c1", "alice", time.Now(), types.ChannelGroup, "team")
	ch.Members = []string{"alice"}
	ch.Permissions.ModifyMembers = []string{"alice"}
	require.NoError(t, s.Create(ctx, ch, "alice"))

	_, err := s.AddChannelMember(ctx, "el-c1", "dave", "mallory")
	require.Error(t, err)
}

func TestAddChannelMemberRejectsDirectChannel(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	ch, _, err := s.FindOrCreateDirectChannel(ctx, "alice", "bob", "alice")
	require.NoError(t, err)

	_, err = s.AddChannelMember(ctx, ch.ID, "carol", "alice")
	require.Error(t, err)
}

func TestLeaveChannelAlwaysPermitted(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	ch := types.NewChannel("el-c1", "alice", time.Now(), types.ChannelGroup, "team")
	ch.Members = []string{"alice", "bob"}
	ch.Permissions.ModifyMembers = []string{"alice"}
	require.NoError(t, s.Create(ctx, ch, "alice"))

	updated, err := s.LeaveChannel(ctx, "el-c1", "bob")
	require.NoError(t, err)
	require.False(t, updated.HasMember("bob"))
}

func TestSendDirectMessageInternsChannel(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	body := "hello"

	msg, err := s.SendDirectMessage(ctx, "alice", "bob", DirectMessageInput{Body: &body})
	require.NoError(t, err)
	require.Equal(t, "alice", msg.Sender)

	ch, created, err := s.FindOrCreateDirectChannel(ctx, "alice", "bob", "alice")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, ch.ID, msg.ChannelID)
}
