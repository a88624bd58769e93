package client

import (
	"LiveChat/entity"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoller_ReportsOnlyChanges(t *testing.T) {
	server := newStack(t)
	ctx := context.Background()

	bob := newAgent(t, server.URL, "bob")

	var snapshots [][]entity.Conversation
	poller := NewPoller(bob, 0, func(list []entity.Conversation) {
		snapshots = append(snapshots, list)
	}, nil)

	changed, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, snapshots, 1)
	assert.Empty(t, snapshots[0])

	changed, err = poller.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	visitor, _ := NewAPI(server.URL, Identity{VisitorSession: "v-1"})
	conv, err := visitor.Start(ctx, entity.StartRequest{})
	require.NoError(t, err)

	changed, err = poller.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, snapshots, 2)
	require.Len(t, snapshots[1], 1)
	assert.Equal(t, entity.StatusWaiting, snapshots[1][0].Status)

	_, err = bob.Claim(ctx, conv.ID)
	require.NoError(t, err)

	changed, err = poller.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, snapshots[2], 1)
	assert.Equal(t, entity.StatusActive, snapshots[2][0].Status)
}

func TestPoller_ReportsNewMessages(t *testing.T) {
	server := newStack(t)
	ctx := context.Background()

	bob := newAgent(t, server.URL, "bob")
	visitor, _ := NewAPI(server.URL, Identity{VisitorSession: "v-1"})
	conv, err := visitor.Start(ctx, entity.StartRequest{})
	require.NoError(t, err)
	_, err = bob.Claim(ctx, conv.ID)
	require.NoError(t, err)

	var snapshots [][]entity.Conversation
	poller := NewPoller(bob, 0, func(list []entity.Conversation) {
		snapshots = append(snapshots, list)
	}, nil)

	changed, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = visitor.PostVisitorMessage(ctx, conv.ID, "still there?", "")
	require.NoError(t, err)

	changed, err = poller.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, snapshots, 2)
	require.Len(t, snapshots[1], 1)
	assert.Equal(t, entity.StatusActive, snapshots[1][0].Status)
	assert.Equal(t, "still there?", snapshots[1][0].LastMessage)
}

func TestPoller_UsesAnnouncedInterval(t *testing.T) {
	server := newStack(t)
	a, err := NewAPI(server.URL, Identity{})
	require.NoError(t, err)
	session, err := a.Login(context.Background(), adminUser, adminPassword)
	require.NoError(t, err)

	poller := NewSessionPoller(a, session, nil, nil)
	assert.Equal(t, 15*time.Second, poller.interval)
}

func TestPoller_RunStopsOnUnauthorized(t *testing.T) {
	server := newStack(t)
	a, err := NewAPI(server.URL, Identity{AgentToken: "not-a-token"})
	require.NoError(t, err)

	poller := NewPoller(a, 0, nil, nil)
	err = poller.Run(context.Background())
	assert.True(t, errors.Is(err, entity.ErrUnauthorized))
}
