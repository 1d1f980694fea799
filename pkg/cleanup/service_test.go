package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/coretask-core/coretask/ent/workingmemoryentry"
	"github.com/coretask-core/coretask/pkg/config"
	"github.com/coretask-core/coretask/pkg/embedclient"
	"github.com/coretask-core/coretask/pkg/memory"
	testdb "github.com/coretask-core/coretask/test/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnce_DeletesExpiredWorkingMemoryAndPreservesFresh(t *testing.T) {
	client := testdb.NewTestClient(t)
	mem := memory.New(client.Client, nil)
	ctx := context.Background()

	expiredID := uuid.NewString()
	err := client.WorkingMemoryEntry.Create().
		SetID(expiredID).
		SetSessionID("session-1").
		SetWorkingType(workingmemoryentry.WorkingTypeLastAction).
		SetValue("stale").
		SetEntryMetadata(map[string]interface{}{}).
		SetExpiresAt(time.Now().Add(-1 * time.Hour)).
		Exec(ctx)
	require.NoError(t, err)

	freshID := uuid.NewString()
	err = client.WorkingMemoryEntry.Create().
		SetID(freshID).
		SetSessionID("session-1").
		SetWorkingType(workingmemoryentry.WorkingTypeCurrentTask).
		SetValue("current").
		SetEntryMetadata(map[string]interface{}{}).
		SetExpiresAt(time.Now().Add(1 * time.Hour)).
		Exec(ctx)
	require.NoError(t, err)

	cfg := &config.RetentionConfig{SweepInterval: time.Hour}
	svc := NewService(cfg, mem)
	svc.sweepOnce(ctx)

	remaining, err := client.WorkingMemoryEntry.Query().IDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{freshID}, remaining)
}

func TestSweepOnce_DeletesExpiredKnowledgeCacheEntries(t *testing.T) {
	client := testdb.NewTestClient(t)
	mem := memory.New(client.Client, nil)
	ctx := context.Background()

	expiredID := uuid.NewString()
	err := client.KnowledgeCacheEntry.Create().
		SetID(expiredID).
		SetUserID("user-1").
		SetQuery("stale query").
		SetQueryEmbedding(embedclient.Vector{}.ToFloat32Slice()).
		SetResult("stale result").
		SetSource("web").
		SetExpiresAt(time.Now().Add(-1 * time.Hour)).
		Exec(ctx)
	require.NoError(t, err)

	freshID := uuid.NewString()
	err = client.KnowledgeCacheEntry.Create().
		SetID(freshID).
		SetUserID("user-1").
		SetQuery("fresh query").
		SetQueryEmbedding(embedclient.Vector{}.ToFloat32Slice()).
		SetResult("fresh result").
		SetSource("web").
		SetExpiresAt(time.Now().Add(1 * time.Hour)).
		Exec(ctx)
	require.NoError(t, err)

	cfg := &config.RetentionConfig{SweepInterval: time.Hour}
	svc := NewService(cfg, mem)
	svc.sweepOnce(ctx)

	remaining, err := client.KnowledgeCacheEntry.Query().IDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{freshID}, remaining)
}

func TestService_StartAndStop_RunsSweepLoopCleanly(t *testing.T) {
	client := testdb.NewTestClient(t)
	mem := memory.New(client.Client, nil)

	cfg := &config.RetentionConfig{SweepInterval: 10 * time.Millisecond}
	svc := NewService(cfg, mem)

	svc.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	svc.Stop()
}
