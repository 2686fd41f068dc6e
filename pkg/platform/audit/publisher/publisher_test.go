package publisher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "herald/pkg/platform/audit"
	"herald/pkg/platform/audit/store/memory"
	"herald/pkg/platform/middleware/metadata"
	"herald/pkg/requestcontext"
)

type failingStore struct {
	memory.InMemoryStore
}

func (*failingStore) Append(context.Context, audit.Event) error {
	return errors.New("connection refused")
}

func TestPublisher_FillsDefaultsFromContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), at)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	ctx = metadata.WithClientIP(ctx, "192.0.2.1")

	err := pub.Emit(ctx, audit.Event{
		Subject: "article:1",
		Action:  string(audit.EventPublicationCreated),
	})
	require.NoError(t, err)

	events, err := pub.ListBySubject(context.Background(), "article:1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, at, events[0].Timestamp)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, "ip:192.0.2.1", events[0].ActorID)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Timestamp: fixed,
		Subject:   "article:1",
		Action:    string(audit.EventPublicationDeleted),
	}))

	events, err := pub.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
}

func TestPublisher_RequiresAction(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())
	assert.Error(t, pub.Emit(context.Background(), audit.Event{Subject: "article:1"}))
}

func TestPublisher_FailureSemanticsByCategory(t *testing.T) {
	var logs bytes.Buffer
	pub := NewPublisher(&failingStore{}, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	t.Run("operations events fail open", func(t *testing.T) {
		err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventPublicationUpdated)})
		assert.NoError(t, err)
		assert.Contains(t, logs.String(), "audit event dropped")
	})

	t.Run("compliance events fail closed", func(t *testing.T) {
		err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventPublicationPruned)})
		assert.Error(t, err)
	})
}

func TestInMemoryStore_ListRecentNewestFirst(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	for _, action := range []audit.AuditEvent{audit.EventPublicationCreated, audit.EventPublicationApproved, audit.EventPublicationDeleted} {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: "article:1", Action: string(action)}))
	}

	events, err := store.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, string(audit.EventPublicationDeleted), events[0].Action)
	assert.Equal(t, string(audit.EventPublicationApproved), events[1].Action)
}
