package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMarkNew(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	m := NewMemory(10 * time.Minute)
	m.SetClock(func() time.Time { return now })

	ok, err := m.MarkNew(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = m.MarkNew(ctx, "wamid.1")
	assert.False(t, ok, "replay inside window")

	now = now.Add(11 * time.Minute)
	ok, _ = m.MarkNew(ctx, "wamid.2")
	assert.True(t, ok)
	assert.Equal(t, 1, m.Len(), "wamid.1 pruned")

	ok, _ = m.MarkNew(ctx, "wamid.1")
	assert.True(t, ok, "window elapsed")
}

func TestRedisMarkNew(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	d := NewRedis(db, "dedup:wa:", 10*time.Minute)

	mock.ExpectSetNX("dedup:wa:wamid.1", 1, 10*time.Minute).SetVal(true)
	mock.ExpectSetNX("dedup:wa:wamid.1", 1, 10*time.Minute).SetVal(false)
	mock.ExpectSetNX("dedup:wa:wamid.2", 1, 10*time.Minute).SetErr(errors.New("down"))

	ok, err := d.MarkNew(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.MarkNew(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.MarkNew(ctx, "wamid.2")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
