package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_GetAbsentKey(t *testing.T) {
	t.Parallel()

	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)

	mock.ExpectGet("missing").RedisNil()
	value, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_GetSet(t *testing.T) {
	t.Parallel()

	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)
	ctx := context.Background()

	mock.ExpectSet("k", []byte("[1,2,3]"), time.Hour).SetVal("OK")
	require.NoError(t, store.Set(ctx, "k", []byte("[1,2,3]"), time.Hour))

	mock.ExpectGet("k").SetVal("[1,2,3]")
	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("[1,2,3]"), value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_IncrByRunsScript(t *testing.T) {
	t.Parallel()

	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)

	mock.ExpectEvalSha(incrByScript.Hash(), []string{"counter"}, int64(3), int64(3600000)).SetVal(int64(7))
	total, err := store.IncrBy(context.Background(), "counter", 3, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
