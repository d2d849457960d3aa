package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-origination/internal/common/config"
	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/common/logger"
	"loan-origination/internal/wizard"
)

var testCfg = config.SessionConfig{KeyPrefix: "wizard:session:", TTL: 3600, LockTTL: 5000}

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewStore(rdb, testCfg, logger.NewTestLogger(t)), mr
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	sess := wizard.NewSession()
	require.NoError(t, wizard.SetFieldValue(sess, wizard.BorrowerFirstName, "Maya"))
	require.NoError(t, wizard.SetFieldValue(sess, wizard.LoanTuitionAmount, 20000.0))
	sess.ActiveStep = wizard.StepLoanDetails
	sess.ApplicationID = "app-1"

	require.NoError(t, store.Save(ctx, sess))
	assert.Equal(t, time.Hour, mr.TTL("wizard:session:"+sess.ID))

	got, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "app-1", got.ApplicationID)
	assert.Equal(t, wizard.StepLoanDetails, got.ActiveStep)
	assert.Equal(t, "Maya", got.Values.BorrowerInfo.FirstName)
	assert.Equal(t, 20000.0, got.Values.LoanDetails.RequestedAmount)
	assert.False(t, got.IsSubmitting())
}

func TestStore_LoadExpired(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	sess := wizard.NewSession()
	require.NoError(t, store.Save(ctx, sess))
	mr.FastForward(2 * time.Hour)

	_, err := store.Load(ctx, sess.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionNotFound))
}

func TestStore_LoadCorruptDiscards(t *testing.T) {
	store, mr := setupStore(t)
	require.NoError(t, mr.Set("wizard:session:bad", "{not json"))

	_, err := store.Load(context.Background(), "bad")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionNotFound))
	assert.False(t, mr.Exists("wizard:session:bad"))
}

func TestStore_Delete(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	sess := wizard.NewSession()
	require.NoError(t, store.Save(ctx, sess))
	require.NoError(t, store.Delete(ctx, sess.ID))
	assert.False(t, mr.Exists("wizard:session:"+sess.ID))
}

func TestStore_Lock(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	release, err := store.Lock(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("wizard:session:s1:lock"))
	assert.Equal(t, 5*time.Second, mr.TTL("wizard:session:s1:lock"))

	_, err = store.Lock(ctx, "s1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionLocked))

	release()
	assert.False(t, mr.Exists("wizard:session:s1:lock"))

	release2, err := store.Lock(ctx, "s1")
	require.NoError(t, err)
	release2()
}

func TestStore_ReleaseDoesNotStealForeignLock(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	release, err := store.Lock(ctx, "s1")
	require.NoError(t, err)

	// The lock expires and another request takes it.
	mr.FastForward(6 * time.Second)
	require.NoError(t, mr.Set("wizard:session:s1:lock", "someone-else"))

	release()
	got, err := mr.Get("wizard:session:s1:lock")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestStore_RedisErrors(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewStore(rdb, testCfg, logger.NewTestLogger(t))
	ctx := context.Background()

	mock.ExpectGet("wizard:session:s1").SetErr(errors.New("connection refused"))
	_, err := store.Load(ctx, "s1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePersistenceFailed))

	mock.Regexp().ExpectSetNX("wizard:session:s1:lock", `.+`, 5*time.Second).SetErr(errors.New("timeout"))
	_, err = store.Lock(ctx, "s1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePersistenceFailed))

	assert.NoError(t, mock.ExpectationsWereMet())
}
