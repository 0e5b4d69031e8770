package shared

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, ttl time.Duration, sliding bool) *SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "test_session", ttl, false, sliding)
}

func TestSessionRoundTrip(t *testing.T) {
	sm := newTestManager(t, time.Hour, false)
	ctx := context.Background()

	token, created, err := sm.Create(ctx, 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEmpty(t, created.ID)

	sess, err := sm.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sess.UserID)
	assert.Equal(t, created.ID, sess.ID)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), sess.ExpiresAt, time.Minute)
}

func TestValidateUnknownToken(t *testing.T) {
	sm := newTestManager(t, time.Hour, false)

	_, err := sm.Validate(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, err = sm.Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestInvalidatePermanentAndIdempotent(t *testing.T) {
	sm := newTestManager(t, time.Hour, false)
	ctx := context.Background()

	token, _, err := sm.Create(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, sm.Invalidate(ctx, token))

	_, err = sm.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	// Invalidating an already-dead or unknown token never errors.
	assert.NoError(t, sm.Invalidate(ctx, token))
	assert.NoError(t, sm.Invalidate(ctx, "never-existed"))

	_, err = sm.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestExpiredSessionImmediatelyInvalid(t *testing.T) {
	sm := newTestManager(t, -time.Minute, false)
	ctx := context.Background()

	token, _, err := sm.Create(ctx, 1)
	require.NoError(t, err)

	_, err = sm.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestConcurrentSessionsPerUser(t *testing.T) {
	sm := newTestManager(t, time.Hour, false)
	ctx := context.Background()

	tokenA, _, err := sm.Create(ctx, 7)
	require.NoError(t, err)
	tokenB, _, err := sm.Create(ctx, 7)
	require.NoError(t, err)
	require.NotEqual(t, tokenA, tokenB)

	require.NoError(t, sm.Invalidate(ctx, tokenA))

	_, err = sm.Validate(ctx, tokenA)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	sess, err := sm.Validate(ctx, tokenB)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sess.UserID)
}

func TestSlidingExpiryExtendsOnValidate(t *testing.T) {
	sm := newTestManager(t, time.Hour, true)
	ctx := context.Background()

	token, created, err := sm.Create(ctx, 1)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	sess, err := sm.Validate(ctx, token)
	require.NoError(t, err)
	assert.True(t, sess.ExpiresAt.After(created.ExpiresAt), "expected expiry to slide forward")
}

// A sliding Validate racing an Invalidate must never write the payload back
// after the DEL; whichever order the two land in, the token stays dead.
func TestSlidingValidateCannotResurrectInvalidatedToken(t *testing.T) {
	sm := newTestManager(t, time.Hour, true)
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		token, _, err := sm.Create(ctx, 1)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = sm.Validate(ctx, token)
		}()
		go func() {
			defer wg.Done()
			_ = sm.Invalidate(ctx, token)
		}()
		wg.Wait()

		_, err = sm.Validate(ctx, token)
		require.ErrorIs(t, err, ErrSessionInvalid, "iteration %d", i)
	}
}

func TestFixedExpiryDoesNotSlide(t *testing.T) {
	sm := newTestManager(t, time.Hour, false)
	ctx := context.Background()

	token, created, err := sm.Create(ctx, 1)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	sess, err := sm.Validate(ctx, token)
	require.NoError(t, err)
	assert.True(t, sess.ExpiresAt.Equal(created.ExpiresAt), "expected expiry unchanged, got %v vs %v", sess.ExpiresAt, created.ExpiresAt)
}
