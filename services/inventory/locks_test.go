package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityLocks(t *testing.T) {
	locks := newIdentityLocks()
	ctx := context.Background()

	unlockA, err := locks.Lock(ctx, "A")
	require.NoError(t, err)

	// Other keys are independent.
	unlockB, err := locks.Lock(ctx, "B")
	require.NoError(t, err)
	unlockB()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(waitCtx, "A")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan func())
	go func() {
		unlock, err := locks.Lock(ctx, "A")
		if err == nil {
			acquired <- unlock
		}
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	unlockA() // idempotent

	select {
	case unlock := <-acquired:
		unlock()
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}

	assert.Equal(t, 0, locks.size())
}
