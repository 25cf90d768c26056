package reply

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitquery/internal/models"
)

func waitFinished(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("reply did not finish")
	}
}

func TestReply_ZeroPendingOpsFinishesAsynchronously(t *testing.T) {
	r := NewLocationReply(models.NewLocationRequest().WithName("Randa"))
	release := make(chan struct{})
	ran := make(chan struct{})
	r.OnFinished(func() {
		<-release
		close(ran)
	})

	returned := make(chan struct{})
	go func() {
		r.SetPendingOps(0)
		close(returned)
	}()

	// SetPendingOps must not run completion inline, or it would block on release
	waitFinished(t, returned)
	close(release)
	waitFinished(t, ran)
	waitFinished(t, r.Finished())

	assert.Equal(t, NoError, r.ErrorCode())
	assert.Empty(t, r.Result())
	assert.Equal(t, 0, r.PendingOps())
}

func TestReply_OnFinishedAfterCompletion(t *testing.T) {
	r := NewLocationReply(models.NewLocationRequest())
	r.SetPendingOps(1)
	r.AddResult([]models.Location{models.NewLocation("A")})
	require.True(t, r.IsFinished())

	called := make(chan struct{})
	r.OnFinished(func() { close(called) })
	waitFinished(t, called)
}

func TestReply_SuccessSuppressesErrors(t *testing.T) {
	r := NewLocationReply(models.NewLocationRequest())
	r.SetPendingOps(3)

	r.AddError(NetworkError, "connection refused")
	r.AddResult([]models.Location{models.NewLocation("Randa")})
	assert.False(t, r.IsFinished())
	r.AddError(NotFoundError, "no such stop")

	waitFinished(t, r.Finished())
	assert.Equal(t, NoError, r.ErrorCode())
	assert.Empty(t, r.ErrorMessage())
	assert.Len(t, r.Result(), 1)
}

func TestReply_LastErrorWins(t *testing.T) {
	r := NewLocationReply(models.NewLocationRequest())
	r.SetPendingOps(3)

	r.AddError(NetworkError, "timeout")
	r.AddResult(nil)
	r.AddError(NotFoundError, "unknown station")

	waitFinished(t, r.Finished())
	assert.Equal(t, NotFoundError, r.ErrorCode())
	assert.Equal(t, "unknown station", r.ErrorMessage())
}

func TestReply_AllEmptyResultsIsNoError(t *testing.T) {
	r := NewLocationReply(models.NewLocationRequest())
	r.SetPendingOps(2)
	r.AddResult(nil)
	r.AddResult([]models.Location{})

	waitFinished(t, r.Finished())
	assert.Equal(t, NoError, r.ErrorCode())
}

func TestReply_ReportsBeforeArming(t *testing.T) {
	r := NewLocationReply(models.NewLocationRequest())
	assert.Equal(t, -1, r.PendingOps())

	r.AddResult([]models.Location{models.NewLocation("A")})
	r.AddError(NetworkError, "x")
	assert.False(t, r.IsFinished())

	r.SetPendingOps(3)
	assert.Equal(t, 1, r.PendingOps())
	assert.False(t, r.IsFinished())

	r.AddResult([]models.Location{models.NewLocation("B")})
	waitFinished(t, r.Finished())
	assert.Len(t, r.Result(), 2)
}

func TestReply_AllReportedBeforeArming(t *testing.T) {
	r := NewLocationReply(models.NewLocationRequest())
	r.AddResult([]models.Location{models.NewLocation("A")})
	r.AddResult(nil)

	r.SetPendingOps(2)
	waitFinished(t, r.Finished())
	assert.Len(t, r.Result(), 1)
}

func TestReply_InvariantViolationsPanic(t *testing.T) {
	t.Run("over-reporting", func(t *testing.T) {
		r := NewLocationReply(models.NewLocationRequest())
		r.SetPendingOps(1)
		r.AddResult(nil)
		assert.Panics(t, func() { r.AddResult(nil) })
		assert.Panics(t, func() { r.AddError(UnknownError, "again") })
	})
	t.Run("more early reports than operations", func(t *testing.T) {
		r := NewLocationReply(models.NewLocationRequest())
		r.AddResult(nil)
		r.AddResult(nil)
		assert.Panics(t, func() { r.SetPendingOps(1) })
	})
	t.Run("armed twice", func(t *testing.T) {
		r := NewLocationReply(models.NewLocationRequest())
		r.SetPendingOps(2)
		assert.Panics(t, func() { r.SetPendingOps(2) })
	})
	t.Run("negative count", func(t *testing.T) {
		r := NewLocationReply(models.NewLocationRequest())
		assert.Panics(t, func() { r.SetPendingOps(-1) })
	})
}

func TestReply_CachedResults(t *testing.T) {
	r := NewLocationReply(models.NewLocationRequest())
	r.AddCachedResult([]models.Location{models.NewLocation("cached")})
	r.SetPendingOps(1)
	r.AddResult([]models.Location{models.NewLocation("fresh")})

	waitFinished(t, r.Finished())
	res := r.Result()
	require.Len(t, res, 2)
	assert.Equal(t, "cached", res[0].Name)
	assert.Equal(t, "fresh", res[1].Name)
}

func TestReply_ConcurrentReports(t *testing.T) {
	const n = 64
	r := NewLocationReply(models.NewLocationRequest())

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				r.AddResult([]models.Location{models.NewLocation("x")})
			} else {
				r.AddError(NetworkError, "boom")
			}
		}(i)
	}
	r.SetPendingOps(n)
	wg.Wait()

	require.NoError(t, r.Wait(context.Background()))
	assert.Len(t, r.Result(), n/2)
	assert.Equal(t, NoError, r.ErrorCode())
}

func TestReply_WaitHonoursContext(t *testing.T) {
	r := NewLocationReply(models.NewLocationRequest())
	r.SetPendingOps(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "NoError", NoError.String())
	assert.Equal(t, "NetworkError", NetworkError.String())
	assert.Equal(t, "NotFoundError", NotFoundError.String())
	assert.Equal(t, "UnknownError", UnknownError.String())
}
