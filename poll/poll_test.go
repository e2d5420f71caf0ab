package poll

import (
	gocontext "context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state map[string]interface{}

func statusIs(want string) TargetFunc[state] {
	return func(s state) bool {
		return s["status"] == want
	}
}

func TestUntil_ReadyOnFirstAttempt(t *testing.T) {
	calls := 0
	check := func() (state, error) {
		calls++
		return state{"status": "in-use"}, nil
	}

	started := time.Now()
	outcome := Until(gocontext.TODO(), check, statusIs("in-use"), Opts{
		Timeout:  300 * time.Millisecond,
		Interval: 50 * time.Millisecond,
	})

	s, ok := outcome.Ready()
	require.True(t, ok)
	assert.False(t, outcome.TimedOut())
	assert.Equal(t, "in-use", s["status"])
	assert.Equal(t, 1, calls)
	// target on the first call means no sleeps at all
	assert.Less(t, time.Since(started), 50*time.Millisecond)
}

func TestUntil_AlwaysFailingCheckTimesOut(t *testing.T) {
	check := func() (state, error) {
		return nil, errors.New("resource not yet visible")
	}

	timeout := 60 * time.Millisecond
	interval := 20 * time.Millisecond

	started := time.Now()
	outcome := Until(gocontext.TODO(), check, statusIs("available"), Opts{
		Timeout:  timeout,
		Interval: interval,
	})
	elapsed := time.Since(started)

	assert.True(t, outcome.TimedOut())
	_, ok := outcome.Ready()
	assert.False(t, ok)

	// elapsed must land in [timeout, timeout+interval+one check)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+interval+20*time.Millisecond)
}

func TestUntil_FailsNTimesThenSucceeds(t *testing.T) {
	calls := 0
	check := func() (state, error) {
		calls++
		if calls <= 3 {
			return nil, errors.New("still detaching")
		}
		return state{"status": "available"}, nil
	}

	outcome := Until(gocontext.TODO(), check, statusIs("available"), Opts{
		Timeout:  time.Second,
		Interval: 10 * time.Millisecond,
	})

	s, ok := outcome.Ready()
	require.True(t, ok)
	assert.Equal(t, "available", s["status"])
	assert.Equal(t, 4, calls)
}

func TestUntil_SucceedingCheckThatNeverMatchesTimesOut(t *testing.T) {
	check := func() (state, error) {
		return state{"status": "attaching"}, nil
	}

	outcome := Until(gocontext.TODO(), check, statusIs("in-use"), Opts{
		Timeout:  50 * time.Millisecond,
		Interval: 10 * time.Millisecond,
	})

	assert.True(t, outcome.TimedOut())
}

func TestUntil_TimeoutOutcomeIsRepeatable(t *testing.T) {
	check := func() (state, error) {
		return nil, errors.New("nope")
	}
	opts := Opts{Timeout: 40 * time.Millisecond, Interval: 10 * time.Millisecond}

	startedFirst := time.Now()
	first := Until(gocontext.TODO(), check, statusIs("available"), opts)
	elapsedFirst := time.Since(startedFirst)

	startedSecond := time.Now()
	second := Until(gocontext.TODO(), check, statusIs("available"), opts)
	elapsedSecond := time.Since(startedSecond)

	assert.True(t, first.TimedOut())
	assert.True(t, second.TimedOut())
	assert.InDelta(t, elapsedFirst.Seconds(), elapsedSecond.Seconds(), 0.05)
}

func TestUntil_ContextCancellation(t *testing.T) {
	ctx, cancel := gocontext.WithCancel(gocontext.Background())
	cancel()

	check := func() (state, error) {
		return nil, errors.New("not yet")
	}

	outcome := Until(ctx, check, statusIs("available"), Opts{
		Timeout:  time.Minute,
		Interval: 10 * time.Millisecond,
	})

	assert.True(t, outcome.TimedOut())
}

func TestUntil_DefaultsApplied(t *testing.T) {
	check := func() (state, error) {
		return state{"status": "ACTIVE"}, nil
	}

	outcome := Until(gocontext.TODO(), check, func(state) bool { return true }, Opts{})
	_, ok := outcome.Ready()
	assert.True(t, ok)
}
