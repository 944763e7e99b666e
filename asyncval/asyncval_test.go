package asyncval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMapStaysSynchronous(t *testing.T) {
	v, err := Map(context.Background(), 41, func(v any) (any, error) {
		return v.(int) + 1, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.False(t, IsDeferred(v))
}

func TestMapChainsDeferred(t *testing.T) {
	d := New()
	v, err := Map(context.Background(), d, func(v any) (any, error) {
		return v.(int) * 2, nil
	})
	require.NoError(t, err)
	require.True(t, IsDeferred(v))

	d.Complete(21, nil)
	rv, err := Await(context.Background(), v)
	require.NoError(t, err)
	require.Equal(t, 42, rv)
}

func TestMapFlattensInnerDeferred(t *testing.T) {
	inner := Resolved("done", nil)
	d := New()
	d.Complete(1, nil)
	v, err := Map(context.Background(), d, func(any) (any, error) {
		return inner, nil
	})
	require.NoError(t, err)
	rv, err := Await(context.Background(), v)
	require.NoError(t, err)
	require.Equal(t, "done", rv)
}

func TestCompleteIsIdempotent(t *testing.T) {
	d := New()
	d.Complete(1, nil)
	d.Complete(2, errors.New("late"))
	v, err := d.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestWaitHonorsContext(t *testing.T) {
	d := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := d.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAllSynchronousPassthrough(t *testing.T) {
	vs := []any{1, "a", nil}
	out := All(context.Background(), vs)
	require.False(t, IsDeferred(out))
	require.Equal(t, vs, out)
}

func TestAllAwaitsInOrder(t *testing.T) {
	slow := New()
	fast := Resolved("fast", nil)
	out := All(context.Background(), []any{slow, fast, "plain"})
	require.True(t, IsDeferred(out))

	go func() {
		time.Sleep(5 * time.Millisecond)
		slow.Complete("slow", nil)
	}()
	rv, err := Await(context.Background(), out)
	require.NoError(t, err)
	require.Equal(t, []any{"slow", "fast", "plain"}, rv)
}

func TestAllPropagatesFailure(t *testing.T) {
	boom := errors.New("boom")
	out := All(context.Background(), []any{Resolved(nil, boom), 1})
	_, err := Await(context.Background(), out)
	require.ErrorIs(t, err, boom)
}

func TestGoAdoptsInnerOutcome(t *testing.T) {
	d := Go(func() (any, error) {
		return Resolved(7, nil), nil
	})
	v, err := d.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestAwaitUnwrapsChains(t *testing.T) {
	chain := Resolved(Resolved(Resolved("deep", nil), nil), nil)
	v, err := Await(context.Background(), chain)
	require.NoError(t, err)
	require.Equal(t, "deep", v)
}
