package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestRunnerFirstStopCancelsOthers(t *testing.T) {
	failure := errors.New("link lost")
	r := NewRunner()
	r.Go(
		NamedRun("waiter", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		NamedRun("failing", RunFunc(func(context.Context) error {
			return failure
		})),
	)
	err := r.Wait()
	require.ErrorIs(t, err, failure)
	require.Equal(t, "link lost", err.Error())
	require.Error(t, r.Context.Err())
}

func TestRunnerCanceledIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunnerWith(ctx).Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	cancel()
	require.NoError(t, r.Wait())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Aggregate())
	e1, e2 := errors.New("one"), errors.New("two")
	errs.Add(nil, e1).Add(e2)
	err := errs.Aggregate()
	require.Error(t, err)
	require.Equal(t, "Multiple errors:\none\ntwo", err.Error())
	require.ErrorIs(t, err, e2)
}

func TestRunWithContextCloser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	unblock := make(chan struct{})
	closed := 0
	closer := closerFunc(func() error {
		closed++
		close(unblock)
		return nil
	})
	go func() {
		time.Sleep(time.Millisecond)
		cancel()
	}()
	err := RunWithContextCloser(ctx, closer, func() error {
		<-unblock
		return errors.New("read on closed link")
	})
	require.Equal(t, context.Canceled, err)
	require.Equal(t, 1, closed)

	closed = 0
	unblock = make(chan struct{})
	require.NoError(t, RunWithContextCloser(context.Background(), closer, func() error { return nil }))
	require.Equal(t, 1, closed)
}
