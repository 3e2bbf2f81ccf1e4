package ipc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1broseidon/surfacebridge/internal/binary"
	"github.com/1broseidon/surfacebridge/internal/ipc"
	"github.com/1broseidon/surfacebridge/internal/ipc/ipctest"
	"github.com/1broseidon/surfacebridge/internal/loop"
)

// queue holds posted tasks until run is called.
type queue struct {
	tasks []func()
}

func (q *queue) Post(task func()) { q.tasks = append(q.tasks, task) }

func (q *queue) run() {
	for len(q.tasks) > 0 {
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		task()
	}
}

type result struct {
	r   *binary.Reader
	err error
	n   int
}

func TestMessengerGoDeliversResponseOnScheduler(t *testing.T) {
	tr := ipctest.New()
	q := &queue{}
	m := ipc.NewMessenger(tr, q, ipc.MessengerOptions{})

	var got result
	m.Go("ns/echo", func(w *binary.Writer) { w.U32(7) }, func(r *binary.Reader, err error) {
		got.r, got.err = r, err
		got.n++
	})

	call := tr.Last()
	require.Equal(t, "ns/echo", call.Channel)
	require.Equal(t, []byte{7, 0, 0, 0}, call.Payload)

	tr.RespondWith(call, func(w *binary.Writer) { w.I64(99) })
	require.Zero(t, got.n, "completion must wait for the scheduler")

	q.run()
	require.Equal(t, 1, got.n)
	require.NoError(t, got.err)
	require.Equal(t, int64(99), got.r.I64())
	require.NoError(t, got.r.AssertFinished())
}

func TestMessengerAbsentResponseIsCommunicationError(t *testing.T) {
	tr := ipctest.New()
	m := ipc.NewMessenger(tr, loop.Inline{}, ipc.MessengerOptions{})

	var got result
	m.Go("ns/create", nil, func(r *binary.Reader, err error) { got.r, got.err = r, err })
	tr.Respond(tr.Last(), nil)

	require.Nil(t, got.r)
	require.ErrorIs(t, got.err, ipc.ErrCommunication)
	var ce *ipc.CallError
	require.True(t, errors.As(got.err, &ce))
	require.Equal(t, "ns/create", ce.Channel)
}

func TestMessengerEmptyResponseIsValid(t *testing.T) {
	tr := ipctest.New()
	m := ipc.NewMessenger(tr, loop.Inline{}, ipc.MessengerOptions{})

	var got result
	m.Go("ns/remove", nil, func(r *binary.Reader, err error) { got.r, got.err = r, err })
	tr.RespondEmpty(tr.Last())

	require.NoError(t, got.err)
	require.NotNil(t, got.r)
	require.NoError(t, got.r.AssertFinished())
}

func TestMessengerTransportErrorIsWrapped(t *testing.T) {
	tr := ipctest.New()
	m := ipc.NewMessenger(tr, loop.Inline{}, ipc.MessengerOptions{})

	var got result
	m.Go("ns/x", nil, func(r *binary.Reader, err error) { got.err = err })
	tr.Fail(tr.Last(), ipc.ErrClosed)

	require.ErrorIs(t, got.err, ipc.ErrClosed)
}

func TestMessengerTimeoutCompletesOnceAndDropsLateResponse(t *testing.T) {
	tr := ipctest.New()
	m := ipc.NewMessenger(tr, loop.Inline{}, ipc.MessengerOptions{Timeout: 10 * time.Millisecond})

	done := make(chan result, 2)
	m.Go("ns/slow", nil, func(r *binary.Reader, err error) { done <- result{r: r, err: err} })

	select {
	case res := <-done:
		require.ErrorIs(t, res.err, ipc.ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("call did not time out")
	}

	tr.RespondEmpty(tr.Last())
	select {
	case res := <-done:
		t.Fatalf("late response delivered: %+v", res)
	default:
	}
}

func TestMessengerCallBlocksUntilResponse(t *testing.T) {
	tr := ipctest.New()
	m := ipc.NewMessenger(tr, loop.New(), ipc.MessengerOptions{})

	go func() {
		for {
			if c := tr.Last(); c != nil {
				tr.RespondWith(c, func(w *binary.Writer) { w.UTF8("ok") })
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	r, err := m.Call(context.Background(), "ns/status", nil)
	require.NoError(t, err)
	require.Equal(t, "ok", r.UTF8())
	require.NoError(t, r.AssertFinished())
}

func TestMessengerCallHonoursContext(t *testing.T) {
	tr := ipctest.New()
	m := ipc.NewMessenger(tr, loop.Inline{}, ipc.MessengerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Call(ctx, "ns/status", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMessengerHandlersRunOnScheduler(t *testing.T) {
	tr := ipctest.New()
	q := &queue{}
	m := ipc.NewMessenger(tr, q, ipc.MessengerOptions{})

	var ids []int64
	m.RegisterHandler("ns/close", func(r *binary.Reader) {
		ids = append(ids, r.I64())
		require.NoError(t, r.AssertFinished())
	})

	require.True(t, tr.Notify("ns/close", func(w *binary.Writer) { w.I64(5) }))
	require.Empty(t, ids)
	q.run()
	require.Equal(t, []int64{5}, ids)

	require.False(t, tr.Notify("ns/other", nil))
}

func TestMockTransportPanicsOnSecondResponse(t *testing.T) {
	tr := ipctest.New()
	m := ipc.NewMessenger(tr, loop.Inline{}, ipc.MessengerOptions{})
	m.Go("ns/x", nil, func(*binary.Reader, error) {})

	c := tr.Last()
	tr.RespondEmpty(c)
	require.Panics(t, func() { tr.RespondEmpty(c) })
}
