package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/pricebot/internal/common"
	"github.com/Veraticus/pricebot/internal/dialog"
)

// recordingSink stores every delivered reply.
type recordingSink struct {
	byUser map[int64][]string
	mu     sync.Mutex
}

func newRecordingSink() *recordingSink {
	return &recordingSink{byUser: make(map[int64][]string)}
}

func (s *recordingSink) Deliver(_ context.Context, ev dialog.Event, reply dialog.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[ev.UserID] = append(s.byUser[ev.UserID], reply.Text)
	return nil
}

func (s *recordingSink) replies(userID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.byUser[userID]...)
}

type handlerFunc func(ctx context.Context, ev dialog.Event) (dialog.Reply, error)

func (f handlerFunc) Handle(ctx context.Context, ev dialog.Event) (dialog.Reply, error) {
	return f(ctx, ev)
}

func TestDispatcher_PerUserOrder(t *testing.T) {
	var (
		active  sync.Map
		overlap atomic.Bool
	)
	handler := handlerFunc(func(_ context.Context, ev dialog.Event) (dialog.Reply, error) {
		if _, busy := active.LoadOrStore(ev.UserID, true); busy {
			overlap.Store(true)
		}
		time.Sleep(time.Millisecond)
		active.Delete(ev.UserID)
		return dialog.Reply{Text: ev.Text}, nil
	})
	sink := newRecordingSink()
	d := New(handler, sink, common.NewTestLogger(t), Options{MaxConcurrent: 4})

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		for _, user := range []int64{1, 2, 3} {
			d.Dispatch(ctx, dialog.NewTextEvent(user, fmt.Sprintf("%d", i)))
		}
	}
	d.Wait()

	assert.False(t, overlap.Load(), "turns of one user must not overlap")
	for _, user := range []int64{1, 2, 3} {
		got := sink.replies(user)
		require.Len(t, got, 20)
		for i, text := range got {
			assert.Equal(t, fmt.Sprintf("%d", i), text, "user %d reply %d", user, i)
		}
	}
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	var (
		running atomic.Int32
		peak    atomic.Int32
	)
	handler := handlerFunc(func(_ context.Context, ev dialog.Event) (dialog.Reply, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return dialog.Reply{Text: "ok"}, nil
	})
	d := New(handler, newRecordingSink(), common.NewNopLogger(), Options{MaxConcurrent: 2})

	for user := int64(1); user <= 10; user++ {
		d.Dispatch(context.Background(), dialog.NewTextEvent(user, "hi"))
	}
	d.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestDispatcher_FailedTurnStillReplies(t *testing.T) {
	handler := handlerFunc(func(context.Context, dialog.Event) (dialog.Reply, error) {
		return dialog.Reply{Text: "failure"}, common.StoreError("op", errors.New("down"))
	})
	sink := newRecordingSink()
	d := New(handler, sink, common.NewNopLogger(), Options{})

	d.Dispatch(context.Background(), dialog.NewTextEvent(9, "x"))
	d.Wait()

	assert.Equal(t, []string{"failure"}, sink.replies(9))
}

func TestDispatcher_FailedTurnShowsUserMessage(t *testing.T) {
	handler := handlerFunc(func(context.Context, dialog.Event) (dialog.Reply, error) {
		return dialog.Reply{}, common.NewUserError("Try again soon", common.StoreError("op", errors.New("down")))
	})
	sink := newRecordingSink()
	d := New(handler, sink, common.NewNopLogger(), Options{})

	d.Dispatch(context.Background(), dialog.NewTextEvent(3, "x"))
	d.Dispatch(context.Background(), dialog.NewTextEvent(4, "y"))
	d.Wait()

	assert.Equal(t, []string{"Try again soon"}, sink.replies(3))
	assert.Equal(t, []string{"Try again soon"}, sink.replies(4))
}

func TestDispatcher_FailedTurnWithoutUserError(t *testing.T) {
	handler := handlerFunc(func(context.Context, dialog.Event) (dialog.Reply, error) {
		return dialog.Reply{}, errors.New("plain")
	})
	sink := newRecordingSink()
	d := New(handler, sink, common.NewNopLogger(), Options{})

	d.Dispatch(context.Background(), dialog.NewTextEvent(6, "x"))
	d.Wait()

	assert.Equal(t, []string{common.DefaultUserMessage}, sink.replies(6))
}

func TestDispatcher_RecoversFromPanic(t *testing.T) {
	calls := 0
	handler := handlerFunc(func(_ context.Context, ev dialog.Event) (dialog.Reply, error) {
		calls++
		if ev.Text == "boom" {
			panic("nil map")
		}
		return dialog.Reply{Text: "fine"}, nil
	})
	sink := newRecordingSink()
	d := New(handler, sink, common.NewNopLogger(), Options{})

	d.Dispatch(context.Background(), dialog.NewTextEvent(5, "boom"))
	d.Dispatch(context.Background(), dialog.NewTextEvent(5, "again"))
	d.Wait()

	replies := sink.replies(5)
	require.Len(t, replies, 2)
	assert.Equal(t, common.DefaultUserMessage, replies[0])
	assert.Equal(t, "fine", replies[1])
	assert.Equal(t, 2, calls)
}

func TestDispatcher_TurnTimeout(t *testing.T) {
	handler := handlerFunc(func(ctx context.Context, _ dialog.Event) (dialog.Reply, error) {
		<-ctx.Done()
		return dialog.Reply{Text: "late"}, ctx.Err()
	})
	sink := SinkFunc(func(ctx context.Context, _ dialog.Event, _ dialog.Reply) error {
		return ctx.Err()
	})
	d := New(handler, sink, common.NewNopLogger(), Options{TurnTimeout: 10 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		d.Dispatch(context.Background(), dialog.NewTextEvent(1, "slow"))
		d.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("turn did not time out")
	}
}

func TestDispatcher_CancelledContextDropsTurns(t *testing.T) {
	var calls atomic.Int32
	handler := handlerFunc(func(context.Context, dialog.Event) (dialog.Reply, error) {
		calls.Add(1)
		return dialog.Reply{Text: "ok"}, nil
	})
	d := New(handler, newRecordingSink(), common.NewNopLogger(), Options{MaxConcurrent: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, dialog.NewTextEvent(1, "hi"))
	d.Wait()

	assert.Equal(t, int32(0), calls.Load())
}
