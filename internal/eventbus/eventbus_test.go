package eventbus

import (
	"context"
	"testing"
)

type testEvent struct{ n int }

type otherEvent struct{}

func TestPublishReachesSubscribers(t *testing.T) {
	Use(New())
	defer Use(nil)

	var got []int
	unsub := Subscribe(func(ctx context.Context, e testEvent) {
		got = append(got, e.n)
	})
	defer unsub()

	Publish(context.Background(), testEvent{n: 1})
	Publish(context.Background(), testEvent{n: 2})
	Publish(context.Background(), otherEvent{})

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestUnsubscribeRemovesOnlyItself(t *testing.T) {
	Use(New())
	defer Use(nil)

	var a, b int
	unsubA := Subscribe(func(ctx context.Context, e testEvent) { a++ })
	unsubB := Subscribe(func(ctx context.Context, e testEvent) { b++ })
	defer unsubB()

	Publish(context.Background(), testEvent{})
	unsubA()
	Publish(context.Background(), testEvent{})

	if a != 1 || b != 2 {
		t.Fatalf("expected a=1 b=2, got a=%d b=%d", a, b)
	}
}

func TestDispatchOrderFollowsRegistration(t *testing.T) {
	Use(New())
	defer Use(nil)

	var order []string
	defer Subscribe(func(ctx context.Context, e testEvent) { order = append(order, "first") })()
	defer Subscribe(func(ctx context.Context, e testEvent) { order = append(order, "second") })()

	Publish(context.Background(), testEvent{})
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestNoBusIsNoOp(t *testing.T) {
	Use(nil)
	Publish(context.Background(), testEvent{})
	unsub := Subscribe(func(ctx context.Context, e testEvent) {})
	unsub()
}
