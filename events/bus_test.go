package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestPublishAndSubscribe(t *testing.T) {
	bus := NewInMemoryBus()

	var got []*Event
	bus.Subscribe(func(_ context.Context, ev *Event) error {
		got = append(got, ev)
		return nil
	})

	ev := &Event{Type: TypeCreated, TaskID: "t1", Agent: "analyst"}
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("handler saw %d events, want 1", len(got))
	}
	if got[0].TaskID != "t1" || got[0].Type != TypeCreated {
		t.Errorf("handler got %+v", got[0])
	}
	if got[0].ID == "" {
		t.Error("event ID was not assigned")
	}
	if got[0].Timestamp.IsZero() {
		t.Error("event timestamp was not assigned")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewInMemoryBus()

	count := 0
	unsub := bus.Subscribe(func(_ context.Context, _ *Event) error {
		count++
		return nil
	})

	if err := bus.Publish(context.Background(), &Event{Type: TypeStarted}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	unsub()
	if err := bus.Publish(context.Background(), &Event{Type: TypeCompleted}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if count != 1 {
		t.Errorf("handler ran %d times, want 1", count)
	}
}

func TestPublish_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewInMemoryBus()

	bus.Subscribe(func(_ context.Context, _ *Event) error {
		return errors.New("consumer broken")
	})
	reached := false
	bus.Subscribe(func(_ context.Context, _ *Event) error {
		reached = true
		return nil
	})

	err := bus.Publish(context.Background(), &Event{Type: TypeFailed})
	if err == nil {
		t.Fatal("Publish: expected handler error to surface")
	}
	if !reached {
		t.Error("second handler was skipped after the first errored")
	}
}

func TestHistory(t *testing.T) {
	bus := NewInMemoryBus()

	for i := 0; i < 5; i++ {
		ev := &Event{Type: TypeCreated, TaskID: fmt.Sprintf("t%d", i)}
		if err := bus.Publish(context.Background(), ev); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	all, err := bus.History(0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("History(0) = %d events, want 5", len(all))
	}
	if all[0].TaskID != "t0" || all[4].TaskID != "t4" {
		t.Error("history is not in chronological order")
	}

	last2, err := bus.History(2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(last2) != 2 || last2[0].TaskID != "t3" || last2[1].TaskID != "t4" {
		t.Errorf("History(2) = %v, want [t3 t4]", []string{last2[0].TaskID, last2[1].TaskID})
	}
}

func TestHistory_Cap(t *testing.T) {
	bus := NewInMemoryBus()
	bus.maxHist = 3

	for i := 0; i < 10; i++ {
		ev := &Event{Type: TypeCreated, TaskID: fmt.Sprintf("t%d", i)}
		if err := bus.Publish(context.Background(), ev); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	all, _ := bus.History(0)
	if len(all) != 3 {
		t.Fatalf("retained %d events, want 3", len(all))
	}
	if all[0].TaskID != "t7" {
		t.Errorf("oldest retained = %s, want t7", all[0].TaskID)
	}
}

func TestPublish_Concurrent(t *testing.T) {
	bus := NewInMemoryBus()

	var mu sync.Mutex
	seen := 0
	bus.Subscribe(func(_ context.Context, _ *Event) error {
		mu.Lock()
		seen++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = bus.Publish(context.Background(), &Event{Type: TypeCreated, TaskID: fmt.Sprintf("t%d", n)})
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if seen != 20 {
		t.Errorf("handler saw %d events, want 20", seen)
	}
}
