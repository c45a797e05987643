package events

import (
	"sync"
	"testing"
)

func TestPublishDelivers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventFeatureScheduled)

	bus.Publish(EventFeatureScheduled, Payload{"id": "e1"})

	select {
	case payload := <-sub:
		if payload["id"] != "e1" {
			t.Errorf("payload = %+v, want id e1", payload)
		}
	default:
		t.Fatal("no payload delivered")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventFeatureCancelled)
	bus.Unsubscribe(EventFeatureCancelled, sub)

	bus.Publish(EventFeatureCancelled, Payload{"id": "e1"})

	if len(sub) != 0 {
		t.Error("unsubscribed channel still received a payload")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventFeatureScheduled)

	// Overfill the buffer; the extra publishes must return without blocking.
	for i := 0; i < cap(sub)+4; i++ {
		bus.Publish(EventFeatureScheduled, Payload{"n": i})
	}

	if len(sub) != cap(sub) {
		t.Errorf("buffered = %d, want full buffer %d", len(sub), cap(sub))
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus()

	// A publish snapshot may outlive the unsubscribe; sends to the removed
	// channel must never panic.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		sub := bus.Subscribe(EventFeatureRescheduled)

		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				bus.Publish(EventFeatureRescheduled, Payload{"n": j})
			}
		}()
		go func(s Subscriber) {
			defer wg.Done()
			bus.Unsubscribe(EventFeatureRescheduled, s)
		}(sub)
	}
	wg.Wait()
}
