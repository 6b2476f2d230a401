package pubsub

import "testing"

func TestTopicPublishesInSubscriptionOrder(t *testing.T) {
	var topic Topic[int]
	var got []string
	topic.Subscribe(func(v int) { got = append(got, "first") })
	topic.Subscribe(func(v int) { got = append(got, "second") })

	topic.Publish(1)

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("got %v, want [first second]", got)
	}
}

func TestTopicUnsubscribeDuringPublish(t *testing.T) {
	var topic Topic[string]
	calls := 0
	var unsubscribe func()
	unsubscribe = topic.Subscribe(func(string) {
		calls++
		unsubscribe()
	})
	other := 0
	topic.Subscribe(func(string) { other++ })

	topic.Publish("a")
	topic.Publish("b")

	if calls != 1 {
		t.Errorf("self-removing subscriber called %d times, want 1", calls)
	}
	if other != 2 {
		t.Errorf("remaining subscriber called %d times, want 2", other)
	}
	if topic.Len() != 1 {
		t.Errorf("Len = %d, want 1", topic.Len())
	}

	unsubscribe()
	if topic.Len() != 1 {
		t.Errorf("second unsubscribe removed another subscriber; Len = %d", topic.Len())
	}
}
