//go:build integration

package natsutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func natsURL() string {
	if v := os.Getenv("NATS_URL"); v != "" {
		return v
	}
	return nats.DefaultURL
}

func connectNATS(t *testing.T) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(natsURL())
	if err != nil {
		t.Fatalf("nats connect: %v", err)
	}
	t.Cleanup(func() { nc.Close() })
	return nc
}

func TestNATS_PubSub(t *testing.T) {
	nc := connectNATS(t)

	type msg struct {
		Text string `json:"text"`
	}

	ch := make(chan msg, 1)
	sub, err := Subscribe(nc, "integ.pubsub", func(ctx context.Context, m msg) {
		ch <- m
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := Publish(context.Background(), nc, "integ.pubsub", msg{Text: "hello integration"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.Text != "hello integration" {
			t.Fatalf("expected 'hello integration', got %q", got.Text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestNATS_WildcardSubjects(t *testing.T) {
	nc := connectNATS(t)

	type event struct {
		Kind string `json:"kind"`
	}

	ch := make(chan string, 3)
	sub, err := Subscribe(nc, "integ.trips.>", func(ctx context.Context, e event) {
		ch <- e.Kind
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	for _, kind := range []string{"started", "position", "completed"} {
		if err := Publish(context.Background(), nc, "integ.trips."+kind, event{Kind: kind}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout after %d events", i)
		}
	}
}
