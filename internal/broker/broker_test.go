package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/metrics"
	"github.com/alanyoungcy/settled/internal/outbox"
)

func TestSaramaPublisher(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"type":"order_placed"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewSaramaPublisherWithProducer(producer, "settlement-events")
	if err := pub.Publish(context.Background(), "market-1", []byte(`{"type":"order_placed"}`)); err != nil {
		t.Fatal(err)
	}
	if err := pub.Publish(context.Background(), "market-1", []byte(`{}`)); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("err = %v, want ErrOutOfBrokers", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatal(err)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaGoPublisher(t *testing.T) {
	w := &fakeWriter{}
	pub := NewKafkaGoPublisherWithWriter(w)
	if err := pub.Publish(context.Background(), "market-7", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "market-7" || string(w.msgs[0].Value) != "payload" {
		t.Fatalf("messages = %+v", w.msgs)
	}
}

// flakyPublisher fails the first failures publishes.
type flakyPublisher struct {
	mu       sync.Mutex
	failures int
	keys     []string
}

func (p *flakyPublisher) Publish(_ context.Context, key string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker down")
	}
	p.keys = append(p.keys, key)
	return nil
}

func (p *flakyPublisher) Close() error { return nil }

func TestRelayRetriesFailedEntries(t *testing.T) {
	ob, err := outbox.Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer ob.Close()
	ctx := context.Background()
	for _, id := range []uint64{1, 2, 3} {
		if err := ob.Append(ctx, domain.Event{ID: "e", Type: domain.EventOrderPlaced, MarketID: id}); err != nil {
			t.Fatal(err)
		}
	}

	pub := &flakyPublisher{failures: 1}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	relay := NewRelay(ob, pub, time.Millisecond, 3, metrics.New("test"), logger)

	n, err := relay.Flush(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("first flush delivered %d, want 2", n)
	}
	e, err := ob.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if e.State != outbox.StateFailed || e.Retries != 1 {
		t.Fatalf("entry 1 = %+v, want one failed attempt", e)
	}

	n, err = relay.Flush(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("second flush delivered %d, want 1", n)
	}
	want := []string{"market-2", "market-3", "market-1"}
	for i, k := range want {
		if pub.keys[i] != k {
			t.Fatalf("published keys = %v, want %v", pub.keys, want)
		}
	}
	remaining := 0
	_ = ob.Scan(func(outbox.Entry) error { remaining++; return nil })
	if remaining != 0 {
		t.Fatalf("%d entries left after delivery", remaining)
	}
}

func TestRelayGivesUpAfterMaxRetries(t *testing.T) {
	ob, err := outbox.Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer ob.Close()
	ctx := context.Background()
	if err := ob.Append(ctx, domain.Event{ID: "e", Type: domain.EventOrderPlaced, MarketID: 1}); err != nil {
		t.Fatal(err)
	}
	pub := &flakyPublisher{failures: 100}
	relay := NewRelay(ob, pub, time.Millisecond, 2, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	for range 5 {
		if _, err := relay.Flush(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if pub.failures != 98 {
		t.Fatalf("publish attempts = %d, want 2", 100-pub.failures)
	}
}
