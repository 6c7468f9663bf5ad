package notifications

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func runJetStream(t *testing.T) string {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		t.Fatalf("nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

func testNATSConfig(url string) NATSConfig {
	cfg := DefaultNATSConfig(url, "slotkeeper.email")
	cfg.AckWait = 200 * time.Millisecond
	cfg.FetchWait = 100 * time.Millisecond
	return cfg
}

func TestNATSQueueProvisionsStreamAndConsumer(t *testing.T) {
	url := runJetStream(t)
	q, err := NewNATSQueue(testNATSConfig(url))
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	defer q.Close()

	info, err := q.js.StreamInfo("SLOTKEEPER_EMAIL")
	if err != nil {
		t.Fatalf("stream info: %v", err)
	}
	if info.Config.Retention != nats.WorkQueuePolicy {
		t.Fatalf("expected work-queue retention, got %v", info.Config.Retention)
	}
	if _, err := q.js.ConsumerInfo("SLOTKEEPER_EMAIL", "SLOTKEEPER_EMAIL_dispatcher"); err != nil {
		t.Fatalf("consumer info: %v", err)
	}

	// A second instance binds to the existing stream and consumer.
	again, err := NewNATSQueue(testNATSConfig(url))
	if err != nil {
		t.Fatalf("second queue: %v", err)
	}
	_ = again.Close()
}

func TestNATSQueueRedeliversUnacked(t *testing.T) {
	q, err := NewNATSQueue(testNATSConfig(runJetStream(t)))
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job := NewJob("a@example.com", "Appointment Reminder", "<p>a</p>", "b1")
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	msg, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if msg.Job.ID != job.ID || msg.Job.BookingID != "b1" {
		t.Fatalf("unexpected job %+v", msg.Job)
	}

	redelivered, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue after ack wait: %v", err)
	}
	if redelivered.Job.ID != job.ID {
		t.Fatalf("expected redelivery of %s, got %s", job.ID, redelivered.Job.ID)
	}
	if err := redelivered.Ack(); err != nil {
		t.Fatalf("ack: %v", err)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancelShort()
	if _, err := q.Dequeue(short); err == nil {
		t.Fatal("acked job must not be delivered again")
	}
}
