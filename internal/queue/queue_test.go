package queue

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/syagroup/bulksms-backend/internal/model"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestPublishNoSubscribers(t *testing.T) {
	q := NewInMemoryQueue(quietLogger())
	err := q.Publish(TopicCampaignBatches, model.BatchJob{TenantID: 1}, 0)
	if err == nil {
		t.Fatal("expected error publishing with no subscribers")
	}
}

func TestPublishDelivers(t *testing.T) {
	q := NewInMemoryQueue(quietLogger())

	got := make(chan model.BatchJob, 1)
	q.Subscribe(TopicCampaignBatches, func(job model.BatchJob) error {
		got <- job
		return nil
	})

	job := model.BatchJob{JobID: "j-1", TenantID: 42}
	if err := q.Publish(TopicCampaignBatches, job, 0); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case received := <-got:
		if received.TenantID != 42 || received.JobID != "j-1" {
			t.Errorf("unexpected job %+v", received)
		}
	case <-time.After(time.Second):
		t.Fatal("job was not delivered")
	}
}

func TestPublishDelayed(t *testing.T) {
	q := NewInMemoryQueue(quietLogger())

	var mu sync.Mutex
	var deliveredAt time.Time
	done := make(chan struct{})
	q.Subscribe(TopicCampaignBatches, func(job model.BatchJob) error {
		mu.Lock()
		deliveredAt = time.Now()
		mu.Unlock()
		close(done)
		return nil
	})

	start := time.Now()
	delay := 50 * time.Millisecond
	if err := q.Publish(TopicCampaignBatches, model.BatchJob{TenantID: 1}, delay); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed job was not delivered")
	}

	mu.Lock()
	elapsed := deliveredAt.Sub(start)
	mu.Unlock()
	if elapsed < delay {
		t.Errorf("job delivered after %v, before the %v delay", elapsed, delay)
	}
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	q := NewInMemoryQueue(quietLogger())

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		q.Subscribe(TopicCampaignBatches, func(job model.BatchJob) error {
			wg.Done()
			return nil
		})
	}

	if err := q.Publish(TopicCampaignBatches, model.BatchJob{TenantID: 7}, 0); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all subscribers received the job")
	}
}
