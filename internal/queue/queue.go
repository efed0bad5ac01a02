package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/syagroup/bulksms-backend/internal/model"
)

// TopicCampaignBatches carries campaign runner invocations.
const TopicCampaignBatches = "campaign_batches"

// Queue dispatches campaign batch jobs to subscribers. Delivery is
// at-least-once: consumers must tolerate duplicate invocations (the runner
// guard and idempotent upserts provide that).
type Queue interface {
	Publish(topic string, job model.BatchJob, delay time.Duration) error
	Subscribe(topic string, handler func(job model.BatchJob) error) error
}

// InMemoryQueue is a process-local queue used by tests and single-binary
// deployments. Delayed publishes fire from a timer goroutine.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(job model.BatchJob) error
	logger   *logrus.Logger
}

func NewInMemoryQueue(log *logrus.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(job model.BatchJob) error),
		logger:   log,
	}
}

// Publish delivers the job to all subscribers of the topic after the given
// delay. A job published while the process dies during the delay window is
// lost; the worker sweep re-enqueues enabled tenants to cover that.
func (q *InMemoryQueue) Publish(topic string, job model.BatchJob, delay time.Duration) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	dispatch := func() {
		for _, handler := range handlers {
			h := handler
			go func() {
				if err := h(job); err != nil {
					q.logger.WithFields(logrus.Fields{
						"topic":     topic,
						"job_id":    job.JobID,
						"tenant_id": job.TenantID,
					}).Warnf("job handler failed: %v", err)
				}
			}()
		}
	}

	if delay > 0 {
		time.AfterFunc(delay, dispatch)
	} else {
		dispatch()
	}
	return nil
}

// Subscribe adds a handler for a topic.
func (q *InMemoryQueue) Subscribe(topic string, handler func(job model.BatchJob) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}
