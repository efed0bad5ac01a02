package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/syagroup/bulksms-backend/internal/model"
)

// AMQPQueue publishes campaign batch jobs to a durable RabbitMQ queue and
// consumes them in the worker. One worker process is the sole consumer of
// the batch queue, which keeps the in-process runner guard authoritative.
type AMQPQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *logrus.Logger
}

func NewAMQPQueue(url string, log *logrus.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, logger: log}, nil
}

func (q *AMQPQueue) declare(topic string) (amqp.Queue, error) {
	return q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
}

// Publish enqueues one job. Delay is implemented by deferring the publish on
// a timer rather than broker-side TTL, so a crash during the delay window
// drops the job; the worker sweep repairs that.
func (q *AMQPQueue) Publish(topic string, job model.BatchJob, delay time.Duration) error {
	declared, err := q.declare(topic)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	publish := func() error {
		return q.ch.Publish(
			"",
			declared.Name,
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
			},
		)
	}

	if delay > 0 {
		time.AfterFunc(delay, func() {
			if err := publish(); err != nil {
				q.logger.WithFields(logrus.Fields{
					"topic":  topic,
					"job_id": job.JobID,
				}).Errorf("delayed publish failed: %v", err)
			}
		})
		return nil
	}
	return publish()
}

// Subscribe consumes jobs from the topic and runs handler for each, acking
// on completion. Handler errors are logged and acked anyway: the runner
// records per-contact failures itself and a broker-level redelivery of a
// whole batch job would only hit the runner guard.
func (q *AMQPQueue) Subscribe(topic string, handler func(job model.BatchJob) error) error {
	declared, err := q.declare(topic)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	msgs, err := q.ch.Consume(
		declared.Name,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for d := range msgs {
			var job model.BatchJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				q.logger.Warnf("invalid job payload: %v", err)
				d.Ack(false)
				continue
			}

			if err := handler(job); err != nil {
				q.logger.WithFields(logrus.Fields{
					"topic":     topic,
					"job_id":    job.JobID,
					"tenant_id": job.TenantID,
				}).Warnf("job handler failed: %v", err)
			}
			d.Ack(false)
		}
	}()
	return nil
}

// Close shuts down the channel and connection.
func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
var _ Queue = (*InMemoryQueue)(nil)
