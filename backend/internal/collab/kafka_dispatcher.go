package collab

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

var ErrDispatcherClosed = errors.New("kafka dispatcher closed")

// KafkaDispatcher publishes transcript events off the edit path: a bounded
// local queue drained by workers with limited retry. When Kafka stalls the
// queue absorbs the backlog; once it is full Enqueue waits for ctx and the
// event is dropped.
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string
	log      zerolog.Logger

	queue chan TranscriptEvent

	// sem bounds concurrent SendMessage calls.
	sem *SemaphoreControl

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	// mu guards closed against sends on the closed queue.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type KafkaDispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultDispatcherOptions matches the values the server runs with when the
// config leaves them unset.
var DefaultDispatcherOptions = KafkaDispatcherOptions{
	QueueSize:   10_000,
	Workers:     4,
	MaxRetry:    3,
	BaseBackoff: 50 * time.Millisecond,
	MaxBackoff:  time.Second,
}

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, sem *SemaphoreControl, opt KafkaDispatcherOptions, log zerolog.Logger) *KafkaDispatcher {
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	d := &KafkaDispatcher{
		producer:    producer,
		topic:       topic,
		log:         log.With().Str("component", "kafka_dispatcher").Logger(),
		queue:       make(chan TranscriptEvent, opt.QueueSize),
		sem:         sem,
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}

	d.Start()
	return d
}

// Enqueue puts evt on the local queue. It blocks while the queue is full and
// gives up when ctx is done; events are best effort.
func (d *KafkaDispatcher) Enqueue(ctx context.Context, evt TranscriptEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *KafkaDispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

// Close stops accepting events and waits for the queue to drain. Enqueue
// returns ErrDispatcherClosed afterwards.
func (d *KafkaDispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *KafkaDispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *KafkaDispatcher) sendWithRetry(workerID int, evt TranscriptEvent) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		if d.sem != nil {
			// workers may wait forever, the edit path never does
			_ = d.sem.Acquire(context.Background())
		}

		err := d.sendOnce(evt)

		if d.sem != nil {
			_ = d.sem.Release()
		}

		if err == nil {
			return
		}

		if attempt == d.maxRetry {
			d.log.Error().Err(err).
				Str("transcriptId", evt.TranscriptID).
				Str("operationId", evt.OperationID).
				Uint64("revision", evt.Revision).
				Int("worker", workerID).
				Msg("kafka send failed, dropping event")
			return
		}

		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (d *KafkaDispatcher) sendOnce(evt TranscriptEvent) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.TranscriptID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
