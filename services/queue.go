// services/queue.go - Asynchronous evaluation queue
package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"chainverse/models"
)

const (
	evaluationQueueKey = "chainverse:evaluation:queue"

	// Retryable jobs (opponent not submitted yet, transient failures) are
	// re-enqueued up to this many times before being dropped.
	maxEvaluationAttempts = 5
	retryBackoff          = 2 * time.Second
)

// EvaluationJob is the unit of work pushed when the second submission lands.
type EvaluationJob struct {
	ChallengeID uint `json:"challenge_id"`
	Attempt     int  `json:"attempt"`
}

// EvaluationQueue decouples submission handling from evaluation. Delivery is
// at-least-once; the evaluator's own guards make duplicate deliveries no-ops.
type EvaluationQueue interface {
	Enqueue(ctx context.Context, job EvaluationJob) error
	Dequeue(ctx context.Context) (EvaluationJob, error)
}

// RedisEvaluationQueue is a list-backed queue (LPUSH producer, BRPOP consumer).
type RedisEvaluationQueue struct {
	client *redis.Client
}

func NewRedisEvaluationQueue(client *redis.Client) *RedisEvaluationQueue {
	return &RedisEvaluationQueue{client: client}
}

var _ EvaluationQueue = (*RedisEvaluationQueue)(nil)

func (q *RedisEvaluationQueue) Enqueue(ctx context.Context, job EvaluationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, evaluationQueueKey, payload).Err()
}

func (q *RedisEvaluationQueue) Dequeue(ctx context.Context) (EvaluationJob, error) {
	var job EvaluationJob
	res, err := q.client.BRPop(ctx, 5*time.Second, evaluationQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return job, errQueueEmpty
		}
		return job, err
	}
	// BRPop returns [key, value].
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return job, err
	}
	return job, nil
}

var errQueueEmpty = errors.New("queue empty")

// MemoryEvaluationQueue is a channel-backed queue for single-process
// deployments and tests.
type MemoryEvaluationQueue struct {
	jobs chan EvaluationJob
}

func NewMemoryEvaluationQueue(capacity int) *MemoryEvaluationQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryEvaluationQueue{jobs: make(chan EvaluationJob, capacity)}
}

var _ EvaluationQueue = (*MemoryEvaluationQueue)(nil)

func (q *MemoryEvaluationQueue) Enqueue(ctx context.Context, job EvaluationJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryEvaluationQueue) Dequeue(ctx context.Context) (EvaluationJob, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-time.After(5 * time.Second):
		return EvaluationJob{}, errQueueEmpty
	case <-ctx.Done():
		return EvaluationJob{}, ctx.Err()
	}
}

// EvaluationWorker drains the queue and drives the evaluation service.
type EvaluationWorker struct {
	queue     EvaluationQueue
	evaluator *EvaluationService

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEvaluationWorker(queue EvaluationQueue, evaluator *EvaluationService) *EvaluationWorker {
	return &EvaluationWorker{queue: queue, evaluator: evaluator}
}

func (w *EvaluationWorker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(ctx)
	log.Println("Evaluation worker started")
}

func (w *EvaluationWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	log.Println("Evaluation worker stopped")
}

func (w *EvaluationWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, errQueueEmpty) || errors.Is(err, context.Canceled) {
				continue
			}
			log.Printf("Evaluation worker: dequeue failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		w.process(ctx, job)
	}
}

func (w *EvaluationWorker) process(ctx context.Context, job EvaluationJob) {
	_, err := w.evaluator.Evaluate(ctx, job.ChallengeID, models.EvaluationMethodAutomatic)
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, models.ErrEvaluationNotReady):
		w.retry(ctx, job, err)
	case errors.Is(err, models.ErrChallengeExpired),
		errors.Is(err, models.ErrChallengeNotFound):
		log.Printf("Evaluation worker: challenge %d not evaluated: %v", job.ChallengeID, err)
	default:
		log.Printf("Evaluation worker: challenge %d failed: %v", job.ChallengeID, err)
		w.retry(ctx, job, err)
	}
}

func (w *EvaluationWorker) retry(ctx context.Context, job EvaluationJob, cause error) {
	if job.Attempt+1 >= maxEvaluationAttempts {
		log.Printf("Evaluation worker: challenge %d dropped after %d attempts: %v",
			job.ChallengeID, maxEvaluationAttempts, cause)
		return
	}
	job.Attempt++
	time.Sleep(retryBackoff)
	if err := w.queue.Enqueue(ctx, job); err != nil {
		log.Printf("Evaluation worker: re-enqueue of challenge %d failed: %v", job.ChallengeID, err)
	}
}
