package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mapit-backend/internal/models"
)

const (
	popTimeout = 30 * time.Second
	lockTTL    = 10 * time.Minute
	jobTimeout = 8 * time.Minute
)

// Processor runs one job type.
type Processor interface {
	Process(ctx context.Context, job *models.Job) error
	// MarkFailed records a job that exhausted its retries.
	MarkFailed(ctx context.Context, job *models.Job, errMsg string) error
}

// ResultTyper is optionally implemented by a Processor to name what the
// job's reference id points at in completion events.
type ResultTyper interface {
	ResultType() string
}

type JobStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

type Pool struct {
	redis       *redis.Client
	queue       Enqueuer
	jobs        JobStore
	publisher   Publisher
	processors  map[string]Processor
	workerCount int
	backoff     func(attempt int) time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	retryMu sync.Mutex
	retries map[uuid.UUID]*pendingRetry
	stopped bool
}

// pendingRetry is a failed job waiting out its backoff before it is
// pushed back onto the queue.
type pendingRetry struct {
	timer *time.Timer
	job   models.Job
	proc  Processor
}

func NewPool(redisClient *redis.Client, queue Enqueuer, jobs JobStore, publisher Publisher, workerCount int) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Pool{
		redis:       redisClient,
		queue:       queue,
		jobs:        jobs,
		publisher:   publisher,
		processors:  make(map[string]Processor),
		workerCount: workerCount,
		backoff:     exponentialBackoff,
		retries:     make(map[uuid.UUID]*pendingRetry),
	}
}

// Register routes jobs of jobType to proc. Call before Start.
func (p *Pool) Register(jobType string, proc Processor) {
	p.processors[jobType] = proc
}

func (p *Pool) queues() []string {
	names := make([]string, 0, len(p.processors))
	for jobType := range p.processors {
		names = append(names, QueueName(jobType))
	}
	return names
}

func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	queues := p.queues()
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i, queues)
	}

	log.Printf("Started %d worker goroutines on %v", p.workerCount, queues)
}

// Stop signals workers, waits for in-flight jobs to finish and then
// requeues every retry still waiting out its backoff.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.retryMu.Lock()
	p.stopped = true
	pending := make([]*pendingRetry, 0, len(p.retries))
	for id, r := range p.retries {
		r.timer.Stop()
		pending = append(pending, r)
		delete(p.retries, id)
	}
	p.retryMu.Unlock()

	if len(pending) > 0 {
		log.Printf("Requeueing %d pending retries before shutdown", len(pending))
	}
	for _, r := range pending {
		p.requeue(r)
	}
}

func (p *Pool) worker(ctx context.Context, id int, queues []string) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			log.Printf("Worker %d shutting down", id)
			return
		}

		result, err := p.redis.BLPop(ctx, popTimeout, queues...).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Printf("Worker %d: BLPOP failed: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, id, lockTTL).Result()
		if err != nil || !locked {
			continue // another worker has this job
		}

		log.Printf("Worker %d: processing job %s (type: %s, attempt %d)", id, job.ID, job.Type, job.RetryCount+1)

		// in-flight jobs finish even when the pool is stopping
		jobCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		p.execute(jobCtx, &job)
		cancel()

		p.redis.Del(context.Background(), lockKey)
	}
}

func (p *Pool) execute(ctx context.Context, job *models.Job) {
	proc, ok := p.processors[job.Type]
	if !ok {
		p.handleFailure(ctx, job, nil, fmt.Errorf("unknown job type: %s", job.Type), true)
		return
	}

	p.jobs.UpdateStatus(ctx, job.ID, models.JobProcessing)

	if err := runSafely(ctx, proc, job); err != nil {
		p.handleFailure(ctx, job, proc, err, false)
		return
	}
	p.handleSuccess(ctx, job, proc)
}

func runSafely(ctx context.Context, proc Processor, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing job: %v", r)
		}
	}()
	return proc.Process(ctx, job)
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job, proc Processor) {
	p.jobs.UpdateStatus(ctx, job.ID, models.JobCompleted)

	resultType := job.Type
	if rt, ok := proc.(ResultTyper); ok {
		resultType = rt.ResultType()
	}

	p.publisher.Publish(ctx, job.UserID, models.WSMessage{
		Type: models.WSCompleted,
		Payload: models.CompletedEvent{
			JobID:      job.ID,
			ResultID:   job.ReferenceID,
			ResultType: resultType,
		},
	})

	log.Printf("Job %s completed successfully", job.ID)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, proc Processor, err error, permanent bool) {
	job.RetryCount++
	errMsg := err.Error()

	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	if !permanent && job.RetryCount < maxRetries {
		log.Printf("Job %s failed (attempt %d): %s, retrying", job.ID, job.RetryCount, errMsg)
		p.jobs.UpdateStatus(ctx, job.ID, models.JobPending)
		p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		p.scheduleRetry(job, proc)
		return
	}

	log.Printf("Job %s failed permanently: %s", job.ID, errMsg)
	p.failJob(ctx, job, proc, errMsg)
}

func (p *Pool) scheduleRetry(job *models.Job, proc Processor) {
	r := &pendingRetry{job: *job, proc: proc}

	p.retryMu.Lock()
	if p.stopped {
		p.retryMu.Unlock()
		p.requeue(r)
		return
	}
	r.timer = time.AfterFunc(p.backoff(job.RetryCount), func() { p.fireRetry(r.job.ID) })
	p.retries[r.job.ID] = r
	p.retryMu.Unlock()
}

// fireRetry requeues a retry whose backoff elapsed, unless Stop already
// claimed it.
func (p *Pool) fireRetry(id uuid.UUID) {
	p.retryMu.Lock()
	r, ok := p.retries[id]
	delete(p.retries, id)
	p.retryMu.Unlock()

	if ok {
		p.requeue(r)
	}
}

func (p *Pool) requeue(r *pendingRetry) {
	if err := p.queue.Enqueue(context.Background(), &r.job); err != nil {
		log.Printf("Job %s: failed to requeue: %v", r.job.ID, err)
		p.failJob(context.Background(), &r.job, r.proc, fmt.Sprintf("failed to requeue job: %v", err))
	}
}

// failJob marks the job and its reference failed and tells the owner.
func (p *Pool) failJob(ctx context.Context, job *models.Job, proc Processor, errMsg string) {
	p.jobs.UpdateStatus(ctx, job.ID, models.JobFailed)
	p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
	if proc != nil {
		if markErr := proc.MarkFailed(ctx, job, errMsg); markErr != nil {
			log.Printf("Job %s: failed to mark reference failed: %v", job.ID, markErr)
		}
	}

	p.publisher.Publish(ctx, job.UserID, models.WSMessage{
		Type: models.WSError,
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    "JOB_FAILED",
			ErrorMessage: errMsg,
		},
	})
}

// exponentialBackoff waits 2s, 4s, 8s... after each failed attempt.
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}
