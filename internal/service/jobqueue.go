package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CodecJob is one unit of codec work. The request that enqueued it
// awaits Done and nothing else, so a slow transcode never blocks
// unrelated requests.
type CodecJob struct {
	ID   string
	Ctx  context.Context
	Run  func(ctx context.Context) error
	Done chan error
}

// JobQueue bounds how many codec invocations run at once
type JobQueue struct {
	jobs    chan *CodecJob
	running atomic.Int32
	workers int
}

func NewJobQueue() *JobQueue {
	workers := viper.GetInt("codec.workers")
	if workers <= 0 {
		workers = 2
	}

	maxJobs := viper.GetInt("codec.max_queued")

	zap.L().Debug("Initializing job queue", zap.Int("workers", workers), zap.Int("max_queued", maxJobs))

	return &JobQueue{
		jobs:    make(chan *CodecJob, maxJobs),
		workers: workers,
	}
}

func (q *JobQueue) StartWorkerPool() {
	for range q.workers {
		go q.worker()
	}
}

func (q *JobQueue) worker() {
	for job := range q.jobs {
		err := job.Run(job.Ctx)

		job.Done <- err
		close(job.Done)

		q.running.Add(-1)

		if err != nil {
			zap.L().Debug("Codec job finished with an error", zap.String("job_id", job.ID), zap.Error(err))
		} else {
			zap.L().Debug("Codec job finished successfully", zap.String("job_id", job.ID))
		}
	}
}

func (q *JobQueue) Enqueue(job *CodecJob) error {
	select {
	case q.jobs <- job:
		q.running.Add(1)
		zap.L().Debug("New codec job enqueued", zap.Int32("enqueued", q.running.Load()), zap.String("job_id", job.ID))
		return nil
	default:
		return errors.New("job queue full")
	}
}

// Do runs fn on the worker pool and waits for it
func (q *JobQueue) Do(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)

	err := q.Enqueue(&CodecJob{
		ID:   id,
		Ctx:  ctx,
		Run:  fn,
		Done: done,
	})
	if err != nil {
		return err
	}

	return <-done
}
