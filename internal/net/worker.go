package net

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	TASK_CHAN_SIZE = 100
)

// WorkerFunction handles one task. A returned error is fatal to the tomb.
type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool runs a fixed number of workers over a queue of tasks, so at most
// n tasks are in progress at once.
type WorkerPool struct {
	n     int      // number of workers
	tasks chan any // queued tasks
}

func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		n:     size,
		tasks: make(chan any, TASK_CHAN_SIZE),
	}
}

// Start launches the workers under t.
func (pool *WorkerPool) Start(t *tomb.Tomb, work WorkerFunction) {
	for id := 0; id < pool.n; id++ {
		t.Go(func() error {
			return pool.worker(t, id, work)
		})
	}
}

// AddTask queues a task, blocking while the queue is full. It reports false
// if the tomb started dying first.
func (pool *WorkerPool) AddTask(t *tomb.Tomb, task any) bool {
	select {
	case pool.tasks <- task:
		return true
	case <-t.Dying():
		return false
	}
}

// Drain hands every task still queued to discard. Call once the workers are
// gone.
func (pool *WorkerPool) Drain(discard func(task any)) {
	for {
		select {
		case task := <-pool.tasks:
			discard(task)
		default:
			return
		}
	}
}

// Workers wait on tasks in the queue and action them.
func (pool *WorkerPool) worker(t *tomb.Tomb, id int, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Int("id", id).Msg("worker exiting")
				return err
			}
		}
	}
}
