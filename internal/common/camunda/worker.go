// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"loan-origination/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler completes or fails the job itself; the returned error is only logged.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
}

// WorkerOptions are the per-task-type polling settings.
type WorkerOptions struct {
	MaxJobsActive int
	Timeout       time.Duration
}

// Worker is an open job subscription for one task type.
type Worker struct {
	worker   worker.JobWorker
	log      logger.Logger
	taskType string
}

// NewWorker opens a job worker on client. The client stays owned by the caller.
func NewWorker(client zbc.Client, taskType string, opts WorkerOptions, handler JobHandler, log logger.Logger) *Worker {
	log = log.WithFields(map[string]interface{}{"taskType": taskType})

	step := client.NewJobWorker().
		JobType(taskType).
		Handler(func(jc worker.JobClient, job entities.Job) {
			if err := handler.Handle(jc, job); err != nil {
				log.Warn("Handler returned error", map[string]interface{}{
					"jobKey": job.Key,
					"error":  err.Error(),
				})
			}
		}).
		MaxJobsActive(opts.MaxJobsActive)
	if opts.Timeout > 0 {
		step = step.Timeout(opts.Timeout)
	}

	w := &Worker{worker: step.Open(), log: log, taskType: taskType}
	log.Info("Worker started", nil)
	return w
}

func (w *Worker) TaskType() string { return w.taskType }

// Stop closes the subscription and waits for in-flight handlers.
func (w *Worker) Stop() {
	w.log.Info("Stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}
