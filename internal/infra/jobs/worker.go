package jobs

import (
	"github.com/hibiken/asynq"

	"github.com/adscanio/api/pkg/logger"
)

// WorkerConfig holds the configuration for the job worker.
type WorkerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// Worker processes background jobs.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *logger.Logger
}

// NewWorker creates a background job worker with all handlers
// registered.
func NewWorker(cfg WorkerConfig, handler *TaskHandler, log *logger.Logger) *Worker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				"scan":        6,
				"disposition": 3,
				"default":     1,
			},
		},
	)

	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	return &Worker{
		server: server,
		mux:    mux,
		logger: log.With("component", "job_worker"),
	}
}

// Start starts the worker.
func (w *Worker) Start() error {
	w.logger.Info("starting job worker")
	return w.server.Start(w.mux)
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() {
	w.logger.Info("stopping job worker")
	w.server.Shutdown()
}
