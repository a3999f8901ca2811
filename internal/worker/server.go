package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/repository"
	"collaborative-whiteboard/internal/tasks"
)

// Handlers 是 worker 处理任务需要的依赖
type Handlers struct {
	Actions   repository.ActionRepository
	Snapshots SnapshotSaver
	Checker   SnapshotChecker
	Rooms     ActiveRooms
}

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logrus.Entry
}

// NewWorkerServer 创建一个新的 WorkerServer 实例并注册所有任务处理器
func NewWorkerServer(redisOpt asynq.RedisClientOpt, concurrency int, h Handlers, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")
	if concurrency <= 0 {
		concurrency = 10
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				tasks.QueueCritical: 6,
				tasks.QueueDefault:  3,
				tasks.QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskLogger(ctx, task).WithField("component", "worker_server").Errorf("Task failed: %v", err)
			}),
			Logger:   logEntry,
			LogLevel: asynqLogLevel(logger.GetLevel()),
		},
	)

	return &WorkerServer{server: server, mux: NewServeMux(h), log: logEntry}
}

// NewServeMux 把任务类型映射到处理器
func NewServeMux(h Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeActionArchive, NewActionArchiveHandler(h.Actions))
	mux.Handle(tasks.TypeSnapshotSave, NewSnapshotSaveHandler(h.Snapshots))
	mux.Handle(tasks.TypeSnapshotCheck, NewSnapshotCheckHandler(h.Rooms, h.Checker))
	return mux
}

// asynqLogLevel 让 asynq 的日志跟随应用日志级别
func asynqLogLevel(l logrus.Level) asynq.LogLevel {
	switch {
	case l >= logrus.DebugLevel:
		return asynq.DebugLevel
	case l == logrus.InfoLevel:
		return asynq.InfoLevel
	case l == logrus.WarnLevel:
		return asynq.WarnLevel
	default:
		return asynq.ErrorLevel
	}
}

// Start 运行 Worker Server，阻塞直到关闭。应该在一个单独的 goroutine 中调用。
func (ws *WorkerServer) Start() error {
	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(ws.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		ws.log.WithError(err).Error("Could not run worker server")
		return err
	}
	ws.log.Info("Worker server stopped.")
	return nil
}

// Shutdown 优雅地关闭 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
