package cron

import (
	"context"
	"fmt"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type chainJob struct {
	ctx    context.Context
	name   string
	tasks  []Task
	logger logger.Logger
}

func (j *chainJob) Run() {
	j.logger.Debug("chain job started", zap.String("chain_name", j.name))

	for _, task := range j.tasks {
		if j.ctx.Err() != nil {
			return
		}
		if err := task.Run(j.ctx); err != nil {
			j.logger.Error("chain job aborted due to task failure",
				zap.String("chain_name", j.name),
				zap.String("task_name", task.Name()),
				zap.Error(err),
			)
			return
		}
	}

	j.logger.Debug("chain job completed", zap.String("chain_name", j.name))
}

type cronManager struct {
	cron        *cron.Cron
	middlewares []Middleware
	logger      logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func newCronManager(log logger.Logger, mws ...Middleware) *cronManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &cronManager{
		cron: cron.New(
			cron.WithParser(cron.NewParser(
				cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor,
			)),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
		),
		middlewares: mws,
		logger:      log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (m *cronManager) Start() {
	m.cron.Start()
}

func (m *cronManager) Close() {
	m.cancel()
	<-m.cron.Stop().Done()
}

func (m *cronManager) AddTasks(name, spec string, tasks ...Task) error {
	if len(tasks) == 0 {
		return ErrNoTasks
	}

	wrappedTasks := make([]Task, len(tasks))
	for i, task := range tasks {
		wrapTask := &wrappedTask{
			name: fmt.Sprintf("%s:%s", name, task.Name()),
			exec: task.Run,
		}
		wrappedTasks[i] = applyMiddlewares(wrapTask, m.middlewares...)
	}

	job := &chainJob{
		ctx:    m.ctx,
		name:   name,
		tasks:  wrappedTasks,
		logger: m.logger,
	}
	if _, err := m.cron.AddJob(spec, job); err != nil {
		return ErrSpec(name, spec, err)
	}

	m.logger.Info("chain added",
		zap.String("chain_name", name),
		zap.String("spec", spec),
		zap.Int("task_count", len(tasks)),
	)
	return nil
}

func (m *cronManager) AddChain(chain Chain) error {
	return m.AddTasks(chain.Name, chain.Spec, chain.Tasks...)
}

// cronLogger adapts logger.Logger to cron.Logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(kvFields(keysAndValues), zap.Error(err))...)
}

func kvFields(kv []any) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
