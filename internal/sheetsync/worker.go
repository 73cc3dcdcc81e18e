package sheetsync

import (
	"context"
	"errors"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/logger"
)

// Worker 按固定间隔触发对账，直到 ctx 取消。
type Worker struct {
	runner   *Runner
	interval time.Duration
	log      logger.Logger
}

func NewWorker(runner *Runner, interval time.Duration, log logger.Logger) *Worker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Worker{runner: runner, interval: interval, log: log}
}

// Run 启动即跑一轮，之后每个间隔跑一轮。阻塞到 ctx 取消。
func (w *Worker) Run(ctx context.Context) {
	w.log.Infof("sheet sync worker started, interval %s", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("sheet sync worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sheetsync.reconcile")
	defer span.Finish()

	sum, err := w.runner.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			// 上一轮还没跑完（大表首轮会很久），这一拍直接让过
			w.log.Debug("previous reconciliation still running, skipping tick")
			return
		}
		span.SetTag("error", true)
		w.log.Errorf("reconciliation run failed: %v", err)
		return
	}

	span.SetTag("run_id", sum.RunID)
	w.log.Infof("reconciliation run %s finished in %s",
		sum.RunID, sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond))
}
