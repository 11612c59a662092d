package scheduler

import (
	"context"
	"time"

	"coinpilot/internal/logger"
)

// 中文说明：
// 决策轮调度器。每轮对齐到整点周期边界（例如每 15 分钟对齐 K 线收盘），
// Offset 给交易所落库留缓冲。Start 阻塞运行，ctx 取消时退出。

type AlignedScheduler struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx context.Context
	now func() time.Time
}

func NewAlignedScheduler(ctx context.Context, interval, offset time.Duration) *AlignedScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AlignedScheduler{
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		now:      time.Now,
	}
}

func (s *AlignedScheduler) Start(task func()) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler: 间隔不合法（%s），拒绝启动", s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.now == nil {
		s.now = time.Now
	}

	logger.Infof("scheduler: 启动 interval=%s offset=%s run_immediately=%v",
		s.Interval, s.Offset, s.RunImmediately)
	if s.RunImmediately {
		task()
	}

	for {
		wakeAt, wait := s.nextWake(s.now())
		logger.Infof("scheduler: 下一轮 %s（%s 后）",
			wakeAt.Format(time.RFC3339), wait.Truncate(time.Second))
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				logger.Infof("scheduler: 收到退出信号")
				return
			case <-timer.C:
			}
		}
		task()
	}
}

// nextWake 返回下一个对齐边界加偏移后的唤醒时刻。
func (s *AlignedScheduler) nextWake(now time.Time) (time.Time, time.Duration) {
	now = now.UTC()
	boundary := now.Truncate(s.Interval).Add(s.Interval)
	wakeAt := boundary.Add(s.Offset)
	return wakeAt, wakeAt.Sub(now)
}
