package scheduler

import (
	"context"
	"fmt"
	"time"

	"PoolSettle/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper 一次自动结算扫描
type Sweeper interface {
	RunSweep(ctx context.Context) ([]service.AutoResolveResult, error)
}

// AutoResolveScheduler 定时触发自动结算。上一次扫描未结束时跳过本次；跨实例互斥由数据库锁保证
type AutoResolveScheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	cronExpr string
	timeout  time.Duration
	logger   *logrus.Logger
}

// NewAutoResolveScheduler timeout 通常取锁的 TTL 再留一点余量
func NewAutoResolveScheduler(sweeper Sweeper, cronExpr string, timeout time.Duration, logger *logrus.Logger) *AutoResolveScheduler {
	return &AutoResolveScheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		sweeper:  sweeper,
		cronExpr: cronExpr,
		timeout:  timeout,
		logger:   logger,
	}
}

func (s *AutoResolveScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cronExpr, s.runSweep); err != nil {
		return fmt.Errorf("注册自动结算任务失败: %w", err)
	}
	s.cron.Start()
	s.logger.WithField("cron", s.cronExpr).Info("自动结算调度已启动")
	return nil
}

// Stop 等待正在执行的扫描结束
func (s *AutoResolveScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("自动结算调度已停止")
}

func (s *AutoResolveScheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	results, err := s.sweeper.RunSweep(ctx)
	if err != nil {
		s.logger.WithError(err).Error("自动结算扫描失败")
		return
	}
	for _, r := range results {
		if r.Status == service.StatusFailed {
			s.logger.WithFields(logrus.Fields{"market_id": r.MarketID, "error": r.Error}).Warn("市场自动结算失败")
		}
	}
}
