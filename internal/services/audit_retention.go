package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"salesadmin/pkg/logger"

	"github.com/robfig/cron/v3"
)

// AuditRetentionScheduler 审计日志定时清理
type AuditRetentionScheduler struct {
	audit    *AuditService
	cron     *cron.Cron
	spec     string
	keepDays int
	timeout  time.Duration

	mu      sync.Mutex
	entryID cron.EntryID
	running bool
}

// NewAuditRetentionScheduler 创建定时清理调度器，spec 为标准 5 段 cron 表达式
func NewAuditRetentionScheduler(audit *AuditService, spec string, keepDays int) *AuditRetentionScheduler {
	if keepDays <= 0 {
		keepDays = DefaultAuditRetentionDays
	}
	return &AuditRetentionScheduler{
		audit:    audit,
		cron:     cron.New(),
		spec:     spec,
		keepDays: keepDays,
		timeout:  10 * time.Minute,
	}
}

// Start 启动调度器
func (s *AuditRetentionScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("调度器已经在运行")
	}

	entryID, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			logger.GetLogger().Errorf("审计日志定时清理失败: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("无效的清理计划 %q: %w", s.spec, err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.running = true
	logger.GetLogger().Infof("审计日志定时清理已启动: %s, 保留 %d 天", s.spec, s.keepDays)
	return nil
}

// Stop 停止调度器，等待正在执行的清理结束
func (s *AuditRetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.cron.Remove(s.entryID)
	s.running = false
	logger.GetLogger().Info("审计日志定时清理已停止")
}

// RunOnce 立即按保留天数执行一次清理
func (s *AuditRetentionScheduler) RunOnce(ctx context.Context) (*CleanupResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	keepDays := s.keepDays
	return s.audit.Cleanup(ctx, SystemActor, CleanupParams{KeepDays: &keepDays})
}
