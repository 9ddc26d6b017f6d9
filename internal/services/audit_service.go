package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"salesadmin/internal/metrics"
	"salesadmin/internal/models"
	apperrors "salesadmin/pkg/errors"
	"salesadmin/pkg/logger"
	"salesadmin/pkg/pagination"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultAuditRetentionDays 未指定清理参数时保留的天数
const DefaultAuditRetentionDays = 90

// Actor 发起变更的操作人
type Actor struct {
	UserID    uint
	IPAddress string
	UserAgent string
}

// SystemActor 系统任务（定时清理、启动同步）使用的操作人
var SystemActor = Actor{UserID: 0, IPAddress: "127.0.0.1", UserAgent: "system"}

// AuditEntry 一次变更的审计内容
type AuditEntry struct {
	Action       string
	ResourceType string
	ResourceID   uint
	Before       interface{}
	After        interface{}
	Description  string
}

// AuditService 审计日志服务
type AuditService struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

// NewAuditService 创建审计日志服务
func NewAuditService(db *gorm.DB, m *metrics.Metrics) *AuditService {
	return &AuditService{db: db, metrics: m}
}

// Audit 执行变更，成功后写入审计日志。
// 审计写入失败只记录日志，不影响已经完成的变更。
func (s *AuditService) Audit(ctx context.Context, actor Actor, mutate func() (*AuditEntry, error)) error {
	entry, err := mutate()
	if err != nil {
		return err
	}
	if entry != nil {
		s.Record(ctx, actor, entry)
	}
	return nil
}

// Record 写入一条审计日志，失败时吞掉错误
func (s *AuditService) Record(ctx context.Context, actor Actor, entry *AuditEntry) {
	err := s.write(ctx, actor, entry)
	s.metrics.RecordAuditWrite(err)
	if err != nil {
		logger.GetLogger().WithFields(logrus.Fields{
			"action":        entry.Action,
			"resource_type": entry.ResourceType,
			"resource_id":   entry.ResourceID,
			"user_id":       actor.UserID,
		}).Errorf("Failed to write permission audit log: %v", err)
	}
}

func (s *AuditService) write(ctx context.Context, actor Actor, entry *AuditEntry) error {
	before, err := snapshot(entry.Before)
	if err != nil {
		return fmt.Errorf("marshal before snapshot: %w", err)
	}
	after, err := snapshot(entry.After)
	if err != nil {
		return fmt.Errorf("marshal after snapshot: %w", err)
	}

	log := &models.PermissionAuditLog{
		UserID:       actor.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		BeforeData:   before,
		AfterData:    after,
		Description:  entry.Description,
		IPAddress:    actor.IPAddress,
		UserAgent:    truncate(actor.UserAgent, 500),
	}
	return s.db.WithContext(ctx).Create(log).Error
}

// snapshot 序列化快照，nil 保存为 NULL
func snapshot(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// ========== 查询 ==========

// AuditLogQuery 审计日志查询条件
type AuditLogQuery struct {
	Action       string
	ResourceType string
	UserID       *uint
	StartDate    *time.Time
	EndDate      *time.Time
	Search       string
	Page         int
	PageSize     int
}

// AuditLogPage 审计日志分页结果，Stats 按动作统计（不受 Action 过滤影响）
type AuditLogPage struct {
	Logs  []models.PermissionAuditLog
	Total int64
	Stats map[string]int64
}

// Query 分页查询审计日志
func (s *AuditService) Query(ctx context.Context, q AuditLogQuery) (*AuditLogPage, error) {
	if q.Action != "" && !models.IsValidAuditAction(q.Action) {
		return nil, apperrors.Validationf("无效的审计动作: %s", q.Action)
	}
	if q.StartDate != nil && q.EndDate != nil && q.EndDate.Before(*q.StartDate) {
		return nil, apperrors.Validation("结束时间不能早于开始时间")
	}

	base := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&models.PermissionAuditLog{})
		if q.ResourceType != "" {
			query = query.Where("resource_type = ?", q.ResourceType)
		}
		if q.UserID != nil {
			query = query.Where("user_id = ?", *q.UserID)
		}
		if q.StartDate != nil {
			query = query.Where("created_at >= ?", *q.StartDate)
		}
		if q.EndDate != nil {
			query = query.Where("created_at <= ?", *q.EndDate)
		}
		if q.Search != "" {
			query = query.Where("description LIKE ? ESCAPE '\\'", containsPattern(q.Search))
		}
		return query
	}

	// 统计
	var rows []struct {
		Action string
		Count  int64
	}
	if err := base().Select("action, COUNT(*) AS count").Group("action").Scan(&rows).Error; err != nil {
		return nil, apperrors.Internal("统计审计日志失败", err)
	}
	stats := make(map[string]int64, len(rows))
	for _, row := range rows {
		stats[row.Action] = row.Count
	}

	listQuery := base()
	if q.Action != "" {
		listQuery = listQuery.Where("action = ?", q.Action)
	}

	var total int64
	if err := listQuery.Count(&total).Error; err != nil {
		return nil, apperrors.Internal("查询审计日志失败", err)
	}

	var logs []models.PermissionAuditLog
	if err := listQuery.Order("created_at DESC, id DESC").Scopes(pagination.Paginate(q.Page, q.PageSize)).Find(&logs).Error; err != nil {
		return nil, apperrors.Internal("查询审计日志失败", err)
	}

	return &AuditLogPage{Logs: logs, Total: total, Stats: stats}, nil
}

// GetByID 获取单条审计日志
func (s *AuditService) GetByID(ctx context.Context, id uint) (*models.PermissionAuditLog, error) {
	var log models.PermissionAuditLog
	if err := s.db.WithContext(ctx).First(&log, id).Error; err != nil {
		return nil, notFoundOr(err, "审计日志不存在")
	}
	return &log, nil
}

// ========== 清理 ==========

// CleanupParams 清理参数，BeforeDate 优先于 KeepDays
type CleanupParams struct {
	BeforeDate *time.Time
	KeepDays   *int
}

// CleanupResult 清理结果
type CleanupResult struct {
	DeletedCount int64     `json:"deleted_count"`
	Message      string    `json:"message"`
	Cutoff       time.Time `json:"cutoff"`
}

// NoLogsToCleanupMessage 没有可清理日志时的提示
const NoLogsToCleanupMessage = "no logs needed cleanup"

// Cleanup 删除早于截止时间的审计日志
func (s *AuditService) Cleanup(ctx context.Context, actor Actor, params CleanupParams) (*CleanupResult, error) {
	cutoff, err := resolveCutoff(params, time.Now())
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.PermissionAuditLog{}).
		Where("created_at < ?", cutoff).Count(&count).Error; err != nil {
		return nil, apperrors.Internal("统计待清理日志失败", err)
	}

	if count == 0 {
		return &CleanupResult{DeletedCount: 0, Message: NoLogsToCleanupMessage, Cutoff: cutoff}, nil
	}

	var deleted int64
	err = s.Audit(ctx, actor, func() (*AuditEntry, error) {
		result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.PermissionAuditLog{})
		if result.Error != nil {
			return nil, apperrors.Internal("清理审计日志失败", result.Error)
		}
		deleted = result.RowsAffected
		return &AuditEntry{
			Action:       models.AuditActionCleanup,
			ResourceType: models.ResourceAuditLog,
			ResourceID:   0,
			After:        map[string]interface{}{"deleted_count": deleted, "cutoff": cutoff},
			Description:  fmt.Sprintf("cleaned up %d audit logs created before %s", deleted, cutoff.Format(time.RFC3339)),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AuditCleanupDeleted.Add(float64(deleted))
	logger.GetLogger().Infof("Cleaned up %d permission audit logs before %s", deleted, cutoff.Format(time.RFC3339))

	return &CleanupResult{
		DeletedCount: deleted,
		Message:      fmt.Sprintf("successfully cleaned up %d logs", deleted),
		Cutoff:       cutoff,
	}, nil
}

// resolveCutoff 计算截止时间：显式时间 > 保留天数 > 默认90天
func resolveCutoff(params CleanupParams, now time.Time) (time.Time, error) {
	if params.BeforeDate != nil {
		return *params.BeforeDate, nil
	}
	days := DefaultAuditRetentionDays
	if params.KeepDays != nil {
		if *params.KeepDays < 0 {
			return time.Time{}, apperrors.Validation("保留天数不能为负数")
		}
		days = *params.KeepDays
	}
	return now.AddDate(0, 0, -days), nil
}
