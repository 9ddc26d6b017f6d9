package services

import (
	"errors"
	"strings"

	apperrors "salesadmin/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BatchFailure 批量操作中失败的单项
type BatchFailure struct {
	ID     uint   `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult 批量操作结果，允许部分成功
type BatchResult struct {
	Succeeded []uint         `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

func newBatchResult() *BatchResult {
	return &BatchResult{Succeeded: []uint{}, Failed: []BatchFailure{}}
}

func (r *BatchResult) fail(id uint, err error) {
	reason := err.Error()
	if appErr := apperrors.From(err); appErr != nil && appErr.ErrorCode != apperrors.ErrInternal {
		reason = appErr.Message
	}
	r.Failed = append(r.Failed, BatchFailure{ID: id, Reason: reason})
}

// notFoundOr 记录不存在返回 NotFound，其余按内部错误处理
func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(message)
	}
	return apperrors.Internal(message, err)
}

// likeEscaper 转义 LIKE 通配符，配合 ESCAPE '\' 使用
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern 按字面量包含匹配的 LIKE 参数
func containsPattern(keyword string) string {
	return "%" + likeEscaper.Replace(keyword) + "%"
}

// lockForUpdate postgres 下对读取的行加锁，sqlite 不支持 FOR UPDATE
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	result := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}
