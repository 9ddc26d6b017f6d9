package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"salesadmin/internal/models"
	"salesadmin/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// BatchDeleteRequest 批量删除请求
type BatchDeleteRequest struct {
	IDs []uint `json:"ids" binding:"required,min=1,max=500"`
}

var registerOnce sync.Once

// RegisterValidators 注册自定义校验标签
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("audit_action", func(fl validator.FieldLevel) bool {
				value := fl.Field().String()
				return value == "" || models.IsValidAuditAction(value)
			})
		}
	})
}

// parseID 解析路径中的ID参数
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "ID格式错误")
		return 0, false
	}
	return uint(id), true
}

// bindJSON 绑定请求体，校验失败时返回第一个字段错误
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.BadRequest(c, bindingMessage(err))
		return false
	}
	return true
}

// bindQuery 绑定查询参数
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		response.BadRequest(c, bindingMessage(err))
		return false
	}
	return true
}

func bindingMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		fieldErr := validationErrs[0]
		switch fieldErr.Tag() {
		case "required":
			return fmt.Sprintf("字段 %s 不能为空", fieldErr.Field())
		case "audit_action":
			return fmt.Sprintf("无效的审计动作: %v", fieldErr.Value())
		case "oneof":
			return fmt.Sprintf("字段 %s 必须是 %s 之一", fieldErr.Field(), fieldErr.Param())
		default:
			return fmt.Sprintf("字段 %s 验证失败", fieldErr.Field())
		}
	}
	return "请求参数格式错误"
}

// parseDate 解析 RFC3339 或 2006-01-02 格式的时间，endOfDay 为 true 时日期取当天结束
func parseDate(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, time.Local)
	if err != nil {
		return nil, fmt.Errorf("无效的日期: %s", value)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// optionalBool 解析可选的布尔查询参数
func optionalBool(c *gin.Context, key string) *bool {
	value := c.Query(key)
	if value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil
	}
	return &b
}

// optionalUint 解析可选的ID查询参数
func optionalUint(c *gin.Context, key string) *uint {
	value := c.Query(key)
	if value == "" {
		return nil
	}
	id, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return nil
	}
	v := uint(id)
	return &v
}
