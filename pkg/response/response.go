package response

import (
	"net/http"

	"salesadmin/pkg/errors"
	"salesadmin/pkg/logger"
	"salesadmin/pkg/pagination"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Response 统一返回格式
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	ErrorCode string      `json:"error_code,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// ========== 基础返回方法 ==========

// Success 成功返回
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 成功返回（自定义消息）
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// SuccessWithPage 分页成功返回
func SuccessWithPage(c *gin.Context, data interface{}, pageInfo *pagination.PageInfo) {
	c.JSON(http.StatusOK, gin.H{
		"code":      errors.CodeSuccess,
		"message":   "success",
		"data":      data,
		"page_info": pageInfo,
	})
}

// SuccessWithStats 分页成功返回并附带统计，分页信息放在 pagination 字段
func SuccessWithStats(c *gin.Context, data interface{}, pageInfo *pagination.PageInfo, stats interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":       errors.CodeSuccess,
		"message":    "success",
		"data":       data,
		"pagination": pageInfo,
		"stats":      stats,
	})
}

// Error 通用错误返回
func Error(c *gin.Context, code int, errorCode, message string) {
	c.JSON(http.StatusOK, Response{
		Code:      code,
		ErrorCode: errorCode,
		Message:   message,
	})
}

// Fail 根据错误类型返回，未知错误记录日志并隐藏细节
func Fail(c *gin.Context, err error) {
	appErr := errors.From(err)
	if appErr.ErrorCode == errors.ErrInternal {
		logger.GetLogger().WithFields(logrus.Fields{
			"path":   c.FullPath(),
			"method": c.Request.Method,
		}).Errorf("Request failed: %v", err)
	}
	Error(c, appErr.Code, appErr.ErrorCode, appErr.Message)
}

// ========== HTTP错误快捷方法 ==========

func BadRequest(c *gin.Context, message string) {
	Error(c, errors.CodeInvalidParam, errors.ErrValidation, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, errors.CodeUnauthorized, errors.ErrUnauthenticated, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, errors.CodeForbidden, errors.ErrInsufficientPermission, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, errors.CodeNotFound, errors.ErrNotFound, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, errors.CodeServerError, errors.ErrInternal, message)
}
