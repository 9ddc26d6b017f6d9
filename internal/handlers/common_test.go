package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "salesadmin/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	got, err := parseDate("", false)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseDate("2024-03-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local), *got)

	got, err = parseDate("2024-03-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 999999999, time.Local), *got)

	got, err = parseDate("2024-03-01T08:00:00Z", true)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)))

	_, err = parseDate("03/01/2024", false)
	assert.Error(t, err)
}

func TestBindingMessages(t *testing.T) {
	gin.SetMode(gin.TestMode)
	RegisterValidators()

	tests := []struct {
		name  string
		query string
		body  string
		want  string
	}{
		{"missing ids", "", `{}`, "字段 IDs 不能为空"},
		{"empty ids", "", `{"ids":[]}`, "字段 IDs 验证失败"},
		{"malformed json", "", `{"ids":`, "请求参数格式错误"},
		{"unknown audit action", "action=RENAME", "", "无效的审计动作: RENAME"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("POST", "/?"+tt.query, strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var ok bool
			if tt.query != "" {
				ok = bindQuery(c, &AuditLogListRequest{})
			} else {
				ok = bindJSON(c, &BatchDeleteRequest{})
			}
			require.False(t, ok)

			var resp struct {
				Code      int    `json:"code"`
				ErrorCode string `json:"error_code"`
				Message   string `json:"message"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, apperrors.CodeInvalidParam, resp.Code)
			assert.Equal(t, apperrors.ErrValidation, resp.ErrorCode)
			assert.Equal(t, tt.want, resp.Message)
		})
	}
}

func TestParseID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for value, want := range map[string]bool{"12": true, "0": false, "abc": false, "-3": false} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: value}}

		id, ok := parseID(c, "id")
		assert.Equal(t, want, ok, value)
		if want {
			assert.Equal(t, uint(12), id)
		} else {
			assert.Contains(t, w.Body.String(), apperrors.ErrValidation)
		}
	}
}
