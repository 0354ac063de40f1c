package util

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// MustParseUint 将字符串转换为无符号整数，解析失败时返回 0
func MustParseUint(s string) uint {
	id, _ := strconv.ParseUint(s, 10, 32)
	return uint(id)
}

// ParamUint 读取路径参数，非法或为 0 时返回业务错误
func ParamUint(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrBusinessRule, name, raw)
	}
	return uint(id), nil
}

// QueryLimit 读取 limit 参数并限制在 [1, max]
func QueryLimit(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// ParseTimeParam 支持 RFC3339、"2006-01-02 15:04:05" 和 "2006-01-02"
func ParseTimeParam(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, TimeFormat, DateFormat} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid time %q", ErrBusinessRule, s)
}
