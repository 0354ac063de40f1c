package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrConflict 条件更新未命中，记录已被并发修改
	ErrConflict = errors.New("record modified concurrently")
)

const mysqlDuplicateEntry = 1062

func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicateKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return true
	}
	// sqlite 驱动不做错误翻译时
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// translate 统一 gorm 错误到仓储层错误
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case IsDuplicateKeyError(err):
		return ErrDuplicateKey
	default:
		return err
	}
}
