package gormpersistence

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"collaborative-whiteboard/internal/repository"
)

// mysqlDuplicateEntry 是 MySQL 唯一约束冲突的错误码
const mysqlDuplicateEntry = 1062

// mapError 把驱动层错误映射为仓库层错误，其他错误原样返回
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repository.ErrDuplicateEntry
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return repository.ErrDuplicateEntry
	}
	return err
}
