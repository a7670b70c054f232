package store

import (
	"fmt"

	"cohortflow/internal/config"
	"cohortflow/internal/database"
)

// Open 按 STORE_BACKEND 选择实现；gorm 后端会先连接并迁移数据库。
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return NewMemory(), nil
	case "gorm", "":
		db, err := database.InitDatabase(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		return NewGorm(db), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
