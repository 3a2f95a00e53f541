package service

import (
	"sync"
	"time"

	"EstouBem/internal/repository"
	"EstouBem/pkg/snowflake"
	"EstouBem/storage/database"
)

var (
	store     repository.Store
	storeOnce sync.Once
)

// defaultStore 全局单例使用的存储，database.Init 之后才能调用
func defaultStore() repository.Store {
	storeOnce.Do(func() {
		store = repository.NewGormStore(database.DB())
	})
	return store
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func defaultNextID() (int64, error) {
	return snowflake.NextID()
}

// UseStore 替换全局单例使用的存储，需要在第一次调用服务访问器之前调用
func UseStore(s repository.Store) {
	storeOnce.Do(func() {
		store = s
	})
}
