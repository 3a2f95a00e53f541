package storage

import (
	"EstouBem/storage/database"
	"EstouBem/storage/mq"
	"EstouBem/storage/redis"
)

// Options 控制各进程需要的外部连接，server 不需要 MQ
type Options struct {
	Database bool
	Redis    bool
	MQ       bool
}

// Init 统一初始化 storage 层
func Init(opts Options) error {
	if opts.Database {
		if err := database.Init(); err != nil {
			return err
		}
	}

	if opts.Redis {
		if err := redis.Init(); err != nil {
			return err
		}
	}

	if opts.MQ {
		if err := mq.Init(); err != nil {
			return err
		}
	}

	return nil
}
