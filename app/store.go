package huddle

import (
	"fmt"

	"github.com/putto11262002/huddle/core"
	"github.com/putto11262002/huddle/migrations"
	"go.uber.org/zap"
)

// OpenStore opens the message store selected by the config.
// When the configured store cannot be opened, reached or migrated the error is logged
// and the in-memory store is returned instead. The returned store is never nil.
func OpenStore(config *Config, logger *zap.Logger) core.MessageStore {
	store, err := openDurableStore(config, logger)
	if err != nil {
		logger.Warn("durable store unavailable, using in-memory storage",
			zap.String("driver", config.Store.Driver), zap.Error(err))
		logger.Warn("messages will not persist across restarts; check the store settings and that the server is running, " +
			"then restart (for mysql run the migrate command first)")
		return core.NewMemoryMessageStore()
	}
	logger.Info("message store ready", zap.String("store", store.Name()))
	return store
}

func openDurableStore(config *Config, logger *zap.Logger) (core.MessageStore, error) {
	switch config.Store.Driver {
	case StoreMemory:
		return core.NewMemoryMessageStore(), nil
	case StoreRedis:
		return core.NewRedisMessageStore(core.RedisOption{
			Address:  config.Redis.Address,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
	case StoreMySQL, StoreSQLite, "":
		db, err := OpenDB(config)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(migrations.FS, migrations.Dir(db.Dialect()), logger.Named("migrate")); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return core.NewSQLMessageStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Store.Driver)
	}
}

// OpenDB opens the SQL database selected by the config.
func OpenDB(config *Config) (*core.DB, error) {
	if config.Store.Driver == StoreMySQL {
		return core.NewMySQLDB(MySQLOption(config))
	}
	return core.NewSQLiteDB(config.SQLite.File, &core.SQLiteDBOption{
		Mode:        "rwc",
		Cache:       "shared",
		JournalMode: "WAL",
	})
}

func MySQLOption(config *Config) core.MySQLDBOption {
	return core.MySQLDBOption{
		Host:     config.MySQL.Host,
		Port:     config.MySQL.Port,
		User:     config.MySQL.User,
		Password: config.MySQL.Password,
		Name:     config.MySQL.Name,
	}
}
