package sys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const KeyCommandPrefix = "command_prefix"

var DB *sql.DB

// InitDatabase opens the settings store and creates its schema.
func InitDatabase(ctx context.Context, dataSourceName string) error {
	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	if _, err := DB.ExecContext(initCtx, `
		CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf(MsgDatabaseTableError, err)
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		if err := DB.Close(); err != nil {
			LogError(MsgDatabaseCloseError, err)
		}
		DB = nil
	}
}

// GetBotConfig returns "" without error when the key was never set.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	if DB == nil {
		return "", errors.New("database not initialized")
	}
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	if DB == nil {
		return errors.New("database not initialized")
	}
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// LoadCommandPrefix overrides cfg.CommandPrefix with the persisted value, if any.
func LoadCommandPrefix(ctx context.Context, cfg *Config) {
	prefix, err := GetBotConfig(ctx, KeyCommandPrefix)
	if err != nil {
		LogWarn(MsgDatabasePrefixLoadFail, err)
		return
	}
	if prefix != "" {
		cfg.CommandPrefix = prefix
	}
}
