// Package storage 提供数据存储层
//
// 通过 Dialect 接口屏蔽 PostgreSQL 与 SQLite 的 SQL 差异：
// 生产环境用 PostgreSQL，测试与轻量部署用 SQLite。
package storage

import (
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DriverType 数据库驱动类型
type DriverType string

const (
	DriverPostgres DriverType = "postgres"
	DriverSQLite   DriverType = "sqlite"
)

// Dialect 数据库方言接口
type Dialect interface {
	// DriverType 返回驱动类型标识
	DriverType() DriverType

	// Rebind 将 PostgreSQL 风格的占位符 ($1, $2, ...) 转换为目标数据库的占位符格式
	Rebind(query string) string

	// CurrentTimestamp 返回当前时间戳的 SQL 表达式
	CurrentTimestamp() string

	// AutoMigrate 自动创建数据库 Schema
	AutoMigrate(db *sql.DB) error
}

// pgPlaceholderRe 匹配 PostgreSQL 风格占位符 $1, $2, ...
var pgPlaceholderRe = regexp.MustCompile(`\$(\d+)`)

// PostgresDialect PostgreSQL 方言实现
type PostgresDialect struct{}

var _ Dialect = (*PostgresDialect)(nil)

func (d *PostgresDialect) DriverType() DriverType {
	return DriverPostgres
}

func (d *PostgresDialect) Rebind(query string) string {
	return query
}

func (d *PostgresDialect) CurrentTimestamp() string {
	return "NOW()"
}

func (d *PostgresDialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(schemaPostgres)
	return err
}

// OpenPostgres 创建 PostgreSQL 数据库连接
func OpenPostgres(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// SQLiteDialect SQLite 方言实现
type SQLiteDialect struct{}

var _ Dialect = (*SQLiteDialect)(nil)

func (d *SQLiteDialect) DriverType() DriverType {
	return DriverSQLite
}

func (d *SQLiteDialect) Rebind(query string) string {
	return pgPlaceholderRe.ReplaceAllString(query, "?")
}

func (d *SQLiteDialect) CurrentTimestamp() string {
	return "datetime('now')"
}

func (d *SQLiteDialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(schemaSQLite)
	return err
}

// OpenSQLite 创建 SQLite 数据库连接
// dsn 示例: "file:bot.db?cache=shared&mode=rwc" 或 ":memory:"
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	// SQLite 单写者，限制连接数避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	return db, nil
}

// schemaPostgres PostgreSQL 建表语句
const schemaPostgres = `
CREATE TABLE IF NOT EXISTS chat (
	id BIGINT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS "user" (
	id BIGINT PRIMARY KEY,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_user_stats (
	chat_id BIGINT NOT NULL REFERENCES chat(id),
	user_id BIGINT NOT NULL REFERENCES "user"(id),
	message_kind SMALLINT NOT NULL,
	messages BIGINT NOT NULL DEFAULT 0,
	edits BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (chat_id, user_id, message_kind)
);

CREATE INDEX IF NOT EXISTS idx_chat_user_stats_chat ON chat_user_stats(chat_id);
`

// schemaSQLite SQLite 建表语句
const schemaSQLite = `
CREATE TABLE IF NOT EXISTS chat (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT (datetime('now')),
	updated_at TIMESTAMP NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS "user" (
	id INTEGER PRIMARY KEY,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT (datetime('now')),
	updated_at TIMESTAMP NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS chat_user_stats (
	chat_id INTEGER NOT NULL REFERENCES chat(id),
	user_id INTEGER NOT NULL REFERENCES "user"(id),
	message_kind INTEGER NOT NULL,
	messages INTEGER NOT NULL DEFAULT 0,
	edits INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT (datetime('now')),
	updated_at TIMESTAMP NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (chat_id, user_id, message_kind)
);

CREATE INDEX IF NOT EXISTS idx_chat_user_stats_chat ON chat_user_stats(chat_id);
`
