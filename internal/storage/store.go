package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chatops-bot/internal/model"
)

// Store 统计三张表的存取
//
// Find 族在记录不存在时返回 (nil, nil)，错误只代表存储层故障。
// SQL 统一写 PostgreSQL 风格占位符，由方言负责转换。
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// NewStore 创建存储层
func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Migrate 创建缺失的表结构
func (s *Store) Migrate() error {
	if err := s.dialect.AutoMigrate(s.db); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close 关闭连接
func (s *Store) Close() error {
	return s.db.Close()
}

// === Chat 操作 ===

// FindChat 查找会话
func (s *Store) FindChat(ctx context.Context, id int64) (*model.Chat, error) {
	query := s.dialect.Rebind(`SELECT id, title, created_at, updated_at FROM chat WHERE id = $1`)
	chat := &model.Chat{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&chat.ID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return chat, err
}

// InsertChat 创建会话记录，只写 ID，标题更新暂缓
func (s *Store) InsertChat(ctx context.Context, id int64) error {
	query := s.dialect.Rebind(`INSERT INTO chat (id) VALUES ($1)`)
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

// === User 操作 ===

// FindUser 查找用户
func (s *Store) FindUser(ctx context.Context, id int64) (*model.User, error) {
	query := s.dialect.Rebind(`SELECT id, first_name, last_name, created_at, updated_at FROM "user" WHERE id = $1`)
	user := &model.User{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return user, err
}

// InsertUser 创建用户记录
func (s *Store) InsertUser(ctx context.Context, id int64, firstName string, lastName *string) error {
	query := s.dialect.Rebind(`INSERT INTO "user" (id, first_name, last_name) VALUES ($1, $2, $3)`)
	_, err := s.db.ExecContext(ctx, query, id, firstName, lastName)
	return err
}

// UpdateUserName 更新用户展示名
func (s *Store) UpdateUserName(ctx context.Context, id int64, firstName string, lastName *string) error {
	query := s.dialect.Rebind(fmt.Sprintf(
		`UPDATE "user" SET first_name = $1, last_name = $2, updated_at = %s WHERE id = $3`,
		s.dialect.CurrentTimestamp()))
	_, err := s.db.ExecContext(ctx, query, firstName, lastName, id)
	return err
}

// === Stat 操作 ===

// FindStat 查找统计行
func (s *Store) FindStat(ctx context.Context, chatID, userID int64, kind int16) (*model.ChatUserStat, error) {
	query := s.dialect.Rebind(`
		SELECT chat_id, user_id, message_kind, messages, edits, created_at, updated_at
		FROM chat_user_stats WHERE chat_id = $1 AND user_id = $2 AND message_kind = $3`)
	stat := &model.ChatUserStat{}
	err := s.db.QueryRowContext(ctx, query, chatID, userID, kind).Scan(
		&stat.ChatID, &stat.UserID, &stat.MessageKind, &stat.Messages, &stat.Edits,
		&stat.CreatedAt, &stat.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return stat, err
}

// InsertStat 创建统计行并写入初始计数
func (s *Store) InsertStat(ctx context.Context, chatID, userID int64, kind int16, messages, edits int64) error {
	query := s.dialect.Rebind(`
		INSERT INTO chat_user_stats (chat_id, user_id, message_kind, messages, edits)
		VALUES ($1, $2, $3, $4, $5)`)
	_, err := s.db.ExecContext(ctx, query, chatID, userID, kind, messages, edits)
	return err
}

// AddStatCounts 在已有统计行上累加计数
func (s *Store) AddStatCounts(ctx context.Context, chatID, userID int64, kind int16, messages, edits int64) error {
	query := s.dialect.Rebind(fmt.Sprintf(`
		UPDATE chat_user_stats
		SET messages = messages + $1, edits = edits + $2, updated_at = %s
		WHERE chat_id = $3 AND user_id = $4 AND message_kind = $5`,
		s.dialect.CurrentTimestamp()))
	_, err := s.db.ExecContext(ctx, query, messages, edits, chatID, userID, kind)
	return err
}

// === 报表查询 ===

// ListChatStats 列出会话的全部统计行，联用户名
func (s *Store) ListChatStats(ctx context.Context, chatID int64) ([]model.ChatStatRow, error) {
	query := s.dialect.Rebind(`
		SELECT cus.user_id, u.first_name, u.last_name, cus.message_kind, cus.messages, cus.edits
		FROM chat_user_stats cus
		INNER JOIN "user" u ON u.id = cus.user_id
		WHERE cus.chat_id = $1`)
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.ChatStatRow
	for rows.Next() {
		var row model.ChatStatRow
		if err := rows.Scan(&row.UserID, &row.FirstName, &row.LastName,
			&row.MessageKind, &row.Messages, &row.Edits); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// StatsSince 会话最早统计行的创建时间，没有统计时返回 (nil, nil)
func (s *Store) StatsSince(ctx context.Context, chatID int64) (*time.Time, error) {
	query := s.dialect.Rebind(`
		SELECT created_at FROM chat_user_stats
		WHERE chat_id = $1 ORDER BY created_at ASC LIMIT 1`)
	var since time.Time
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(&since)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &since, nil
}
