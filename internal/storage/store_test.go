package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatops-bot/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewStore(db, &SQLiteDialect{})
	require.NoError(t, store.Migrate())
	return store
}

func TestFindChatNotFound(t *testing.T) {
	store := newTestStore(t)

	chat, err := store.FindChat(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, chat, "missing row yields nil without error")
}

func TestInsertAndFindChat(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertChat(ctx, 10))

	chat, err := store.FindChat(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, chat)
	assert.Equal(t, int64(10), chat.ID)
	assert.False(t, chat.CreatedAt.IsZero())
}

func TestInsertAndFindUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	last := "Smith"
	require.NoError(t, store.InsertUser(ctx, 20, "Alice", &last))

	user, err := store.FindUser(ctx, 20)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Alice", user.FirstName)
	require.NotNil(t, user.LastName)
	assert.Equal(t, "Smith", *user.LastName)
}

func TestFindUserNotFound(t *testing.T) {
	store := newTestStore(t)

	user, err := store.FindUser(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUpdateUserName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertUser(ctx, 20, "Alice", nil))
	require.NoError(t, store.UpdateUserName(ctx, 20, "Alicia", nil))

	user, err := store.FindUser(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", user.FirstName)
}

func TestInsertAndFindStat(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertChat(ctx, 10))
	require.NoError(t, store.InsertUser(ctx, 20, "Alice", nil))

	kind := model.KindText.ID()
	require.NoError(t, store.InsertStat(ctx, 10, 20, kind, 3, 1))

	stat, err := store.FindStat(ctx, 10, 20, kind)
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Equal(t, int64(3), stat.Messages)
	assert.Equal(t, int64(1), stat.Edits)
	assert.Equal(t, model.KindText, stat.MessageKind)
}

func TestFindStatNotFound(t *testing.T) {
	store := newTestStore(t)

	stat, err := store.FindStat(context.Background(), 1, 2, model.KindText.ID())
	require.NoError(t, err)
	assert.Nil(t, stat)
}

func TestAddStatCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertChat(ctx, 10))
	require.NoError(t, store.InsertUser(ctx, 20, "Alice", nil))

	kind := model.KindPhoto.ID()
	require.NoError(t, store.InsertStat(ctx, 10, 20, kind, 1, 0))
	require.NoError(t, store.AddStatCounts(ctx, 10, 20, kind, 4, 2))

	stat, err := store.FindStat(ctx, 10, 20, kind)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stat.Messages)
	assert.Equal(t, int64(2), stat.Edits)
}

func TestListChatStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertChat(ctx, 10))
	require.NoError(t, store.InsertUser(ctx, 20, "Alice", nil))
	require.NoError(t, store.InsertUser(ctx, 21, "Bob", nil))
	require.NoError(t, store.InsertStat(ctx, 10, 20, model.KindText.ID(), 5, 1))
	require.NoError(t, store.InsertStat(ctx, 10, 21, model.KindSticker.ID(), 2, 0))
	// 其他会话的统计不应出现在结果里
	require.NoError(t, store.InsertChat(ctx, 11))
	require.NoError(t, store.InsertStat(ctx, 11, 20, model.KindText.ID(), 9, 0))

	rows, err := store.ListChatStats(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byUser := make(map[int64]model.ChatStatRow)
	for _, row := range rows {
		byUser[row.UserID] = row
	}
	assert.Equal(t, "Alice", byUser[20].FirstName)
	assert.Equal(t, int64(5), byUser[20].Messages)
	assert.Equal(t, "Bob", byUser[21].FirstName)
	assert.Equal(t, model.KindSticker.ID(), byUser[21].MessageKind)
}

func TestStatsSince(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	since, err := store.StatsSince(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, since, "no stats yet")

	require.NoError(t, store.InsertChat(ctx, 10))
	require.NoError(t, store.InsertUser(ctx, 20, "Alice", nil))
	require.NoError(t, store.InsertStat(ctx, 10, 20, model.KindText.ID(), 1, 0))

	since, err = store.StatsSince(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, since)
	assert.False(t, since.IsZero())
}

func TestSQLiteRebind(t *testing.T) {
	d := &SQLiteDialect{}
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?",
		d.Rebind("SELECT * FROM t WHERE a = $1 AND b = $2"))
}

func TestPostgresRebindIdentity(t *testing.T) {
	d := &PostgresDialect{}
	query := "SELECT * FROM t WHERE a = $1"
	assert.Equal(t, query, d.Rebind(query))
}
