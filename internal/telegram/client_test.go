package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient 把客户端指向本地替身服务
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-token", server.URL)
}

func writeResult(t *testing.T, w http.ResponseWriter, result interface{}) {
	t.Helper()
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":     true,
		"result": json.RawMessage(raw),
	})
}

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotPayload map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		writeResult(t, w, Message{MessageID: 99, Chat: Chat{ID: 10}})
	})

	msg, err := client.SendMessage(context.Background(), SendOptions{
		ChatID:    10,
		Text:      "<b>hi</b>",
		ParseMode: ModeHTML,
		ReplyTo:   5,
	})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, int64(99), msg.MessageID)

	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Equal(t, "<b>hi</b>", gotPayload["text"])
	assert.Equal(t, "HTML", gotPayload["parse_mode"])
	assert.Equal(t, float64(5), gotPayload["reply_to_message_id"])
}

func TestSendMessageEmptyResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, Message{})
	})

	msg, err := client.SendMessage(context.Background(), SendOptions{ChatID: 10, Text: "hi"})
	require.NoError(t, err)
	assert.Nil(t, msg, "missing message body yields nil without error")
}

func TestSendMessageAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":          false,
			"error_code":  429,
			"description": "Too Many Requests",
		})
	})

	_, err := client.SendMessage(context.Background(), SendOptions{ChatID: 10, Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "Too Many Requests")
}

func TestSendMessagePlainModeOmitsParseMode(t *testing.T) {
	var gotPayload map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		writeResult(t, w, Message{MessageID: 1})
	})

	_, err := client.SendMessage(context.Background(), SendOptions{ChatID: 10, Text: "hi"})
	require.NoError(t, err)
	_, present := gotPayload["parse_mode"]
	assert.False(t, present)
}

func TestEditMessageText(t *testing.T) {
	var gotPath string
	var gotPayload map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		writeResult(t, w, true)
	})

	err := client.EditMessageText(context.Background(), 10, 99, "updated", ModeHTML)
	require.NoError(t, err)
	assert.Equal(t, "/bottest-token/editMessageText", gotPath)
	assert.Equal(t, float64(99), gotPayload["message_id"])
	assert.Equal(t, "updated", gotPayload["text"])
}

func TestGetUpdates(t *testing.T) {
	var gotPayload map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		writeResult(t, w, []Update{
			{UpdateID: 100, Message: &Message{MessageID: 1, Text: "hi"}},
			{UpdateID: 101, EditedMessage: &Message{MessageID: 1, Text: "hi!"}},
		})
	})

	updates, err := client.GetUpdates(context.Background(), 100, 0)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, int64(100), updates[0].UpdateID)
	assert.NotNil(t, updates[1].EditedMessage)
	assert.Equal(t, float64(100), gotPayload["offset"])
}

func TestGetMe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, User{ID: 7, FirstName: "ChatOps", Username: "chatopsbot"})
	})

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "chatopsbot", me.Username)
}
