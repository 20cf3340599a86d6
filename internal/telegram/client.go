package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultBaseURL Bot API 默认地址
const DefaultBaseURL = "https://api.telegram.org"

// Client Bot API 客户端
//
// 发送与编辑消息使用独立的短超时，长轮询使用调用方给定的超时。
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建 Bot API 客户端
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		token:   token,
		baseURL: baseURL,
		// 客户端兜底超时要容得下最长的长轮询挂起
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

// apiResponse Bot API 响应包装
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// call 调用 Bot API 方法，结果解码进 out（可为 nil）
func (c *Client) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !apiResp.OK {
		return fmt.Errorf("%s returned error %d: %s", method, apiResp.ErrorCode, apiResp.Description)
	}
	if out != nil && len(apiResp.Result) > 0 {
		if err := json.Unmarshal(apiResp.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// SendOptions 发送消息选项
type SendOptions struct {
	ChatID              int64         // 目标会话
	Text                string        // 消息内容
	ParseMode           ParseMode     // 格式化模式
	ReplyTo             int64         // 回复的消息 ID（0 表示不回复）
	DisablePreview      bool          // 关闭链接预览
	DisableNotification bool          // 静默发送
	Timeout             time.Duration // 发送超时（0 用客户端默认）
}

// SendMessage 发送消息，返回平台创建的消息（后续可据此编辑）
//
// 平台接受请求但未返回消息体时返回 (nil, nil)，
// 调用方需要区分这种空响应与传输错误。
func (c *Client) SendMessage(ctx context.Context, opts SendOptions) (*Message, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	payload := map[string]interface{}{
		"chat_id": opts.ChatID,
		"text":    opts.Text,
	}
	if opts.ParseMode != ModePlain {
		payload["parse_mode"] = string(opts.ParseMode)
	}
	if opts.ReplyTo != 0 {
		payload["reply_to_message_id"] = opts.ReplyTo
	}
	if opts.DisablePreview {
		payload["disable_web_page_preview"] = true
	}
	if opts.DisableNotification {
		payload["disable_notification"] = true
	}

	var msg Message
	if err := c.call(ctx, "sendMessage", payload, &msg); err != nil {
		return nil, err
	}
	if msg.MessageID == 0 {
		return nil, nil
	}
	return &msg, nil
}

// EditMessageText 编辑已发送的消息
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, mode ParseMode) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	if mode != ModePlain {
		payload["parse_mode"] = string(mode)
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

// GetUpdates 长轮询获取更新
//
// offset 为上次处理的 update_id + 1；timeout 为服务端挂起时长。
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]interface{}{
		"offset":  offset,
		"timeout": int(timeout.Seconds()),
	}

	// 客户端侧超时要比服务端挂起时间宽裕
	callCtx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	var updates []Update
	if err := c.call(callCtx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// GetMe 获取机器人自身信息，用于校验 token 与 @bot 后缀匹配
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", map[string]interface{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}
