package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// 中文说明：
// Telegram 通知器：成交与风控降级时，把关键信息推送至指定群/频道。
// 推送失败不影响决策主链路，调用方只记日志。

const telegramSendAttempts = 3

type Telegram struct {
	botToken string
	chatID   string
	client   *http.Client
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *Telegram) SendText(text string) error {
	if t.botToken == "" || t.chatID == "" {
		return fmt.Errorf("telegram 未配置 bot_token/chat_id")
	}
	body, err := json.Marshal(map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)

	var lastErr error
	for attempt := 0; attempt < telegramSendAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
		lastErr = t.post(url, body)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("telegram 推送失败: %w", lastErr)
}

func (t *Telegram) post(url string, body []byte) error {
	resp, err := t.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, bytes.TrimSpace(payload))
	}
	var ack struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(payload, &ack); err == nil && !ack.OK {
		return fmt.Errorf("telegram 返回 ok=false: %s", bytes.TrimSpace(payload))
	}
	return nil
}
