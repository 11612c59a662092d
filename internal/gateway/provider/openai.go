package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coinpilot/internal/logger"
)

// 中文说明：
// OpenAIChatClient：兼容 OpenAI / DeepSeek / Qwen 的聊天补全接口（/v1/chat/completions）。
// 对 429/5xx 做有限重试（尊重 Retry-After），授权头在日志里做掩码。

type OpenAIChatClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// 若为 0 则默认重试 2 次
	MaxRetries   int
	ExtraHeaders map[string]string
}

func (c *OpenAIChatClient) CallWithMessages(ctx context.Context, payload ChatPayload) (string, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	url := endpointURL(c.BaseURL)

	body := map[string]any{
		"model":       c.Model,
		"messages":    buildMessages(payload),
		"temperature": 0.5,
	}
	if payload.ExpectJSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}
	logger.LogLLMRequest(c.Model, payload.System, payload.User, string(b))

	httpc := &http.Client{Timeout: timeout}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt == 0 {
			logger.Debugf("[AI] 请求: POST %s headers=%v", url, c.maskedHeaders())
		}
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if rerr != nil {
			return "", rerr
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
		}
		for k, v := range c.ExtraHeaders {
			req.Header.Set(k, v)
		}

		resp, derr := httpc.Do(req)
		if derr != nil {
			lastErr = derr
			break
		}
		if resp.StatusCode/100 == 2 {
			var r struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			decodeErr := json.NewDecoder(resp.Body).Decode(&r)
			resp.Body.Close()
			if decodeErr != nil {
				return "", decodeErr
			}
			if len(r.Choices) == 0 {
				return "", fmt.Errorf("empty choices")
			}
			out := r.Choices[0].Message.Content
			logger.LogLLMResponse(c.Model, out)
			return out, nil
		}
		var eresp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		retryAfter := resp.Header.Get("Retry-After")
		status := resp.StatusCode
		resp.Body.Close()
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("status=%d: %s", status, msg)
		if !retryable(status) || attempt >= maxRetries {
			break
		}
		wait := parseRetryAfter(retryAfter)
		if wait == 0 {
			// 基本指数退避：0.8s, 1.6s, 3.2s ...
			wait = 800 * time.Millisecond << attempt
			if wait > 8*time.Second {
				wait = 8 * time.Second
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

// buildMessages 组装消息；带图片时用多段 content（vision 模型格式）。
func buildMessages(payload ChatPayload) []map[string]any {
	messages := make([]map[string]any, 0, 2)
	if payload.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": payload.System})
	}
	if len(payload.Images) == 0 {
		messages = append(messages, map[string]any{"role": "user", "content": payload.User})
		return messages
	}
	parts := []map[string]any{{"type": "text", "text": payload.User}}
	for _, img := range payload.Images {
		if img.Description != "" {
			parts = append(parts, map[string]any{"type": "text", "text": img.Description})
		}
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": map[string]string{"url": img.DataURI},
		})
	}
	messages = append(messages, map[string]any{"role": "user", "content": parts})
	return messages
}

// endpointURL 规范化 BaseURL，避免配置里重复带上 /chat/completions。
func endpointURL(base string) string {
	url := strings.TrimSpace(base)
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func (c *OpenAIChatClient) maskedHeaders() map[string]string {
	hlog := map[string]string{"Content-Type": "application/json"}
	if c.APIKey != "" {
		hlog["Authorization"] = "Bearer " + maskSecret(c.APIKey)
	}
	for k, v := range c.ExtraHeaders {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "key") || strings.Contains(lk, "token") || strings.Contains(lk, "auth") {
			hlog[k] = maskSecret(v)
			continue
		}
		hlog[k] = v
	}
	return hlog
}

// maskSecret 只保留后 4 位。
func maskSecret(v string) string {
	if len(v) > 4 {
		return "****" + v[len(v)-4:]
	}
	return "****"
}

// OpenAIModelProvider 把底层 HTTP 客户端包装成 ModelProvider。
type OpenAIModelProvider struct {
	id     string
	vision bool
	client *OpenAIChatClient
}

func NewOpenAIModelProvider(id string, vision bool, client *OpenAIChatClient) *OpenAIModelProvider {
	return &OpenAIModelProvider{id: id, vision: vision, client: client}
}

func (p *OpenAIModelProvider) ID() string           { return p.id }
func (p *OpenAIModelProvider) SupportsVision() bool { return p.vision }

func (p *OpenAIModelProvider) Call(ctx context.Context, payload ChatPayload) (string, error) {
	if !p.vision {
		payload.Images = nil
	}
	return p.client.CallWithMessages(ctx, payload)
}
