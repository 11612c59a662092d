package provider

import (
	"fmt"
	"strings"
	"time"

	"coinpilot/internal/config"
	"coinpilot/internal/logger"
)

// FromConfig 根据配置装配推理服务客户端。
func FromConfig(cfg config.AIConfig) (ModelProvider, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("ai.model is required")
	}
	base := strings.TrimSpace(cfg.Provider)
	if base == "" {
		base = "openai"
	}
	id := fmt.Sprintf("%s:%s", base, model)
	client := &OpenAIChatClient{
		BaseURL:      cfg.APIURL,
		APIKey:       cfg.APIKey,
		Model:        model,
		MaxRetries:   cfg.MaxRetries,
		ExtraHeaders: cfg.Headers,
	}
	if cfg.TimeoutSeconds > 0 {
		client.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	logger.Infof("推理服务已装配 provider=%s vision=%v", id, cfg.SupportsVision)
	return NewOpenAIModelProvider(id, cfg.SupportsVision, client), nil
}
