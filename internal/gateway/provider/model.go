package provider

import "context"

type ImagePayload struct {
	DataURI     string
	Description string
}

type ChatPayload struct {
	System     string
	User       string
	Images     []ImagePayload
	ExpectJSON bool
}

// ModelProvider 抽象一个外部推理服务，返回值是原始文本，
// 解析与校验在 decision 包的边界完成。
type ModelProvider interface {
	ID() string
	SupportsVision() bool

	Call(ctx context.Context, payload ChatPayload) (string, error)
}
