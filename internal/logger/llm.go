package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// 中文说明：
// LLM 请求/响应的独立落盘通道，便于事后回放模型输入输出。
// 与主日志分开，避免大段 prompt 刷屏。

var (
	llmMu   sync.Mutex
	llmLog  *log.Logger
	llmDump bool
)

func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if w == nil {
		llmLog = nil
		return
	}
	llmLog = log.New(w, "", log.LstdFlags)
}

func EnableLLMPayloadDump(enabled bool) {
	llmMu.Lock()
	llmDump = enabled
	llmMu.Unlock()
}

type llmSection struct {
	title string
	body  string
}

func logLLM(kind, provider string, sections []llmSection) {
	llmMu.Lock()
	sink := llmLog
	llmMu.Unlock()
	if sink == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[LLM][" + kind + "]")
	if provider != "" {
		b.WriteString("[" + provider + "]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		title := strings.TrimSpace(sec.title)
		if title == "" {
			title = "CONTENT"
		}
		b.WriteString("--- " + title + " ---\n")
		b.WriteString(sec.body)
		if !strings.HasSuffix(sec.body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	sink.Print(b.String())
}

func LogLLMRequest(provider, systemPrompt, userPrompt, payload string) {
	sections := []llmSection{
		{title: "SYSTEM", body: systemPrompt},
		{title: "USER", body: userPrompt},
	}
	llmMu.Lock()
	dump := llmDump
	llmMu.Unlock()
	if dump && strings.TrimSpace(payload) != "" {
		sections = append(sections, llmSection{title: "PAYLOAD", body: payload})
	}
	logLLM("request", provider, sections)
}

func LogLLMResponse(provider, raw string) {
	logLLM("response", provider, []llmSection{{title: "RAW", body: raw}})
}
