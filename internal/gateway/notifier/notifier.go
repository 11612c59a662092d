package notifier

// TextNotifier defines a minimal text notification interface.
// It is intentionally small so different components can depend on it without
// importing concrete implementations (e.g. Telegram).
type TextNotifier interface {
	SendText(text string) error
}

// Noop 在通知未配置时替位，所有推送静默丢弃。
type Noop struct{}

func (Noop) SendText(string) error { return nil }
