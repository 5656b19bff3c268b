package notifier

// TextNotifier is a minimal fire-and-forget alert sink. Risk breach and
// warning events go through it; delivery failure is logged, never fatal.
type TextNotifier interface {
	SendText(text string) error
}

// Nop discards all notifications. Used when no channel is configured.
type Nop struct{}

func (Nop) SendText(string) error { return nil }
