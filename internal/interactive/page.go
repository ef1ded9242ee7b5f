// Package interactive recovers message text by driving the live page the way
// a user would: opening the edit box of each human message and capturing what
// the copy buttons of assistant messages put on the clipboard.
package interactive

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/chatscribe/internal/config"
	"github.com/xkilldash9x/chatscribe/internal/selectors"
	"github.com/xkilldash9x/chatscribe/internal/transcript"
)

// ErrButtonNotFound is returned by Page.ClickButtonByText when no button
// inside the message carries one of the requested texts.
var ErrButtonNotFound = errors.New("button not found")

// MessageRef addresses one message element on the live page. Index is the
// element's position among all messages in document order.
type MessageRef struct {
	Index int
	Role  transcript.Role
}

// Interceptor is an installed clipboard-write hook.
type Interceptor interface {
	// Captured returns every text written to the clipboard while the hook
	// was enabled, in write order.
	Captured() []string
	// Updated is signalled when a text is captured. Signals may coalesce.
	Updated() <-chan struct{}
	// Restore disables the hook and reinstates the page's original clipboard
	// API. It is safe to call more than once.
	Restore(ctx context.Context) error
}

// Page is the set of live-page primitives the extractor needs.
type Page interface {
	// Messages lists the profile's message elements in document order.
	Messages(ctx context.Context, profile selectors.Profile) ([]MessageRef, error)
	Hover(ctx context.Context, ref MessageRef) error
	Unhover(ctx context.Context, ref MessageRef) error
	// ClickButtonByText clicks the first button inside the message whose text
	// or aria-label equals one of texts (case-insensitive).
	ClickButtonByText(ctx context.Context, ref MessageRef, texts []string) error
	// ReadInput returns the value of the first element matching selector.
	ReadInput(ctx context.Context, selector string) (string, error)
	PressEscape(ctx context.Context) error
	InstallClipboardInterceptor(ctx context.Context) (Interceptor, error)
	// ClickCopyButtons clicks every visible copy button of the conversation in
	// document order, waiting delay between clicks, and reports how many were
	// clicked.
	ClickCopyButtons(ctx context.Context, texts []string, delay time.Duration) (int, error)
	Sleep(ctx context.Context, d time.Duration) error
}

// Timing holds the fixed waits of the interaction sequence.
type Timing struct {
	HoverDelay  time.Duration
	EditDelay   time.Duration
	SettleDelay time.Duration
	CopyDelay   time.Duration
	CaptureWait time.Duration
}

// TimingFromConfig converts the interaction section of the configuration.
func TimingFromConfig(c config.InteractionConfig) Timing {
	return Timing{
		HoverDelay:  c.HoverDelay,
		EditDelay:   c.EditDelay,
		SettleDelay: c.SettleDelay,
		CopyDelay:   c.CopyDelay,
		CaptureWait: c.CaptureWait,
	}
}
