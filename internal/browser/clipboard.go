package browser

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatscribe/internal/browser/scripts"
	"github.com/xkilldash9x/chatscribe/internal/interactive"
)

// ClipboardBinding is the page-global function the patched clipboard API
// calls with each copied text.
const ClipboardBinding = "chatscribeClipboard"

// clipboardInterceptor receives binding calls on chromedp's listener
// goroutine and records them for the extractor. Listeners can't be removed
// from a target, so the enabled flag decides whether a call is recorded.
type clipboardInterceptor struct {
	*interactive.Captures
	session *Session
	logger  *zap.Logger
	enabled atomic.Bool
}

var _ interactive.Interceptor = (*clipboardInterceptor)(nil)

func newClipboardInterceptor(logger *zap.Logger) *clipboardInterceptor {
	return &clipboardInterceptor{
		Captures: interactive.NewCaptures(),
		logger:   logger.Named("clipboard"),
	}
}

// handle is the chromedp target listener.
func (c *clipboardInterceptor) handle(ev interface{}) {
	called, ok := ev.(*runtime.EventBindingCalled)
	if !ok || called.Name != ClipboardBinding {
		return
	}
	c.deliver(called.Payload)
}

func (c *clipboardInterceptor) deliver(text string) {
	if !c.enabled.Load() {
		return
	}
	c.Add(text)
	c.logger.Debug("Captured clipboard write.", zap.Int("length", len(text)), zap.Int("captured", c.Len()))
}

func (c *clipboardInterceptor) disable() {
	c.enabled.Store(false)
}

// Restore stops delivery and puts the page's clipboard API back.
func (c *clipboardInterceptor) Restore(ctx context.Context) error {
	c.disable()
	if c.session == nil {
		return nil
	}
	var restored bool
	if err := c.session.callScript(ctx, scripts.ClipboardRestore, nil, &restored); err != nil {
		return fmt.Errorf("failed to restore clipboard API: %w", err)
	}
	if !restored {
		c.logger.Debug("Clipboard API was already restored.")
	}
	return nil
}

// InstallClipboardInterceptor exposes the binding and patches the page's
// clipboard write functions to forward copied text to it.
func (s *Session) InstallClipboardInterceptor(ctx context.Context) (interactive.Interceptor, error) {
	s.clipOnce.Do(func() {
		s.clip = newClipboardInterceptor(s.logger)
		s.clip.session = s
		chromedp.ListenTarget(s.ctx, s.clip.handle)
	})

	actx, cancel := s.withActionTimeout(ctx)
	defer cancel()
	if err := s.RunActions(actx, runtime.AddBinding(ClipboardBinding)); err != nil {
		return nil, fmt.Errorf("failed to add binding '%s': %w", ClipboardBinding, err)
	}

	s.clip.Reset()
	s.clip.enabled.Store(true)

	var patched bool
	err := s.callScript(ctx, scripts.ClipboardPatch, map[string]string{"binding": ClipboardBinding}, &patched)
	if err == nil && !patched {
		err = fmt.Errorf("navigator.clipboard is not patchable")
	}
	if err != nil {
		s.clip.disable()
		return nil, fmt.Errorf("failed to patch clipboard API: %w", err)
	}

	s.logger.Debug("Clipboard interceptor installed.")
	return s.clip, nil
}
