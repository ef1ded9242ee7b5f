package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatscribe/internal/browser/scripts"
	"github.com/xkilldash9x/chatscribe/internal/interactive"
	"github.com/xkilldash9x/chatscribe/internal/selectors"
	"github.com/xkilldash9x/chatscribe/internal/transcript"
)

// Attributes the page scripts use to tag live elements so later steps can
// address them with plain CSS.
const (
	messageAttr = "data-chatscribe-idx"
	buttonAttr  = "data-chatscribe-btn"
	copyAttr    = "data-chatscribe-copy"

	// buttonSearchDepth is how many ancestors above a message are searched
	// for its action buttons.
	buttonSearchDepth = 2
)

var (
	errNotVisible = errors.New("element is missing or has no layout box")
	errNoInput    = errors.New("input element not found")
)

var _ interactive.Page = (*Session)(nil)

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type listedMessage struct {
	Index int  `json:"index"`
	Human bool `json:"human"`
}

// MessageSelector returns the CSS selector addressing a message tagged by
// Messages.
func MessageSelector(ref interactive.MessageRef) string {
	return fmt.Sprintf(`[%s="%d"]`, messageAttr, ref.Index)
}

// Messages tags every message element with its document index and returns
// their references.
func (s *Session) Messages(ctx context.Context, profile selectors.Profile) ([]interactive.MessageRef, error) {
	var listed []listedMessage
	err := s.callScript(ctx, scripts.ListMessages, map[string]interface{}{
		"selector": profile.MessageSelector,
		"human":    profile.HumanSelector,
		"attr":     messageAttr,
	}, &listed)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	refs := make([]interactive.MessageRef, 0, len(listed))
	for _, m := range listed {
		role := transcript.RoleAssistant
		if m.Human {
			role = transcript.RoleHuman
		}
		refs = append(refs, interactive.MessageRef{Index: m.Index, Role: role})
	}
	return refs, nil
}

// center scrolls the element into view and returns its viewport center.
func (s *Session) center(ctx context.Context, selector string) (point, error) {
	var p *point
	if err := s.callScript(ctx, scripts.ElementCenter, map[string]string{"selector": selector}, &p); err != nil {
		return point{}, err
	}
	if p == nil {
		return point{}, fmt.Errorf("%s: %w", selector, errNotVisible)
	}
	return *p, nil
}

func (s *Session) moveMouse(ctx context.Context, p point) error {
	actx, cancel := s.withActionTimeout(ctx)
	defer cancel()
	return s.RunActions(actx, input.DispatchMouseEvent(input.MouseMoved, p.X, p.Y))
}

func (s *Session) click(ctx context.Context, p point) error {
	actx, cancel := s.withActionTimeout(ctx)
	defer cancel()
	return s.RunActions(actx,
		input.DispatchMouseEvent(input.MouseMoved, p.X, p.Y),
		input.DispatchMouseEvent(input.MousePressed, p.X, p.Y).WithButton(input.Left).WithButtons(1).WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, p.X, p.Y).WithButton(input.Left).WithClickCount(1),
	)
}

// Hover moves the mouse over the message so its action bar renders.
func (s *Session) Hover(ctx context.Context, ref interactive.MessageRef) error {
	p, err := s.center(ctx, MessageSelector(ref))
	if err != nil {
		return err
	}
	return s.moveMouse(ctx, p)
}

// Unhover parks the mouse in the top-left corner of the viewport.
func (s *Session) Unhover(ctx context.Context, ref interactive.MessageRef) error {
	return s.moveMouse(ctx, point{X: 0, Y: 0})
}

// ClickButtonByText clicks the first button in or next to the message whose
// text or aria-label matches one of texts.
func (s *Session) ClickButtonByText(ctx context.Context, ref interactive.MessageRef, texts []string) error {
	var found bool
	err := s.callScript(ctx, scripts.FindButton, map[string]interface{}{
		"message":  MessageSelector(ref),
		"texts":    texts,
		"attr":     buttonAttr,
		"maxDepth": buttonSearchDepth,
	}, &found)
	if err != nil {
		return fmt.Errorf("button search failed: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %v", interactive.ErrButtonNotFound, texts)
	}

	p, err := s.center(ctx, fmt.Sprintf(`[%s]`, buttonAttr))
	if err != nil {
		return err
	}
	return s.click(ctx, p)
}

// ReadInput returns the value of the first element matching selector, or its
// text for contenteditable editors.
func (s *Session) ReadInput(ctx context.Context, selector string) (string, error) {
	var value *string
	if err := s.callScript(ctx, scripts.ReadInput, map[string]string{"selector": selector}, &value); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", selector, err)
	}
	if value == nil {
		return "", fmt.Errorf("%s: %w", selector, errNoInput)
	}
	return *value, nil
}

// PressEscape sends an Escape key press to the focused element.
func (s *Session) PressEscape(ctx context.Context) error {
	actx, cancel := s.withActionTimeout(ctx)
	defer cancel()
	return s.RunActions(actx,
		input.DispatchKeyEvent(input.KeyDown).WithKey("Escape").WithCode("Escape").WithWindowsVirtualKeyCode(27),
		input.DispatchKeyEvent(input.KeyUp).WithKey("Escape").WithCode("Escape").WithWindowsVirtualKeyCode(27),
	)
}

// ClickCopyButtons tags the visible copy buttons outside code blocks and
// clicks them in document order. A button that fails is logged and skipped.
func (s *Session) ClickCopyButtons(ctx context.Context, texts []string, delay time.Duration) (int, error) {
	var total int
	err := s.callScript(ctx, scripts.MarkCopyButtons, map[string]interface{}{
		"texts": texts,
		"attr":  copyAttr,
	}, &total)
	if err != nil {
		return 0, fmt.Errorf("failed to locate copy buttons: %w", err)
	}
	s.logger.Debug("Found copy buttons.", zap.Int("count", total))

	clicked := 0
	var lastErr error
	for i := 0; i < total; i++ {
		if i > 0 {
			if err := s.Sleep(ctx, delay); err != nil {
				return clicked, err
			}
		}
		p, err := s.center(ctx, fmt.Sprintf(`[%s="%d"]`, copyAttr, i))
		if err == nil {
			err = s.click(ctx, p)
		}
		if err != nil {
			if ctx.Err() != nil {
				return clicked, ctx.Err()
			}
			s.logger.Warn("Failed to click copy button.", zap.Int("button", i), zap.Error(err))
			lastErr = err
			continue
		}
		clicked++
	}

	if clicked == 0 && lastErr != nil {
		return 0, lastErr
	}
	return clicked, nil
}
