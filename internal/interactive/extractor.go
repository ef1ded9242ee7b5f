package interactive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chatscribe/internal/selectors"
	"github.com/xkilldash9x/chatscribe/internal/transcript"
)

// cleanupTimeout bounds the undo steps (Escape, unhover, restore) that run
// after the caller's context may already be done.
const cleanupTimeout = 5 * time.Second

var errEmptyInput = errors.New("input is empty")

// step names one stage of the per-message sequence in logs and errors.
type step string

const (
	stepHover     step = "hover"
	stepClickEdit step = "click_edit"
	stepReadInput step = "read_input"
	stepEscape    step = "escape"
	stepUnhover   step = "unhover"
)

// StepError reports which stage of the sequence failed for a message.
type StepError struct {
	Index int
	Step  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("message %d: %s failed: %v", e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Extractor runs the interactive capture against a Page.
type Extractor struct {
	page    Page
	profile selectors.Profile
	timing  Timing
	logger  *zap.Logger
}

// NewExtractor creates an extractor for the given page and profile.
func NewExtractor(page Page, profile selectors.Profile, timing Timing, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		page:    page,
		profile: profile,
		timing:  timing,
		logger:  logger.Named("interactive").With(zap.String("profile", profile.Name)),
	}
}

// Extract captures every message it can, returned in document order. Failed
// messages are logged and left out. The error is non-nil only when the
// message list itself could not be read or ctx ended; in the latter case the
// messages captured so far are still returned.
func (e *Extractor) Extract(ctx context.Context) ([]transcript.Message, error) {
	refs, err := e.page.Messages(ctx, e.profile)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	e.logger.Info("Starting interactive capture.", zap.Int("messages", len(refs)))

	var humans, assistants []MessageRef
	for _, ref := range refs {
		if ref.Role == transcript.RoleHuman {
			humans = append(humans, ref)
		} else {
			assistants = append(assistants, ref)
		}
	}

	var out []transcript.Message
	for _, ref := range humans {
		if ctx.Err() != nil {
			return sorted(out), ctx.Err()
		}
		text, err := e.ReadHuman(ctx, ref)
		if err != nil {
			e.logger.Warn("Skipping human message.", zap.Int("index", ref.Index), zap.Error(err))
			continue
		}
		out = append(out, transcript.Message{
			Index: ref.Index, Role: transcript.RoleHuman, Text: text, Source: transcript.SourceInteractive,
		})
	}

	if ctx.Err() != nil {
		return sorted(out), ctx.Err()
	}
	out = append(out, e.CaptureAssistants(ctx, assistants)...)

	e.logger.Info("Interactive capture finished.", zap.Int("captured", len(out)), zap.Int("messages", len(refs)))
	return sorted(out), ctx.Err()
}

// ReadHuman recovers the raw text of one human message through its edit box:
// hover, click edit, wait, read the input, then Escape and unhover. The undo
// steps run whenever the steps they undo succeeded, even if a later step
// failed.
func (e *Extractor) ReadHuman(ctx context.Context, ref MessageRef) (text string, err error) {
	log := e.logger.With(zap.Int("index", ref.Index))

	if err := e.page.Hover(ctx, ref); err != nil {
		return "", &StepError{Index: ref.Index, Step: string(stepHover), Err: err}
	}
	defer func() {
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		if uerr := e.page.Unhover(cctx, ref); uerr != nil {
			log.Debug("Unhover failed.", zap.String("step", string(stepUnhover)), zap.Error(uerr))
		}
		// A text already read is kept even when the settle wait is cut short;
		// Extract notices the canceled context before the next message.
		if serr := e.page.Sleep(ctx, e.timing.SettleDelay); serr != nil {
			log.Debug("Settle wait interrupted.", zap.Error(serr))
		}
	}()

	if err := e.page.Sleep(ctx, e.timing.HoverDelay); err != nil {
		return "", err
	}

	if err := e.page.ClickButtonByText(ctx, ref, e.profile.EditButtonTexts); err != nil {
		return "", &StepError{Index: ref.Index, Step: string(stepClickEdit), Err: err}
	}
	defer func() {
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		if eerr := e.page.PressEscape(cctx); eerr != nil {
			log.Warn("Failed to leave edit mode.", zap.String("step", string(stepEscape)), zap.Error(eerr))
		}
	}()

	if err := e.page.Sleep(ctx, e.timing.EditDelay); err != nil {
		return "", err
	}

	text, err = e.page.ReadInput(ctx, e.profile.EditInputSelector)
	if err != nil {
		return "", &StepError{Index: ref.Index, Step: string(stepReadInput), Err: err}
	}
	if text == "" {
		return "", &StepError{Index: ref.Index, Step: string(stepReadInput), Err: errEmptyInput}
	}
	log.Debug("Read human message.", zap.Int("length", len(text)))
	return text, nil
}

// CaptureAssistants installs the clipboard interceptor, clicks every copy
// button and pairs the captured texts with refs in document order. The
// interceptor is restored before returning, whatever happened.
func (e *Extractor) CaptureAssistants(ctx context.Context, refs []MessageRef) []transcript.Message {
	if len(refs) == 0 {
		return nil
	}

	icpt, err := e.page.InstallClipboardInterceptor(ctx)
	if err != nil {
		e.logger.Warn("Failed to install clipboard interceptor.", zap.Error(err))
		return nil
	}
	defer func() {
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		if err := icpt.Restore(cctx); err != nil {
			e.logger.Warn("Failed to restore clipboard API.", zap.Error(err))
		}
	}()

	clicked, err := e.page.ClickCopyButtons(ctx, e.profile.CopyButtonTexts, e.timing.CopyDelay)
	if err != nil {
		// Clicks that happened before the failure may still have been captured.
		e.logger.Warn("Copy button sweep failed.", zap.Int("clicked", clicked), zap.Error(err))
	}
	if clicked == 0 {
		e.logger.Warn("No copy buttons were clicked.")
		return nil
	}

	texts := collect(ctx, icpt, clicked, e.timing.CaptureWait)
	if len(texts) != len(refs) {
		e.logger.Warn("Captured text count differs from assistant message count; pairing in order.",
			zap.Int("captured", len(texts)),
			zap.Int("assistant_messages", len(refs)))
	}

	var out []transcript.Message
	for i, text := range texts {
		if i >= len(refs) {
			break
		}
		out = append(out, transcript.Message{
			Index: refs[i].Index, Role: transcript.RoleAssistant, Text: text, Source: transcript.SourceInteractive,
		})
	}
	return out
}

// collect waits until icpt holds want texts, wait elapses or ctx ends, and
// returns at most want texts.
func collect(ctx context.Context, icpt Interceptor, want int, wait time.Duration) []string {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		if texts := icpt.Captured(); len(texts) >= want {
			return texts[:want]
		}
		select {
		case <-icpt.Updated():
			continue
		case <-timer.C:
		case <-ctx.Done():
		}
		texts := icpt.Captured()
		if len(texts) > want {
			texts = texts[:want]
		}
		return texts
	}
}

func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

func sorted(msgs []transcript.Message) []transcript.Message {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Index < msgs[j].Index })
	return msgs
}
