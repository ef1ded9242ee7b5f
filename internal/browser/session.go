package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatscribe/internal/config"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	errNotPresent = errors.New("no element matches yet")
)

const (
	defaultActionTimeout     = 15 * time.Second
	defaultNavigationTimeout = 90 * time.Second
	defaultMessageWait       = 30 * time.Second
)

// Session is one browser tab.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	net    config.NetworkConfig
	logger *zap.Logger

	onClose   func()
	closeOnce sync.Once

	clipOnce sync.Once
	clip     *clipboardInterceptor
}

func newSession(ctx context.Context, cancel context.CancelFunc, net config.NetworkConfig, logger *zap.Logger) *Session {
	return &Session{
		ctx:    ctx,
		cancel: cancel,
		net:    net,
		logger: logger.Named("session"),
	}
}

// RunActions runs chromedp actions on the tab under ctx. When either ctx or
// the session is done, that context error is reported instead of whatever
// chromedp returned.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.ctx.Err() != nil {
			return fmt.Errorf("session closed: %w", s.ctx.Err())
		}
		return err
	}
	return nil
}

// withActionTimeout bounds a single primitive.
func (s *Session) withActionTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.net.ActionTimeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Navigate loads url and then waits the configured post-load period so the
// page's scripts can render the conversation.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating.", zap.String("url", url))

	timeout := s.net.NavigationTimeout
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.RunActions(navCtx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("navigation canceled: %w", ctx.Err())
		}
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, timeout, navCtx.Err())
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	return Sleep(ctx, s.net.PostLoadWait)
}

// CurrentURL returns the tab's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	actx, cancel := s.withActionTimeout(ctx)
	defer cancel()
	var loc string
	if err := s.RunActions(actx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// Snapshot returns the outer HTML of the document.
func (s *Session) Snapshot(ctx context.Context) (string, error) {
	actx, cancel := s.withActionTimeout(ctx)
	defer cancel()
	var html string
	if err := s.RunActions(actx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to snapshot document: %w", err)
	}
	return html, nil
}

// WaitForSelector polls with exponential backoff until selector matches at
// least one element or network.message_wait_timeout elapses.
func (s *Session) WaitForSelector(ctx context.Context, selector string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = s.net.MessageWaitTimeout
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = defaultMessageWait
	}

	count := fmt.Sprintf("document.querySelectorAll(%s).length", jsonEncode(selector))
	op := func() error {
		var n int
		if err := s.ExecuteScript(ctx, count, &n); err != nil {
			var exc *runtime.ExceptionDetails
			if errors.As(err, &exc) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if n == 0 {
			return errNotPresent
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		s.logger.Debug("Waiting for selector.", zap.String("selector", selector), zap.Duration("next", next), zap.Error(err))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return fmt.Errorf("selector %q did not appear: %w", selector, err)
	}
	return nil
}

// ExecuteScript evaluates script in the page, awaiting a returned promise, and
// unmarshals the result into res (which may be nil).
func (s *Session) ExecuteScript(ctx context.Context, script string, res interface{}) error {
	actx, cancel := s.withActionTimeout(ctx)
	defer cancel()
	return s.RunActions(actx, chromedp.Evaluate(script, res, awaitPromise))
}

// callScript invokes one of the embedded function-expression scripts with
// args encoded as JSON.
func (s *Session) callScript(ctx context.Context, script string, args interface{}, res interface{}) error {
	return s.ExecuteScript(ctx, buildCall(script, args), res)
}

// Sleep waits d unless ctx or the session ends first.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	sctx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return Sleep(sctx, d)
}

// Close closes the tab. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing session.")
		if s.clip != nil {
			s.clip.disable()
		}
		s.cancel()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func buildCall(script string, args interface{}) string {
	if args == nil {
		return "(" + script + ")()"
	}
	return "(" + script + ")(" + jsonEncode(args) + ")"
}

// jsonEncode renders v as a JavaScript literal.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
