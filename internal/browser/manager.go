package browser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatscribe/internal/browser/scripts"
	"github.com/xkilldash9x/chatscribe/internal/config"
)

// startupTimeout bounds the liveness check after the browser is launched or
// attached.
const startupTimeout = 30 * time.Second

// Manager owns the browser process (or the connection to a running one). All
// sessions are tabs derived from its allocator context.
type Manager struct {
	logger  *zap.Logger
	cfg     *config.Config
	remote  bool
	browser context.Context

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCancel   context.CancelFunc

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewManager launches Chrome, or attaches to the one at browser.remote_url,
// and checks that it responds.
func NewManager(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*Manager, error) {
	if err := scripts.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
		remote: cfg.Browser.RemoteURL != "",
	}

	if m.remote {
		m.logger.Info("Attaching to running browser.", zap.String("remote_url", cfg.Browser.RemoteURL))
		m.allocatorCtx, m.allocatorCancel = chromedp.NewRemoteAllocator(ctx, cfg.Browser.RemoteURL)
	} else {
		m.logger.Info("Launching browser.", zap.Bool("headless", cfg.Browser.Headless))
		m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg.Browser)...)
	}

	// The first context created from the allocator owns the browser; tabs are
	// derived from it.
	m.browser, m.browserCancel = chromedp.NewContext(m.allocatorCtx, m.contextOptions()...)

	testCtx, cancelTest := context.WithTimeout(m.browser, startupTimeout)
	defer cancelTest()
	if err := chromedp.Run(testCtx); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser is responsive.")
	return m, nil
}

func (m *Manager) contextOptions() []chromedp.ContextOption {
	log := m.logger.Named("cdp").Sugar()
	opts := []chromedp.ContextOption{
		chromedp.WithLogf(log.Debugf),
		chromedp.WithErrorf(log.Warnf),
	}
	if m.cfg.Browser.Debug {
		opts = append(opts, chromedp.WithDebugf(log.Debugf))
	}
	return opts
}

// NewSession opens a new tab.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(m.browser)

	// The first Run attaches to the new target.
	startCtx, cancelStart := CombineContext(tabCtx, ctx)
	defer cancelStart()
	if err := chromedp.Run(startCtx); err != nil {
		tabCancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	m.wg.Add(1)
	s := newSession(tabCtx, tabCancel, m.cfg.Network, m.logger)
	s.onClose = m.wg.Done
	return s, nil
}

// Close waits for open sessions and shuts the browser down. With a remote
// browser only the connection is dropped; the browser keeps running.
func (m *Manager) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timed out waiting for sessions to close: %w", ctx.Err())
		}

		if !m.remote {
			cctx, cancel := context.WithTimeout(Detach(m.browser), 5*time.Second)
			if cerr := chromedp.Cancel(cctx); cerr != nil {
				m.logger.Debug("Graceful browser close failed.", zap.Error(cerr))
			}
			cancel()
		}
		m.browserCancel()
		m.allocatorCancel()
		m.logger.Info("Browser manager closed.")
	})
	return err
}

// AllocatorFlags returns the Chrome command-line flags for cfg. Extra args in
// cfg.Args take the form "--name=value" or "--name".
func AllocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                      cfg.Headless,
		"disable-gpu":                   cfg.Headless,
		"hide-scrollbars":               cfg.Headless,
		"mute-audio":                    true,
		"disable-extensions":            true,
		"disable-blink-features":        "AutomationControlled",
		"enable-automation":             false,
		"no-first-run":                  true,
		"no-default-browser-check":      true,
		"disable-background-networking": true,
	}
	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight)
	}
	for _, arg := range cfg.Args {
		name := strings.TrimLeft(arg, "-")
		if name == "" {
			continue
		}
		if k, v, ok := strings.Cut(name, "="); ok {
			flags[k] = v
			continue
		}
		flags[name] = true
	}
	return flags
}

// AllocatorOptions builds exec allocator options from cfg on top of
// chromedp's defaults.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := AllocatorFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}
