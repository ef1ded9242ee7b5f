package browser

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/chatscribe/internal/config"
	"github.com/xkilldash9x/chatscribe/internal/interactive"
	"github.com/xkilldash9x/chatscribe/internal/transcript"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAllocatorFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		flags := AllocatorFlags(config.BrowserConfig{Headless: true, WindowWidth: 1366, WindowHeight: 900})
		assert.Equal(t, true, flags["headless"])
		assert.Equal(t, "1366,900", flags["window-size"])
		assert.Equal(t, false, flags["enable-automation"])
		assert.NotContains(t, flags, "ignore-certificate-errors")
	})

	t.Run("headful without window size", func(t *testing.T) {
		flags := AllocatorFlags(config.BrowserConfig{Headless: false})
		assert.Equal(t, false, flags["headless"])
		assert.NotContains(t, flags, "window-size")
	})

	t.Run("tls and custom args", func(t *testing.T) {
		flags := AllocatorFlags(config.BrowserConfig{
			IgnoreTLSErrors: true,
			Args:            []string{"--lang=de-DE", "--disable-sync", "--", "headless=false"},
		})
		assert.Equal(t, true, flags["ignore-certificate-errors"])
		assert.Equal(t, "de-DE", flags["lang"])
		assert.Equal(t, true, flags["disable-sync"])
		assert.Equal(t, "false", flags["headless"], "custom args override built-in flags")
	})
}

func TestAllocatorOptions(t *testing.T) {
	base := AllocatorOptions(config.BrowserConfig{})
	withPaths := AllocatorOptions(config.BrowserConfig{ExecPath: "/usr/bin/chromium", UserDataDir: "/tmp/profile", UserAgent: "ua"})
	assert.Len(t, withPaths, len(base)+3)
}

func TestBuildCall(t *testing.T) {
	assert.Equal(t, `(function () {})()`, buildCall("function () {}", nil))
	assert.Equal(t,
		`(function (a) {})({"selector":"[data-testid=\"user-message\"]"})`,
		buildCall("function (a) {}", map[string]string{"selector": `[data-testid="user-message"]`}))
}

func TestJSONEncode(t *testing.T) {
	assert.Equal(t, `"a\"b"`, jsonEncode(`a"b`))
	assert.Equal(t, "null", jsonEncode(make(chan int)))
}

func TestMessageSelector(t *testing.T) {
	ref := interactive.MessageRef{Index: 7, Role: transcript.RoleHuman}
	assert.Equal(t, `[data-chatscribe-idx="7"]`, MessageSelector(ref))
}

func TestClipboardInterceptor(t *testing.T) {
	c := newClipboardInterceptor(zaptest.NewLogger(t))

	c.handle(&runtime.EventBindingCalled{Name: ClipboardBinding, Payload: "before enable"})
	assert.Empty(t, c.Captured(), "nothing is recorded while disabled")

	c.enabled.Store(true)
	c.handle(&runtime.EventBindingCalled{Name: "otherBinding", Payload: "ignored"})
	c.handle(&runtime.EventExecutionContextsCleared{})
	c.handle(&runtime.EventBindingCalled{Name: ClipboardBinding, Payload: "first"})
	c.handle(&runtime.EventBindingCalled{Name: ClipboardBinding, Payload: "second"})

	assert.Equal(t, []string{"first", "second"}, c.Captured())
	select {
	case <-c.Updated():
	default:
		t.Fatal("expected a wakeup after capturing")
	}

	require.NoError(t, c.Restore(context.Background()))
	c.handle(&runtime.EventBindingCalled{Name: ClipboardBinding, Payload: "after restore"})
	assert.Len(t, c.Captured(), 2)
}

func TestClipboardInterceptorKeepsEveryCapture(t *testing.T) {
	c := newClipboardInterceptor(zaptest.NewLogger(t))
	c.enabled.Store(true)

	const n = 200
	var wg sync.WaitGroup
	wg.Add(1)
	// Binding events arrive on chromedp's listener goroutine while nobody reads.
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			c.handle(&runtime.EventBindingCalled{Name: ClipboardBinding, Payload: fmt.Sprintf("reply %d", i)})
		}
	}()
	wg.Wait()

	texts := c.Captured()
	require.Len(t, texts, n)
	assert.Equal(t, "reply 0", texts[0])
	assert.Equal(t, fmt.Sprintf("reply %d", n-1), texts[n-1])

	c.Reset()
	assert.Zero(t, c.Len())
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	t.Run("inherits values from primary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), key, "tab")
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()
		assert.Equal(t, "tab", combined.Value(key))
		assert.NoError(t, combined.Err())
	})

	t.Run("canceled by secondary", func(t *testing.T) {
		secondary, cancelSecondary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		cancelSecondary()
		assert.Eventually(t, func() bool { return combined.Err() != nil }, time.Second, 5*time.Millisecond)
	})

	t.Run("canceled by primary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

func TestDetach(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	parent, cancel := context.WithTimeout(context.WithValue(context.Background(), key, "tab"), time.Millisecond)
	cancel()

	detached := Detach(parent)
	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	_, ok := detached.Deadline()
	assert.False(t, ok)
	assert.Equal(t, "tab", detached.Value(key))
}
