package indeed

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/cockroachdb/errors"
)

// Browser renders a page and returns its outer HTML.
type Browser interface {
	Render(ctx context.Context, url string) (string, error)
	Close()
}

// ChromeBrowser drives one headless Chrome process, started on the first
// Render. Each Render opens a tab in it.
type ChromeBrowser struct {
	execPath string
	settle   time.Duration

	once        sync.Once
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
	startErr    error
}

// NewChromeBrowser uses execPath, or the first Chrome/Chromium found on the
// system when it is empty.
func NewChromeBrowser(execPath string) *ChromeBrowser {
	if execPath == "" {
		execPath = findChromeBinary()
	}
	return &ChromeBrowser{execPath: execPath, settle: 2 * time.Second}
}

func (b *ChromeBrowser) start() {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	// Suppress chromedp log noise
	browserCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	b.browserCtx = browserCtx
	b.cancelAlloc = cancelAlloc
	b.cancelTab = cancelTab

	// Run with no actions launches the browser, so later tabs share it.
	if err := chromedp.Run(browserCtx); err != nil {
		b.startErr = errors.Wrap(err, "start chrome")
	}
}

func (b *ChromeBrowser) Render(ctx context.Context, url string) (string, error) {
	b.once.Do(b.start)
	if b.startErr != nil {
		return "", b.startErr
	}

	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.Wrap(err, "chromedp render")
	}
	return html, nil
}

func (b *ChromeBrowser) Close() {
	if b.cancelTab != nil {
		b.cancelTab()
		b.cancelAlloc()
	}
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
