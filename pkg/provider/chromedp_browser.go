package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeBrowser launches a fresh headless Chrome per session.
type ChromeBrowser struct {
	execPath      string
	headless      bool
	screenshotDir string
}

func NewChromeBrowser(execPath string, headless bool, screenshotDir string) *ChromeBrowser {
	return &ChromeBrowser{execPath: execPath, headless: headless, screenshotDir: screenshotDir}
}

func (b *ChromeBrowser) NewSession(ctx context.Context) (Session, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1280, 900),
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// Run with no actions starts the browser
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, err
	}

	return &chromeSession{
		tab:           tabCtx,
		screenshotDir: b.screenshotDir,
		closeFn: func() {
			cancelTab()
			cancelAlloc()
		},
	}, nil
}

type chromeSession struct {
	tab           context.Context
	screenshotDir string
	closeFn       func()
}

// run executes actions on the tab, bounded by the caller's ctx.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *chromeSession) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *chromeSession) Screenshot(ctx context.Context, name string) (string, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 80)); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.screenshotDir, 0o755); err != nil {
		return "", err
	}

	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, name)
	path := filepath.Join(s.screenshotDir, fmt.Sprintf("%d_%s.jpg", time.Now().UnixMilli(), safe))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *chromeSession) PageText(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, chromedp.Text("body", &text, chromedp.ByQuery))
	return text, err
}

func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.tab)
	s.closeFn()
	return err
}
