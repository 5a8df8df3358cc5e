// Package chrome starts headless Chrome sessions for page rendering and PDF
// output.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/chromedp/chromedp"
)

// ErrNotInstalled is returned when no Chrome or Chromium binary is on PATH.
var ErrNotInstalled = errors.New("chromium not installed")

var binaries = []string{"chromium-browser", "chromium", "google-chrome"}

// lookPath is swapped out in tests.
var lookPath = exec.LookPath

// Binary returns the first browser binary found on PATH.
func Binary() (string, error) {
	for _, name := range binaries {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrNotInstalled
}

// NewContext returns a chromedp context backed by a fresh headless browser
// configured for running inside a container. Cancel releases the browser.
func NewContext(parent context.Context) (context.Context, context.CancelFunc, error) {
	binary, err := Binary()
	if err != nil {
		return nil, nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(binary),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	return taskCtx, func() {
		cancelTask()
		cancelAlloc()
	}, nil
}

// Run executes actions in a fresh browser and tears it down afterwards.
func Run(ctx context.Context, actions ...chromedp.Action) error {
	taskCtx, cancel, err := NewContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return fmt.Errorf("chrome run: %w", err)
	}
	return nil
}
