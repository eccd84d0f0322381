package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	appLog "guincheuse/internal/log"
)

// Default poster geometry: a 4:5 portrait suited to social media posts.
const (
	DefaultWidth      = 1080
	DefaultHeight     = 1350
	DefaultTimeoutSec = 30

	posterPath = "/event"
	readyQuery = `[data-ready="true"]`
)

// PosterOptions defines parameters for a poster capture.
type PosterOptions struct {
	// BaseURL is the running site, e.g. "http://127.0.0.1:8080".
	BaseURL string

	// OutputPath is where the PNG is written.
	OutputPath string

	// Width and Height are the viewport in pixels; zero means the defaults.
	Width  int
	Height int

	// Timeout bounds the whole capture; zero means DefaultTimeoutSec.
	Timeout time.Duration

	// NoSandbox disables the Chromium sandbox, needed when running as root
	// in a container.
	NoSandbox bool
}

func (o *PosterOptions) normalize() error {
	if o.BaseURL == "" {
		return errors.New("capture: BaseURL is required")
	}
	if o.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeoutSec * time.Second
	}
	return nil
}

// PosterURL returns the chrome-less events page under base.
func PosterURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("capture: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("capture: unsupported scheme %q", u.Scheme)
	}
	u.Path = posterPath
	u.RawQuery = url.Values{"poster": {"1"}}.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// CapturePoster renders the events page in headless Chromium and writes a
// full-page PNG. It waits for the page to expose data-ready="true" before
// taking the screenshot.
func CapturePoster(parentCtx context.Context, opts PosterOptions) error {
	if err := opts.normalize(); err != nil {
		return err
	}
	target, err := PosterURL(opts.BaseURL)
	if err != nil {
		return err
	}

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	if opts.NoSandbox {
		allocOpts = append(allocOpts[:len(allocOpts):len(allocOpts)], chromedp.NoSandbox)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(target),
		chromedp.WaitVisible(readyQuery, chromedp.ByQuery),
		// Let web fonts and lazy images paint.
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	appLog.Info("capturing poster", "url", target, "width", opts.Width, "height", opts.Height)
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if dir := filepath.Dir(opts.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("capture: create output dir: %w", err)
		}
	}
	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	appLog.Info("poster written", "path", opts.OutputPath, "bytes", len(png))
	return nil
}
