// Package pdf 把简历 HTML 打印为 PDF。
package pdf

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const defaultRenderTimeout = 30 * time.Second

type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// ChromeRenderer 每次渲染启动独立的无头 Chromium，渲染结束即回收。
// 纸张尺寸与页边距由模板中的 @page 规则决定。
type ChromeRenderer struct {
	Timeout time.Duration
	// Bin 为空时先查找本机 Chromium，找不到再由 launcher 下载。
	Bin string
}

func (r ChromeRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	browser, cleanup, err := r.launch(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("load resume html: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for resume html: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{PrintBackground: true, PreferCSSPageSize: true})
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	defer stream.Close()

	out, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pdf stream: %w", err)
	}
	return out, nil
}

func (r ChromeRenderer) launch(ctx context.Context) (*rod.Browser, func(), error) {
	l := launcher.New().Context(ctx).Headless(true).NoSandbox(true).Set("disable-gpu")
	switch {
	case r.Bin != "":
		l = l.Bin(r.Bin)
	default:
		if path, found := launcher.LookPath(); found {
			l = l.Bin(path)
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch chromium: %w", err)
	}

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect chromium: %w", err)
	}
	return browser, func() {
		_ = browser.Close()
		l.Cleanup()
	}, nil
}
