package browser

import (
	"time"

	"github.com/go-rod/rod"
)

const domStableWindow = 500 * time.Millisecond

// WaitForIFrames waits for DOM stability on the page and then, recursively,
// on every visible iframe. Frames that cannot be entered are skipped.
func WaitForIFrames(page *rod.Page) error {
	if err := page.WaitDOMStable(domStableWindow, 0); err != nil {
		return err
	}

	iframes, err := page.Elements("iframe")
	if err != nil {
		return nil
	}

	for _, iframe := range iframes {
		visible, _ := iframe.Visible()
		if !visible {
			continue
		}

		frame, err := iframe.Frame()
		if err != nil {
			continue
		}

		if err := WaitForIFrames(frame); err != nil {
			return err
		}
	}
	return nil
}
