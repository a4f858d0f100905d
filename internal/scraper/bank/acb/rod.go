package acb

import (
	"context"

	"github.com/grez-lucas/vn-bank-sync/internal/scraper/browser"
)

// RodOpener opens ACB tabs in b. The flow state lives in the tab's
// sessionStorage, so it survives the portal's full page reloads.
func RodOpener(b *browser.Browser) Opener {
	return func(ctx context.Context, url string) (Tab, Store, error) {
		p, err := b.OpenTab(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return p, NewSessionStore(p.SessionStorage(FlowStateKey)), nil
	}
}
