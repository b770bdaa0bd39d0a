package login

import (
	"io"

	"github.com/pkg/browser"
)

// BrowserFunc opens url in the user's web browser.
type BrowserFunc func(url string) error

// openBrowser is the default BrowserFunc. The launcher's own output would
// interleave with the CLI's, so it is discarded.
func openBrowser(url string) error {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return browser.OpenURL(url)
}
