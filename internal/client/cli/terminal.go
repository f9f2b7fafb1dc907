package cli

import (
	"fmt"
	"io"
	"sync"
)

// Terminal is the services.Navigator of the CLI. There are no pages, so
// navigation is recorded and reported to the user.
type Terminal struct {
	mu       sync.Mutex
	out      io.Writer
	location string
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out, location: "/"}
}

func (t *Terminal) Navigate(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.location = path
	fmt.Fprintf(t.out, "Now at %s\n", path)
}

// Location returns the last path navigated to.
func (t *Terminal) Location() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.location
}

func (t *Terminal) OpenURL(rawURL string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.out, "Open this URL in your browser to continue:\n  %s\nThen paste the address you were redirected to with: callback <url>\n", rawURL)
	return err
}

func (t *Terminal) PromptReload(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%s Type 'reload' to start over.\n", reason)
}
