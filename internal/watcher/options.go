package watcher

import (
	"path/filepath"
	"time"

	"github.com/listenupapp/listenup-mirrors/internal/fsutil"
)

// Options configures the file watcher behavior.
type Options struct {
	IgnorePatterns []string
	// SettleDelay is how long a file must stay unchanged before it counts as written.
	SettleDelay time.Duration
	// Debounce is how long a library must be quiet before its mirrors sync.
	Debounce time.Duration
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 2 * time.Second
	}
	if o.Debounce == 0 {
		o.Debounce = 10 * time.Second
	}

	// nil selects the defaults; an explicit empty slice ignores nothing.
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			".DS_Store",
			"Thumbs.db",
			"*.tmp",
			"*.temp",
			"*.part",
			"*.!qB",
			fsutil.ProbePrefix + "*",
		}
	}
}

// shouldIgnore checks if a path matches ignore patterns.
func (o *Options) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range o.IgnorePatterns {
		matched, err := filepath.Match(pattern, base)
		if err == nil && matched {
			return true
		}
	}
	return false
}
