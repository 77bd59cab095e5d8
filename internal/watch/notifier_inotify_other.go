//go:build !linux

package watch

import (
	"fmt"
	"log/slog"
	"runtime"
)

func newInotifyNotifier(_ *slog.Logger) (Notifier, error) {
	return nil, fmt.Errorf("inotify is not available on %s", runtime.GOOS)
}
