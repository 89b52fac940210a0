package transport

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrNotSocket is returned by WaitForSocket when the path exists but is not
// a unix socket.
var ErrNotSocket = errors.New("path is not a unix socket")

const socketPollInterval = 100 * time.Millisecond

// WaitForSocket blocks until a unix socket exists at path or ctx is done.
// It watches the parent directory with fsnotify and falls back to polling
// when a watcher cannot be set up.
func WaitForSocket(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return pollSocket(ctx, path)
	}
	defer watcher.Close()

	// Watch the directory (the socket does not exist yet)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return pollSocket(ctx, path)
	}

	// Checked after Add so a socket created in between is not missed.
	if ok, err := socketExists(path); ok || err != nil {
		return err
	}

	baseName := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return pollSocket(ctx, path)
			}
			if filepath.Base(event.Name) != baseName {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Chmod) {
				continue
			}
			if ok, err := socketExists(path); ok || err != nil {
				return err
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return pollSocket(ctx, path)
			}
		}
	}
}

func pollSocket(ctx context.Context, path string) error {
	ticker := time.NewTicker(socketPollInterval)
	defer ticker.Stop()

	for {
		if ok, err := socketExists(path); ok || err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// socketExists reports whether path is a socket. A missing path is not an
// error; any other kind of file is ErrNotSocket.
func socketExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return false, ErrNotSocket
	}
	return true, nil
}
