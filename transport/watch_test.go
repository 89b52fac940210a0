package transport

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "pw")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func TestWaitForSocket(t *testing.T) {
	t.Run("already present", func(t *testing.T) {
		path := filepath.Join(shortTempDir(t), "s.sock")
		ln, err := net.Listen("unix", path)
		require.NoError(t, err)
		defer ln.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, WaitForSocket(ctx, path))
	})

	t.Run("appears later", func(t *testing.T) {
		path := filepath.Join(shortTempDir(t), "s.sock")

		lnCh := make(chan net.Listener, 1)
		go func() {
			time.Sleep(100 * time.Millisecond)
			ln, err := net.Listen("unix", path)
			if err == nil {
				lnCh <- ln
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, WaitForSocket(ctx, path))

		ln := <-lnCh
		_ = ln.Close()
	})

	t.Run("times out", func(t *testing.T) {
		path := filepath.Join(shortTempDir(t), "never.sock")

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, WaitForSocket(ctx, path), context.DeadlineExceeded)
	})

	t.Run("regular file", func(t *testing.T) {
		path := filepath.Join(shortTempDir(t), "plain")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.ErrorIs(t, WaitForSocket(ctx, path), ErrNotSocket)
	})
}

func TestPollSocket(t *testing.T) {
	path := filepath.Join(shortTempDir(t), "p.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, pollSocket(ctx, path))
}
