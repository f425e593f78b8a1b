package conn

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// HalfCloser is a stream whose write side can be shut down independently.
type HalfCloser interface {
	io.ReadWriteCloser
	CloseWrite() error
}

// CopyBidirectional copies bytes both ways between left and right until both
// directions reach EOF or ctx is done. When one direction finishes its
// destination is half-closed, so the peer sees EOF while the other direction
// keeps flowing. Both streams are closed on return.
func CopyBidirectional(ctx context.Context, left, right HalfCloser) error {
	g, gctx := errgroup.WithContext(ctx)

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	copyHalf := func(dst, src HalfCloser) error {
		_, err := io.Copy(dst, src)
		_ = dst.CloseWrite()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		return err
	}

	// If the context is canceled, close both sides to unblock Copy.
	stop := context.AfterFunc(gctx, closeBoth)
	defer stop()

	g.Go(func() error { return copyHalf(left, right) })
	g.Go(func() error { return copyHalf(right, left) })

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
