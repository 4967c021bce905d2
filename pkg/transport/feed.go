package transport

import (
	"bufio"
	"context"
	"io"

	"github.com/valyala/bytebufferpool"
)

// UpdateFeed yields raw wire updates one at a time in arrival order. The
// release func must be called once the bytes have been consumed; the
// underlying buffer is pooled.
type UpdateFeed interface {
	Next(ctx context.Context) (raw []byte, release func(), err error)
}

// LineFeed reads newline-delimited JSON updates from a reader (a session
// layer pipe or a replay file). Each update rides a pooled buffer to keep
// steady-state ingestion allocation-free.
type LineFeed struct {
	sc *bufio.Scanner
}

// NewLineFeed wraps r. maxUpdateBytes bounds a single update; larger ones
// fail the scan.
func NewLineFeed(r io.Reader, maxUpdateBytes int) *LineFeed {
	if maxUpdateBytes <= 0 {
		maxUpdateBytes = 1 << 20
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxUpdateBytes)
	return &LineFeed{sc: sc}
}

// Next returns the next update or io.EOF at end of stream.
func (f *LineFeed) Next(ctx context.Context) ([]byte, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if !f.sc.Scan() {
		if err := f.sc.Err(); err != nil {
			return nil, nil, err
		}
		return nil, nil, io.EOF
	}
	bb := bytebufferpool.Get()
	bb.B = append(bb.B[:0], f.sc.Bytes()...)
	return bb.B, func() { bytebufferpool.Put(bb) }, nil
}
