package radar

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sweeney/uv-lamp/internal/timeutil"
)

// Pump copies received bytes from r into dec until ctx is cancelled or r
// fails. It is the decoder's only producer. Reads are expected to return
// periodically (read timeout) so cancellation is observed.
func Pump(ctx context.Context, r io.Reader, dec *Decoder, clock timeutil.Clock) error {
	buf := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := r.Read(buf)
		if n > 0 {
			dec.FeedBytes(buf[:n], clock.Now())
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("radar read: %w", err)
		}
	}
}
