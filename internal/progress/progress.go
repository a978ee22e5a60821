// Package progress provides lightweight telemetry helpers that produce or
// wrap a core.ProgressFunc, the callback Storage.GetFile and Storage.AddFile
// accept. Callbacks log locally and Summary renders a final line. The Index
// passes a nil callback to every Storage call, and the CLI does not use this
// package, so no progress is reported by artefacta commands.
package progress

import (
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/technocreatives/artefacta/internal/core"
)

// Reader wraps an io.Reader and invokes callback as bytes are read.
type Reader struct {
	reader   io.Reader
	callback core.ProgressFunc
	current  int64
	total    int64
}

// NewReader wraps r so that callback is invoked with cumulative bytes read
// every time Read is called. total may be 0 if unknown.
func NewReader(r io.Reader, total int64, callback core.ProgressFunc) *Reader {
	return &Reader{reader: r, total: total, callback: callback}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.current += int64(n)
		if r.callback != nil {
			r.callback(r.current, r.total)
		}
	}
	return n, err
}

// LoggingEvery returns a core.ProgressFunc that logs at debug level at most
// once per interval, and always on the final call (bytesDone == bytesTotal
// when bytesTotal is known).
func LoggingEvery(interval time.Duration, logger *slog.Logger, label string) core.ProgressFunc {
	var last time.Time
	return func(bytesDone, bytesTotal int64) {
		now := timeNow()
		done := bytesTotal > 0 && bytesDone >= bytesTotal
		if !done && now.Sub(last) < interval {
			return
		}
		last = now
		if bytesTotal > 0 {
			logger.Debug(label, "done", humanize.Bytes(uint64(bytesDone)), "total", humanize.Bytes(uint64(bytesTotal)))
		} else {
			logger.Debug(label, "done", humanize.Bytes(uint64(bytesDone)))
		}
	}
}

// Summary renders a final humanized one-line progress summary, e.g. for the
// CLI to print after a transfer completes.
func Summary(label string, bytesTotal int64) string {
	return label + ": " + humanize.Bytes(uint64(bytesTotal))
}

var timeNow = time.Now
