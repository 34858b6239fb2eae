package safe

import (
	"context"
	"io"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
)

// ErrTooLarge is returned by ReadLimited when the input exceeds the limit
var ErrTooLarge = goerr.New("input exceeds size limit")

// Close closes an io.Closer and logs any error. A nil closer is ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Warn("Failed to close", slog.Any("error", err))
	}
}

// Write writes data to w and logs any error. A nil writer is ignored.
func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil {
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.From(ctx).Warn("Failed to write", slog.Any("error", err), slog.Int("size", len(data)))
	}
}

// Copy copies src to dst and logs any error.
func Copy(ctx context.Context, dst io.Writer, src io.Reader) {
	if n, err := io.Copy(dst, src); err != nil {
		logging.From(ctx).Warn("Failed to copy", slog.Any("error", err), slog.Int64("copied", n))
	}
}

// ReadLimited reads all of r, failing with ErrTooLarge instead of buffering
// more than limit bytes.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read")
	}
	if int64(len(data)) > limit {
		return nil, goerr.Wrap(ErrTooLarge, "input is too large", goerr.V("limit", limit))
	}
	return data, nil
}
