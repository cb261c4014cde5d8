// Package stdio serves the dossier protocol over newline-delimited JSON streams.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/myrjola/dossier/internal/errors"
	"github.com/myrjola/dossier/internal/logging"
	"github.com/myrjola/dossier/internal/protocol"
)

const (
	initialBufferSize = 64 * 1024
	// MaxLineSize is the longest request line accepted.
	MaxLineSize = 4 * 1024 * 1024
)

// Handler handles one raw request.
type Handler interface {
	HandleRaw(ctx context.Context, raw []byte) (protocol.Response, error)
}

// Serve reads one request per line from in and writes one response per line to out.
//
// Blank lines are skipped and malformed lines are answered with a parse error. Serve returns nil when in reaches EOF
// and ctx.Err() when ctx is cancelled between lines. A line longer than MaxLineSize ends the loop with an error.
func Serve(ctx context.Context, handler Handler, in io.Reader, out io.Writer, logger *slog.Logger) error {
	ctx = logging.WithAttrs(ctx, slog.String("transport", "stdio"))
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, initialBufferSize), MaxLineSize)
	writer := bufio.NewWriter(out)
	encoder := json.NewEncoder(writer)

	logger.LogAttrs(ctx, slog.LevelInfo, "serving on stdio")
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck // cancellation is reported as is
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		lineCtx, _ := logging.WithRequestID(ctx)
		resp, _ := handler.HandleRaw(lineCtx, line)
		if err := encoder.Encode(resp); err != nil {
			return errors.Wrap(err, "encode response")
		}
		if err := writer.Flush(); err != nil {
			return errors.Wrap(err, "flush response")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read request line")
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "stdin closed, stopping")
	return nil
}
