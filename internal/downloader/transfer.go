package downloader

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/media_toolbox/internal/logctx"
)

// progressLogInterval is how many bytes are sent between progress log lines.
const progressLogInterval = 16 * 1024 * 1024

// progressReader wraps an io.Reader and reports progress via a callback, every interval
// bytes and once when 5% of a known total has passed.
type progressReader struct {
	reader     io.Reader
	total      int64
	onProgress func(read, total int64)
	interval   int64

	read       int64
	sinceLast  int64
	passedMark bool
}

func newProgressReader(r io.Reader, total, interval int64, cb func(read, total int64)) *progressReader {
	return &progressReader{
		reader:     r,
		total:      total,
		onProgress: cb,
		interval:   interval,
	}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.sinceLast += int64(n)

		mark := !pr.passedMark && pr.total > 0 && pr.read*100/pr.total >= 5
		if mark {
			pr.passedMark = true
		}

		if pr.sinceLast >= pr.interval || mark {
			pr.onProgress(pr.read, pr.total)
			pr.sinceLast = 0
		}
	}

	return n, err
}

// Send copies the produced file to w and returns the number of bytes written.
func Send(ctx context.Context, w io.Writer, out *Output) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	f, err := os.Open(out.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to open output: %w", err)
	}
	defer f.Close()

	logger.Debug("sending file", "file_path", out.Path, "file_size", humanize.Bytes(uint64(out.Size)))

	pr := newProgressReader(f, out.Size, progressLogInterval, func(read, total int64) {
		if total > 0 {
			logger.Debug("send progress",
				"sent", humanize.Bytes(uint64(read)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(read)*100/float64(total), 2))
		} else {
			logger.Debug("send progress", "sent", humanize.Bytes(uint64(read)))
		}
	})

	written, err := io.Copy(w, pr)
	if err != nil {
		return written, fmt.Errorf("failed to send file: %w", err)
	}

	return written, nil
}
