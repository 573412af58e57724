package rangehttp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tanq16/rangedl/internal/utils"
)

// Download fetches url into finalPath through "<finalPath>.temp", resuming from
// the temp file when one exists. Cancellation keeps the temp file.
func (e *Engine) Download(ctx context.Context, url, finalPath string, events chan<- Event) error {
	log := utils.GetLogger("simple-downloader").With().Str("url", url).Logger()
	fail := func(err error) error {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		log.Error().Err(err).Msg("Download failed")
		emit(events, Event{Kind: EventError, Err: err})
		return err
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return fail(fmt.Errorf("%w: create directory: %w", utils.ErrIO, err))
	}
	info, err := e.Probe(ctx, url)
	if err != nil {
		return fail(err)
	}

	tempPath := utils.TempPath(finalPath)
	offset := utils.FileSize(tempPath)
	if offset > info.Size {
		log.Warn().Int64("offset", offset).Int64("size", info.Size).Msg("Partial file is larger than the content, restarting")
		offset = 0
	} else if offset > 0 && !info.AcceptsRanges {
		log.Warn().Int64("offset", offset).Msg("Server does not support resume, restarting")
		offset = 0
	}
	emit(events, Event{Kind: EventStarted, Bytes: offset})

	if offset < info.Size {
		if offset > 0 {
			log.Debug().Int64("offset", offset).Msg("Resuming download")
		}
		req := RangeRequest{URL: url, Path: tempPath, Start: offset, End: -1, Append: offset > 0}
		written, err := e.Fetch(ctx, req, events)
		if err != nil {
			return fail(err)
		}
		if offset+written != info.Size {
			return fail(fmt.Errorf("size mismatch: expected %d bytes, got %d", info.Size, offset+written))
		}
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		return fail(fmt.Errorf("%w: finalize %s: %w", utils.ErrIO, finalPath, err))
	}
	log.Info().Str("path", finalPath).Msg("Simple download successful")
	emit(events, Event{Kind: EventCompleted, Bytes: info.Size})
	return nil
}
