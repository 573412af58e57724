package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tanq16/rangedl/internal/config"
	rangehttp "github.com/tanq16/rangedl/internal/downloaders/http"
	"github.com/tanq16/rangedl/internal/output"
	"github.com/tanq16/rangedl/internal/registry"
	"github.com/tanq16/rangedl/internal/scheduler"
	"github.com/tanq16/rangedl/internal/task"
	"github.com/tanq16/rangedl/internal/utils"
)

func newEngine(s config.Settings) *rangehttp.Engine {
	client := utils.NewHTTPClient(utils.HTTPClientConfig{
		Timeout:        s.Timeout,
		KATimeout:      s.KeepAliveTimeout,
		UserAgent:      s.UserAgent,
		Headers:        utils.ParseHeaderArgs(headers),
		HighThreadMode: s.Segments*s.Workers > 5,
	})
	return rangehttp.New(client, rangehttp.Options{
		ChunkSize:    int(s.ChunkSize),
		StallTimeout: s.Timeout,
	})
}

func newRegistry(s config.Settings) *registry.Registry {
	return registry.New(newEngine(s), task.Options{
		Segments:       s.Segments,
		MinSegmentSize: s.MinSegmentSize,
	})
}

// runDownloads registers entries, runs them through the scheduler with a live
// display, and pauses everything on SIGINT/SIGTERM so partial files survive.
func runDownloads(s config.Settings, entries []utils.DownloadEntry) error {
	live := output.IsTerminal()
	if live {
		if logFile, err := os.OpenFile(utils.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			defer logFile.Close()
			utils.SetLogOutput(logFile)
		}
	}
	log := utils.GetLogger("cli")
	reg := newRegistry(s)
	var tasks []*task.Task
	for _, entry := range entries {
		dir := entry.Dir
		if dir == "" {
			var err error
			if dir, err = s.Destination(entry.Category); err != nil {
				output.PrintError(fmt.Sprintf("Skipping %s: %v", entry.URL, err))
				continue
			}
		}
		t, err := reg.AddDownload(entry.URL, dir)
		if err != nil {
			output.PrintError(fmt.Sprintf("Skipping %s: %v", entry.URL, err))
			continue
		}
		tasks = append(tasks, t)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no valid downloads")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := output.NewManager()
	for _, t := range tasks {
		mgr.Track(t)
	}
	if live {
		mgr.StartDisplay()
	}

	done := make(chan error, 1)
	go func() {
		done <- scheduler.New(reg, s.Workers).Run(ctx, tasks)
	}()
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		log.Info().Msg("Interrupted, pausing downloads")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if shutdownErr := reg.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Warn().Err(shutdownErr).Msg("Downloads did not stop in time")
		}
		cancel()
		err = <-done
	}

	if live {
		mgr.StopDisplay()
	}
	mgr.ShowSummary()
	return err
}
