package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"eggjnd/internal/logging"
)

const defaultDebounce = 500 * time.Millisecond

func newWatchCmd(a *app) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [spectra.csv]",
		Short: "Re-run the pipeline whenever the input file changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.cfg.Input = args[0]
			}
			if a.cfg.Input == "" {
				return errors.New("no input: pass a spectra file or set input in the config")
			}
			rerun := func(ctx context.Context) error {
				_, err := a.runPipeline(ctx)
				return err
			}
			if err := rerun(cmd.Context()); err != nil {
				a.logger.Error("initial run failed", "error", err)
			}
			return watchFile(cmd.Context(), a.cfg.Input, debounce, a.logger, rerun)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "Quiet period after the last change before re-running")
	return cmd
}

// watchFile calls fn once per burst of changes to path until ctx ends. The
// parent directory is watched so editors that replace the file by rename are
// still seen. Errors from fn are logged and do not stop the loop.
func watchFile(ctx context.Context, path string, debounce time.Duration, log logging.Logger, fn func(context.Context) error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	log.Info("watching input", "path", target)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(ev.Name)
			if err != nil || name != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				log.Debug("input changed", "op", ev.Op.String())
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "error", err)
		case <-timer.C:
			if err := fn(ctx); err != nil {
				log.Error("re-run failed", "error", err)
			}
		}
	}
}
