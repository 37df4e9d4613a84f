// Package watcher triggers inbox scans when chapters are dropped into the
// inbox directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/pkg/file"
	"github.com/MimeLyc/page-narrator/pkg/log"
	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 3 * time.Second

// TriggerFunc runs one inbox scan.
type TriggerFunc func(ctx context.Context) error

type Option func(*Watcher)

// WithDebounce sets how long the inbox must stay quiet before a scan runs.
// Copying a chapter produces one event per page.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

type Watcher struct {
	inboxDir string
	trigger  TriggerFunc
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

func New(inboxDir string, trigger TriggerFunc, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		inboxDir: inboxDir,
		trigger:  trigger,
		debounce: DefaultDebounce,
		watcher:  fw,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addTree(inboxDir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}
	return w, nil
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	subDirs, err := file.SubDirs(dir)
	if err != nil {
		return err
	}
	for _, sub := range subDirs {
		if err := w.addTree(sub); err != nil {
			return err
		}
	}
	return nil
}

// Start blocks until ctx is done, running the trigger once the inbox has
// been quiet for the debounce period after a relevant change.
func (w *Watcher) Start(ctx context.Context) error {
	log.Info("Inbox watcher started: %s", w.inboxDir)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Inbox watcher stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			log.Error("Watcher error: %v", err)

		case <-timer.C:
			log.Debug("Inbox changed, scanning")
			if err := w.trigger(ctx); err != nil {
				log.Error("Inbox scan after change failed: %v", err)
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				log.Warn("Failed to watch %s: %v", event.Name, err)
			}
			return true
		}
	}
	return pipeline.IsImage(event.Name)
}

func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
