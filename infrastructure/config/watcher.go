package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	domaincfg "github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// RulesWatcher watches a domain rules file and rebuilds the merged
// domain configuration whenever it changes. A file that fails to parse
// or validate is ignored and the previous configuration stays active.
type RulesWatcher struct {
	path        string
	environment string
	watcher     *fsnotify.Watcher
	current     *domaincfg.DomainConfig
	mu          sync.RWMutex
	onChange    []func(*domaincfg.DomainConfig)
	logger      *zap.Logger
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewRulesWatcher loads the rules file and prepares a watcher for it
func NewRulesWatcher(path, environment string, logger *zap.Logger) (*RulesWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	merged, err := buildRules(path, environment)
	if err != nil {
		return nil, fmt.Errorf("load initial rules: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch rules file: %w", err)
	}

	// Editors and config tools often replace the file instead of
	// writing it in place, so the directory is watched as well
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("Failed to watch rules directory", zap.Error(err))
	}

	return &RulesWatcher{
		path:        path,
		environment: environment,
		watcher:     watcher,
		current:     merged,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}, nil
}

// Start begins watching for rule changes
func (w *RulesWatcher) Start() {
	go w.watchLoop()
	w.logger.Info("Domain rules watcher started", zap.String("path", w.path))
}

// Stop stops watching for rule changes
func (w *RulesWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
		w.logger.Info("Domain rules watcher stopped")
	})
}

// Current returns the merged domain configuration
func (w *RulesWatcher) Current() *domaincfg.DomainConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked after every successful reload
func (w *RulesWatcher) OnChange(handler func(*domaincfg.DomainConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, handler)
}

func (w *RulesWatcher) watchLoop() {
	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Rules watcher error", zap.Error(err))
		}
	}
}

// reload rebuilds the merged configuration and notifies subscribers
func (w *RulesWatcher) reload() {
	merged, err := buildRules(w.path, w.environment)
	if err != nil {
		w.logger.Error("Failed to reload domain rules, keeping current",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	w.mu.Lock()
	w.current = merged
	handlers := make([]func(*domaincfg.DomainConfig), len(w.onChange))
	copy(handlers, w.onChange)
	w.mu.Unlock()

	w.logger.Info("Domain rules reloaded",
		zap.String("path", w.path),
		zap.Int("maxNestingDepth", merged.MaxNestingDepth),
		zap.Bool("autoRepair", merged.EnableAutoRepair),
	)

	for _, handler := range handlers {
		handler(merged)
	}
}

// buildRules merges the rules file over the environment profile and
// validates the result
func buildRules(path, environment string) (*domaincfg.DomainConfig, error) {
	rules, err := LoadRules(path)
	if err != nil {
		return nil, err
	}

	merged := rules.Apply(domaincfg.LoadDomainConfig(environment))
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("merged rules are invalid: %w", err)
	}
	return merged, nil
}
