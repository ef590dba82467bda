package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/flowgate/flowgate/pkg/domain"
)

// FileSpecProvider serves stage-set specifications from a local YAML file
// and hot-reloads them when the file changes.
type FileSpecProvider struct {
	path        string
	logger      *slog.Logger
	mu          sync.RWMutex
	current     *StageSetSpec
	subscribers []chan StageSetSpec
	watcher     *fsnotify.Watcher
	cancel      context.CancelFunc
}

// NewFileSpecProvider creates a provider watching the specified file. The
// initial load must succeed; later reload failures keep the last good spec.
func NewFileSpecProvider(path string, logger *slog.Logger) (*FileSpecProvider, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &FileSpecProvider{
		path:    absPath,
		logger:  logger,
		watcher: watcher,
		cancel:  cancel,
	}

	if err := p.load(); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, err
	}

	// Watch the directory, not the file: editors replace files on save.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	go p.watchLoop(ctx)

	return p, nil
}

// Current returns the most recently loaded spec.
func (p *FileSpecProvider) Current() (StageSetSpec, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return StageSetSpec{}, domain.ErrSpecUnavailable
	}
	return *p.current, nil
}

// Subscribe returns a channel receiving each successfully reloaded spec,
// starting with the current one.
func (p *FileSpecProvider) Subscribe() <-chan StageSetSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan StageSetSpec, 1)
	p.subscribers = append(p.subscribers, ch)
	if p.current != nil {
		ch <- *p.current
	}
	return ch
}

// Close stops the watcher and releases resources.
func (p *FileSpecProvider) Close() error {
	p.cancel()
	return p.watcher.Close()
}

func (p *FileSpecProvider) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer
	const debounce = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Chmod) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounce, func() {
					if err := p.load(); err != nil {
						p.logger.Error("spec reload failed, keeping previous", "path", p.path, "error", err)
						return
					}
					p.logger.Info("stage-set spec reloaded", "path", p.path)
				})
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("spec watcher error", "error", err)
		}
	}
}

func (p *FileSpecProvider) load() error {
	//nolint:gosec // Spec file path is configured at startup
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read spec file: %w", err)
	}

	var spec StageSetSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("failed to parse spec file: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid spec file: %w", err)
	}

	p.mu.Lock()
	p.current = &spec
	subscribers := make([]chan StageSetSpec, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- spec:
		default:
			// Skip slow consumers; they will pick up the next reload.
		}
	}

	return nil
}
