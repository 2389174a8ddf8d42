// Package watch re-syncs agent and workflow definitions to the database
// when their files change.
//
// Changes are debounced per definition and applied one at a time, agents
// before workflows within a batch.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ccrm-agents/ccsync/internal/definition"
	"github.com/ccrm-agents/ccsync/internal/reconcile"
	"github.com/ccrm-agents/ccsync/internal/types"
)

// DefaultDebounce is how long a definition must be quiet before it is
// synced.
const DefaultDebounce = 300 * time.Millisecond

// Target identifies one definition directory.
type Target struct {
	Scope types.Scope
	Kind  types.ResourceKind
	Name  string
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%s:%s", t.Scope, t.Kind, t.Name)
}

// Config holds the watcher's collaborators.
type Config struct {
	Layout    definition.Layout
	Agents    reconcile.AgentSyncer
	Workflows reconcile.WorkflowSyncer
	// Scopes to watch. Empty means every scope.
	Scopes   []types.Scope
	Debounce time.Duration
	Logger   *zap.Logger
	// OnSync, if set, is called after each sync attempt.
	OnSync func(Target, error)
}

// Watcher watches the definition tree.
type Watcher struct {
	cfg     Config
	log     *zap.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[Target]time.Time
}

// New creates a Watcher. Run starts it.
func New(cfg Config) (*Watcher, error) {
	if cfg.Agents == nil || cfg.Workflows == nil {
		return nil, errors.New("watch: agent and workflow syncers are required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = types.AllScopes
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:     cfg,
		log:     cfg.Logger.Named("watch"),
		watcher: fw,
		pending: make(map[Target]time.Time),
	}, nil
}

// Run watches until ctx is cancelled. Missing kind directories are
// created so definitions added later are seen.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for _, scope := range w.cfg.Scopes {
		for _, kind := range []types.ResourceKind{types.KindAgent, types.KindWorkflow} {
			if err := w.addKindDir(scope, kind); err != nil {
				return err
			}
		}
	}
	w.log.Info("watching definitions", zap.String("root", w.cfg.Layout.Root))

	ticker := time.NewTicker(w.cfg.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("stopping watcher")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", zap.Error(err))

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) addKindDir(scope types.Scope, kind types.ResourceKind) error {
	dir, err := w.cfg.Layout.Dir(scope, kind)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	names, err := w.cfg.Layout.List(scope, kind)
	if err != nil {
		return err
	}
	for _, name := range names {
		w.addEntryDir(filepath.Join(dir, name))
	}
	return nil
}

func (w *Watcher) addEntryDir(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		w.log.Warn("failed to watch definition", zap.String("dir", dir), zap.Error(err))
	}
}

// handle queues the definition an event belongs to.
func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	target, isDir, ok := Classify(w.cfg.Layout, w.cfg.Scopes, event.Name)
	if !ok {
		return
	}
	if isDir && event.Has(fsnotify.Create) {
		// New definition directory: watch it for its files.
		w.addEntryDir(event.Name)
	}

	w.log.Debug("definition changed", zap.Stringer("target", target), zap.String("op", event.Op.String()))
	w.mu.Lock()
	w.pending[target] = time.Now()
	w.mu.Unlock()
}

// flush syncs every definition that has been quiet for the debounce
// interval.
func (w *Watcher) flush(ctx context.Context) {
	now := time.Now()
	var ready []Target

	w.mu.Lock()
	for target, at := range w.pending {
		if now.Sub(at) >= w.cfg.Debounce {
			ready = append(ready, target)
			delete(w.pending, target)
		}
	}
	w.mu.Unlock()

	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		return a.Name < b.Name
	})

	for _, target := range ready {
		if ctx.Err() != nil {
			return
		}
		w.sync(ctx, target)
	}
}

func (w *Watcher) sync(ctx context.Context, target Target) {
	var err error
	switch target.Kind {
	case types.KindAgent:
		var res *reconcile.AgentSyncResult
		res, err = w.cfg.Agents.SyncToDB(ctx, target.Name, target.Scope)
		if err == nil {
			w.log.Info("synced agent", zap.String("name", target.Name),
				zap.Stringer("scope", target.Scope), zap.String("id", res.ID))
		}
	case types.KindWorkflow:
		var id string
		id, err = w.cfg.Workflows.SyncToDB(ctx, target.Name, target.Scope)
		if err == nil {
			w.log.Info("synced workflow", zap.String("id", id), zap.Stringer("scope", target.Scope))
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, reconcile.ErrNotFound):
		// Removed or half-written definition; the next write re-queues it.
		w.log.Debug("definition not readable", zap.Stringer("target", target), zap.Error(err))
	default:
		w.log.Warn("sync failed", zap.Stringer("target", target), zap.Error(err))
	}

	if w.cfg.OnSync != nil {
		w.cfg.OnSync(target, err)
	}
}

// Classify maps a path below the definition root to the definition it
// belongs to. isDir is set when path is the definition directory itself.
// Files other than the known definition files are ignored.
func Classify(layout definition.Layout, scopes []types.Scope, path string) (target Target, isDir bool, ok bool) {
	if len(scopes) == 0 {
		scopes = types.AllScopes
	}
	for _, scope := range scopes {
		for _, kind := range []types.ResourceKind{types.KindAgent, types.KindWorkflow} {
			dir, err := layout.Dir(scope, kind)
			if err != nil {
				continue
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
				continue
			}

			parts := strings.Split(filepath.ToSlash(rel), "/")
			target = Target{Scope: scope, Kind: kind, Name: parts[0]}
			switch len(parts) {
			case 1:
				return target, true, true
			case 2:
				if isDefinitionFile(kind, parts[1]) {
					return target, false, true
				}
			}
			return Target{}, false, false
		}
	}
	return Target{}, false, false
}

func isDefinitionFile(kind types.ResourceKind, name string) bool {
	switch kind {
	case types.KindAgent:
		return name == definition.PromptFile || name == definition.SchemaFile
	case types.KindWorkflow:
		return name == definition.WorkflowFile
	}
	return false
}
