package bulk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"medialib/internal/library"
	"medialib/internal/metrics"
	"medialib/internal/models"
)

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

type ItemFailure struct {
	Key library.Key `json:"key"`
	Err error       `json:"-"`
}

// Result tallies a bulk operation. Completed and Failures together cover every
// requested key.
type Result struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Completed []library.Key `json:"completed"`
	Failures  []ItemFailure `json:"failures"`
}

func (r Result) Total() int { return r.Succeeded + r.Failed }

// DeleteOptions controls what happens to folders that still have content.
// With neither flag such folders reject the whole batch with NotEmptyError.
// Recursive alone lets the repository cascade. ReparentOrphans, with or
// without Recursive, moves the folder's direct subfolders and assets up to
// its parent before the emptied folder is removed.
type DeleteOptions struct {
	Recursive       bool
	ReparentOrphans bool
}

type Option func(*Coordinator)

func WithLock(lock Lock) Option {
	return func(c *Coordinator) { c.lock = lock }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithConcurrency caps in-flight sub-operations. Zero means unbounded.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) { c.concurrency = n }
}

// Coordinator runs moves and deletes over a selection. Only one operation
// runs at a time; overlapping calls get ErrBusy.
type Coordinator struct {
	repo        library.Repository
	lock        Lock
	metrics     *metrics.Metrics
	log         zerolog.Logger
	concurrency int
	running     atomic.Bool
}

func NewCoordinator(repo library.Repository, log zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{repo: repo, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) State() State {
	if c.running.Load() {
		return StateRunning
	}
	return StateIdle
}

// Move reparents every selected folder and asset under target (nil = root).
// The cycle check runs before anything is written.
func (c *Coordinator) Move(ctx context.Context, keys []library.Key, target *string) (Result, error) {
	done, err := c.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer done()

	folderIDs, _ := library.SplitKeys(keys)
	if target != nil && len(folderIDs) > 0 {
		ancestors, err := c.repo.FolderAncestors(ctx, *target)
		if err != nil {
			return Result{}, fmt.Errorf("load ancestors of %s: %w", *target, err)
		}
		if err := CheckMove(folderIDs, *target, ancestors); err != nil {
			return Result{}, err
		}
	}

	tasks := make([]task, 0, len(keys))
	for _, key := range keys {
		key := key
		switch key.Kind() {
		case library.KindFolder:
			tasks = append(tasks, task{key: key, run: func(ctx context.Context) error {
				return c.repo.UpdateFolder(ctx, key.ID(), library.FolderUpdate{ParentID: library.SetID(target)})
			}})
		case library.KindAsset:
			tasks = append(tasks, task{key: key, run: func(ctx context.Context) error {
				return c.repo.UpdateAsset(ctx, key.ID(), library.AssetUpdate{FolderID: library.SetID(target)})
			}})
		}
	}

	return c.finish("move", c.run(ctx, tasks))
}

// Delete removes the selected folders and assets. Content-bearing folders
// are rejected up front unless opts.Recursive or opts.ReparentOrphans is set.
func (c *Coordinator) Delete(ctx context.Context, keys []library.Key, opts DeleteOptions) (Result, error) {
	done, err := c.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer done()

	folderIDs, _ := library.SplitKeys(keys)
	folders, lookupFailures := c.loadFolders(ctx, folderIDs)

	if !opts.Recursive && !opts.ReparentOrphans {
		var notEmpty []string
		for _, id := range folderIDs {
			if f, ok := folders[id]; ok && !f.IsEmpty() {
				notEmpty = append(notEmpty, id)
			}
		}
		if len(notEmpty) > 0 {
			return Result{}, &NotEmptyError{FolderIDs: notEmpty}
		}
	}

	tasks := make([]task, 0, len(keys))
	for _, key := range keys {
		key := key
		switch key.Kind() {
		case library.KindFolder:
			if err, failed := lookupFailures[key.ID()]; failed {
				tasks = append(tasks, task{key: key, run: func(context.Context) error { return err }})
				continue
			}
			folder := folders[key.ID()]
			tasks = append(tasks, task{key: key, run: func(ctx context.Context) error {
				return c.deleteFolder(ctx, folder, opts)
			}})
		case library.KindAsset:
			tasks = append(tasks, task{key: key, run: func(ctx context.Context) error {
				return c.repo.DeleteAsset(ctx, key.ID())
			}})
		}
	}

	return c.finish("delete", c.run(ctx, tasks))
}

func (c *Coordinator) deleteFolder(ctx context.Context, folder models.Folder, opts DeleteOptions) error {
	if folder.IsEmpty() {
		return c.repo.DeleteFolder(ctx, folder.ID, false)
	}
	if !opts.ReparentOrphans {
		return c.repo.DeleteFolder(ctx, folder.ID, true)
	}
	if err := c.reparentChildren(ctx, folder); err != nil {
		return err
	}
	return c.repo.DeleteFolder(ctx, folder.ID, false)
}

// reparentChildren moves folder's direct subfolders and assets to its parent.
func (c *Coordinator) reparentChildren(ctx context.Context, folder models.Folder) error {
	parent := library.SetID(folder.ParentID)

	children, err := c.repo.ListFolders(ctx, &folder.ID)
	if err != nil {
		return fmt.Errorf("list subfolders of %s: %w", folder.ID, err)
	}
	for _, child := range children {
		if err := c.repo.UpdateFolder(ctx, child.ID, library.FolderUpdate{ParentID: parent}); err != nil {
			return fmt.Errorf("reparent folder %s: %w", child.ID, err)
		}
	}

	assets, err := c.repo.ListAssets(ctx, &folder.ID, library.AssetFilter{})
	if err != nil {
		return fmt.Errorf("list assets of %s: %w", folder.ID, err)
	}
	for _, asset := range assets {
		if err := c.repo.UpdateAsset(ctx, asset.ID, library.AssetUpdate{FolderID: parent}); err != nil {
			return fmt.Errorf("reparent asset %s: %w", asset.ID, err)
		}
	}
	return nil
}

func (c *Coordinator) loadFolders(ctx context.Context, ids []string) (map[string]models.Folder, map[string]error) {
	folders := make(map[string]models.Folder, len(ids))
	failures := make(map[string]error)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for _, id := range ids {
		id := id
		g.Go(func() error {
			folder, err := c.repo.GetFolder(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[id] = fmt.Errorf("load folder %s: %w", id, err)
				return nil
			}
			folders[id] = folder
			return nil
		})
	}
	_ = g.Wait()
	return folders, failures
}

type task struct {
	key library.Key
	run func(ctx context.Context) error
}

// run fires every task and waits for all of them. A failing task never
// cancels its siblings; its error is recorded against its key.
func (c *Coordinator) run(ctx context.Context, tasks []task) Result {
	errs := make([]error, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = t.run(gctx)
			return nil
		})
	}
	_ = g.Wait()

	var result Result
	for i, t := range tasks {
		if errs[i] != nil {
			result.Failed++
			result.Failures = append(result.Failures, ItemFailure{Key: t.key, Err: errs[i]})
			continue
		}
		result.Succeeded++
		result.Completed = append(result.Completed, t.key)
	}
	return result
}

func (c *Coordinator) finish(op string, result Result) (Result, error) {
	if result.Failed == 0 {
		c.metrics.ObserveBulk(op, "success", result.Succeeded, 0)
		c.log.Info().
			Str("op", op).
			Int("succeeded", result.Succeeded).
			Msg("bulk operation completed")
		return result, nil
	}

	c.metrics.ObserveBulk(op, "partial_failure", result.Succeeded, result.Failed)
	event := c.log.Warn().
		Str("op", op).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed)
	for _, failure := range result.Failures {
		event = event.Str(failure.Key.String(), failure.Err.Error())
	}
	event.Msg("bulk operation partially failed")

	return result, &PartialBatchError{Op: op, Result: result}
}

func (c *Coordinator) begin(ctx context.Context) (func(), error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	if c.lock == nil {
		return func() { c.running.Store(false) }, nil
	}

	unlock, err := c.lock.TryLock(ctx)
	if err != nil {
		c.running.Store(false)
		return nil, err
	}
	return func() {
		unlock()
		c.running.Store(false)
	}, nil
}
