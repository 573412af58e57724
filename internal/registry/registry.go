// Package registry tracks download tasks by URL and owns their cancellation scopes.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/tanq16/rangedl/internal/task"
	"github.com/tanq16/rangedl/internal/utils"
)

type scope struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newScope() scope {
	ctx, cancel := context.WithCancel(context.Background())
	return scope{ctx: ctx, cancel: cancel}
}

// Registry holds its lock only for collection changes; fetches run outside it.
type Registry struct {
	engine task.Engine
	opts   task.Options

	mu     sync.Mutex
	tasks  []*task.Task
	byURL  map[string]*task.Task
	scopes map[string]scope
	wg     sync.WaitGroup

	// closed once the goroutine started by StartDownloadAsync has returned
	inflight map[string]chan struct{}
}

func New(eng task.Engine, opts task.Options) *Registry {
	return &Registry{
		engine: eng,
		opts:   opts,
		byURL:  make(map[string]*task.Task),
		scopes:   make(map[string]scope),
		inflight: make(map[string]chan struct{}),
	}
}

func validateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("%w: empty url", utils.ErrInvalidURL)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", utils.ErrInvalidURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: missing host", utils.ErrInvalidURL)
	}
	return nil
}

func validateDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%w: empty directory", utils.ErrInvalidPath)
	}
	info, err := os.Stat(dir)
	if err == nil && !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", utils.ErrInvalidPath, dir)
	}
	return nil
}

// AddDownload creates a task for rawURL saving into dir. Missing directories
// are created when the task starts.
func (r *Registry) AddDownload(rawURL, dir string) (*task.Task, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if err := validateDir(dir); err != nil {
		return nil, err
	}
	if _, ok := r.Lookup(rawURL); ok {
		return nil, fmt.Errorf("%w: %s", utils.ErrDuplicateURL, rawURL)
	}

	t := task.New(rawURL, dir, r.engine, r.opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byURL[rawURL]; exists {
		return nil, fmt.Errorf("%w: %s", utils.ErrDuplicateURL, rawURL)
	}
	r.tasks = append(r.tasks, t)
	r.byURL[rawURL] = t
	r.scopes[rawURL] = newScope()
	log := utils.GetLogger("registry")
	log.Debug().Str("url", rawURL).Str("task", t.ID()).Msg("Task added")
	return t, nil
}

// RemoveDownload stops an active task (it becomes Cancelled), drops it with its
// scope, and deletes its partial files.
func (r *Registry) RemoveDownload(t *task.Task) error {
	r.mu.Lock()
	if r.byURL[t.URL()] != t {
		r.mu.Unlock()
		return utils.ErrUnknownTask
	}
	sc := r.scopes[t.URL()]
	started := r.inflight[t.URL()]
	delete(r.byURL, t.URL())
	delete(r.scopes, t.URL())
	for i, tracked := range r.tasks {
		if tracked == t {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if t.Active() {
		t.Cancel()
	}
	sc.cancel()
	if started != nil {
		<-started
	}
	t.Wait()
	log := utils.GetLogger("registry")
	log.Debug().Str("url", t.URL()).Msg("Task removed")
	return t.RemovePartials()
}

// StartDownloadAsync runs the task under its scope in a new goroutine. The
// channel yields the result of Task.Start once and is then closed.
func (r *Registry) StartDownloadAsync(t *task.Task) (<-chan error, error) {
	result := make(chan error, 1)
	r.mu.Lock()
	if r.byURL[t.URL()] != t {
		r.mu.Unlock()
		return nil, utils.ErrUnknownTask
	}
	sc := r.scopes[t.URL()]
	if sc.ctx.Err() != nil {
		sc = newScope()
		r.scopes[t.URL()] = sc
	}
	if _, running := r.inflight[t.URL()]; running || t.Status() == task.Downloading {
		r.mu.Unlock()
		result <- nil
		close(result)
		return result, nil
	}
	started := make(chan struct{})
	r.inflight[t.URL()] = started
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer close(result)
		err := t.Start(sc.ctx)
		r.mu.Lock()
		if r.inflight[t.URL()] == started {
			delete(r.inflight, t.URL())
		}
		r.mu.Unlock()
		result <- err
		close(started)
	}()
	return result, nil
}

// CancelDownload marks the task Cancelled and triggers its scope, whether or
// not it is running.
func (r *Registry) CancelDownload(t *task.Task) {
	r.mu.Lock()
	sc, tracked := r.scopes[t.URL()]
	tracked = tracked && r.byURL[t.URL()] == t
	r.mu.Unlock()

	t.Cancel()
	if tracked {
		sc.cancel()
	}
}

func (r *Registry) Lookup(rawURL string) (*task.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byURL[rawURL]
	return t, ok
}

// Downloads returns the tracked tasks in insertion order.
func (r *Registry) Downloads() []*task.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*task.Task(nil), r.tasks...)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Wait blocks until every fetch started through the registry has returned.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Shutdown pauses every task, keeping partial files, and waits for the fetches
// to return or ctx to end.
func (r *Registry) Shutdown(ctx context.Context) error {
	for _, t := range r.Downloads() {
		if t.Active() {
			t.Pause()
		}
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
