// Package postwatch discovers posts in an observable page tree and keeps
// discovering them as the host page mutates.
//
// postwatch locates, it does not interpret: discovered posts are handed to a
// schedule callback (the overlay orchestrator) exactly once each, and
// everything downstream — extraction, verification, rendering — is somebody
// else's job.
//
// Change notifications arrive in high-frequency bursts. Newly-inserted nodes
// accumulate in a pending set that is flushed once per frame, deduplicated
// by node identity, so burst size never multiplies processing work and no
// node is scheduled twice.
package postwatch

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/net/html"

	"github.com/philverify/feedwatch/adapter"
	"github.com/philverify/feedwatch/dom"
	"github.com/philverify/feedwatch/idgen"
	"github.com/philverify/feedwatch/internal/frame"
)

// StateAttr is the processing marker written on post nodes. A node carrying
// any value has left the Unseen state and is never scheduled again.
const StateAttr = "data-fw-state"

// StateScheduled marks a node handed to the schedule callback.
const StateScheduled = "scheduled"

// Post is one discovered top-level post.
type Post struct {
	ID      string
	Node    *html.Node
	Adapter adapter.Config
	PageURL string
}

// ScheduleFunc receives each discovered post exactly once, on the frame
// goroutine.
type ScheduleFunc func(ctx context.Context, p Post)

// Config for creating a Watcher.
type Config struct {
	Tree     *dom.Tree
	PageURL  string
	Frames   frame.Scheduler
	Schedule ScheduleFunc

	// Adapter overrides hostname resolution; nil resolves from PageURL.
	Adapter *adapter.Config

	// AutoScan is the initial scanning state; flip it later with
	// SetAutoScan as settings change.
	AutoScan bool

	NewID  idgen.Generator
	Logger *slog.Logger
}

// Watcher locates posts at attach time and watches structural insertions.
type Watcher struct {
	tree     *dom.Tree
	pageURL  string
	cfg      adapter.Config
	detail   bool
	frames   frame.Scheduler
	schedule ScheduleFunc
	newID    idgen.Generator
	logger   *slog.Logger

	ctx context.Context

	mu            sync.Mutex
	attachWant    bool
	attached      bool
	unsub         func()
	pending       []*html.Node
	pendingSet    map[*html.Node]struct{}
	flushQueued   bool
	primaryChosen bool
}

// New creates a Watcher from configuration.
func New(cfg Config) *Watcher {
	platform := adapter.ResolveURL(cfg.PageURL)
	if cfg.Adapter != nil {
		platform = *cfg.Adapter
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Prefixed("post_", idgen.Default)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	detail := false
	if u, err := url.Parse(cfg.PageURL); err == nil {
		detail = platform.IsDetailPath(u.Path)
	}
	return &Watcher{
		tree:       cfg.Tree,
		pageURL:    cfg.PageURL,
		cfg:        platform,
		detail:     detail,
		frames:     cfg.Frames,
		schedule:   cfg.Schedule,
		newID:      cfg.NewID,
		logger:     cfg.Logger,
		pendingSet: make(map[*html.Node]struct{}),
		attachWant: cfg.AutoScan,
	}
}

// Start begins watching. With autoScan on it attaches immediately: existing
// posts are scanned and insertions subscribed.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx = ctx
	w.mu.Lock()
	want := w.attachWant
	w.mu.Unlock()
	if want {
		w.SetAutoScan(true)
	}
}

// Stop detaches from the tree. In-flight verification work is untouched.
func (w *Watcher) Stop() {
	w.SetAutoScan(false)
}

// SetAutoScan reacts to a live settings change. false detaches immediately:
// no further scheduling, pending work is dropped. true attaches and
// re-scans the full current tree, so nodes that appeared while paused are
// picked up rather than silently skipped.
func (w *Watcher) SetAutoScan(enabled bool) {
	w.mu.Lock()
	if enabled == w.attached {
		w.mu.Unlock()
		return
	}
	if !enabled {
		w.attached = false
		if w.unsub != nil {
			w.unsub()
			w.unsub = nil
		}
		w.pending = nil
		w.pendingSet = make(map[*html.Node]struct{})
		w.mu.Unlock()
		w.logger.Info("postwatch: detached", "page", w.pageURL)
		return
	}
	w.attached = true
	w.unsub = w.tree.Subscribe(w.onInsert)
	w.mu.Unlock()

	w.logger.Info("postwatch: attached", "page", w.pageURL, "platform", w.cfg.Name)
	w.Rescan()
}

// Rescan walks the full current tree and schedules every unseen top-level
// post. Used at attach time and after re-enabling autoScan.
func (w *Watcher) Rescan() {
	for _, n := range w.topLevelPosts() {
		w.scheduleNode(n)
	}
}

// onInsert accumulates inserted nodes and queues at most one flush per
// frame.
func (w *Watcher) onInsert(inserted []*html.Node) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.attached {
		return
	}
	for _, n := range inserted {
		if _, dup := w.pendingSet[n]; dup {
			continue
		}
		w.pendingSet[n] = struct{}{}
		w.pending = append(w.pending, n)
	}
	if !w.flushQueued && len(w.pending) > 0 {
		w.flushQueued = true
		w.frames.Request(w.flush)
	}
}

// flush is the once-per-frame processing pass: classify every node queued
// since the previous frame, in discovery order, and schedule the new
// top-level posts.
func (w *Watcher) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.pendingSet = make(map[*html.Node]struct{})
	w.flushQueued = false
	attached := w.attached
	w.mu.Unlock()

	if !attached || len(batch) == 0 {
		return
	}

	scheduled := 0
	for _, n := range batch {
		for _, post := range w.classify(n) {
			if w.scheduleNode(post) {
				scheduled++
			}
		}
	}
	if scheduled > 0 {
		w.logger.Debug("postwatch: flush",
			"inserted", len(batch), "scheduled", scheduled)
	}
}

// scheduleNode transitions a node Unseen → Scheduled at most once; the
// marker lives on the node itself so duplicate discovery paths converge.
func (w *Watcher) scheduleNode(n *html.Node) bool {
	w.mu.Lock()
	if dom.HasAttr(n, StateAttr) {
		w.mu.Unlock()
		return false
	}
	dom.SetAttr(n, StateAttr, StateScheduled)
	w.primaryChosen = true
	w.mu.Unlock()

	p := Post{
		ID:      w.newID(),
		Node:    n,
		Adapter: w.cfg,
		PageURL: w.pageURL,
	}
	w.logger.Debug("postwatch: scheduled", "post", p.ID, "path", dom.PathOf(n))
	w.schedule(w.ctx, p)
	return true
}
