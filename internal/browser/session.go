package browser

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"golang.org/x/net/html"

	"github.com/philverify/feedwatch/dom"
	"github.com/philverify/feedwatch/internal/frame"
)

//go:embed observer.js
var observerJS string

const bindingName = "__feedwatch_binding"

const clickJS = `(path) => {
	const el = document.evaluate(path, document, null,
		XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!el) throw new Error('no node at ' + path);
	el.click();
}`

const mirrorJS = `(path, markup) => {
	const el = document.evaluate(path, document, null,
		XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!el) return false;
	for (const old of el.querySelectorAll(':scope > .fw-overlay')) old.remove();
	el.insertAdjacentHTML('beforeend', markup);
	return true;
}`

// ActionFunc receives a routed user gesture: the overlay action name and
// the post node it belongs to, resolved in the mirrored tree.
type ActionFunc func(action string, post *html.Node)

// SessionConfig configures a page attachment.
type SessionConfig struct {
	PageURL  string
	OnAction ActionFunc

	// Frames serialises all mirrored-tree access. Binding events arrive on
	// a CDP goroutine; every path resolution, graft, and action dispatch is
	// queued here so the tree is only ever touched from the frame
	// goroutine. Required.
	Frames frame.Scheduler

	// NavigateTimeout bounds navigation and the initial snapshot.
	// Default: 30s.
	NavigateTimeout time.Duration

	Logger *slog.Logger
}

// Session mirrors one live page into a dom.Tree. Page mutations flow in
// through an injected MutationObserver; overlay writes on the tree flow
// back out; clicks on overlay controls come back as routed actions.
type Session struct {
	page     *rod.Page
	tree     *dom.Tree
	pageURL  string
	onAction ActionFunc
	frames   frame.Scheduler
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()

	mirrorCh chan mirrorOp
}

type mirrorOp struct {
	path   string
	markup string
}

type bindingRecord struct {
	Op     string `json:"op"`
	Path   string `json:"path"`
	HTML   string `json:"html"`
	Action string `json:"action"`
}

// Attach opens a stealth tab on the URL, snapshots the document into a
// dom.Tree, and starts the mutation and gesture plumbing.
func Attach(ctx context.Context, mgr *Manager, cfg SessionConfig) (*Session, error) {
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Frames == nil {
		return nil, fmt.Errorf("browser: attach: no frame scheduler")
	}

	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, navCancel := context.WithTimeout(ctx, cfg.NavigateTimeout)
	defer navCancel()

	if err := page.Context(navCtx).Navigate(cfg.PageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", cfg.PageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		cfg.Logger.Warn("browser: wait load timeout", "url", cfg.PageURL, "error", err)
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: snapshot: %w", err)
	}
	tree, err := dom.Parse(res.Value.Str())
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: parse snapshot: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		page:     page,
		tree:     tree,
		pageURL:  cfg.PageURL,
		onAction: cfg.OnAction,
		frames:   cfg.Frames,
		logger:   cfg.Logger,
		ctx:      sctx,
		cancel:   cancel,
		mirrorCh: make(chan mirrorOp, 256),
	}

	tree.SetActivator(s.activate)

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		s.logger.Warn("browser: add binding failed (may already exist)", "error", err)
	}
	go s.listenBinding()

	if _, err := page.Eval(observerJS); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: inject observer: %w", err)
	}

	s.unsub = tree.Subscribe(s.mirrorInserted)
	go s.mirrorLoop()

	s.logger.Info("browser: attached", "url", cfg.PageURL)
	return s, nil
}

// Tree returns the mirrored tree. All watcher components run against it.
func (s *Session) Tree() *dom.Tree { return s.tree }

// Close stops the plumbing and closes the tab.
func (s *Session) Close() error {
	s.cancel()
	if s.unsub != nil {
		s.unsub()
	}
	if s.page != nil {
		return s.page.Close()
	}
	return nil
}

// listenBinding receives batches from the injected observer via
// Runtime.bindingCalled.
func (s *Session) listenBinding() {
	s.page.Context(s.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var records []bindingRecord
		if err := json.Unmarshal([]byte(e.Payload), &records); err != nil {
			s.logger.Warn("browser: parse binding payload", "error", err)
			return
		}
		for _, rec := range records {
			switch rec.Op {
			case "insert":
				s.applyInsert(rec.Path, rec.HTML)
			case "action":
				s.applyAction(rec.Action, rec.Path)
			}
		}
	})()
}

// applyInsert grafts a page-side insertion onto the mirrored tree. The
// graft runs on the frame goroutine; the watcher and overlay walk the tree
// there, so insertions interleave with their passes instead of racing them.
// The parent path can miss when the mirror has drifted from the live page;
// the insertion is dropped rather than guessed at.
func (s *Session) applyInsert(path, fragment string) {
	s.frames.Request(func() {
		parent := ResolvePath(s.tree.Root(), path)
		if parent == nil {
			s.logger.Debug("browser: insert parent not found", "path", path)
			return
		}
		if _, err := s.tree.AppendHTML(parent, fragment); err != nil {
			s.logger.Warn("browser: apply insert", "path", path, "error", err)
		}
	})
}

func (s *Session) applyAction(action, path string) {
	if s.onAction == nil {
		return
	}
	s.frames.Request(func() {
		post := ResolvePath(s.tree.Root(), path)
		if post == nil {
			s.logger.Debug("browser: action post not found", "action", action, "path", path)
			return
		}
		s.onAction(action, post)
	})
}

// activate dispatches a real click at the node's live-page counterpart.
func (s *Session) activate(n *html.Node) error {
	path := dom.PathOf(n)
	if path == "" {
		return fmt.Errorf("browser: activate: detached node")
	}
	if _, err := s.page.Context(s.ctx).Eval(clickJS, path); err != nil {
		return fmt.Errorf("browser: activate %s: %w", path, err)
	}
	return nil
}

// mirrorInserted watches tree insertions for overlay markup and queues it
// for the live page. Serialisation happens here, on the inserting
// goroutine, while the subtree is stable; the network write happens on the
// mirror goroutine.
func (s *Session) mirrorInserted(inserted []*html.Node) {
	for _, n := range inserted {
		if n.Type != html.ElementNode || !strings.Contains(dom.GetAttr(n, "class"), "fw-overlay") {
			continue
		}
		if n.Parent == nil {
			continue
		}
		path := dom.PathOf(n.Parent)
		if path == "" {
			continue
		}
		var buf bytes.Buffer
		if err := html.Render(&buf, n); err != nil {
			s.logger.Warn("browser: render overlay", "error", err)
			continue
		}
		select {
		case s.mirrorCh <- mirrorOp{path: path, markup: buf.String()}:
		default:
			s.logger.Warn("browser: mirror queue full, dropping overlay write", "path", path)
		}
	}
}

func (s *Session) mirrorLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case op := <-s.mirrorCh:
			if _, err := s.page.Context(s.ctx).Eval(mirrorJS, op.path, op.markup); err != nil {
				s.logger.Warn("browser: mirror overlay", "path", op.path, "error", err)
			}
		}
	}
}
