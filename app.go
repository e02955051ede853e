package feedwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	xhtml "golang.org/x/net/html"

	"github.com/philverify/feedwatch/broker"
	"github.com/philverify/feedwatch/courier"
	"github.com/philverify/feedwatch/dbopen"
	"github.com/philverify/feedwatch/dom"
	"github.com/philverify/feedwatch/internal/browser"
	"github.com/philverify/feedwatch/internal/frame"
	"github.com/philverify/feedwatch/overlay"
	"github.com/philverify/feedwatch/postwatch"
	"github.com/philverify/feedwatch/safeurl"
	"github.com/philverify/feedwatch/watch"
)

// App runs one watched page end to end.
type App struct {
	cfg    *Config
	logger *slog.Logger
}

// New creates an App. Call Run to start it.
func New(cfg *Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// Run wires everything and blocks until ctx is cancelled or the HTTP
// server fails. The caller must blank-import the sqlite driver.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Page.URL == "" {
		return fmt.Errorf("feedwatch: no page URL configured")
	}

	db, err := dbopen.Open(a.cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(courier.Schema),
		dbopen.WithSchema(broker.Schema),
	)
	if err != nil {
		return fmt.Errorf("feedwatch: open db: %w", err)
	}
	defer db.Close()

	brk := broker.New(broker.Config{DB: db, Logger: a.logger})

	router := courier.New(courier.WithLogger(a.logger))
	router.RegisterTransport("http", courier.HTTPFactory())
	brk.Register(router)
	go router.Watch(ctx, db)
	defer router.Close()

	frames := frame.NewTicker(a.cfg.Frame.Interval)
	go frames.Run(ctx)

	// Gestures arrive from the browser before the orchestrator exists;
	// they are dropped until the pointer is set.
	var actionFn atomic.Pointer[browser.ActionFunc]

	tree, cleanup, err := a.pageTree(ctx, frames, func(action string, post *xhtml.Node) {
		if f := actionFn.Load(); f != nil {
			(*f)(action, post)
		}
	})
	if err != nil {
		return err
	}
	defer cleanup()

	orch := overlay.New(overlay.Config{
		Tree:   tree,
		Frames: frames,
		Send:   router.Send,
		Logger: a.logger,
	})
	orch.Start(ctx)

	route := browser.ActionFunc(func(action string, post *xhtml.Node) {
		id, ok := orch.PostIDByNode(post)
		if !ok {
			return
		}
		switch action {
		case "verify":
			orch.Verify(id)
		case "close":
			orch.Close(id)
		}
	})
	actionFn.Store(&route)

	settings, err := brk.Settings(ctx)
	if err != nil {
		return fmt.Errorf("feedwatch: read settings: %w", err)
	}

	watcher := postwatch.New(postwatch.Config{
		Tree:     tree,
		PageURL:  a.cfg.Page.URL,
		Frames:   frames,
		Schedule: orch.Schedule,
		AutoScan: settings.AutoScan,
		Logger:   a.logger,
	})
	watcher.Start(ctx)
	defer watcher.Stop()

	// Settings edits (channel, HTTP, or MCP) flip scanning without a
	// restart.
	settingsWatch := watch.New(db, watch.Options{
		Detector: brk.SettingsDetector(),
		Logger:   a.logger,
	})
	go settingsWatch.OnChange(ctx, func() error {
		s, err := brk.Settings(ctx)
		if err != nil {
			return err
		}
		watcher.SetAutoScan(s.AutoScan)
		return nil
	})

	if a.cfg.MCP.Enabled {
		srv := mcp.NewServer(&mcp.Implementation{Name: "feedwatch", Version: "1.0.0"}, nil)
		brk.RegisterMCP(srv)
		go func() {
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				a.logger.Error("feedwatch: mcp server", "error", err)
			}
		}()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	brk.RegisterHTTP(r)

	srv := &http.Server{Addr: a.cfg.HTTP.Listen, Handler: r}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shCtx)
	}()

	a.logger.Info("feedwatch: running",
		"page", a.cfg.Page.URL, "listen", a.cfg.HTTP.Listen, "attach", a.cfg.Browser.Attach)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("feedwatch: http server: %w", err)
	}
	return nil
}

// pageTree builds the observed tree: a live browser mirror when attachment
// is on, a one-shot fetch otherwise.
func (a *App) pageTree(ctx context.Context, frames frame.Scheduler, onAction browser.ActionFunc) (*dom.Tree, func(), error) {
	if !a.cfg.Browser.Attach {
		tree, err := fetchTree(ctx, a.cfg.Page.URL, a.cfg.Page.FetchTimeout)
		if err != nil {
			return nil, nil, err
		}
		return tree, func() {}, nil
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL: a.cfg.Browser.Remote,
		Headful:   a.cfg.Browser.Headful,
		Logger:    a.logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return nil, nil, err
	}

	session, err := browser.Attach(ctx, mgr, browser.SessionConfig{
		PageURL:  a.cfg.Page.URL,
		OnAction: onAction,
		Frames:   frames,
		Logger:   a.logger,
	})
	if err != nil {
		mgr.Close()
		return nil, nil, err
	}

	cleanup := func() {
		session.Close()
		mgr.Close()
	}
	return session.Tree(), cleanup, nil
}

// fetchTree downloads the page once and parses it. Good enough for news
// pages; feeds need the browser attachment to see new posts.
func fetchTree(ctx context.Context, pageURL string, timeout time.Duration) (*dom.Tree, error) {
	if err := safeurl.ValidateScheme(pageURL); err != nil {
		return nil, fmt.Errorf("feedwatch: page url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("feedwatch: fetch page: %w", err)
	}
	req.Header.Set("User-Agent", "feedwatch/1.0")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feedwatch: fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("feedwatch: fetch page: status %d", resp.StatusCode)
	}
	body, err := safeurl.LimitedReadAll(resp.Body, 10<<20)
	if err != nil {
		return nil, fmt.Errorf("feedwatch: read page: %w", err)
	}
	return dom.Parse(string(body))
}
