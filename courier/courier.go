// Package courier is the asynchronous message channel between page-side
// components (locator, extractor, overlay) and the background broker.
//
// Page code never calls the broker directly: it sends a typed message and
// gets bytes back, without knowing whether the handler runs in-process or
// behind an HTTP endpoint. A SQLite routes table decides per message type,
// and is hot-reloaded at runtime, so a handler can move out of process by
// updating one row.
//
//	router := courier.New()
//	router.RegisterTransport("http", courier.HTTPFactory())
//	router.RegisterLocal(courier.MsgVerifyText, broker.VerifyText)
//	go router.Watch(ctx, db)
//
//	resp, err := router.Send(ctx, courier.MsgVerifyText, payload)
package courier

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/philverify/feedwatch/watch"
)

// Well-known message types carried over the channel. The broker registers a
// handler per type; senders use these constants, never raw strings.
const (
	MsgVerifyText   = "verify_text"
	MsgVerifyURL    = "verify_url"
	MsgVerifyImage  = "verify_image"
	MsgGetHistory   = "get_history"
	MsgGetSettings  = "get_settings"
	MsgSaveSettings = "save_settings"
	MsgPreviewURL   = "preview_url"
)

// Handler is a transport-agnostic message handler: JSON payload in, JSON
// response out. Local broker methods and remote HTTP clients both satisfy it.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory builds a Handler for a remote endpoint. config is the
// per-route JSON column. The returned close function runs when the route is
// removed or replaced during reload; nil means no cleanup.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

type route struct {
	MessageType string
	Strategy    string
	Endpoint    string
	Config      json.RawMessage
}

// fingerprint changes whenever the route's dispatch config changes.
func (rt route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + string(rt.Config)
}

type remoteEntry struct {
	handler Handler
	close   func()
}

// Router dispatches messages by type. Thread-safe: sends take an RLock,
// reloads a full Lock.
type Router struct {
	mu        sync.RWMutex
	local     map[string]Handler
	remote    map[string]remoteEntry
	routeSnap map[string]route
	factories map[string]TransportFactory
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a Router with no routes.
func New(opts ...Option) *Router {
	r := &Router{
		local:     make(map[string]Handler),
		remote:    make(map[string]remoteEntry),
		routeSnap: make(map[string]route),
		factories: make(map[string]TransportFactory),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-process handler for a message type. With no
// route row, or a "local" one, Send dispatches here.
func (r *Router) RegisterLocal(msgType string, h Handler) {
	r.mu.Lock()
	r.local[msgType] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory for a dispatch strategy ("http").
func (r *Router) RegisterTransport(strategy string, f TransportFactory) {
	r.mu.Lock()
	r.factories[strategy] = f
	r.mu.Unlock()
}

// Send dispatches one message. Resolution order:
//  1. "noop" route — the message type is switched off; succeeds empty.
//  2. Remote route from the routes table.
//  3. Local handler.
//  4. ErrUnknownMessage.
//
// Send never retries: a failed send surfaces to the caller, and any retry
// is an explicit user action upstream.
func (r *Router) Send(ctx context.Context, msgType string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	entry, hasRemote := r.remote[msgType]
	localH := r.local[msgType]
	snap, hasRoute := r.routeSnap[msgType]
	r.mu.RUnlock()

	if hasRoute && snap.Strategy == "noop" {
		r.logger.DebugContext(ctx, "courier: noop", "type", msgType)
		return nil, nil
	}
	if hasRemote {
		r.logger.DebugContext(ctx, "courier: remote",
			"type", msgType, "strategy", snap.Strategy, "endpoint", snap.Endpoint)
		return entry.handler(ctx, payload)
	}
	if localH != nil {
		r.logger.DebugContext(ctx, "courier: local", "type", msgType)
		return localH(ctx, payload)
	}
	return nil, &ErrUnknownMessage{Type: msgType}
}

// Reload reads the routes table and rebuilds the remote handler map. Routes
// whose (strategy, endpoint, config) did not change keep their existing
// handler and connections.
func (r *Router) Reload(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		`SELECT message_type, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}') FROM routes`)
	if err != nil {
		return fmt.Errorf("courier: query routes: %w", err)
	}
	defer rows.Close()

	newRoutes := make(map[string]route)
	for rows.Next() {
		var rt route
		var cfgStr string
		if err := rows.Scan(&rt.MessageType, &rt.Strategy, &rt.Endpoint, &cfgStr); err != nil {
			return fmt.Errorf("courier: scan route: %w", err)
		}
		rt.Config = json.RawMessage(cfgStr)
		newRoutes[rt.MessageType] = rt
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("courier: rows: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	newEntries := make(map[string]remoteEntry, len(newRoutes))
	for name, rt := range newRoutes {
		switch rt.Strategy {
		case "local", "noop":
			continue
		default:
			if old, ok := r.routeSnap[name]; ok && old.fingerprint() == rt.fingerprint() {
				if existing, exists := r.remote[name]; exists {
					newEntries[name] = existing
					continue
				}
			}
			factory, ok := r.factories[rt.Strategy]
			if !ok {
				r.logger.Warn("courier: no factory for strategy",
					"type", name, "strategy", rt.Strategy)
				continue
			}
			h, closeFn, err := factory(rt.Endpoint, rt.Config)
			if err != nil {
				r.logger.Error("courier: factory failed",
					"type", name, "strategy", rt.Strategy,
					"endpoint", rt.Endpoint, "error", err)
				continue
			}
			newEntries[name] = remoteEntry{handler: h, close: closeFn}
			r.logger.Info("courier: route built",
				"type", name, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
		}
	}

	// Close entries that were removed or rebuilt with a new config.
	for name, old := range r.remote {
		if old.close == nil {
			continue
		}
		if _, still := newEntries[name]; !still {
			old.close()
			continue
		}
		if r.routeSnap[name].fingerprint() != newRoutes[name].fingerprint() {
			old.close()
		}
	}

	r.remote = newEntries
	r.routeSnap = newRoutes

	r.logger.Info("courier: routes reloaded",
		"total", len(newRoutes), "remote", len(newEntries))
	return nil
}

// Watch hot-reloads routes whenever the database changes, until ctx is
// cancelled. Run it in a goroutine.
func (r *Router) Watch(ctx context.Context, db *sql.DB) {
	if err := r.Reload(ctx, db); err != nil {
		r.logger.Error("courier: initial reload failed", "error", err)
	}
	w := watch.New(db, watch.Options{
		Interval: 200 * time.Millisecond,
		Logger:   r.logger,
	})
	w.OnChange(ctx, func() error { return r.Reload(ctx, db) })
}

// Close shuts down all remote handlers.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.remote {
		if entry.close != nil {
			entry.close()
		}
	}
	r.remote = make(map[string]remoteEntry)
	r.routeSnap = make(map[string]route)
	return nil
}
