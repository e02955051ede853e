// Package overlay drives the per-post verification lifecycle: it receives
// discovered posts, reads their verifiable content, offers the check
// affordance, and renders verdicts inline.
//
// Each post moves through a small state machine, Idle → Loading → Success
// or Error, with strictly ordered transitions per post and no ordering
// across posts. Retry is always a user action; nothing here re-sends on
// its own.
package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/net/html"

	"github.com/philverify/feedwatch/broker"
	"github.com/philverify/feedwatch/courier"
	"github.com/philverify/feedwatch/dom"
	"github.com/philverify/feedwatch/extract"
	"github.com/philverify/feedwatch/internal/frame"
	"github.com/philverify/feedwatch/postwatch"
)

// State is a post's position in the verification lifecycle.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	}
	return "unknown"
}

type card struct {
	post      postwatch.Post
	state     State
	result    *broker.VerificationResult
	errMsg    string
	transport bool
}

// SendFunc sends one message over the channel; courier's Router.Send
// satisfies it.
type SendFunc func(ctx context.Context, msgType string, payload []byte) ([]byte, error)

// Config for creating an Orchestrator.
type Config struct {
	Tree   *dom.Tree
	Frames frame.Scheduler
	Send   SendFunc

	// Renderer overrides the DOM renderer; tests install a recorder.
	Renderer Renderer

	Logger *slog.Logger
}

// Orchestrator owns the per-post state machines. State mutation and
// rendering run on the frame goroutine; only the outbound send leaves it.
type Orchestrator struct {
	tree   *dom.Tree
	frames frame.Scheduler
	send   SendFunc
	render Renderer
	logger *slog.Logger

	ctx context.Context

	mu    sync.Mutex
	cards map[string]*card
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Renderer == nil {
		cfg.Renderer = NewDOMRenderer(cfg.Tree)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		tree:   cfg.Tree,
		frames: cfg.Frames,
		send:   cfg.Send,
		render: cfg.Renderer,
		logger: cfg.Logger,
		ctx:    context.Background(),
		cards:  make(map[string]*card),
	}
}

// Start stores the lifecycle context used for outbound sends.
func (o *Orchestrator) Start(ctx context.Context) { o.ctx = ctx }

// Schedule is the postwatch sink: runs once per discovered post, on the
// frame goroutine. An extraction miss is handled locally — no affordance,
// no visible error.
func (o *Orchestrator) Schedule(_ context.Context, p postwatch.Post) {
	triple := o.extractTriple(p)
	if triple.Empty() {
		o.logger.Debug("overlay: nothing extractable", "post", p.ID)
		return
	}
	o.mu.Lock()
	o.cards[p.ID] = &card{post: p, state: StateIdle}
	o.mu.Unlock()
	o.render.ShowBadge(p)
}

// Verify starts (or, from Error, retries) a verification for a post. It is
// called from user-gesture handlers on any goroutine and defers to the
// frame loop.
func (o *Orchestrator) Verify(postID string) {
	o.frames.Request(func() { o.startVerify(postID) })
}

// Close dismisses a rendered report, returning the post to Idle with its
// badge back. A Loading post cannot be closed; its response is in flight.
func (o *Orchestrator) Close(postID string) {
	o.frames.Request(func() {
		o.mu.Lock()
		c, ok := o.cards[postID]
		if !ok || c.state == StateLoading || c.state == StateIdle {
			o.mu.Unlock()
			return
		}
		c.state = StateIdle
		c.result = nil
		c.errMsg = ""
		o.mu.Unlock()
		o.render.Clear(c.post)
	})
}

// PostIDByNode resolves the post ID owning a node, for routing user
// gestures that arrive as raw DOM nodes.
func (o *Orchestrator) PostIDByNode(n *html.Node) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, c := range o.cards {
		if c.post.Node == n {
			return id, true
		}
	}
	return "", false
}

// State reports a post's current lifecycle state.
func (o *Orchestrator) State(postID string) (State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.cards[postID]
	if !ok {
		return StateIdle, false
	}
	return c.state, true
}

func (o *Orchestrator) startVerify(postID string) {
	o.mu.Lock()
	c, ok := o.cards[postID]
	if !ok || c.state == StateLoading {
		o.mu.Unlock()
		return
	}

	// The triple is read fresh per attempt; the post may have changed (or
	// expanded) since discovery.
	triple := o.extractTriple(c.post)
	if triple.Empty() {
		c.state = StateIdle
		o.mu.Unlock()
		o.render.Clear(c.post)
		o.logger.Debug("overlay: content vanished before verify", "post", postID)
		return
	}

	msgType, payload := requestFor(triple)
	c.state = StateLoading
	post := c.post
	o.mu.Unlock()

	o.render.ShowLoading(post)
	o.logger.Info("overlay: verifying", "post", postID, "type", msgType)

	// Only the send leaves the frame goroutine; the completion re-enters it.
	go func() {
		raw, err := o.send(o.ctx, msgType, payload)
		var res broker.VerificationResult
		var verr error
		if err != nil {
			verr = &broker.TransportError{Err: err}
		} else {
			verr = broker.DecodeResponse(raw, &res)
		}
		o.frames.Request(func() { o.finish(postID, &res, verr) })
	}()
}

func (o *Orchestrator) finish(postID string, res *broker.VerificationResult, verr error) {
	o.mu.Lock()
	c, ok := o.cards[postID]
	if !ok || c.state != StateLoading {
		o.mu.Unlock()
		return
	}
	if verr != nil {
		c.state = StateError
		c.errMsg = verr.Error()
		c.transport = isTransport(verr)
		post, msg, transport := c.post, c.errMsg, c.transport
		o.mu.Unlock()
		o.render.ShowError(post, msg, transport)
		o.logger.Warn("overlay: verification failed",
			"post", postID, "transport", transport, "error", verr)
		return
	}
	c.state = StateSuccess
	c.result = res
	post := c.post
	o.mu.Unlock()
	o.render.ShowResult(post, res)
	o.logger.Info("overlay: verdict rendered",
		"post", postID, "verdict", res.Verdict, "from_cache", res.FromCache)
}

// extractTriple reads the post's verifiable content with the page URL as
// link base.
func (o *Orchestrator) extractTriple(p postwatch.Post) extract.Triple {
	var opts extract.Options
	if u, err := url.Parse(p.PageURL); err == nil {
		opts.BaseURL = u
	}
	return extract.Content(o.tree, p.Node, p.Adapter, opts)
}

// requestFor picks the request kind by the fixed priority: a shared link
// outranks caption text, which outranks a bare image.
func requestFor(t extract.Triple) (msgType string, payload []byte) {
	switch {
	case t.URL != "":
		payload, _ = json.Marshal(broker.VerifyURLRequest{URL: t.URL})
		return courier.MsgVerifyURL, payload
	case t.Text != "":
		payload, _ = json.Marshal(broker.VerifyTextRequest{Text: t.Text})
		return courier.MsgVerifyText, payload
	default:
		payload, _ = json.Marshal(broker.VerifyImageRequest{ImageURL: t.ImageURL})
		return courier.MsgVerifyImage, payload
	}
}

func isTransport(err error) bool {
	var te *broker.TransportError
	return errors.As(err, &te)
}
