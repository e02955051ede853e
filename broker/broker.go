package broker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/philverify/feedwatch/broker/internal/store"
	"github.com/philverify/feedwatch/courier"
	"github.com/philverify/feedwatch/safeurl"
)

// Schema creates the broker's tables; apply it when opening the database,
// e.g. dbopen.Open(path, dbopen.WithSchema(broker.Schema)).
const Schema = store.Schema

// Broker resolves verification requests: cache hit, or exactly one remote
// call. Each request is handled independently; a failure in one never
// corrupts the cache or affects others.
type Broker struct {
	store   *store.Store
	client  *Client
	preview *previewer
	logger  *slog.Logger
}

// Config for creating a Broker.
type Config struct {
	// DB is the broker database with Schema applied.
	DB *sql.DB
	// Client overrides the backend client; nil builds a default one.
	Client *Client
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// StoreOptions tune TTL, history bound, and clock (tests).
	StoreOptions []store.Option
}

// New creates a Broker.
func New(cfg Config) *Broker {
	if cfg.Client == nil {
		cfg.Client = NewClient()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Broker{
		store:   store.New(cfg.DB, cfg.StoreOptions...),
		client:  cfg.Client,
		preview: newPreviewer(),
		logger:  cfg.Logger,
	}
}

// Register wires the broker's handlers onto the courier router, one per
// message type, each wrapped in logging and panic recovery.
func (b *Broker) Register(r *courier.Router) {
	mw := courier.Chain(courier.Logging(b.logger), courier.Recovery(b.logger))
	r.RegisterLocal(courier.MsgVerifyText, mw(b.handleVerifyText))
	r.RegisterLocal(courier.MsgVerifyURL, mw(b.handleVerifyURL))
	r.RegisterLocal(courier.MsgVerifyImage, mw(b.handleVerifyImage))
	r.RegisterLocal(courier.MsgGetHistory, mw(b.handleGetHistory))
	r.RegisterLocal(courier.MsgGetSettings, mw(b.handleGetSettings))
	r.RegisterLocal(courier.MsgSaveSettings, mw(b.handleSaveSettings))
	r.RegisterLocal(courier.MsgPreviewURL, mw(b.handlePreviewURL))
}

// Verify resolves one request: fingerprint, cache lookup (lazy TTL evict),
// then at most one remote call. Identical in-flight requests are not
// deduplicated; duplicate remote calls are idempotent and merely wasteful.
func (b *Broker) Verify(ctx context.Context, kind Kind, payload string) (*VerificationResult, error) {
	if payload == "" {
		return nil, &BackendError{Detail: "nothing to verify"}
	}
	fp := Fingerprint(kind, payload)

	raw, hit, err := b.store.Lookup(ctx, fp)
	if err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}
	if hit {
		var res VerificationResult
		if err := json.Unmarshal(raw, &res); err == nil {
			res.FromCache = true
			b.logger.Debug("broker: cache hit", "fingerprint", fp)
			return &res, nil
		}
		// Unreadable cache row: fall through to a fresh remote call.
		b.logger.Warn("broker: discarding corrupt cache entry", "fingerprint", fp)
	}

	settings, err := b.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}
	res, err := b.client.Verify(ctx, settings.APIBase, kind, payload)
	if err != nil {
		return nil, err
	}
	res.FromCache = false

	stored, err := json.Marshal(res)
	if err == nil {
		if err := b.store.StoreResult(ctx, fp, stored,
			MakePreview(payload), string(res.Verdict), res.FinalScore); err != nil {
			// The verdict is still good; losing the cache write only costs a
			// future remote call.
			b.logger.Warn("broker: store failed", "fingerprint", fp, "error", err)
		}
	}
	return res, nil
}

// History returns the most recent completed verifications, newest first.
func (b *Broker) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := b.store.History(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}
	out := make([]HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, HistoryEntry{
			ID:         r.Fingerprint,
			Timestamp:  time.UnixMilli(r.TS),
			Preview:    r.Preview,
			Verdict:    Verdict(r.Verdict),
			FinalScore: r.FinalScore,
		})
	}
	return out, nil
}

// Settings returns the persisted settings, seeding defaults on first read.
func (b *Broker) Settings(ctx context.Context) (Settings, error) {
	d := DefaultSettings()
	row, err := b.store.GetSettings(ctx, store.SettingsRow{APIBase: d.APIBase, AutoScan: d.AutoScan})
	if err != nil {
		return Settings{}, fmt.Errorf("broker: %w", err)
	}
	return Settings{APIBase: row.APIBase, AutoScan: row.AutoScan}, nil
}

// SaveSettings validates and persists settings. An apiBase that is not an
// http/https URL is rejected, never silently stored.
func (b *Broker) SaveSettings(ctx context.Context, s Settings) error {
	if err := safeurl.ValidateScheme(s.APIBase); err != nil {
		return fmt.Errorf("broker: apiBase: %w", err)
	}
	if err := b.store.SaveSettings(ctx, store.SettingsRow{APIBase: s.APIBase, AutoScan: s.AutoScan}); err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	b.logger.Info("broker: settings saved", "apiBase", s.APIBase, "autoScan", s.AutoScan)
	return nil
}

// SettingsDetector adapts the settings row's change token to the watch
// package, so consumers get a push when settings change.
func (b *Broker) SettingsDetector() func(ctx context.Context, _ *sql.DB) (int64, error) {
	return func(ctx context.Context, _ *sql.DB) (int64, error) {
		return b.store.SettingsVersion(ctx)
	}
}

// Channel handlers. Each decodes its payload, runs the typed method, and
// wraps the outcome in the {ok, result | error} envelope.

func (b *Broker) handleVerifyText(ctx context.Context, payload []byte) ([]byte, error) {
	var req VerifyTextRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return failEnvelope(&BackendError{Detail: "malformed verify_text payload"})
	}
	return verifyEnvelope(b.Verify(ctx, KindText, req.Text))
}

func (b *Broker) handleVerifyURL(ctx context.Context, payload []byte) ([]byte, error) {
	var req VerifyURLRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return failEnvelope(&BackendError{Detail: "malformed verify_url payload"})
	}
	return verifyEnvelope(b.Verify(ctx, KindURL, req.URL))
}

func (b *Broker) handleVerifyImage(ctx context.Context, payload []byte) ([]byte, error) {
	var req VerifyImageRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return failEnvelope(&BackendError{Detail: "malformed verify_image payload"})
	}
	return verifyEnvelope(b.Verify(ctx, KindImage, req.ImageURL))
}

func (b *Broker) handleGetHistory(ctx context.Context, payload []byte) ([]byte, error) {
	var req HistoryRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return failEnvelope(&BackendError{Detail: "malformed get_history payload"})
		}
	}
	entries, err := b.History(ctx, req.Limit)
	if err != nil {
		return failEnvelope(err)
	}
	return okEnvelope(entries)
}

func (b *Broker) handleGetSettings(ctx context.Context, _ []byte) ([]byte, error) {
	s, err := b.Settings(ctx)
	if err != nil {
		return failEnvelope(err)
	}
	return okEnvelope(s)
}

func (b *Broker) handleSaveSettings(ctx context.Context, payload []byte) ([]byte, error) {
	var s Settings
	if err := json.Unmarshal(payload, &s); err != nil {
		return failEnvelope(&BackendError{Detail: "malformed save_settings payload"})
	}
	if err := b.SaveSettings(ctx, s); err != nil {
		return failEnvelope(err)
	}
	return okEnvelope(s)
}

func (b *Broker) handlePreviewURL(ctx context.Context, payload []byte) ([]byte, error) {
	var req PreviewRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return failEnvelope(&BackendError{Detail: "malformed preview_url payload"})
	}
	p, err := b.Preview(ctx, req.URL)
	if err != nil {
		return failEnvelope(err)
	}
	return okEnvelope(p)
}

func verifyEnvelope(res *VerificationResult, err error) ([]byte, error) {
	if err != nil {
		return failEnvelope(err)
	}
	return okEnvelope(res)
}

func okEnvelope(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("broker: encode result: %w", err)
	}
	return json.Marshal(Response{OK: true, Result: raw})
}

func failEnvelope(err error) ([]byte, error) {
	kind := "backend"
	var te *TransportError
	if errors.As(err, &te) {
		kind = "transport"
	}
	return json.Marshal(Response{OK: false, Error: err.Error(), ErrorKind: kind})
}
