// Package broker is the background half of feedwatch: it receives
// verification requests over the courier channel, answers from a
// sqlite-backed verdict cache when it can, calls the remote verification
// backend when it cannot, and keeps a bounded history of completed
// verifications.
//
// The cache, history, and settings are owned exclusively by the broker;
// page-side components reach them only through the message contract, never
// directly.
package broker

import (
	"encoding/json"
	"time"
)

// Verdict is the backend's three-way credibility call.
type Verdict string

const (
	VerdictCredible   Verdict = "Credible"
	VerdictUnverified Verdict = "Unverified"
	VerdictLikelyFake Verdict = "Likely Fake"
)

// Language is the detected content language.
type Language string

const (
	LangTagalog Language = "Tagalog"
	LangEnglish Language = "English"
	LangTaglish Language = "Taglish"
	LangUnknown Language = "Unknown"
)

// Layer1 is the feature-based classifier's output.
type Layer1 struct {
	Verdict           Verdict  `json:"verdict"`
	Confidence        float64  `json:"confidence"`
	TriggeredFeatures []string `json:"triggered_features"`
}

// EvidenceSource is one retrieved source backing a Layer2 verdict.
type EvidenceSource struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Similarity float64 `json:"similarity"`
	Stance     string  `json:"stance"`
}

// Layer2 is the evidence-retrieval layer's output.
type Layer2 struct {
	Verdict       Verdict          `json:"verdict"`
	EvidenceScore float64          `json:"evidence_score"`
	Sources       []EvidenceSource `json:"sources"`
	ClaimUsed     string           `json:"claim_used"`
}

// VerificationResult is the broker's answer for one request. Immutable once
// returned; only the broker produces it.
type VerificationResult struct {
	Verdict          Verdict  `json:"verdict"`
	FinalScore       float64  `json:"final_score"`
	Confidence       float64  `json:"confidence"`
	Language         Language `json:"language"`
	InputType        string   `json:"input_type"`
	Layer1           Layer1   `json:"layer1"`
	Layer2           Layer2   `json:"layer2"`
	ProcessingTimeMs float64  `json:"processing_time_ms"`
	FromCache        bool     `json:"from_cache"`
}

// HistoryEntry is one completed verification in the bounded history log,
// newest first. ID is the content fingerprint, so re-verifying the same
// content moves the entry rather than duplicating it.
type HistoryEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Preview    string    `json:"preview"`
	Verdict    Verdict   `json:"verdict"`
	FinalScore float64   `json:"final_score"`
}

// Settings is the persisted process-wide configuration, read by the
// orchestrator (autoScan gates scanning) and the broker (apiBase targets
// the backend). Changes at runtime are pushed to subscribers, not polled
// ad hoc.
type Settings struct {
	APIBase  string `json:"apiBase"`
	AutoScan bool   `json:"autoScan"`
}

// DefaultSettings are used until the user saves their own.
func DefaultSettings() Settings {
	return Settings{APIBase: "http://localhost:8000", AutoScan: true}
}

// PreviewLen caps the history preview text.
const PreviewLen = 80

// Request payloads carried over the courier channel.
type (
	VerifyTextRequest struct {
		Text string `json:"text"`
	}
	VerifyURLRequest struct {
		URL string `json:"url"`
	}
	VerifyImageRequest struct {
		ImageURL string `json:"image_url"`
	}
	HistoryRequest struct {
		Limit int `json:"limit,omitempty"`
	}
	PreviewRequest struct {
		URL string `json:"url"`
	}
)

// LinkPreview is the preview_url response body.
type LinkPreview struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
	Domain   string `json:"domain"`
}

// Response is the channel-level envelope: {ok:true, result} on success,
// {ok:false, error} on failure. ErrorKind distinguishes a channel/transport
// failure ("transport") from a backend-reported one ("backend") so the
// overlay can word the two differently.
type Response struct {
	OK        bool            `json:"ok"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

// DecodeResponse parses a channel envelope, mapping failures back to typed
// errors: transport failures to *TransportError, everything else to
// *BackendError.
func DecodeResponse(raw []byte, out any) error {
	var env Response
	if err := json.Unmarshal(raw, &env); err != nil {
		return &TransportError{Err: err}
	}
	if !env.OK {
		if env.ErrorKind == "transport" {
			return &TransportError{Msg: env.Error}
		}
		return &BackendError{Detail: env.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}
