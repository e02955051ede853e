package adapter

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"twitter.com", "twitter"},
		{"www.twitter.com", "twitter"},
		{"mobile.twitter.com", "twitter"},
		{"x.com", "twitter"},
		{"facebook.com", "facebook"},
		{"m.facebook.com", "facebook"},
		{"rappler.com", "generic"},
		{"", "generic"},
	}
	for _, tt := range tests {
		if got := Resolve(tt.host); got.Name != tt.want {
			t.Errorf("Resolve(%q): got %q, want %q", tt.host, got.Name, tt.want)
		}
	}
}

func TestResolveURL_NeverFails(t *testing.T) {
	if got := ResolveURL("::not a url::"); got.Name != "generic" {
		t.Errorf("ResolveURL on garbage: got %q, want generic", got.Name)
	}
	if got := ResolveURL("https://x.com/someone/status/1"); got.Name != "twitter" {
		t.Errorf("ResolveURL: got %q, want twitter", got.Name)
	}
}

func TestIsDetailPath(t *testing.T) {
	tw := Resolve("twitter.com")
	if !tw.IsDetailPath("/philverify/status/17290") {
		t.Error("status path should be a detail view")
	}
	if tw.IsDetailPath("/home") {
		t.Error("/home is not a detail view")
	}
}

func TestUnwrap(t *testing.T) {
	fb := Resolve("facebook.com")

	wrapped := "https://l.facebook.com/l.php?u=https%3A%2F%2Fnews.example.ph%2Ftyphoon&h=xyz"
	if got := fb.Unwrap(wrapped); got != "https://news.example.ph/typhoon" {
		t.Errorf("Unwrap: got %q", got)
	}

	direct := "https://news.example.ph/typhoon"
	if got := fb.Unwrap(direct); got != direct {
		t.Errorf("Unwrap left direct links alone: got %q", got)
	}

	// twitter declares t.co but no query param; links pass through.
	tw := Resolve("twitter.com")
	tco := "https://t.co/abc123"
	if got := tw.Unwrap(tco); got != tco {
		t.Errorf("Unwrap without param rule: got %q", got)
	}
}
