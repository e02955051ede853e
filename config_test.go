package feedwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feedwatch.yaml")
	src := `
page:
  url: https://www.facebook.com/
browser:
  attach: true
  headful: true
http:
  listen: ":9000"
db_path: /tmp/fw.db
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Page.URL != "https://www.facebook.com/" {
		t.Fatalf("page url: got %q", cfg.Page.URL)
	}
	if !cfg.Browser.Attach || !cfg.Browser.Headful {
		t.Fatalf("browser: got %+v", cfg.Browser)
	}
	if cfg.HTTP.Listen != ":9000" {
		t.Fatalf("listen: got %q", cfg.HTTP.Listen)
	}
	if cfg.DBPath != "/tmp/fw.db" {
		t.Fatalf("db path: got %q", cfg.DBPath)
	}
	// Unset fields pick up defaults.
	if cfg.Page.FetchTimeout != 30*time.Second {
		t.Fatalf("fetch timeout: got %v", cfg.Page.FetchTimeout)
	}
	if cfg.Frame.Interval <= 0 {
		t.Fatalf("frame interval: got %v", cfg.Frame.Interval)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("https://x.com/home")
	if cfg.Page.URL != "https://x.com/home" {
		t.Fatalf("page url: got %q", cfg.Page.URL)
	}
	if cfg.HTTP.Listen != ":8790" {
		t.Fatalf("listen: got %q", cfg.HTTP.Listen)
	}
	if cfg.DBPath != "feedwatch.db" {
		t.Fatalf("db path: got %q", cfg.DBPath)
	}
	if cfg.Browser.Attach {
		t.Fatal("attach should default to off")
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
