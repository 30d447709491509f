package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("CINESTREAM_SERVER", "")
	t.Setenv("CINESTREAM_TOKEN", "")
	return dir
}

func TestConfig_Path(t *testing.T) {
	dir := isolate(t)

	path, err := Path()
	if err != nil {
		t.Fatalf("Path() returned error: %v", err)
	}
	if filepath.Base(path) != fileName {
		t.Errorf("expected filename %s, got %s", fileName, filepath.Base(path))
	}
	if filepath.Dir(path) != filepath.Join(dir, dirName) {
		t.Errorf("expected dir %s, got %s", filepath.Join(dir, dirName), filepath.Dir(path))
	}
}

func TestConfig_Load(t *testing.T) {
	t.Run("returns defaults when file does not exist", func(t *testing.T) {
		isolate(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error: %v", err)
		}
		if cfg.ServerURL != DefaultURL {
			t.Errorf("expected ServerURL %s, got %s", DefaultURL, cfg.ServerURL)
		}
		if cfg.HasToken() {
			t.Error("expected no token")
		}
	})

	t.Run("uses default URL when server_url is empty", func(t *testing.T) {
		isolate(t)
		path, _ := Path()
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(`{"server_url": "", "token": "cst_x"}`), 0600); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error: %v", err)
		}
		if cfg.ServerURL != DefaultURL {
			t.Errorf("expected ServerURL to default to %s, got %s", DefaultURL, cfg.ServerURL)
		}
		if cfg.Token != "cst_x" {
			t.Errorf("expected token cst_x, got %s", cfg.Token)
		}
	})

	t.Run("environment overrides stored values", func(t *testing.T) {
		isolate(t)
		if err := Save(&Config{ServerURL: "https://stored.example.com", Token: "stored"}); err != nil {
			t.Fatal(err)
		}
		t.Setenv("CINESTREAM_SERVER", "https://env.example.com")
		t.Setenv("CINESTREAM_TOKEN", "from-env")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error: %v", err)
		}
		if cfg.ServerURL != "https://env.example.com" || cfg.Token != "from-env" {
			t.Errorf("expected env overrides, got %+v", cfg)
		}
	})

	t.Run("rejects malformed file", func(t *testing.T) {
		isolate(t)
		path, _ := Path()
		_ = os.MkdirAll(filepath.Dir(path), 0700)
		_ = os.WriteFile(path, []byte("{not json"), 0600)

		if _, err := Load(); err == nil {
			t.Fatal("expected error for malformed config")
		}
	})
}

func TestConfig_SaveAndClear(t *testing.T) {
	isolate(t)

	in := &Config{
		ServerURL: "https://api.example.com",
		Token:     "cst_save",
		Upload:    UploadSettings{ChunkSizeMB: 16, RetryAttempts: 5},
	}
	if err := Save(in); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}

	path, _ := Path()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat config file: %v", err)
	}
	if info.Mode().Perm() != os.FileMode(filePerms) {
		t.Errorf("expected permissions %o, got %o", filePerms, info.Mode().Perm())
	}

	out, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if out.Token != in.Token || out.Upload.ChunkSizeMB != 16 || out.Upload.RetryAttempts != 5 {
		t.Errorf("round trip mismatch: %+v", out)
	}

	if err := Clear(); err != nil {
		t.Fatalf("Clear() returned error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected config file to be deleted")
	}
	if err := Clear(); err != nil {
		t.Errorf("expected Clear() on missing file to return nil, got %v", err)
	}
}

func TestUploadSettings_Defaults(t *testing.T) {
	var u UploadSettings
	if u.ChunkSize() != DefaultChunkSizeMB*1024*1024 {
		t.Errorf("unexpected default chunk size %d", u.ChunkSize())
	}
	if u.Attempts() != DefaultRetryAttempts {
		t.Errorf("unexpected default attempts %d", u.Attempts())
	}
	if u.Delay() != DefaultRetryDelay {
		t.Errorf("unexpected default delay %v", u.Delay())
	}

	u = UploadSettings{ChunkSizeMB: 1, RetryAttempts: 7, RetryDelaySeconds: 4}
	if u.ChunkSize() != 1024*1024 || u.Attempts() != 7 || u.Delay() != 4*time.Second {
		t.Errorf("unexpected settings %d %d %v", u.ChunkSize(), u.Attempts(), u.Delay())
	}
}
