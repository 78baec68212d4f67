package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestString(t *testing.T) {
	t.Setenv("CATCAM_TEST_STRING", "")
	if got := String("CATCAM_TEST_STRING", "fallback"); got != "fallback" {
		t.Errorf("String empty: got %q, want %q", got, "fallback")
	}

	t.Setenv("CATCAM_TEST_STRING", "set")
	if got := String("CATCAM_TEST_STRING", "fallback"); got != "set" {
		t.Errorf("String set: got %q, want %q", got, "set")
	}
}

func TestTypedHelpers(t *testing.T) {
	tests := []struct {
		name  string
		value string
		check func(t *testing.T)
	}{
		{
			name:  "int valid",
			value: "42",
			check: func(t *testing.T) {
				if got := Int("CATCAM_TEST_VALUE", 1); got != 42 {
					t.Errorf("Int: got %d, want 42", got)
				}
			},
		},
		{
			name:  "int invalid falls back",
			value: "forty",
			check: func(t *testing.T) {
				if got := Int("CATCAM_TEST_VALUE", 1); got != 1 {
					t.Errorf("Int: got %d, want 1", got)
				}
			},
		},
		{
			name:  "bool valid",
			value: "true",
			check: func(t *testing.T) {
				if !Bool("CATCAM_TEST_VALUE", false) {
					t.Error("Bool: expected true")
				}
			},
		},
		{
			name:  "bool invalid falls back",
			value: "maybe",
			check: func(t *testing.T) {
				if Bool("CATCAM_TEST_VALUE", false) {
					t.Error("Bool: expected fallback false")
				}
			},
		},
		{
			name:  "duration valid",
			value: "250ms",
			check: func(t *testing.T) {
				if got := Duration("CATCAM_TEST_VALUE", time.Second); got != 250*time.Millisecond {
					t.Errorf("Duration: got %v, want 250ms", got)
				}
			},
		},
		{
			name:  "duration invalid falls back",
			value: "soon",
			check: func(t *testing.T) {
				if got := Duration("CATCAM_TEST_VALUE", time.Second); got != time.Second {
					t.Errorf("Duration: got %v, want 1s", got)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("CATCAM_TEST_VALUE", tc.value)
			tc.check(t)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("CATCAM_DOTENV_VALUE=from-file\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("CATCAM_DOTENV_VALUE", "")
	os.Unsetenv("CATCAM_DOTENV_VALUE")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("CATCAM_DOTENV_VALUE"); got != "from-file" {
		t.Errorf("LoadDotEnv: got %q, want %q", got, "from-file")
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.env")
	if err := LoadDotEnv(missing); err != nil {
		t.Errorf("LoadDotEnv missing file: expected nil, got %v", err)
	}
}
