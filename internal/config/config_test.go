package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lookup(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookup(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DBPath != "kinship.db" {
		t.Errorf("DBPath = %q, want kinship.db", cfg.DBPath)
	}
	if cfg.MinParentAge != 10 {
		t.Errorf("MinParentAge = %d, want 10", cfg.MinParentAge)
	}
	if !cfg.DuplicateMatchBirthDate {
		t.Error("DuplicateMatchBirthDate should default to true")
	}
	if cfg.S3.Enabled() {
		t.Error("S3 should be disabled without a bucket")
	}
	if cfg.PushEnabled() {
		t.Error("push should be disabled without VAPID keys")
	}
	if cfg.JanitorInterval != time.Hour {
		t.Errorf("JanitorInterval = %v, want 1h", cfg.JanitorInterval)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"KINSHIP_PORT":                       "9000",
		"KINSHIP_BASE_URL":                   "https://family.example.com/",
		"KINSHIP_MIN_PARENT_AGE":             "14",
		"KINSHIP_DUPLICATE_MATCH_BIRTH_DATE": "false",
		"KINSHIP_S3_BUCKET":                  "archives",
		"KINSHIP_S3_ACCESS_KEY":              "ak",
		"KINSHIP_S3_SECRET_KEY":              "sk",
		"KINSHIP_ARCHIVE_PASSPHRASE":         "correct horse battery",
		"KINSHIP_ARCHIVE_INTERVAL":           "6h",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Port)
	}
	if cfg.BaseURL != "https://family.example.com" {
		t.Errorf("BaseURL = %q, trailing slash not trimmed", cfg.BaseURL)
	}
	if cfg.MinParentAge != 14 {
		t.Errorf("MinParentAge = %d, want 14", cfg.MinParentAge)
	}
	if cfg.DuplicateMatchBirthDate {
		t.Error("DuplicateMatchBirthDate = true, want false")
	}
	if !cfg.S3.Enabled() {
		t.Error("S3 should be enabled")
	}
	if cfg.ArchiveInterval != 6*time.Hour {
		t.Errorf("ArchiveInterval = %v, want 6h", cfg.ArchiveInterval)
	}
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"bad int", map[string]string{"KINSHIP_MIN_PARENT_AGE": "ten"}, "MIN_PARENT_AGE"},
		{"bad bool", map[string]string{"KINSHIP_SECURE_COOKIES": "maybe"}, "SECURE_COOKIES"},
		{"bad duration", map[string]string{"KINSHIP_JANITOR_INTERVAL": "soon"}, "JANITOR_INTERVAL"},
		{"short passphrase", map[string]string{
			"KINSHIP_S3_BUCKET":     "b",
			"KINSHIP_S3_ACCESS_KEY": "a",
			"KINSHIP_S3_SECRET_KEY": "s",
		}, "ARCHIVE_PASSPHRASE"},
		{"half vapid", map[string]string{"KINSHIP_VAPID_PUBLIC_KEY": "pub"}, "VAPID"},
		{"retention", map[string]string{"KINSHIP_ARCHIVE_RETENTION_DAYS": "0"}, "RETENTION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(lookup(tt.vars))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("KINSHIP_LOG_FORMAT=json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KINSHIP_LOG_FORMAT", "")
	os.Unsetenv("KINSHIP_LOG_FORMAT")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
}

func TestLoadMissingFileIsFine(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
