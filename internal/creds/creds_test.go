package creds

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	content := `{"address": "robot.example.viam.cloud", "entity_id": "abc", "api_key": "secret"}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Address != "robot.example.viam.cloud" || c.EntityID != "abc" || c.APIKey != "secret" {
		t.Errorf("unexpected credentials: %+v", c)
	}
}

func TestLoadRejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, []byte(`{"address": "robot.example.viam.cloud"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for credentials missing entity_id and api_key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SPYGLASS_ADDRESS", "robot.example.viam.cloud")
	t.Setenv("SPYGLASS_ENTITY_ID", "abc")
	t.Setenv("SPYGLASS_API_KEY", "secret")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load from env failed: %v", err)
	}
	if c.Address != "robot.example.viam.cloud" {
		t.Errorf("unexpected address %q", c.Address)
	}

	t.Setenv("SPYGLASS_API_KEY", "")
	if _, err := Load(""); err == nil {
		t.Error("expected error when SPYGLASS_API_KEY is unset")
	}
}
