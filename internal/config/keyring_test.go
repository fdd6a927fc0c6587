package config

import (
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeyringManager_GitHubToken(t *testing.T) {
	keyring.MockInit()
	km := NewKeyringManager()

	if !km.IsAvailable() {
		t.Fatal("mock keychain should be available")
	}

	token, err := km.GetGitHubToken()
	if err != nil {
		t.Fatalf("Failed to get missing token: %v", err)
	}
	if token != "" {
		t.Errorf("Expected empty token, got %s", token)
	}

	if err := km.SetGitHubToken("ghp_test1234567890"); err != nil {
		t.Fatalf("Failed to save token: %v", err)
	}
	token, err = km.GetGitHubToken()
	if err != nil {
		t.Fatalf("Failed to get token: %v", err)
	}
	if token != "ghp_test1234567890" {
		t.Errorf("Expected saved token, got %s", token)
	}

	if err := km.DeleteGitHubToken(); err != nil {
		t.Fatalf("Failed to delete token: %v", err)
	}
	// Deleting twice is not an error
	if err := km.DeleteGitHubToken(); err != nil {
		t.Errorf("Second delete should be a no-op: %v", err)
	}
}

func TestKeyringManager_RejectsEmptyToken(t *testing.T) {
	keyring.MockInit()
	if err := NewKeyringManager().SetGitHubToken(""); err == nil {
		t.Error("Expected error for empty token")
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"empty", "", "(not set)"},
		{"short", "abc", "***"},
		{"normal", "ghp_abcdefghijklmnop", "ghp_abc...mnop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskToken(tt.token); got != tt.want {
				t.Errorf("MaskToken(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}
}
