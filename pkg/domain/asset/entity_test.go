package asset

import (
	"strings"
	"testing"
)

func TestNewAsset(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		wantErr  bool
	}{
		{"valid hostname", "web01.example.com", false},
		{"bare hostname", "web01", false},
		{"surrounding whitespace trimmed", "  web01.example.com  ", false},
		{"empty hostname", "", true},
		{"whitespace only", "   ", true},
		{"embedded whitespace", "web 01.example.com", true},
		{"too long", strings.Repeat("a", MaxHostnameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAsset(tt.hostname)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewAsset() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && a == nil {
				t.Error("NewAsset() returned nil asset without error")
			}
		})
	}
}

func TestNormalizeHostname(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Web01.Example.COM", "web01.example.com"},
		{"  web01.example.com  ", "web01.example.com"},
		{"web01.example.com.", "web01.example.com"},
		{"WEB01", "web01"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeHostname(tt.input); got != tt.want {
				t.Errorf("NormalizeHostname(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestAsset_IdentityKey(t *testing.T) {
	a, err := NewAsset("Web01.Example.COM")
	if err != nil {
		t.Fatalf("NewAsset() error = %v", err)
	}
	if got := a.IdentityKey(); got != "web01.example.com" {
		t.Errorf("IdentityKey() = %q, want %q", got, "web01.example.com")
	}
}

func TestAsset_RootDomain(t *testing.T) {
	tests := []struct {
		hostname string
		want     string
	}{
		{"db01.eu.example.com", "example.com"},
		{"example.com", "example.com"},
		{"web01.example.co.uk", "example.co.uk"},
		{"standalone-host", ""},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			a, err := NewAsset(tt.hostname)
			if err != nil {
				t.Fatalf("NewAsset() error = %v", err)
			}
			if got := a.RootDomain(); got != tt.want {
				t.Errorf("RootDomain() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAsset_MergeScanAttributes(t *testing.T) {
	t.Run("non-empty fields overwrite", func(t *testing.T) {
		a, _ := NewAsset("web01.example.com")
		a.MergeScanAttributes(ScanAttributes{
			LocalIP:   "10.0.0.5",
			OSVersion: "Ubuntu 22.04",
		})
		a.MergeScanAttributes(ScanAttributes{
			LocalIP: "10.0.0.9",
		})

		if a.LocalIP() != "10.0.0.9" {
			t.Errorf("LocalIP = %q, want %q", a.LocalIP(), "10.0.0.9")
		}
		if a.OSVersion() != "Ubuntu 22.04" {
			t.Errorf("OSVersion = %q, empty field must not erase", a.OSVersion())
		}
	})

	t.Run("owner is never touched", func(t *testing.T) {
		a, _ := NewAsset("web01.example.com")
		a.SetOwner("platform-team")

		a.MergeScanAttributes(ScanAttributes{
			LocalIP:  "10.0.0.5",
			ADDomain: "corp.example.com",
		})

		if a.Owner() != "platform-team" {
			t.Errorf("Owner = %q, import must not change ownership", a.Owner())
		}
	})

	t.Run("host groups append and dedupe case-insensitively", func(t *testing.T) {
		a, _ := NewAsset("web01.example.com")
		a.MergeScanAttributes(ScanAttributes{HostGroups: []string{"linux", "web"}})
		a.MergeScanAttributes(ScanAttributes{HostGroups: []string{"Linux", "dmz", ""}})

		groups := a.HostGroups()
		if len(groups) != 3 {
			t.Fatalf("HostGroups = %v, want 3 entries", groups)
		}
	})

	t.Run("merge bumps timestamps", func(t *testing.T) {
		a, _ := NewAsset("web01.example.com")
		before := a.UpdatedAt()

		a.MergeScanAttributes(ScanAttributes{LocalIP: "10.0.0.5"})

		if a.UpdatedAt().Before(before) {
			t.Error("UpdatedAt should not go backwards")
		}
		if a.LastSeenAt().Before(before) {
			t.Error("LastSeenAt should not go backwards")
		}
	})
}

func TestAsset_HostGroupsCopy(t *testing.T) {
	a, _ := NewAsset("web01.example.com")
	a.MergeScanAttributes(ScanAttributes{HostGroups: []string{"linux"}})

	groups := a.HostGroups()
	groups[0] = "mutated"

	if a.HostGroups()[0] != "linux" {
		t.Error("HostGroups() must return a copy")
	}
}
