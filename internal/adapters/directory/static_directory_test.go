package directory

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mikey/mailgraph/internal/core"
)

func TestLoadStaticDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	content := `
people:
  - uri: /person/1
    name: Alice Example
    emails:
      - Alice@Example.org
      - "alice at example.net"
  - uri: /person/2
    emails: [bob@example.org]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadStaticDirectory(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("LoadStaticDirectory() error = %v", err)
	}

	tests := []struct {
		addr core.NormalizedAddress
		want string
		ok   bool
	}{
		{"alice@example.org", "/person/1", true},
		{"alice@example.net", "/person/1", true},
		{"bob@example.org", "/person/2", true},
		{"carol@example.org", "", false},
	}
	for _, tt := range tests {
		got, ok := d.Lookup(tt.addr)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Lookup(%s) = %q, %v; want %q, %v", tt.addr, got, ok, tt.want, tt.ok)
		}
	}
	if name, ok := d.Name("/person/1"); !ok || name != "Alice Example" {
		t.Errorf("Name(/person/1) = %q, %v", name, ok)
	}
	if d.Len() != 3 {
		t.Errorf("Len() = %d, want 3", d.Len())
	}
}

func TestNewStaticDirectory_FirstURIWins(t *testing.T) {
	obsCore, logs := observer.New(zap.WarnLevel)
	d, err := NewStaticDirectory([]Entry{
		{URI: "/person/1", Emails: []string{"a@x.org", "not-an-address"}},
		{URI: "/person/2", Emails: []string{"A@X.org"}},
	}, zap.New(obsCore))
	if err != nil {
		t.Fatalf("NewStaticDirectory() error = %v", err)
	}
	if ref, _ := d.Lookup("a@x.org"); ref != "/person/1" {
		t.Errorf("Lookup(a@x.org) = %q, want /person/1", ref)
	}
	if logs.FilterMessage("Address listed under two directory entries").Len() != 1 {
		t.Error("duplicate address not logged")
	}
	if logs.FilterMessage("Ignoring unusable directory address").Len() != 1 {
		t.Error("invalid address not logged")
	}
}

func TestStaticDirectory_Errors(t *testing.T) {
	if _, err := NewStaticDirectory([]Entry{{Emails: []string{"a@x.org"}}}, nil); err == nil {
		t.Error("entry without uri accepted")
	}
	if _, err := LoadStaticDirectory(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("missing file accepted")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("people: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStaticDirectory(path, nil); err == nil {
		t.Error("malformed yaml accepted")
	}
}

func TestNone(t *testing.T) {
	var d core.DirectoryLookup = None{}
	if _, ok := d.Lookup("a@x.org"); ok {
		t.Error("None matched an address")
	}
}
