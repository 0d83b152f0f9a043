package address

import (
	"testing"

	"github.com/mikey/mailgraph/internal/core"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want core.NormalizedAddress
	}{
		{name: "plain", raw: "a@x.org", want: "a@x.org"},
		{name: "uppercase and spaces", raw: "  Jane.Doe@Example.COM \t", want: "jane.doe@example.com"},
		{name: "angle brackets", raw: "<j@x.org>", want: "j@x.org"},
		{name: "display name form", raw: "Jane Doe <JANE@x.org>", want: "jane@x.org"},
		{name: "spelled out obfuscation", raw: "j.doe at example dot com", want: "j.doe@example.com"},
		{name: "bracket obfuscation", raw: "j.doe[at]example[dot]com", want: "j.doe@example.com"},
		{name: "paren obfuscation with spaces", raw: "j.doe (at) example (dot) com", want: "j.doe@example.com"},
		{name: "obfuscated in display form", raw: "Jane <jane at x dot org>", want: "jane@x.org"},
		{name: "quoted", raw: `"jane@x.org"`, want: "jane@x.org"},
		{name: "empty", raw: "", want: core.InvalidAddress},
		{name: "no at sign", raw: "just a name", want: core.InvalidAddress},
		{name: "two at signs", raw: "a@b@c.org", want: core.InvalidAddress},
		{name: "missing local part", raw: "@x.org", want: core.InvalidAddress},
		{name: "missing domain", raw: "a@", want: core.InvalidAddress},
		{name: "address list", raw: "a@x.org, b@y.org", want: core.InvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.raw); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"a@x.org",
		"  Jane.Doe@Example.COM ",
		"j.doe at example dot com",
		"j.doe[at]example[dot]com",
		"Jane Doe <JANE@x.org>",
		"a@b[a t]c.org",
		"<<a@x.org>>",
		"'quoted'@x.org",
		"nobody",
		"",
		string(core.InvalidAddress),
		"x (at) y",
		"a at b at c",
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(string(once))
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestLocalPartAndDomain(t *testing.T) {
	addr := Normalize("Quic-Chairs@IETF.org")
	if got := LocalPart(addr); got != "quic-chairs" {
		t.Errorf("LocalPart() = %q, want %q", got, "quic-chairs")
	}
	if got := Domain(addr); got != "ietf.org" {
		t.Errorf("Domain() = %q, want %q", got, "ietf.org")
	}
	if LocalPart(core.InvalidAddress) != "" || Domain(core.InvalidAddress) != "" {
		t.Error("expected empty parts for the invalid address")
	}
}

func TestFoldName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Jane Doe", want: "jane doe"},
		{in: "  JANE   DOE ", want: "jane doe"},
		{in: "Doe, Jane", want: "jane doe"},
		{in: "José Müller", want: "jose muller"},
		{in: "Dr. J. R. R. Tolkien", want: "dr j r r tolkien"},
		{in: "Jean-Luc Picard", want: "jean luc picard"},
		{in: "", want: ""},
		{in: "...", want: ""},
	}

	for _, tt := range tests {
		if got := FoldName(tt.in); got != tt.want {
			t.Errorf("FoldName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
