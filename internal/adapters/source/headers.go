// Package source reads archived mailing-list messages into core.RawMessage
// records
package source

import (
	"strings"

	"github.com/mikey/mailgraph/internal/address"
)

// parseFrom splits a From header the standard parser rejected, typically
// because the archive obfuscated the address ("alice at example.com").
// Both "Name <addr>" and "addr (Name)" forms are recognised. Parentheses
// that are themselves the obfuscation ("a (at) b (dot) org") stay in the
// address
func parseFrom(raw string) (addr, name string) {
	raw = strings.TrimSpace(raw)
	if open := strings.LastIndex(raw, "<"); open >= 0 {
		if end := strings.Index(raw[open:], ">"); end > 0 {
			return strings.TrimSpace(raw[open+1 : open+end]), strings.TrimSpace(raw[:open])
		}
	}
	if address.Normalize(raw).Valid() {
		return raw, ""
	}
	// the trailing comment carries the name
	if end := strings.LastIndex(raw, ")"); end > 0 {
		if open := strings.LastIndex(raw[:end], "("); open >= 0 {
			return strings.TrimSpace(raw[:open]), strings.TrimSpace(raw[open+1 : end])
		}
	}
	return raw, ""
}

// listName extracts the short list name from a List-Id header:
// "QUIC WG <quic.ietf.org>" yields "quic"
func listName(listID string) string {
	id := strings.TrimSpace(listID)
	if open := strings.LastIndex(id, "<"); open >= 0 {
		id = id[open+1:]
		if end := strings.Index(id, ">"); end >= 0 {
			id = id[:end]
		}
	}
	id = strings.TrimSpace(id)
	if dot := strings.Index(id, "."); dot > 0 {
		id = id[:dot]
	}
	return strings.ToLower(id)
}

// replyRefs orders parent candidates nearest first: In-Reply-To, then
// References from last to first. Duplicates and blanks are dropped
func replyRefs(inReplyTo, references []string) []string {
	seen := make(map[string]struct{}, len(inReplyTo)+len(references))
	out := make([]string, 0, len(inReplyTo)+len(references))
	add := func(id string) {
		id = strings.TrimSpace(strings.Trim(strings.TrimSpace(id), "<>"))
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range inReplyTo {
		add(id)
	}
	for i := len(references) - 1; i >= 0; i-- {
		add(references[i])
	}
	return out
}

// splitAddresses breaks a comma separated recipient string
func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
