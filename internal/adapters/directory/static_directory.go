// Package directory provides person directories that map addresses to
// external person references
package directory

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mikey/mailgraph/internal/address"
	"github.com/mikey/mailgraph/internal/core"
)

// Entry is one person of a directory file
type Entry struct {
	URI    string   `yaml:"uri"`
	Name   string   `yaml:"name"`
	Emails []string `yaml:"emails"`
}

type file struct {
	People []Entry `yaml:"people"`
}

// StaticDirectory is a read-only directory loaded from a YAML file
type StaticDirectory struct {
	refs   map[core.NormalizedAddress]string
	names  map[string]string
	logger *zap.Logger
}

// LoadStaticDirectory reads a directory file of the form
//
//	people:
//	  - uri: /person/1
//	    name: Alice Example
//	    emails: [alice@example.org]
func LoadStaticDirectory(path string, logger *zap.Logger) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse directory file %s: %w", path, err)
	}
	d, err := NewStaticDirectory(f.People, logger)
	if err != nil {
		return nil, fmt.Errorf("directory file %s: %w", path, err)
	}
	return d, nil
}

// NewStaticDirectory indexes entries by normalized address. An address
// listed under two different URIs keeps the first one
func NewStaticDirectory(entries []Entry, logger *zap.Logger) (*StaticDirectory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &StaticDirectory{
		refs:   make(map[core.NormalizedAddress]string),
		names:  make(map[string]string),
		logger: logger,
	}
	for i, e := range entries {
		uri := strings.TrimSpace(e.URI)
		if uri == "" {
			return nil, fmt.Errorf("entry %d has no uri", i)
		}
		if e.Name != "" {
			d.names[uri] = strings.TrimSpace(e.Name)
		}
		for _, raw := range e.Emails {
			addr := address.Normalize(raw)
			if !addr.Valid() {
				logger.Warn("Ignoring unusable directory address",
					zap.String("uri", uri),
					zap.String("email", raw))
				continue
			}
			if prev, ok := d.refs[addr]; ok && prev != uri {
				logger.Warn("Address listed under two directory entries",
					zap.String("address", string(addr)),
					zap.String("kept", prev),
					zap.String("rejected", uri))
				continue
			}
			d.refs[addr] = uri
		}
	}
	logger.Info("Loaded person directory",
		zap.Int("people", len(entries)),
		zap.Int("addresses", len(d.refs)))
	return d, nil
}

// Lookup returns the directory URI for an address
func (d *StaticDirectory) Lookup(addr core.NormalizedAddress) (string, bool) {
	ref, ok := d.refs[addr]
	return ref, ok
}

// Name returns the directory's name for a URI
func (d *StaticDirectory) Name(uri string) (string, bool) {
	name, ok := d.names[uri]
	return name, ok
}

// Len returns the number of indexed addresses
func (d *StaticDirectory) Len() int {
	return len(d.refs)
}

// None is a directory that knows nobody
type None struct{}

// Lookup never matches
func (None) Lookup(core.NormalizedAddress) (string, bool) {
	return "", false
}
