package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mikey/mailgraph/internal/adapters/store"
	"github.com/mikey/mailgraph/internal/config"
	"github.com/mikey/mailgraph/internal/core"
	"github.com/mikey/mailgraph/internal/engine"
	"github.com/mikey/mailgraph/internal/factory"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildContainer(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\nstore:\n  type: memory\n")
	container, err := BuildContainer(Options{
		ConfigFile: path,
		Overrides:  map[string]interface{}{"ingest.mailing_list": "quic"},
	})
	if err != nil {
		t.Fatalf("BuildContainer() error = %v", err)
	}

	err = container.Invoke(func(e *engine.Engine, repo store.Repository, ic config.IngestConfig, sf *factory.SourceFactory) error {
		if ic.MailingList != "quic" {
			t.Errorf("override not applied: %+v", ic)
		}
		report, err := e.IngestBatch(context.Background(), []core.RawMessage{{MessageID: "m1", From: "a@x.org"}})
		if err != nil {
			return err
		}
		if report.Counters.Accepted != 1 {
			t.Errorf("Accepted = %d", report.Counters.Accepted)
		}
		if err := repo.Save(context.Background(), e.Snapshot()); err != nil {
			return err
		}
		if _, err := sf.CreateSource([]string{"archive.mbox"}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
}

func TestBuildContainer_BadConfigSurfacesOnInvoke(t *testing.T) {
	path := writeConfig(t, "resolver:\n  name_match: fuzzy\n")
	container, err := BuildContainer(Options{ConfigFile: path})
	if err != nil {
		t.Fatalf("BuildContainer() error = %v", err)
	}
	if err := container.Invoke(func(*engine.Engine) {}); err == nil {
		t.Error("Invoke() succeeded with an invalid resolver mode")
	}
}

func TestBuildContainer_MissingConfigFile(t *testing.T) {
	container, err := BuildContainer(Options{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})
	if err != nil {
		t.Fatalf("BuildContainer() error = %v", err)
	}
	if err := container.Invoke(func(*config.Config) {}); err == nil {
		t.Error("Invoke() succeeded without a config file")
	}
}
