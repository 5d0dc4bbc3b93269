package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if got, want := c.BasesDir(), filepath.Join(projectDir, "Bases"); got != want {
		t.Fatalf("bases dir = %s, want %s", got, want)
	}
	if got, want := c.Project.Pack.Input, filepath.Join(projectDir, "Dados", "A14.xls"); got != want {
		t.Fatalf("input = %s, want %s", got, want)
	}
	opts := c.ReshapeOptions()
	if opts.Filter.Column != "CODICE_FAMIGLIA" || opts.Filter.Value != "PKG" || opts.Marker != "CODICE_OPTIONAL" || opts.Delimiter != "*" {
		t.Fatalf("unexpected reshape options: %+v", opts)
	}
	if !c.Skipped("611") {
		t.Fatalf("model 611 should be skipped by default")
	}
	if f := c.ModelFilter(); f.Column != "order_type" || f.Value != "PRE" || !f.Exact {
		t.Fatalf("unexpected model filter: %+v", f)
	}
}

func TestInitWritesParsableDefaults(t *testing.T) {
	projectDir := t.TempDir()
	if err := Init(projectDir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, dir := range []string{"Bases", "Dados", "logs"} {
		if info, err := os.Stat(filepath.Join(projectDir, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s directory: %v", dir, err)
		}
	}
	fromFile, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	defaults := defaultProjectConfig()
	defaults.normalize(fromFile.ProjectDir)
	if diff := cmp.Diff(defaults, fromFile.Project); diff != "" {
		t.Fatalf("written config differs from defaults (-want +got):\n%s", diff)
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	configYAML := strings.TrimSpace(`
version: 1
paths:
  bases: /srv/bases
  downloads: downloads
pack:
  input: latest
  sheet: PACKS
targets:
  marker: base
  extensions: [XLSX, xlsm]
models:
  keys: [" 341 ", "512", ""]
  skip: []
`)
	if err := os.WriteFile(filepath.Join(projectDir, ConfigFile), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.BasesDir() != "/srv/bases" {
		t.Fatalf("absolute bases path changed: %s", c.BasesDir())
	}
	if !strings.HasPrefix(c.DownloadsDir(), projectDir) {
		t.Fatalf("expected downloads path to be resolved, got %s", c.DownloadsDir())
	}
	if c.Project.Pack.Input != InputLatest {
		t.Fatalf("input = %s, want latest", c.Project.Pack.Input)
	}
	if c.Project.Pack.Filter.Column != "CODICE_FAMIGLIA" {
		t.Fatalf("filter default not applied: %+v", c.Project.Pack.Filter)
	}
	if diff := cmp.Diff([]string{".xlsx", ".xlsm"}, c.Project.Targets.Extensions); diff != "" {
		t.Fatalf("extensions (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"341", "512"}, c.Project.Models.Keys); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
	if c.Skipped("611") {
		t.Fatalf("explicit empty skip list must not skip 611")
	}
	if !c.Selector().Match("Minha Base.xlsx") {
		t.Fatalf("selector should match case-insensitively")
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	projectDir := t.TempDir()
	configYAML := strings.TrimSpace(`
version: 1
pack:
  sheet: "A14/bad"
`)
	if err := os.WriteFile(filepath.Join(projectDir, ConfigFile), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewConfig(projectDir); err == nil {
		t.Fatalf("expected validation error but got none")
	}
}

func TestResolveProjectDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)
	got, err := ResolveProjectDir("")
	if err != nil {
		t.Fatalf("ResolveProjectDir: %v", err)
	}
	if got != home {
		t.Fatalf("ResolveProjectDir = %s, want %s", got, home)
	}
	explicit := t.TempDir()
	if got, _ := ResolveProjectDir(explicit); got != explicit {
		t.Fatalf("explicit dir ignored: %s", got)
	}
}
