package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"memprobe/process"
	"memprobe/scanner"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memscan.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
reader:
  cache_entries: 16
  cache_max_age: 250ms
backup:
  compress: true
scanner:
  start: "0x400000"
  end: 8388608
  alignment: 4
  parallel: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	want := Default()
	want.Reader.CacheEntries = 16
	want.Reader.CacheMaxAge = 250 * time.Millisecond
	want.Backup.Compress = true
	want.Scanner.Start = 0x400000
	want.Scanner.End = 0x800000
	want.Scanner.Alignment = 4
	want.Scanner.Parallel = true
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}

	opts := cfg.ScanOptions()
	if opts.Start != 0x400000 || opts.End != 0x800000 || opts.Alignment != 4 || !opts.Parallel {
		t.Errorf("ScanOptions = %+v", opts)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad address", "scanner:\n  start: nope\n", "invalid address"},
		{"bad yaml", "reader: [", "parse config"},
		{"inverted range", "scanner:\n  start: 0x2000\n  end: 0x1000\n", "scanner.end must be above scanner.start"},
		{"several", "reader:\n  max_read_size: 0\nscanner:\n  alignment: 0\n", "scanner.alignment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load error = %v, want it to mention %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestLoadOrDefault(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		cfg, err := LoadOrDefault(path)
		if err != nil {
			t.Fatalf("LoadOrDefault(%q): %v", path, err)
		}
		if diff := cmp.Diff(Default(), cfg); diff != "" {
			t.Errorf("LoadOrDefault(%q) mismatch (-want +got):\n%s", path, diff)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestAddressMarshal(t *testing.T) {
	out, err := yaml.Marshal(ScannerConfig{Start: Address(scanner.DefaultStart), End: Address(process.ProcessMemoryAddress(0xFFFF0000))})
	if err != nil {
		t.Fatal(err)
	}
	var back ScannerConfig
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	if back.Start != Address(scanner.DefaultStart) || back.End != 0xFFFF0000 {
		t.Errorf("address round trip through %q gave %+v", out, back)
	}
}
