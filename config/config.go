// Package config loads memprobe settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"memprobe/process"
	"memprobe/reader"
	"memprobe/scanner"
	"memprobe/writer"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Reader  ReaderConfig        `yaml:"reader"`
	Writer  WriterConfig        `yaml:"writer"`
	Backup  writer.BackupConfig `yaml:"backup"`
	Scanner ScannerConfig       `yaml:"scanner"`
}

type ReaderConfig struct {
	CacheEntries int           `yaml:"cache_entries"`
	CacheMaxAge  time.Duration `yaml:"cache_max_age"`
	MaxReadSize  int           `yaml:"max_read_size"`
}

type WriterConfig struct {
	VerifyWrites   bool `yaml:"verify_writes"`
	CheckAddresses bool `yaml:"check_addresses"`
}

type ScannerConfig struct {
	Start      Address `yaml:"start"`
	End        Address `yaml:"end"`
	Alignment  int     `yaml:"alignment"`
	MaxResults int     `yaml:"max_results"`
	Parallel   bool    `yaml:"parallel"`
	MaxDOP     int     `yaml:"max_dop"`
}

// Address lets YAML carry addresses as "0x7FFE0000" strings or plain integers.
type Address process.ProcessMemoryAddress

func (a *Address) UnmarshalYAML(node *yaml.Node) error {
	v, err := process.ParseAddress(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*a = Address(v)
	return nil
}

func (a Address) MarshalYAML() (interface{}, error) {
	return process.ProcessMemoryAddress(a).String(), nil
}

func Default() Config {
	return Config{
		Reader: ReaderConfig{
			CacheEntries: reader.DefaultCacheEntries,
			CacheMaxAge:  reader.DefaultCacheMaxAge,
			MaxReadSize:  10 << 20,
		},
		Writer: WriterConfig{
			VerifyWrites:   true,
			CheckAddresses: true,
		},
		Backup: writer.DefaultBackupConfig(),
		Scanner: ScannerConfig{
			Start:      Address(scanner.DefaultStart),
			End:        Address(scanner.DefaultEnd),
			Alignment:  1,
			MaxResults: scanner.DefaultMaxResults,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// LoadOrDefault loads path when it is set and exists, and falls back to Default otherwise.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

func (c Config) Validate() error {
	var errs []error
	if c.Reader.CacheEntries < 0 {
		errs = append(errs, fmt.Errorf("reader.cache_entries must not be negative"))
	}
	if c.Reader.CacheMaxAge < 0 {
		errs = append(errs, fmt.Errorf("reader.cache_max_age must not be negative"))
	}
	if c.Reader.MaxReadSize <= 0 {
		errs = append(errs, fmt.Errorf("reader.max_read_size must be positive"))
	}
	if c.Backup.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("backup.max_entries must not be negative"))
	}
	if c.Scanner.Alignment < 1 {
		errs = append(errs, fmt.Errorf("scanner.alignment must be at least 1"))
	}
	if c.Scanner.MaxResults < 0 {
		errs = append(errs, fmt.Errorf("scanner.max_results must not be negative"))
	}
	if c.Scanner.End <= c.Scanner.Start {
		errs = append(errs, fmt.Errorf("scanner.end must be above scanner.start"))
	}
	if c.Scanner.MaxDOP < 0 {
		errs = append(errs, fmt.Errorf("scanner.max_dop must not be negative"))
	}
	return errors.Join(errs...)
}

// ScanOptions turns the scanner section into scan options.
func (c Config) ScanOptions() scanner.Options {
	return scanner.Options{
		Start:      process.ProcessMemoryAddress(c.Scanner.Start),
		End:        process.ProcessMemoryAddress(c.Scanner.End),
		Alignment:  c.Scanner.Alignment,
		MaxResults: c.Scanner.MaxResults,
		Parallel:   c.Scanner.Parallel,
		MaxDOP:     c.Scanner.MaxDOP,
	}
}
