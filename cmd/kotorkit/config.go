package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/NickHugi/PyKotor-sub008/pkg/compressed"
	"github.com/NickHugi/PyKotor-sub008/pkg/gff"
	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
	"gopkg.in/ini.v1"
)

// config holds settings read from kotorkit.ini. Command-line flags win.
//
//	[gff]
//	max_depth = 64
//
//	[script]
//	max_errors = 20
//	actions = nwscript.toml
//
//	[archive]
//	compress = zstd
type config struct {
	MaxDepth  int
	MaxErrors int
	Actions   string
	Compress  string
}

func defaultConfig() *config {
	return &config{MaxDepth: gff.DefaultMaxDepth, MaxErrors: nss.DefaultMaxErrors}
}

// loadConfig reads path. A missing file is only an error when the path was
// given explicitly.
func loadConfig(path string, required bool) (*config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !required {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.MaxDepth = f.Section("gff").Key("max_depth").MustInt(cfg.MaxDepth)
	cfg.MaxErrors = f.Section("script").Key("max_errors").MustInt(cfg.MaxErrors)
	cfg.Actions = f.Section("script").Key("actions").String()
	cfg.Compress = f.Section("archive").Key("compress").String()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// override applies flags given on the command line, keyed by flag name.
func (c *config) override(flags map[string]string) {
	if v, ok := flags["max-depth"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxDepth = n
		}
	}
	if v, ok := flags["max-errors"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxErrors = n
		}
	}
	if v, ok := flags["actions"]; ok {
		c.Actions = v
	}
	if v, ok := flags["compress"]; ok {
		c.Compress = v
	}
}

func (c *config) validate() error {
	if c.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive")
	}
	if c.MaxErrors <= 0 {
		return fmt.Errorf("max_errors must be positive")
	}
	if _, err := c.codec(); err != nil {
		return err
	}
	return nil
}

// codec returns the envelope codec, or zero when archives are written plain.
func (c *config) codec() (compressed.Codec, error) {
	if c.Compress == "" || c.Compress == "none" {
		return 0, nil
	}
	return compressed.ParseCodec(c.Compress)
}

// actions loads the routine table, falling back to the built-in one.
func (c *config) actions() (*nss.Actions, error) {
	if c.Actions == "" {
		return nss.DefaultActions(), nil
	}
	data, err := os.ReadFile(c.Actions)
	if err != nil {
		return nil, fmt.Errorf("read action table: %w", err)
	}
	return nss.LoadActions(data)
}
