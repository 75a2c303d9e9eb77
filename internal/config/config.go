// Package config loads the YAML configuration of the telnet server.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/stesla/libtelnet/internal/telnet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"gopkg.in/yaml.v3"
)

var ErrUnknownOption = errors.New("config: unknown telnet option")

type Config struct {
	Addr     string         `yaml:"addr"`
	Log      LogConfig      `yaml:"log"`
	Options  []OptionConfig `yaml:"options"`
	Charset  []string       `yaml:"charset"`
	Compress bool           `yaml:"compress"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Console forces console or JSON output. Left unset, console output is
	// used when stdout is a terminal.
	Console *bool `yaml:"console,omitempty"`
}

// OptionConfig names an option the server supports. Code is used when Name
// is empty.
type OptionConfig struct {
	Name   string `yaml:"name,omitempty"`
	Code   *int   `yaml:"code,omitempty"`
	Local  bool   `yaml:"local"`
	Remote bool   `yaml:"remote"`
}

// UnmarshalYAML accepts either a bare option name, supported in both
// directions, or a mapping.
func (o *OptionConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*o = OptionConfig{Name: value.Value, Local: true, Remote: true}
		return nil
	}
	type plain OptionConfig
	var tmp plain
	if err := value.Decode(&tmp); err != nil {
		return err
	}
	*o = OptionConfig(tmp)
	return nil
}

func (o OptionConfig) option() (byte, error) {
	if o.Name != "" {
		if opt, ok := telnet.OptionByName(o.Name); ok {
			return opt, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrUnknownOption, o.Name)
	}
	if o.Code == nil || *o.Code < 0 || *o.Code > 255 {
		return 0, fmt.Errorf("%w: option needs a name or a code between 0 and 255", ErrUnknownOption)
	}
	return byte(*o.Code), nil
}

func Default() *Config {
	return &Config{
		Addr: ":4001",
		Log:  LogConfig{Level: "info"},
		Options: []OptionConfig{
			{Name: "SGA", Local: true, Remote: true},
			{Name: "BINARY", Local: true, Remote: true},
			{Name: "CHARSET", Local: true, Remote: true},
			{Name: "NAWS", Remote: true},
		},
		Charset: []string{"UTF-8"},
	}
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

// Parse expands environment variables in data and decodes it over the
// defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.OptionFlags(); err != nil {
		return err
	}
	_, err := c.Encodings()
	return err
}

func (c *Config) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("config: log level: %w", err)
	}
	return level, nil
}

// OptionFlags returns the configured options as compatibility table entries.
// MCCP2 is supported locally whenever compression is turned on.
func (c *Config) OptionFlags() ([]telnet.OptionFlags, error) {
	flags := make([]telnet.OptionFlags, 0, len(c.Options)+1)
	for _, o := range c.Options {
		opt, err := o.option()
		if err != nil {
			return nil, err
		}
		var f uint8
		if o.Local {
			f |= telnet.FlagLocalSupported
		}
		if o.Remote {
			f |= telnet.FlagRemoteSupported
		}
		flags = append(flags, telnet.OptionFlags{Opt: opt, Flags: f})
	}
	if c.Compress {
		flags = append(flags, telnet.OptionFlags{Opt: telnet.MCCP2, Flags: telnet.FlagLocalSupported})
	}
	return flags, nil
}

// Encodings resolves the charset list, in order of preference.
func (c *Config) Encodings() ([]encoding.Encoding, error) {
	encs := make([]encoding.Encoding, 0, len(c.Charset))
	for _, name := range c.Charset {
		enc, err := ianaindex.IANA.Encoding(name)
		if err != nil {
			return nil, fmt.Errorf("config: charset %q: %w", name, err)
		}
		if enc == nil {
			return nil, fmt.Errorf("config: charset %q is not supported", name)
		}
		encs = append(encs, enc)
	}
	return encs, nil
}
