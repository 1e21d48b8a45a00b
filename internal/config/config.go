// Package config provides configuration types and validation for dzonegit.
//
// Configuration lives in the repository's git configuration (the dzonegit.*
// keys). It is read once per hook invocation by Load and handed to the
// hooks as a Config value, so no code path queries git configuration on its
// own.
package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// BuiltinCompiler selects the in-process zone compiler.
const BuiltinCompiler = "builtin"

// DefaultCompiler is the named-compilezone binary used when none is set.
const DefaultCompiler = "/usr/sbin/named-compilezone"

// Source reads individual configuration values. ok is false for unset keys.
type Source interface {
	ConfigString(ctx context.Context, key string) (string, bool, error)
	ConfigBool(ctx context.Context, key string) (bool, bool, error)
}

// Load reads the whole configuration from src and validates it.
func Load(ctx context.Context, src Source) (*Config, error) {
	l := loader{ctx: ctx, src: src}
	cfg := &Config{
		Validation: ValidationConfig{
			IgnoreWhitespaceErrors: l.boolean(KeyIgnoreWhitespaceErrors),
			NoSerialUpdate:         l.boolean(KeyNoSerialUpdate),
			NoMissingDotCheck:      l.boolean(KeyNoMissingDotCheck),
			AllowFancyNames:        l.boolean(KeyAllowFancyNames),
			Branch:                 l.str(KeyBranch),
			Compiler:               l.str(KeyCompiler),
		},
		Deploy: DeployConfig{
			CheckoutPath:       l.str(KeyCheckoutPath),
			Templates:          l.templates(),
			ZoneBlacklist:      l.str(KeyZoneBlacklist),
			ZoneWhitelist:      l.str(KeyZoneWhitelist),
			ReconfigCommands:   l.indexed(KeyReconfigCmd),
			ZoneReloadCommands: l.indexed(KeyZoneReloadCmd),
			Journal:            l.str(KeyJournal),
		},
		Logging: LoggingConfig{
			Level:            l.str(KeyLogLevel),
			StructuredFormat: l.str(KeyLogFormat),
			File:             l.str(KeyLogFile),
		},
	}
	if l.err != nil {
		return nil, l.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates and normalizes the configuration.
func (cfg *Config) Validate() error {
	if cfg.Validation.Branch == "" {
		cfg.Validation.Branch = DefaultBranch
	}
	if !strings.HasPrefix(cfg.Validation.Branch, "refs/") {
		cfg.Validation.Branch = "refs/heads/" + cfg.Validation.Branch
	}
	if cfg.Validation.Compiler == "" {
		cfg.Validation.Compiler = DefaultCompiler
	}

	for i, t := range cfg.Deploy.Templates {
		if t.Template == "" || t.Output == "" {
			return fmt.Errorf("config file template %d needs both %s and %s", i, KeyConfFileTemplate, KeyConfFilePath)
		}
	}
	if len(cfg.Deploy.Templates) > 0 && cfg.Deploy.CheckoutPath == "" {
		return fmt.Errorf("%s requires %s", KeyConfFileTemplate, KeyCheckoutPath)
	}

	// Normalize logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	cfg.Logging.StructuredFormat = strings.ToLower(cfg.Logging.StructuredFormat)
	switch cfg.Logging.StructuredFormat {
	case "", "text":
		cfg.Logging.StructuredFormat = "text"
	case "json":
		cfg.Logging.Structured = true
	default:
		return fmt.Errorf("%s must be text or json", KeyLogFormat)
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}
	return nil
}

// UsesBuiltinCompiler reports whether the in-process compiler is selected.
func (v ValidationConfig) UsesBuiltinCompiler() bool {
	return strings.EqualFold(v.Compiler, BuiltinCompiler)
}

// loader accumulates the first read error so Load stays linear.
type loader struct {
	ctx context.Context
	src Source
	err error
}

func (l *loader) str(key string) string {
	if l.err != nil {
		return ""
	}
	v, _, err := l.src.ConfigString(l.ctx, key)
	if err != nil {
		l.err = fmt.Errorf("reading %s: %w", key, err)
	}
	return v
}

func (l *loader) boolean(key string) bool {
	if l.err != nil {
		return false
	}
	v, _, err := l.src.ConfigBool(l.ctx, key)
	if err != nil {
		l.err = fmt.Errorf("reading %s: %w", key, err)
	}
	return v
}

// indexed collects key1 .. keyMaxIndex, skipping gaps.
func (l *loader) indexed(key string) []string {
	var out []string
	for i := 1; i <= MaxIndex; i++ {
		if v := l.str(key + strconv.Itoa(i)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// templates pairs the unnumbered template/path keys and their numbered
// variants.
func (l *loader) templates() []TemplateConfig {
	var out []TemplateConfig
	for i := 0; i <= MaxIndex; i++ {
		suffix := ""
		if i > 0 {
			suffix = strconv.Itoa(i)
		}
		t := TemplateConfig{
			Template: l.str(KeyConfFileTemplate + suffix),
			Output:   l.str(KeyConfFilePath + suffix),
		}
		if t.Template != "" || t.Output != "" {
			out = append(out, t)
		}
	}
	return out
}
