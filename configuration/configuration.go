// Package configuration is deckstore's process configuration, parsed from a
// YAML file and overridable by prefixed environment variables.
//
// It is grounded on the teacher registry's configuration.go/parser.go pair:
// the same yaml.v2 tagging style and the same Log section shape, and the
// environment-override idiom is a single-version rewrite of the teacher's
// Parser.overrideFields walk ("let ENVPREFIX_DOTTED_PATH override a leaf"
// by reflection over the struct tree). The teacher's multi-schema-version
// machinery (Parser, VersionedParseInfo, ConversionFunc) has no analogue
// here and was not kept: deckstore has shipped exactly one configuration
// shape, so there is nothing yet to migrate between (see DESIGN.md).
package configuration

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/opendeck/deckstore/kvstore"
)

// Loglevel is the level at which deckstore logs operations.
type Loglevel string

// UnmarshalYAML implements yaml.Unmarshaler, lowercasing and validating the
// configured level the same way the teacher's Loglevel does.
func (l *Loglevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var levelStr string
	if err := unmarshal(&levelStr); err != nil {
		return err
	}
	normalized := strings.ToLower(levelStr)
	switch normalized {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("invalid loglevel %q: must be one of error, warn, info, debug", levelStr)
	}
	*l = Loglevel(normalized)
	return nil
}

// Log configures the logging subsystem.
type Log struct {
	Level     Loglevel               `yaml:"level,omitempty"`
	Formatter string                 `yaml:"formatter,omitempty"`
	Fields    map[string]interface{} `yaml:"fields,omitempty"`
}

// HTTP configures deckstore's HTTP listener.
type HTTP struct {
	Addr   string `yaml:"addr,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
}

// Thumbnails configures best-effort thumbnail generation.
type Thumbnails struct {
	Disabled bool `yaml:"disabled,omitempty"`
}

// Storage configures the namespace deckstore's data lives under within the
// shared redis database.
type Storage struct {
	Prefix string `yaml:"prefix,omitempty"`
}

// Configuration is deckstore's top-level process configuration.
type Configuration struct {
	Version    string     `yaml:"version"`
	Log        Log        `yaml:"log,omitempty"`
	HTTP       HTTP       `yaml:"http,omitempty"`
	Redis      kvstore.Redis `yaml:"redis"`
	Storage    Storage    `yaml:"storage,omitempty"`
	Thumbnails Thumbnails `yaml:"thumbnails,omitempty"`
}

// DefaultConfiguration returns the configuration deckstore falls back to
// when a value is unset by both the file and the environment.
func DefaultConfiguration() Configuration {
	return Configuration{
		Version: "0.1",
		Log:     Log{Level: "info"},
		HTTP:    HTTP{Addr: ":5454"},
		Redis: kvstore.Redis{
			Addr:         "localhost:6379",
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}

// Parse reads data as YAML into a Configuration seeded with
// DefaultConfiguration, then applies DECKSTORE_-prefixed environment
// overrides (§"AMBIENT STACK: configuration").
func Parse(data []byte) (Configuration, error) {
	cfg := DefaultConfiguration()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("configuration: parsing yaml: %w", err)
	}
	if err := overrideFromEnvironment(&cfg, "DECKSTORE", os.Environ()); err != nil {
		return Configuration{}, fmt.Errorf("configuration: applying environment overrides: %w", err)
	}
	return cfg, nil
}

// overrideFromEnvironment walks cfg by reflection, matching each leaf field's
// dotted yaml path against a PREFIX_DOTTED_PATH environment variable
// (underscores joining path segments, uppercased), the same traversal the
// teacher's Parser.overrideField performs.
func overrideFromEnvironment(cfg *Configuration, prefix string, environ []string) error {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			env[parts[0]] = parts[1]
		}
	}
	return overrideStruct(reflect.ValueOf(cfg).Elem(), prefix, env)
}

func overrideStruct(v reflect.Value, path string, env map[string]string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		tag := strings.Split(field.Tag.Get("yaml"), ",")[0]
		if tag == "" {
			tag = strings.ToLower(field.Name)
		}
		fieldPath := path + "_" + strings.ToUpper(tag)

		switch fv.Kind() {
		case reflect.Struct:
			if fv.Type() == reflect.TypeOf(time.Duration(0)) {
				if err := setLeaf(fv, fieldPath, env); err != nil {
					return err
				}
				continue
			}
			if err := overrideStruct(fv, fieldPath, env); err != nil {
				return err
			}
		default:
			if err := setLeaf(fv, fieldPath, env); err != nil {
				return err
			}
		}
	}
	return nil
}

func setLeaf(fv reflect.Value, envKey string, env map[string]string) error {
	raw, ok := env[envKey]
	if !ok {
		return nil
	}
	switch {
	case fv.Type() == reflect.TypeOf(time.Duration(0)):
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", envKey, err)
		}
		fv.Set(reflect.ValueOf(d))
	case fv.Kind() == reflect.String:
		fv.SetString(raw)
	case fv.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", envKey, err)
		}
		fv.SetBool(b)
	case fv.Kind() == reflect.Int:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", envKey, err)
		}
		fv.SetInt(n)
	}
	return nil
}
