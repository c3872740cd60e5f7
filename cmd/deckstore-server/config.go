package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/opendeck/deckstore/configuration"
	"github.com/opendeck/deckstore/internal/dcontext"
	"github.com/opendeck/deckstore/version"
)

// resolveConfiguration loads the YAML configuration from args[0], falling
// back to DECKSTORE_CONFIGURATION_PATH, the same two-source lookup the
// teacher's registry binary performs before calling configuration.Parse.
func resolveConfiguration(args []string) (configuration.Configuration, error) {
	var path string
	if len(args) > 0 {
		path = args[0]
	} else if env := os.Getenv("DECKSTORE_CONFIGURATION_PATH"); env != "" {
		path = env
	}

	if path == "" {
		return configuration.Configuration{}, usageError{fmt.Errorf("configuration path unspecified")}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return configuration.Configuration{}, err
	}

	cfg, err := configuration.Parse(data)
	if err != nil {
		return configuration.Configuration{}, fmt.Errorf("error parsing %s: %w", path, err)
	}
	return cfg, nil
}

// configureLogging sets the package-level logrus level and attaches a
// logger carrying the running version to ctx, mirroring the teacher's
// registry.configureLogging.
func configureLogging(ctx context.Context, cfg configuration.Configuration) context.Context {
	level, err := logrus.ParseLevel(string(cfg.Log.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch cfg.Log.Formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{})
	}

	logger := dcontext.GetLoggerWithField(ctx, "version", version.Version())
	dcontext.SetDefaultLogger(logger)
	return dcontext.WithLogger(ctx, logger)
}
