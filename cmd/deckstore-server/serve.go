package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opendeck/deckstore/assetstore"
	"github.com/opendeck/deckstore/configuration"
	"github.com/opendeck/deckstore/convert"
	"github.com/opendeck/deckstore/deckapi"
	"github.com/opendeck/deckstore/docstore"
	"github.com/opendeck/deckstore/httpapi"
	"github.com/opendeck/deckstore/internal/dcontext"
	"github.com/opendeck/deckstore/kvstore"
	"github.com/opendeck/deckstore/legacystore"
	"github.com/opendeck/deckstore/search"
	"github.com/opendeck/deckstore/thumbnail"
)

// ServeCmd is the cobra command that starts the HTTP server (§6 "External
// Interfaces: HTTP surface"), grounded on the teacher's registry.ServeCmd:
// resolve configuration, configure logging, build the application, listen.
var ServeCmd = &cobra.Command{
	Use:   "serve <config>",
	Short: "`serve` runs the deck store HTTP API",
	Long:  "`serve` runs the deck store HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := resolveConfiguration(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			// nolint:errcheck
			cmd.Usage()
			os.Exit(usageExitCode(err))
		}

		ctx := configureLogging(context.Background(), cfg)

		api, err := buildAPI(cfg)
		if err != nil {
			dcontext.GetLogger(ctx).Fatalf("failed to build application: %v", err)
		}

		srv := httpapi.New(api, os.Stdout)

		httpServer := &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: srv,
		}

		dcontext.GetLogger(ctx).Infof("listening on %v", cfg.HTTP.Addr)
		if err := listenAndServeGraceful(ctx, httpServer); err != nil {
			dcontext.GetLogger(ctx).Fatalf("%v", err)
		}
	},
}

// buildAPI wires every storage component from cfg into a deckapi.API, the
// same composition registry.NewRegistry performs for the distribution
// handler chain, generalized to this module's smaller component set.
func buildAPI(cfg configuration.Configuration) (*deckapi.API, error) {
	client := kvstore.NewClient(cfg.Redis)
	ns := kvstore.New(client, cfg.Storage.Prefix)

	clock := time.Now
	assets := assetstore.New(ns, clock)
	docs := docstore.New(ns, clock)
	legacy := legacystore.New(ns)
	idx := search.New(ns)
	conv := convert.New(assets, clock)

	var renderer thumbnail.Renderer
	if !cfg.Thumbnails.Disabled {
		renderer = thumbnail.NewPlaceholderRenderer()
	}

	return deckapi.New(assets, docs, legacy, idx, conv, renderer, cfg.Thumbnails.Disabled), nil
}

// listenAndServeGraceful serves handler until the process receives an
// interrupt or termination signal, then drains in-flight requests for up
// to 10 seconds before returning, the same graceful-shutdown shape the
// teacher's registry.ListenAndServe implements around its TLS listener.
func listenAndServeGraceful(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		dcontext.GetLogger(ctx).Infof("received %v, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
