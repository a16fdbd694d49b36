package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/speakdrill/speakdrill/internal/config"
	"github.com/speakdrill/speakdrill/internal/server"
)

// localOrigin names the site when files are served from a directory.
const localOrigin = "http://speakdrill.local"

var (
	serveAddr    string
	serveRoot    string
	serveEnvFile string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the app through the offline cache",
		Long: paragraph(fmt.Sprintf(
			"\nServe the app and its audio on %s. Requests are answered from the cache "+
				"first and fall back to the origin, or to a local directory with --root.",
			keyword("a local port"))),
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :8080)")
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "serve files from this directory instead of the origin")
	serveCmd.Flags().StringVar(&serveEnvFile, "env-file", ".env", "file with SPEAKDRILL_* server variables")
}

func runServe(cmd *cobra.Command, _ []string) error {
	env, err := config.LoadServerEnv(serveEnvFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		env.Addr = serveAddr
	}
	if cmd.Flags().Changed("root") {
		env.Root = serveRoot
	}
	if env.Origin != "" {
		cfg.Origin = env.Origin
	}

	var transport http.RoundTripper
	if env.Root != "" {
		transport = server.StaticTransport(env.Root)
		cfg.Origin = localOrigin
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "serve",
	})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signalContext()
	defer stop()

	rt, err := newRuntime(transport)
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	if err := rt.start(ctx); err != nil {
		return err
	}
	logger.Info("cache ready", "origin", rt.origin, "app", cfg.Cache.AppStore, "audio", cfg.Cache.AudioStore)

	return server.New(env, rt.worker, rt.metrics, logger).Serve(ctx)
}
