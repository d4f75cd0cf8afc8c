package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/wirelab/internal/api"
	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/internal/service"
	"firestige.xyz/wirelab/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the codec, the matcher and the workspace over HTTP",
	Long: `Run the HTTP API. The workspace file is created when missing and is
rewritten on PUT /api/v1/workspace. SIGHUP reloads it from disk.

Routes:
  POST /api/v1/decode      {"protocolId" | "protocol", "hex"}
  POST /api/v1/encode      {"templateId" | "protocolId", "values"}
  POST /api/v1/match       {"hex"}
  POST /api/v1/stun        {"hex"}
  GET|PUT /api/v1/workspace
  GET  /api/v1/protocols[/:id], /api/v1/templates[/:id]
  GET  /health, /metrics

Examples:
  wirelab serve -l 0.0.0.0:8080 -w workspace.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cmd.Flags().Changed("listen") {
			cfg.API.Listen = serveListen
		}

		s, err := store.Open(cfg.Workspace)
		if err != nil {
			exitWithError("failed to open workspace", err)
		}
		parsers, err := service.NewParsers(cfg.Parsers)
		if err != nil {
			exitWithError("failed to create parsers", err)
		}

		srv := api.NewServer(s, parsers, cfg.API.Mode)
		if err := srv.Start(cfg.API.Listen); err != nil {
			exitWithError("failed to start api server", err)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				if err := s.Reload(); err != nil {
					log.GetLogger().WithError(err).Error("workspace reload failed")
				} else {
					log.GetLogger().WithField("path", s.Path()).Info("workspace reloaded")
				}
				continue
			}
			log.GetLogger().WithField("signal", sig.String()).Info("shutting down")
			break
		}
		signal.Stop(sigCh)

		if err := srv.Stop(context.Background()); err != nil {
			exitWithError("api server stop failed", err)
		}
	},
}

var serveListen string

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "listen address, overrides wirelab.api.listen")
}
