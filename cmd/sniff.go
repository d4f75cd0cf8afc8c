package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/wirelab/internal/config"
	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/internal/source"
	"firestige.xyz/wirelab/internal/source/afpacket"
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Passively identify UDP traffic on a network interface",
	Long: `Capture UDP frames from a live interface through AF_PACKET, identify every
payload and hand the events to the configured reporters. Nothing is sent
back; use listen to answer requests. Requires linux and CAP_NET_RAW.

Examples:
  wirelab sniff -i eth0
  wirelab sniff -i eth0 -P 3478`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cmd.Flags().Changed("interface") {
			cfg.Sniff.Interface = sniffInterface
		}
		if cmd.Flags().Changed("port") {
			cfg.Sniff.Port = sniffPort
		}
		ws := loadWorkspace(cfg)

		src, err := afpacket.Open(sniffConfig(cfg.Sniff))
		if err != nil {
			exitWithError("failed to open capture", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := startPipeline(context.Background(), cfg, ws, "sniff", false)
		if err != nil {
			src.Close()
			exitWithError("failed to start pipeline", err)
		}
		datagrams, identified, err := identifyAll(ctx, p.svc, src)
		st, _ := src.Stats()
		src.Close()
		p.stop(context.Background())
		if err != nil {
			exitWithError("capture failed", err)
		}

		log.GetLogger().WithFields(map[string]interface{}{
			"datagrams":  datagrams,
			"identified": identified,
			"drops":      st.Drops,
		}).Info("sniff finished")
	},
}

var (
	sniffInterface string
	sniffPort      uint16
)

func init() {
	sniffCmd.Flags().StringVarP(&sniffInterface, "interface", "i", "", "network interface to capture on")
	sniffCmd.Flags().Uint16VarP(&sniffPort, "port", "P", 0, "only UDP datagrams from or to this port")
}

func sniffConfig(c config.SniffConfig) afpacket.Config {
	return afpacket.Config{
		Interface:   c.Interface,
		SnapLen:     c.SnapLen,
		BufferMB:    c.BufferSizeMB,
		PollTimeout: c.PollTimeout,
		FanoutID:    c.FanoutID,
		Options:     source.Options{Port: c.Port},
	}
}
