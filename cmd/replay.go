package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/internal/service"
	"firestige.xyz/wirelab/internal/source"
	"firestige.xyz/wirelab/internal/source/file"
	"firestige.xyz/wirelab/pkg/models"
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture file>",
	Short: "Identify every UDP datagram of a pcap/pcapng file",
	Long: `Read a pcap or pcapng capture, identify every UDP payload against the
workspace templates and the enabled parsers, and hand each event to the
configured reporters (console by default).

Examples:
  wirelab replay trace.pcapng
  wirelab replay -P 3478 -c wirelab.yml trace.pcap`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cmd.Flags().Changed("port") {
			cfg.Replay.Port = replayPort
		}
		ws := loadWorkspace(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Reporters outlive the signal context so that pending batches flush.
		p, err := startPipeline(context.Background(), cfg, ws, "replay", false)
		if err != nil {
			exitWithError("failed to start pipeline", err)
		}
		stats, err := runReplay(ctx, p.svc, args[0], source.Options{Port: cfg.Replay.Port})
		p.stop(context.Background())
		if err != nil {
			exitWithError("replay failed", err)
		}

		log.GetLogger().WithFields(map[string]interface{}{
			"datagrams":   stats.datagrams,
			"identified":  stats.identified,
			"skipped":     stats.skipped,
			"reassembled": stats.reassembled,
		}).Info("replay finished")
	},
}

var replayPort uint16

func init() {
	replayCmd.Flags().Uint16VarP(&replayPort, "port", "P", 0, "only UDP datagrams from or to this port")
}

type replayStats struct {
	datagrams   uint64
	identified  uint64
	skipped     uint64
	reassembled uint64
}

func runReplay(ctx context.Context, svc *service.Service, path string, opts source.Options) (replayStats, error) {
	src, err := file.Open(path, opts)
	if err != nil {
		return replayStats{}, err
	}
	defer src.Close()

	var stats replayStats
	stats.datagrams, stats.identified, err = identifyAll(ctx, svc, src)
	stats.skipped = src.Skipped()
	stats.reassembled = src.Reassembled()
	return stats, err
}

// datagramSource is a capture file or a live capture socket.
type datagramSource interface {
	ForEach(ctx context.Context, fn func(source.Datagram) error) error
}

// identifyAll runs every datagram of src through svc as an inbound event.
// Cancellation of ctx ends the loop without an error.
func identifyAll(ctx context.Context, svc *service.Service, src datagramSource) (datagrams, identified uint64, err error) {
	err = src.ForEach(ctx, func(dg source.Datagram) error {
		evt := &models.Event{
			Time:      dg.Time,
			Direction: models.Inbound,
			Source:    dg.Src,
			Dest:      dg.Dst,
			Payload:   dg.Payload,
		}
		svc.Process(evt)
		datagrams++
		if evt.Identified() {
			identified++
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return datagrams, identified, err
}
