package cmd

import (
	"context"
	"net/netip"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/internal/responder"
	"firestige.xyz/wirelab/internal/service"
	"firestige.xyz/wirelab/internal/transport/udp"
	"firestige.xyz/wirelab/pkg/models"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Identify live UDP datagrams and answer them by reply rules",
	Long: `Bind a UDP socket, identify every received datagram, report it, and send
the replies of the first matching active reply rule after their delays.
Sent replies are identified and reported as outbound events.

Examples:
  wirelab listen -l :3478
  wirelab listen -c wirelab.yml --no-reply`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cmd.Flags().Changed("address") {
			cfg.Listen.Address = listenAddress
		}
		if listenNoReply {
			cfg.Listen.AutoReply = false
		}
		ws := loadWorkspace(cfg)

		srv, err := udp.Listen(cfg.Listen.Network, cfg.Listen.Address)
		if err != nil {
			exitWithError("failed to bind udp socket", err)
		}
		defer srv.Close()

		p, err := startPipeline(context.Background(), cfg, ws, "listen", cfg.Listen.AutoReply)
		if err != nil {
			exitWithError("failed to start pipeline", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.GetLogger().WithFields(map[string]interface{}{
			"addr":       srv.LocalAddr().String(),
			"auto_reply": cfg.Listen.AutoReply,
		}).Info("listening")

		l := newListener(p.svc, srv, srv.LocalAddr())
		err = srv.Serve(ctx, l.handle)
		l.wait()
		p.stop(context.Background())
		if err != nil {
			exitWithError("listen failed", err)
		}
	},
}

var (
	listenAddress string
	listenNoReply bool
)

func init() {
	listenCmd.Flags().StringVarP(&listenAddress, "address", "l", "", "listen address, overrides wirelab.listen.address")
	listenCmd.Flags().BoolVar(&listenNoReply, "no-reply", false, "disable auto-reply")
}

// replySender sends one datagram.
type replySender interface {
	Send(addr netip.AddrPort, payload []byte) error
}

// listener runs the inbound side of the listen command.
type listener struct {
	svc    *service.Service
	sender replySender
	local  netip.AddrPort

	wg sync.WaitGroup
}

func newListener(svc *service.Service, sender replySender, local netip.AddrPort) *listener {
	return &listener{svc: svc, sender: sender, local: local}
}

// handle processes one inbound datagram. Replies are sent from their own
// goroutine so the read loop never waits for a delay.
func (l *listener) handle(ctx context.Context, dg udp.Datagram) {
	local := dg.Local
	if !local.IsValid() {
		local = l.local
	}
	evt := &models.Event{
		Time:      time.Now(),
		Direction: models.Inbound,
		Source:    dg.Remote,
		Dest:      local,
		Payload:   dg.Payload,
	}
	replies := l.svc.Process(evt)
	if len(replies) == 0 {
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		err := responder.Dispatch(ctx, replies, func(ctx context.Context, payload []byte) error {
			if err := l.sender.Send(dg.Remote, payload); err != nil {
				return err
			}
			l.svc.Process(&models.Event{
				Time:      time.Now(),
				Direction: models.Outbound,
				Source:    local,
				Dest:      dg.Remote,
				Payload:   payload,
			})
			return nil
		})
		if err != nil {
			// send failures are already logged per reply
			log.GetLogger().WithField("remote", dg.Remote.String()).Debugf("auto-reply dispatch ended: %v", err)
		}
	}()
}

// wait blocks until every pending reply is sent or dropped.
func (l *listener) wait() {
	l.wg.Wait()
}
