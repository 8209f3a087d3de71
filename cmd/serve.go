package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/derickschaefer/agrobot/internal/messaging"
	"github.com/derickschaefer/agrobot/internal/scheduler"
	"github.com/derickschaefer/agrobot/internal/server"
)

var (
	serveAddr     string
	serveNoReport bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API and WhatsApp webhook",
	Long: `Serve the HTTP API until interrupted:

  GET  /health
  POST /message               {"from": "+15550001", "text": "show my parcels"}
  POST /link                  {"phone": "+15550001", "username": "ana"}
  POST /generate-reports      ?send=true delivers every payload
  POST /webhook/whatsapp      Twilio inbound message, answered with TwiML
  GET  /parcels/{id}?phone=   parcel details for the linked farmer
  GET  /parcels/{id}/trends?phone=

Unless --no-report is set, a report cycle runs immediately and then every
report_interval, delivering due payloads over the messaging provider.`,
	Example: `  agrobot serve
  agrobot serve --addr :9000 --no-report
  AGROBOT_MESSAGING_PROVIDER=twilio agrobot serve --llm`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !globalFlags.Verbose {
			logLevel.SetLevel(zapcore.InfoLevel)
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		svc, err := deps.Assistant()
		if err != nil {
			return err
		}
		sched, err := deps.Scheduler()
		if err != nil {
			return err
		}
		transport, err := deps.Transport()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := deps.Config.ListenAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		if interval := deps.Config.ReportInterval; interval > 0 && !serveNoReport {
			log := deps.Log.Named("reports")
			log.Info("report loop started", zap.Duration("interval", interval))
			go sched.Loop(ctx, interval, func(ctx context.Context, payloads []scheduler.Payload) {
				for _, d := range messaging.Deliver(ctx, transport, payloads) {
					if !d.Delivered {
						log.Warn("report delivery failed", zap.String("recipient", d.Recipient))
					}
				}
			})
		}

		return server.New(svc, sched, transport, deps.Log.Named("http")).ListenAndServe(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides listen_addr)")
	serveCmd.Flags().BoolVar(&serveNoReport, "no-report", false, "do not run the periodic report loop")
}
