package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-pipeline/internal/approval"
	"github.com/jonathan/video-pipeline/internal/server"
	"github.com/jonathan/video-pipeline/internal/server/ratelimit"
)

var (
	servePort          int
	serveAPIToken      string
	serveWebhookSecret string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server and job workers",
	Long: `Start an HTTP server that exposes REST endpoints for starting, reviewing and resuming
pipeline sessions, plus the Telegram webhook and signed approval links.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (defaults to PORT or 8080)")
	serveCmd.Flags().StringVar(&serveAPIToken, "api-token", "", "Bearer token for operator routes (optional, defaults to API_TOKEN env var)")
	serveCmd.Flags().StringVar(&serveWebhookSecret, "webhook-secret", "", "Telegram webhook secret (optional, defaults to TELEGRAM_WEBHOOK_SECRET env var)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}
	if serveAPIToken == "" {
		serveAPIToken = os.Getenv("API_TOKEN")
	}
	if serveWebhookSecret == "" {
		serveWebhookSecret = os.Getenv("TELEGRAM_WEBHOOK_SECRET")
	}
	warnMissingTools(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	st, err := openStack(ctx, cfg)
	if err != nil {
		cancel()
		return err
	}

	signer, err := newSigner()
	if err != nil {
		cancel()
		st.Close()
		return err
	}
	if signer == nil {
		log.Printf("[setup] APPROVAL_SIGNING_KEY not set; notifications carry no action links")
	}

	hub := approval.NewHub(64)
	channel, telegram := st.channels(hub)

	svc, err := st.newService(ctx, serviceOptions{
		channel:    channel,
		signer:     signer,
		onProgress: server.ProgressPublisher(hub),
		onDone:     server.DonePublisher(hub),
	})
	if err != nil {
		cancel()
		st.Close()
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	st.queue.Start(ctx, cfg.Workers)

	srvCfg := server.Config{
		Port:          cfg.Port,
		Pipelines:     svc,
		Jobs:          st.queue,
		Tracker:       st.tracker,
		Applier:       approval.NewApplier(st.tracker, st.queue),
		Signer:        signer,
		Hub:           hub,
		Files:         st.files,
		RateLimit:     ratelimit.LoadConfig(),
		APIToken:      serveAPIToken,
		WebhookSecret: serveWebhookSecret,
		OnClose: func() {
			cancel()
			st.queue.Stop()
			st.Close()
		},
	}
	if telegram != nil {
		srvCfg.Telegram = telegram
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		srvCfg.OnClose()
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
