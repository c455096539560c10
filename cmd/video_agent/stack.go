package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-pipeline/internal/approval"
	"github.com/jonathan/video-pipeline/internal/artifacts"
	"github.com/jonathan/video-pipeline/internal/config"
	"github.com/jonathan/video-pipeline/internal/db"
	"github.com/jonathan/video-pipeline/internal/fetch"
	"github.com/jonathan/video-pipeline/internal/jobs"
	"github.com/jonathan/video-pipeline/internal/llm"
	"github.com/jonathan/video-pipeline/internal/media"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/video-pipeline/internal/producers"
	"github.com/jonathan/video-pipeline/internal/store"
)

// browserTimeout bounds one headless Chrome render or screenshot.
const browserTimeout = 45 * time.Second

// loadConfig resolves defaults, then the config file, then the environment,
// then flags set on cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}
	cfg.ApplyEnv(os.Getenv)
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = verbose
	}

	merged := cfg.MergeWithDefaults(config.Defaults())
	if err := merged.Validate(); err != nil {
		return config.Config{}, err
	}
	if merged.Verbose && configPath != "" {
		log.Printf("[config] loaded %s", configPath)
	}
	return merged, nil
}

// stack holds the state and artifact backends shared by every subcommand.
type stack struct {
	cfg       config.Config
	store     store.Store
	tracker   *steps.Tracker
	queue     *jobs.Queue
	files     *artifacts.FileStore
	artifacts artifacts.Store
	database  *db.DB
	closers   []func()
}

func openStack(ctx context.Context, cfg config.Config) (*stack, error) {
	s, err := store.Open(ctx, store.Options{
		Backend:     cfg.StateBackend,
		RedisURL:    cfg.RedisURL,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	st := &stack{
		cfg:     cfg,
		store:   s,
		tracker: steps.NewTracker(s, steps.NewSignals()),
		queue:   jobs.NewQueue(s, cfg.QueueCapacity),
	}

	st.files, err = artifacts.NewFileStore(cfg.ArtifactDir, artifactBaseURL(cfg.PublicBaseURL))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open artifact directory: %w", err)
	}
	st.artifacts = st.files

	if cfg.ArtifactBackend == "db" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.database = database
		if err := database.EnsureSchema(ctx); err != nil {
			st.Close()
			return nil, err
		}
		st.artifacts = artifacts.NewDBStore(database)
	}
	return st, nil
}

// artifactBaseURL is where the server publishes the file store.
func artifactBaseURL(publicBaseURL string) string {
	if publicBaseURL == "" {
		return ""
	}
	return strings.TrimRight(publicBaseURL, "/") + "/artifacts"
}

// onClose registers fn to run when the stack closes, most recent first.
func (s *stack) onClose(fn func()) {
	s.closers = append(s.closers, fn)
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
	if s.database != nil {
		s.database.Close()
	}
	if err := s.store.Close(); err != nil {
		log.Printf("[store] close: %v", err)
	}
}

// newEngine builds the media engine from the media section of the config.
func newEngine(cfg config.Config) *media.Engine {
	opts := media.DefaultOptions()
	if cfg.MediaConcurrency > 0 {
		opts.Concurrency = cfg.MediaConcurrency
	}
	if cfg.MediaPreset != "" {
		opts.Preset = cfg.MediaPreset
	}
	if cfg.PanSeconds > 0 {
		opts.PanSeconds = cfg.PanSeconds
	}
	e := media.NewEngine(opts)
	e.FFmpeg = cfg.FFmpeg
	e.FFprobe = cfg.FFprobe
	return e
}

// producers wires the standard producers to whatever collaborators the
// environment provides. Manifest sessions bypass the generated steps.
func (s *stack) producers(ctx context.Context, engine *media.Engine) (pipeline.Producers, error) {
	pc := producers.Config{
		Pages:                 fetch.NewCachedFetcher(s.store, nil),
		Capture:               producers.BrowserCapture(browserTimeout),
		Engine:                engine,
		OutlineBeats:          s.cfg.OutlineBeats,
		RelatedLinks:          s.cfg.RelatedLinks,
		ScreenshotConcurrency: s.cfg.ScreenshotConcurrency,
		ThumbnailAt:           s.cfg.ThumbnailAt,
		DefaultPrivacy:        s.cfg.Privacy,
	}
	if s.cfg.UseBrowser {
		pc.Render = producers.BrowserRender(browserTimeout)
	}
	if cmd := producers.SpeechCommand(s.cfg.TTSCommand); cmd != "" {
		pc.Speech = &producers.Speech{Runner: engine.Runner, Command: cmd, Voice: s.cfg.TTSVoice}
	} else {
		log.Printf("[setup] no tts command; narration needs an audio dir or a manifest")
	}

	if s.cfg.APIKey != "" {
		client, err := llm.NewClient(ctx, llm.DefaultConfig(), s.cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		s.onClose(func() { _ = client.Close() })
		pc.LLM = client
	} else {
		log.Printf("[setup] GEMINI_API_KEY not set; only manifest sessions can write scripts")
	}

	if s.cfg.YouTubeAPIKey != "" {
		videos, err := producers.NewYouTubeVideos(ctx, s.cfg.YouTubeAPIKey)
		if err != nil {
			return nil, err
		}
		pc.Videos = videos
	}

	if creds, err := producers.CredentialsFromEnv(); err == nil {
		uploader, err := producers.NewYouTubeUploader(ctx, creds)
		if err != nil {
			return nil, err
		}
		pc.Uploader = uploader
	} else if s.cfg.Verbose {
		log.Printf("[setup] uploads disabled: %v", err)
	}

	return producers.WithManifests(producers.Standard(pc)), nil
}

// channels returns the approval channel fan-out. The Telegram channel is
// returned separately so the webhook can answer button presses.
func (s *stack) channels(extra ...approval.Channel) (approval.Channel, *approval.TelegramChannel) {
	multi := approval.Multi{approval.LogChannel{}}
	multi = append(multi, extra...)

	var tg *approval.TelegramChannel
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" && s.cfg.TelegramChatID != "" {
		tg = approval.NewTelegramChannel(token, s.cfg.TelegramChatID)
		multi = append(multi, tg)
	}
	return multi, tg
}

// newSigner returns nil when no signing key is configured.
func newSigner() (*approval.Signer, error) {
	if os.Getenv("APPROVAL_SIGNING_KEY") == "" {
		return nil, nil
	}
	sc, err := config.NewSigningConfig()
	if err != nil {
		return nil, err
	}
	return approval.NewSigner(sc.Key, time.Duration(sc.TTLHours)*time.Hour)
}

// serviceOptions configures the session service built by newService.
type serviceOptions struct {
	channel     approval.Channel
	signer      *approval.Signer
	autoApprove bool
	keepWorkDir bool
	onProgress  pipeline.ProgressCallback
	onDone      func(pipeline.Session, *pipeline.Result, error)
}

func (s *stack) newService(ctx context.Context, opts serviceOptions) (*pipeline.Service, error) {
	prods, err := s.producers(ctx, newEngine(s.cfg))
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Tracker:   s.tracker,
		Jobs:      s.queue,
		Store:     s.store,
		Artifacts: s.artifacts,
		Channel:   opts.channel,
		Signer:    opts.signer,
		Producers: prods,
	}
	pcfg := pipeline.Config{
		PollInterval:    s.cfg.PollInterval(),
		ApprovalTimeout: s.cfg.ApprovalTimeout(),
		AutoApprove:     opts.autoApprove,
		PublicBaseURL:   s.cfg.PublicBaseURL,
	}

	runner, err := pipeline.NewRunner(deps, pcfg)
	if err != nil {
		return nil, err
	}
	runner.OnProgress = opts.onProgress

	resumer, err := pipeline.NewResumer(deps, pcfg, s.cfg.WorkRoot)
	if err != nil {
		return nil, err
	}

	return pipeline.NewService(runner, resumer, s.queue, pipeline.NewRegistry(), pipeline.ServiceOptions{
		WorkRoot:    s.cfg.WorkRoot,
		JobTimeout:  s.cfg.JobTimeout(),
		KeepWorkDir: opts.keepWorkDir,
		OnDone:      opts.onDone,
	}), nil
}

func warnMissingTools(cfg config.Config) {
	if err := media.LookPath(cfg.FFmpeg, cfg.FFprobe); err != nil {
		log.Printf("[setup] %v; video steps will fail", err)
	}
}
