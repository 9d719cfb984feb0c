package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/parley/backend/internal/config"
	"github.com/zhouzirui/parley/backend/internal/handler"
	"github.com/zhouzirui/parley/backend/internal/logging"
	"github.com/zhouzirui/parley/backend/internal/model/persona"
	speechmodel "github.com/zhouzirui/parley/backend/internal/model/speech"
	"github.com/zhouzirui/parley/backend/internal/service/ai"
	"github.com/zhouzirui/parley/backend/internal/service/chat"
	"github.com/zhouzirui/parley/backend/internal/service/conversation"
	"github.com/zhouzirui/parley/backend/internal/service/speech"
	"github.com/zhouzirui/parley/backend/internal/service/ttscache"
	"github.com/zhouzirui/parley/backend/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, using process environment only")
	}

	personaStore := persona.NewMemoryStore(persona.Seed())

	converser := newConverser(ctx, cfg.AI)

	var (
		synth       ttscache.Synthesizer
		transcriber chat.Transcriber
	)
	if cfg.Speech.Enabled() {
		speechService, err := speech.NewService(cfg.Speech.Model())
		if err != nil {
			log.Warn().Err(err).Msg("speech service unavailable, continuing without voice")
		} else {
			synth, transcriber = speechService, speechService
			log.Info().Str("provider", cfg.Speech.Provider).Msg("speech service initialized")
		}
	} else {
		log.Info().Msg("speech credentials not configured, voice disabled")
	}

	chatService := chat.NewService(session.NewCatalog(personaStore), converser, synth, transcriber, chat.Options{
		DefaultPersonality: cfg.Session.DefaultPersonality,
		DefaultLanguage:    cfg.Session.DefaultLanguage,
		DefaultVoice:       cfg.Session.DefaultVoice,
		AutoSpeak:          cfg.Session.AutoSpeak,
	})

	router := handler.NewRouter(personaStore, chatService, handler.Options{
		AudioFormat:   audioFormat(cfg.Speech),
		SpeechEnabled: synth != nil,
	})

	startServer(ctx, cfg.Server, router)
}

// newConverser returns nil when the selected provider is not configured;
// replies then carry an in-band error.
func newConverser(ctx context.Context, cfg config.AIConfig) conversation.Converser {
	if !cfg.Enabled() {
		log.Warn().Str("provider", cfg.Provider).Msg("language model credentials not configured")
		return nil
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		c, err := ai.NewOpenAIConverser(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize OpenAI model")
			return nil
		}
		log.Info().Str("provider", cfg.Provider).Msg("language model initialized")
		return c
	default:
		c, err := ai.NewArkConverser(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize Ark model")
			return nil
		}
		log.Info().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("language model initialized")
		return c
	}
}

func audioFormat(cfg config.SpeechConfig) string {
	if cfg.Model().Provider == speechmodel.ProviderOpenAI {
		return "mp3"
	}
	return cfg.TTSFormat
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", srv.Addr).Msg("parley backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
