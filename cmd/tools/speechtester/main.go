package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/parley/backend/internal/config"
	"github.com/zhouzirui/parley/backend/internal/logging"
	"github.com/zhouzirui/parley/backend/internal/model/language"
	"github.com/zhouzirui/parley/backend/internal/model/voice"
	"github.com/zhouzirui/parley/backend/internal/service/ai"
	"github.com/zhouzirui/parley/backend/internal/service/chat"
	"github.com/zhouzirui/parley/backend/internal/service/conversation"
	"github.com/zhouzirui/parley/backend/internal/service/speech"
)

func main() {
	envErr := godotenv.Load()

	mode := flag.String("mode", "", "mode: asr, tts or chat")
	audioPath := flag.String("audio", "", "ASR input audio file")
	text := flag.String("text", "", "TTS input text")
	outputPath := flag.String("out", "", "TTS output file (defaults to speech-<time>.<format>)")
	format := flag.String("format", "", "ASR input format, inferred from the file extension when empty")
	lang := flag.String("lang", language.DefaultID, "language id (english, chinese, ...)")
	voiceID := flag.String("voice", voice.DefaultID, "voice id (warm-female, deep-male, ...)")
	slow := flag.Bool("slow", false, "synthesize at the slow speaking rate")
	timeout := flag.Duration("timeout", 45*time.Second, "timeout per request")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log.Level, "console")
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, using process environment only")
	}

	l, ok := language.Find(*lang)
	if !ok {
		log.Fatal().Str("lang", *lang).Msg("unknown language")
	}
	v, ok := voice.Find(*voiceID)
	if !ok {
		log.Fatal().Str("voice", *voiceID).Msg("unknown voice")
	}

	switch *mode {
	case "asr":
		svc := mustSpeech(cfg)
		runASR(svc, *timeout, *audioPath, *format, l)
	case "tts":
		svc := mustSpeech(cfg)
		runTTS(svc, *timeout, *text, *outputPath, l, v, *slow, cfg.Speech.TTSFormat)
	case "chat":
		runChat(cfg, *timeout, *lang, *voiceID, os.Stdin, os.Stdout)
	default:
		flag.Usage()
		log.Fatal().Msg("choose a mode with -mode=asr, -mode=tts or -mode=chat")
	}
}

func mustSpeech(cfg *config.Config) *speech.Service {
	if !cfg.Speech.Enabled() {
		log.Fatal().Msg("speech is not configured, set SPEECH_* (or ARK_API_KEY / OPENAI_API_KEY)")
	}
	svc, err := speech.NewService(cfg.Speech.Model())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create speech service")
	}
	return svc
}

func runASR(svc *speech.Service, timeout time.Duration, audioPath, format string, l language.Language) {
	if audioPath == "" {
		log.Fatal().Msg("asr mode needs -audio")
	}
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read audio file")
	}
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
		if format == "" {
			format = "wav"
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info().Str("format", format).Str("locale", l.RecognitionLocale).Int("bytes", len(audio)).Msg("asr request")
	start := time.Now()
	text, err := svc.Transcribe(ctx, audio, format, l.RecognitionLocale)
	if err != nil {
		log.Fatal().Err(err).Msg("asr failed")
	}
	log.Info().Dur("took", time.Since(start)).Msg("asr done")
	fmt.Println(text)
}

func runTTS(svc *speech.Service, timeout time.Duration, text, outputPath string, l language.Language, v voice.Voice, slow bool, format string) {
	text = strings.TrimSpace(text)
	if text == "" {
		log.Fatal().Msg("tts mode needs -text")
	}
	if format == "" {
		format = "mp3"
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("speech-%d.%s", time.Now().Unix(), format)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info().Str("locale", l.SynthesisLocale).Str("voice", v.Param).Bool("slow", slow).Msg("tts request")
	start := time.Now()
	audio, err := svc.Synthesize(ctx, text, l.SynthesisLocale, v.Param, slow)
	if err != nil {
		log.Fatal().Err(err).Msg("tts failed")
	}
	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		log.Fatal().Err(err).Msg("failed to write audio")
	}
	log.Info().Dur("took", time.Since(start)).Str("out", outputPath).Int("bytes", len(audio)).Msg("tts done")
}

// runChat drives one session from stdin. Lines starting with "/speak" render
// the last reply to a file.
func runChat(cfg *config.Config, timeout time.Duration, lang, voiceID string, in io.Reader, out io.Writer) {
	var converser conversation.Converser
	switch {
	case !cfg.AI.Enabled():
		log.Warn().Msg("language model not configured, replies will carry an error")
	case cfg.AI.Provider == config.ProviderOpenAI:
		c, err := ai.NewOpenAIConverser(cfg.AI)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create OpenAI model")
		}
		converser = c
	default:
		c, err := ai.NewArkConverser(context.Background(), cfg.AI)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Ark model")
		}
		converser = c
	}

	var svc *chat.Service
	if cfg.Speech.Enabled() {
		speechSvc := mustSpeech(cfg)
		svc = chat.NewService(nil, converser, speechSvc, speechSvc, chat.Options{})
	} else {
		svc = chat.NewService(nil, converser, nil, nil, chat.Options{})
	}

	snap, err := svc.CreateSession(cfg.Session.DefaultPersonality, lang, voiceID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session")
	}
	fmt.Fprintf(out, "%s %s | %s | %s\n", snap.Personality.Emoji, snap.Personality.Name, snap.Language.Name, snap.Voice.Name)

	lastReply := -1
	scanner := bufio.NewScanner(in)
	for fmt.Fprint(out, "> "); scanner.Scan(); fmt.Fprint(out, "> ") {
		line := scanner.Text()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)

		if strings.TrimSpace(line) == "/speak" {
			speakLast(ctx, svc, snap.ID, lastReply, out)
			cancel()
			continue
		}

		outcome, err := svc.HandleInput(ctx, snap.ID, line)
		cancel()
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		switch outcome.Kind {
		case chat.OutcomeReply:
			lastReply = outcome.ReplyIndex
			fmt.Fprintln(out, outcome.Reply)
		default:
			fmt.Fprintln(out, outcome.Feedback)
		}
	}
	fmt.Fprintln(out)
}

func speakLast(ctx context.Context, svc *chat.Service, sessionID string, index int, out io.Writer) {
	if index < 0 {
		fmt.Fprintln(out, "nothing to speak yet")
		return
	}
	rendition, err := svc.Speak(ctx, sessionID, index)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	for _, advisory := range rendition.Advisories {
		fmt.Fprintln(out, advisory)
	}
	if rendition.Audio == nil {
		return
	}
	path := fmt.Sprintf("turn-%d.audio", index)
	if err := os.WriteFile(path, rendition.Audio, 0o644); err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "wrote %s (cached=%v)\n", path, rendition.Cached)
}
