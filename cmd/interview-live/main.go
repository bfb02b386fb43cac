// Command interview-live runs an AI-led mock interview from the terminal:
// it captures the microphone, streams the conversation over the live
// model channel, plays the interviewer's voice, and persists the
// transcript and final report through the backend API.
//
// Usage:
//
//	interview-live -interview <id>
//
// Configuration comes from INTERVIEW_* environment variables, optionally
// loaded from a .env file. See pkg/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vango-go/interview-live/pkg/audio"
	"github.com/vango-go/interview-live/pkg/backend"
	"github.com/vango-go/interview-live/pkg/config"
	"github.com/vango-go/interview-live/pkg/live"
	"github.com/vango-go/interview-live/pkg/media"
)

func main() {
	interviewID := flag.String("interview", "", "interview ID to run (required)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *interviewID == "" {
		fmt.Fprintln(os.Stderr, "usage: interview-live -interview <id>")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	if err := run(context.Background(), logger, cfg, *interviewID); err != nil {
		logger.Error("interview failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg config.Config, interviewID string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway, err := backend.NewClient(backend.ClientConfig{
		BaseURL: cfg.BackendURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("backend client: %w", err)
	}

	sink, err := media.NewSpeakerSink(audio.PlaybackConfig())
	if err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	player, err := media.NewScheduler(media.SchedulerConfig{Sink: sink, Logger: logger})
	if err != nil {
		return fmt.Errorf("playback scheduler: %w", err)
	}

	controller, err := live.NewController(live.ControllerConfig{
		Config: live.SessionConfig{
			Model:             cfg.Model,
			Voice:             cfg.Voice,
			FlushThreshold:    cfg.FlushThreshold,
			TerminationMargin: cfg.TerminationMargin,
			ConnectTimeout:    cfg.ConnectTimeout,
		},
		InterviewID: interviewID,
		ChannelURL:  cfg.ChannelURL,
		APIKey:      cfg.APIKey,
		Gateway:     gateway,
		Capture:     media.NewCaptureEngine(logger),
		Player:      player,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("session controller: %w", err)
	}

	if err := controller.Start(ctx); err != nil {
		return err
	}
	fmt.Println("Interview started. Speak when the interviewer pauses; Ctrl-C leaves early.")

	return consume(ctx, controller)
}

// consume renders session events until the interview completes or the
// context is cancelled.
func consume(ctx context.Context, controller *live.Controller) error {
	var speaker live.Speaker

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nLeaving the interview...")
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := controller.Stop(stopCtx); err != nil {
				return err
			}
			printReport(controller.Report())
			return nil
		case event := <-controller.Events():
			switch e := event.(type) {
			case *live.OutputTranscriptionDeltaEvent:
				speaker = printDelta(speaker, live.SpeakerModel, "interviewer", e.Text)
			case *live.InputTranscriptionDeltaEvent:
				speaker = printDelta(speaker, live.SpeakerParticipant, "you", e.Text)
			case *live.TerminationDeferredEvent:
				fmt.Printf("\n[wrapping up in %s]\n", e.Delay.Round(100*time.Millisecond))
			case *live.SessionErrorEvent:
				return e.Err
			case *live.StateChangedEvent:
				if e.To == live.StateCompleted {
					fmt.Println()
					printReport(controller.Report())
					return nil
				}
			}
		}
	}
}

// printDelta streams transcript text, switching the printed label when
// the speaker changes.
func printDelta(current, next live.Speaker, label, text string) live.Speaker {
	if current != next {
		fmt.Printf("\n%s: ", label)
	}
	fmt.Print(text)
	return next
}

func printReport(report *live.Report) {
	if report == nil {
		return
	}
	fmt.Printf("\n=== Interview report %s ===\n%s\n", report.ID, report.Summary)
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
