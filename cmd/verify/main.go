// Command chordverify starts the verifier against either a live microphone
// or a WAV fixture, arms it with a single chord or a song file, and prints
// a colored live verdict feed to the console.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fretcoach/chordverify/internal/capture"
	"github.com/fretcoach/chordverify/internal/config"
	"github.com/fretcoach/chordverify/internal/diagnostics"
	cverrors "github.com/fretcoach/chordverify/internal/errors"
	"github.com/fretcoach/chordverify/internal/fixture"
	"github.com/fretcoach/chordverify/internal/logging"
	"github.com/fretcoach/chordverify/internal/metrics"
	"github.com/fretcoach/chordverify/internal/pitch"
	"github.com/fretcoach/chordverify/internal/policy"
	"github.com/fretcoach/chordverify/internal/song"
	"github.com/fretcoach/chordverify/internal/transcribe"
	"github.com/fretcoach/chordverify/internal/verdict"
	"github.com/fretcoach/chordverify/internal/verifier"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var (
		fixturePath string
		fixtureLoop bool
		songPath    string
		chordName   string
	)

	cmd := &cobra.Command{
		Use:   "chordverify",
		Short: "Real-time polyphonic chord verifier for guitar practice",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), options{
				fixturePath: fixturePath,
				fixtureLoop: fixtureLoop,
				songPath:    songPath,
				chordName:   chordName,
			})
		},
	}

	cmd.Flags().StringVar(&fixturePath, "fixture", "", "play a WAV file instead of the microphone")
	cmd.Flags().BoolVar(&fixtureLoop, "loop", false, "loop the fixture file instead of stopping at the end")
	cmd.Flags().StringVar(&songPath, "song", "", "step through a song file instead of a single --chord")
	cmd.Flags().StringVar(&chordName, "chord", "C", "single chord name to verify against (ignored if --song is set)")

	return cmd
}

type options struct {
	fixturePath string
	fixtureLoop bool
	songPath    string
	chordName   string
}

func run(ctx context.Context, opts options) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init()
	logging.SetLevel(parseLevel(settings.Main.Log.Level))
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	console := charmlog.NewWithOptions(os.Stdout, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "chordverify",
	})

	modelData, err := os.ReadFile(settings.Model.Path)
	if err != nil {
		return cverrors.FileError(err, settings.Model.Path)
	}
	adapter, err := transcribe.NewModel(transcribe.ModelConfig{
		Data:        modelData,
		Threads:     settings.Model.Threads,
		UseXNNPACK:  settings.Model.UseXNNPACK,
		EvalTimeout: 2 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init transcription model: %w", err)
	}
	defer adapter.Close() //nolint:errcheck

	host := diagnostics.CollectHostReport(ctx)
	host.Log()

	reg := prometheus.NewRegistry()
	var recorder metrics.Recorder = metrics.NoOpRecorder{}
	if settings.Metrics.Enabled {
		vm := metrics.NewVerifierMetrics(reg)
		recorder = vm
		go func() {
			if err := metrics.Serve(settings.Metrics.ListenAddress, reg); err != nil {
				console.Error("metrics server stopped", "error", err)
			}
		}()
	}

	ctrl := verifier.New(verifier.Settings{
		WindowSec:          settings.Verify.WindowSec,
		DeviceSampleRate:   settings.Capture.SampleRate,
		TickInterval:       settings.TickInterval(),
		ModelSampleRate:    settings.Verify.ModelSampleRate,
		ModelWindowSamples: transcribe.WindowSamples,
		FramesConfirm:      settings.Verify.FramesConfirm,
		MissCooldown:       settings.MissCooldown(),
		SalienceThreshold:  settings.Verify.SalienceThreshold,
		CentsTolerance:     settings.Verify.CentsTolerance,
		TransposeSemitones: settings.Verify.TransposeSemitones,
		AcceptInversions:   settings.Verify.AcceptInversions,
		PolicyKind:         policy.Kind(strings.ToUpper(settings.Verify.Policy)),
		AggregatorMaxLen:   settings.Verify.AggregatorMaxLen,
		EvalTimeout:        2 * time.Second,
	}, adapter)

	verdictLog := diagnostics.NewVerdictLog(settings.Diagnostics.VerdictLogSize * 1024)
	if err := ctrl.Dispatcher().AddHandler(verdictLog); err != nil {
		return fmt.Errorf("register verdict log: %w", err)
	}
	if err := ctrl.Dispatcher().AddHandler(metrics.NewVerdictRecorder("metrics", recorder)); err != nil {
		return fmt.Errorf("register metrics handler: %w", err)
	}
	if err := ctrl.Dispatcher().AddHandler(newConsoleHandler(console)); err != nil {
		return fmt.Errorf("register console handler: %w", err)
	}
	if settings.OSC.Enabled {
		sink := verdict.NewOSCSink("osc", settings.OSC.Host, settings.OSC.Port, settings.OSC.AddressPrefix)
		if err := ctrl.Dispatcher().AddHandler(sink); err != nil {
			return fmt.Errorf("register OSC sink: %w", err)
		}
	}
	if settings.MQTT.Enabled {
		sink, err := verdict.NewMQTTSink("mqtt", verdict.MQTTSinkConfig{
			BrokerURL: settings.MQTT.BrokerURL,
			ClientID:  settings.MQTT.ClientID,
			Topic:     settings.MQTT.Topic,
		})
		if err != nil {
			return fmt.Errorf("connect MQTT sink: %w", err)
		}
		if err := ctrl.Dispatcher().AddHandler(sink); err != nil {
			return fmt.Errorf("register MQTT sink: %w", err)
		}
	}

	newSource := func(sink interface{ Write([]float32) }) (verifier.AudioSource, error) {
		if opts.fixturePath != "" {
			return fixture.New(fixture.Config{
				Path:      opts.fixturePath,
				RealTime:  true,
				Loop:      opts.fixtureLoop,
			}, sink)
		}
		return capture.NewMic(capture.Config{
			SampleRate: settings.Capture.SampleRate,
			Gain:       float32(settings.Capture.Gain),
		}, sink), nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := ctrl.Start(runCtx, newSource); err != nil {
		return fmt.Errorf("start verifier: %w", err)
	}
	defer ctrl.Stop() //nolint:errcheck

	if err := arm(ctrl, console, opts); err != nil {
		return err
	}

	console.Info("listening", "status", ctrl.Status())

	sigCtx, stop := signal.NotifyContext(runCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	console.Info("shutting down")
	return ctrl.Stop()
}

// arm sets the Controller's expected chord, either once from --chord or by
// walking a --song file's entries on its own beat-paced schedule.
func arm(ctrl *verifier.Controller, console *charmlog.Logger, opts options) error {
	if opts.songPath == "" {
		spec, err := song.ChordSpecFromName(opts.chordName)
		if err != nil {
			return fmt.Errorf("resolve chord %q: %w", opts.chordName, err)
		}
		return ctrl.SetExpected(spec)
	}

	s, err := song.LoadSong(opts.songPath)
	if err != nil {
		return fmt.Errorf("load song: %w", err)
	}
	if len(s.Entries) == 0 {
		return fmt.Errorf("song %q has no chords", opts.songPath)
	}

	go stepSong(ctrl, console, s)
	return ctrl.SetExpected(s.Entries[0].Spec)
}

func stepSong(ctrl *verifier.Controller, console *charmlog.Logger, s *song.Song) {
	tempo := s.TempoBPM
	if tempo <= 0 {
		tempo = 120
	}
	beatDur := time.Minute / time.Duration(tempo)

	prev := s.Entries[0]
	for _, entry := range s.Entries[1:] {
		time.Sleep(beatDur * time.Duration(prev.Beat))
		prev = entry
		if ctrl.Status() != verifier.StatusListening {
			return
		}
		console.Info("next chord", "chord", entry.Name)
		if err := ctrl.SetExpected(entry.Spec); err != nil {
			console.Error("set expected chord failed", "chord", entry.Name, "error", err)
			return
		}
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// consoleHandler prints a colored one-line summary of each verdict,
// separate from the structured JSON log, for glanceable live feedback
// while practicing.
type consoleHandler struct {
	log *charmlog.Logger
}

func newConsoleHandler(l *charmlog.Logger) *consoleHandler { return &consoleHandler{log: l} }

func (h *consoleHandler) ID() string { return "console" }

func (h *consoleHandler) HandleVerdict(v verdict.Verdict) error {
	switch v.Kind {
	case verdict.KindMatch:
		h.log.Info("✓ match")
	case verdict.KindMiss:
		h.log.Warn("miss", "have", classNames(v.Matched), "need", classNames(v.Missing))
	case verdict.KindError:
		h.log.Error(v.Message)
	}
	return nil
}

func classNames(s pitch.Set) []string {
	classes := s.Slice()
	names := make([]string, len(classes))
	for i, c := range classes {
		names[i] = pitch.Names[c]
	}
	return names
}
