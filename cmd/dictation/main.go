package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/voicescribe/dictation-core/cmd/dictation/config"
	"github.com/voicescribe/dictation-core/cmd/dictation/recognize"
	"github.com/voicescribe/dictation-core/cmd/dictation/server"
	"github.com/voicescribe/dictation-core/cmd/dictation/session"

	whisper "github.com/voicescribe/dictation-core/cmd/dictation/apis/whisper.cpp"
)

const (
	// frameSize is how many samples are read from the capture stream per
	// pipeline frame, 20ms at 16kHz.
	frameSize = 320

	stopTimeout = 10 * time.Second
)

func slogReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.SourceKey {
		source := a.Value.Any().(*slog.Source)
		source.File = filepath.Base(source.File)
	}
	return a
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to a YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource:   true,
		Level:       slog.LevelDebug,
		ReplaceAttr: slogReplaceAttr,
	}))
	slog.SetDefault(logger)

	var cfg config.SessionConfig
	var err error
	if cfgPath != "" {
		cfg, err = config.FromFile(cfgPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		slog.Error("failed to load config", slog.String("err", err.Error()))
		os.Exit(1)
	}
	cfg.SetDefaults()

	factory := func() (recognize.Recognizer, error) {
		return whisper.NewContext(whisper.Config{
			ModelFile:  cfg.ModelFile,
			NumThreads: cfg.NumThreads,
		})
	}

	sess, err := session.NewSession(cfg, factory)
	if err != nil {
		slog.Error("failed to create session", slog.String("err", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(server.Config{ListenAddr: cfg.ListenAddr})
	if err != nil {
		slog.Error("failed to create event server", slog.String("err", err.Error()))
		os.Exit(1)
	}
	srv.Start()

	forwardCtx, cancelForward := context.WithCancel(context.Background())
	defer cancelForward()
	go srv.Forward(forwardCtx, sess.Events())

	if err := sess.Start(); err != nil {
		slog.Error("failed to start session", slog.String("err", err.Error()))
		os.Exit(1)
	}

	slog.Info("dictation session started, reading audio from stdin")

	// The capture layer writes mono 16kHz float32 little-endian PCM to our
	// stdin. EOF means the capture stopped.
	captureDone := make(chan error, 1)
	go func() {
		captureDone <- readCapture(os.Stdin, sess)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-captureDone:
		if err != nil {
			slog.Error("capture stream failed", slog.String("err", err.Error()))
		} else {
			slog.Info("capture stream ended")
		}
	case s := <-sig:
		slog.Info("received signal, stopping", slog.String("signal", s.String()))
	}

	if err := sess.Stop(); err != nil {
		slog.Error("failed to stop session", slog.String("err", err.Error()))
	}

	// Give clients a moment to receive the final transcript before the
	// event stream goes away.
	drainFinalEvents(sess.Events())

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	cancelForward()
	if err := srv.Stop(ctx); err != nil {
		slog.Error("failed to stop event server", slog.String("err", err.Error()))
	}

	slog.Info("session has finished, exiting",
		slog.Duration("recorded", sess.Duration()))
}

// readCapture feeds fixed-size frames from a raw PCM stream into the
// session until EOF.
func readCapture(r io.Reader, sess *session.Session) error {
	br := bufio.NewReaderSize(r, frameSize*4*8)

	buf := make([]byte, frameSize*4)
	frame := make([]float32, frameSize)

	for {
		if _, err := io.ReadFull(br, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}

		for i := range frame {
			frame[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}

		sess.OnAudioFrame(frame)
	}
}

func drainFinalEvents(events <-chan session.Event) {
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == session.EventRecordingStopped {
				return
			}
		case <-deadline:
			return
		}
	}
}
