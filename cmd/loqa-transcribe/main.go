package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/loqalabs/loqa-recorder/internal/bus"
	"github.com/loqalabs/loqa-recorder/internal/config"
	"github.com/loqalabs/loqa-recorder/internal/decoding"
	"github.com/loqalabs/loqa-recorder/internal/encoder"
	"github.com/loqalabs/loqa-recorder/internal/protocol"
	"github.com/loqalabs/loqa-recorder/internal/render"
	"github.com/loqalabs/loqa-recorder/internal/transcribe"
)

var version = "0.1.0-dev"

// errPanel marks a run whose panel reports an error; it is already printed.
var errPanel = errors.New("transcription returned an error")

type transcribeArgs struct {
	configPath string
	file       string
	baseURL    string
	method     string
	language   string
	beamWidth  int
	patience   float64
	temp       float64
	bestOf     int
	useGPU     bool
	timeout    time.Duration
}

type watchArgs struct {
	configPath string
	servers    string
	session    string
}

func main() {
	_ = godotenv.Load()

	var args transcribeArgs
	transcribeCmd := flag.NewFlagSet("transcribe", flag.ExitOnError)
	transcribeCmd.StringVar(&args.configPath, "config", "", "Path to configuration file")
	transcribeCmd.StringVar(&args.file, "file", "", "WAV file to upload")
	transcribeCmd.StringVar(&args.baseURL, "url", "", "Transcription service base URL (overrides config)")
	transcribeCmd.StringVar(&args.method, "method", "", "Decoding method: greedy, beam search or sampling")
	transcribeCmd.StringVar(&args.language, "language", "", "Language code or DETECT")
	transcribeCmd.IntVar(&args.beamWidth, "beam-width", 0, "Beam width (beam search)")
	transcribeCmd.Float64Var(&args.patience, "patience", 0, "Patience (beam search)")
	transcribeCmd.Float64Var(&args.temp, "temperature", 0, "Temperature (sampling)")
	transcribeCmd.IntVar(&args.bestOf, "best-of", 0, "Best of (sampling)")
	transcribeCmd.BoolVar(&args.useGPU, "gpu", false, "Ask the service to use the GPU")
	transcribeCmd.DurationVar(&args.timeout, "timeout", 0, "Request timeout (0 waits indefinitely)")

	var wargs watchArgs
	watchCmd := flag.NewFlagSet("watch", flag.ExitOnError)
	watchCmd.StringVar(&wargs.configPath, "config", "", "Path to configuration file")
	watchCmd.StringVar(&wargs.servers, "servers", "", "Comma separated NATS URLs (overrides config)")
	watchCmd.StringVar(&wargs.session, "session", "", "Only print events for this session")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'transcribe', 'watch' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "transcribe":
		transcribeCmd.Parse(os.Args[2:])
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		err := runTranscribe(ctx, args, os.Stdout)
		stop()
		if err != nil {
			if !errors.Is(err, errPanel) {
				fmt.Fprintln(os.Stderr, err)
			}
			os.Exit(1)
		}
	case "watch":
		watchCmd.Parse(os.Args[2:])
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		err := runWatch(ctx, wargs, os.Stdout, slog.New(slog.NewTextHandler(os.Stderr, nil)))
		stop()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runTranscribe(ctx context.Context, args transcribeArgs, out io.Writer) error {
	if args.file == "" {
		return errors.New("-file is required")
	}
	cfg, err := config.Load(args.configPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args.file)
	if err != nil {
		return fmt.Errorf("read %s: %w", args.file, err)
	}
	if _, err := encoder.Inspect(data); err != nil {
		return fmt.Errorf("%s: %w", args.file, err)
	}

	opts := decoding.Options{
		Method:      firstNonEmpty(args.method, cfg.UI.DefaultMethod),
		Language:    firstNonEmpty(args.language, cfg.UI.DefaultLanguage),
		BeamWidth:   args.beamWidth,
		Patience:    args.patience,
		Temperature: args.temp,
		BestOf:      args.bestOf,
		UseGPU:      args.useGPU,
	}
	if opts.BeamWidth < 0 || opts.Patience < 0 || opts.Temperature < 0 || opts.BestOf < 0 {
		return fmt.Errorf("%w: decoding values must not be negative", decoding.ErrInvalidField)
	}

	timeout := args.timeout
	if timeout == 0 {
		timeout = time.Duration(cfg.Transcription.TimeoutMS) * time.Millisecond
	}
	client := transcribe.NewClient(
		transcribe.WithBaseURL(firstNonEmpty(args.baseURL, cfg.Transcription.BaseURL)),
		transcribe.WithPath(cfg.Transcription.Path),
		transcribe.WithTimeout(timeout),
	)

	var panel render.Panel
	resp, err := client.Submit(ctx, transcribe.Request{
		FileName: filepath.Base(args.file),
		Audio:    data,
		Options:  opts.Normalize(),
	})
	if err != nil {
		panel = render.Failure(err)
	} else {
		panel = render.Parse(resp.StatusCode, resp.Body)
	}

	if err := render.Text(out, panel); err != nil {
		return err
	}
	if panel.IsError() {
		return errPanel
	}
	return nil
}

// runWatch prints recorder lifecycle events from the bus until ctx ends.
func runWatch(ctx context.Context, args watchArgs, out io.Writer, logger *slog.Logger) error {
	cfg, err := config.Load(args.configPath)
	if err != nil {
		return err
	}
	busCfg := cfg.Bus
	if args.servers != "" {
		busCfg.Servers = strings.Split(args.servers, ",")
	}
	client, err := bus.Connect(ctx, busCfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	var mu sync.Mutex
	unsubscribe, err := client.Subscribe(protocol.SubjectEventPrefix+".>", func(subject string, data []byte) {
		var evt protocol.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			logger.Warn("skipping malformed event", slog.String("subject", subject), slog.String("error", err.Error()))
			return
		}
		if args.session != "" && evt.SessionID != args.session {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		printEvent(out, evt)
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	<-ctx.Done()
	return nil
}

func printEvent(w io.Writer, evt protocol.Event) {
	line := fmt.Sprintf("%s %-24s %s", evt.Timestamp.UTC().Format(time.RFC3339Nano), evt.Type, evt.SessionID)
	if evt.Recording != "" {
		line += " " + evt.Recording
	}
	if evt.State != "" {
		line += " state=" + evt.State
	}
	fmt.Fprintln(w, line)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
