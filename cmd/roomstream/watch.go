package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/raiich/roomstream/client"
	"github.com/raiich/roomstream/internal/config"
	"github.com/raiich/roomstream/internal/log"
	"github.com/raiich/roomstream/room"
	"github.com/raiich/roomstream/stream"
	"github.com/raiich/roomstream/stream/sse"
	"github.com/raiich/roomstream/stream/tcp"
	"github.com/raiich/roomstream/transcript"
)

type watchFlags struct {
	configPath  string
	envFiles    []string
	endpoint    string
	room        string
	transport   string
	dispatcher  string
	logLevel    string
	headers     map[string]string
	maxAttempts int
}

func newWatchCommand() *cobra.Command {
	flags := &watchFlags{}
	cmd := &cobra.Command{
		Use:   "watch [flags]",
		Short: "Print the messages of a room as they arrive",
		Long: `watch follows one room and prints its committed messages. Commands read from stdin:
  /join <room>   switch to another room
  /clear         forget the printed history
  /quit          exit

Settings are read from the config file, then ROOMSTREAM_* environment variables, then flags.

Example:
  roomstream watch --endpoint https://chat.example.com --room 42
  roomstream watch --config roomstream.yaml --transport tcp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "YAML config file")
	f.StringSliceVar(&flags.envFiles, "env-file", []string{".env"}, "env files loaded before the config")
	f.StringVar(&flags.endpoint, "endpoint", "", "stream endpoint base URL")
	f.StringVarP(&flags.room, "room", "r", "", "room to follow")
	f.StringVar(&flags.transport, "transport", "", "stream transport: sse or tcp")
	f.StringVar(&flags.dispatcher, "dispatcher", "", "callback dispatcher: async or mutex")
	f.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringToStringVarP(&flags.headers, "header", "H", nil, "extra request header, key=value")
	f.IntVar(&flags.maxAttempts, "max-attempts", 0, "reconnect attempts before giving up")
	return cmd
}

func loadConfig(cmd *cobra.Command, flags *watchFlags) (*config.Config, error) {
	config.LoadEnvFiles(flags.envFiles...)

	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.LoadFromFile(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("endpoint") {
		cfg.Endpoint = flags.endpoint
	}
	if f.Changed("room") {
		cfg.Room = flags.room
	}
	if f.Changed("transport") {
		cfg.Transport = flags.transport
	}
	if f.Changed("dispatcher") {
		cfg.Dispatcher = flags.dispatcher
	}
	if f.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if f.Changed("max-attempts") {
		cfg.Backoff.MaxAttempts = flags.maxAttempts
	}
	if len(flags.headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range flags.headers {
			cfg.Headers[k] = v
		}
	}
	return cfg, cfg.Validate()
}

func newTransport(cfg *config.Config) stream.Transport {
	logger := log.Default().With("transport", cfg.Transport)
	switch cfg.Transport {
	case "tcp":
		params := make(map[string][]byte, len(cfg.Headers))
		for k, v := range cfg.Headers {
			params[k] = []byte(v)
		}
		return tcp.NewTransport(tcp.WithExtraParams(params), tcp.WithLogger(logger))
	default:
		return sse.NewTransport(sse.WithHeaders(cfg.Headers), sse.WithLogger(logger))
	}
}

func runWatch(cmd *cobra.Command, flags *watchFlags) error {
	log.SetOutput(cmd.ErrOrStderr())
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	dispatcherType, err := room.ParseDispatcherType(cfg.Dispatcher)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := &printer{
		w:          cmd.OutOrStdout(),
		transcript: transcript.New(transcript.WithLimit(cfg.HistoryLimit)),
	}
	follower := &room.Follower{
		Endpoint: cfg.Endpoint,
		Settings: &room.Settings{Context: ctx, DispatcherType: dispatcherType},
		Options: []client.Option{
			client.WithTransport(newTransport(cfg)),
			client.WithBackoff(cfg.ClientBackoff()),
			client.WithLogger(log.Default()),
			client.WithTransitionHook(func(tr client.Transition) {
				log.Debug("subscription transition",
					"room", tr.Room, "from", tr.From, "to", tr.To, "attempt", tr.Attempt, "delay", tr.Delay, "error", tr.Err)
			}),
		},
		OnSnapshot: out.onSnapshot,
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.OnError(follower.Close(closeCtx))
	}()

	if cfg.Room == "" {
		out.printf("no room selected, use /join <room>\n")
	} else if err := follower.Follow(ctx, room.ID(cfg.Room)); err != nil {
		return err
	}

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed: keep following until interrupted
				lines = nil
				continue
			}
			quit, err := handleCommand(ctx, follower, out, line)
			if err != nil {
				out.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func handleCommand(ctx context.Context, follower *room.Follower, out *printer, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "/quit":
		return true, nil
	case "/clear":
		out.transcript.Clear()
		return false, nil
	case "/join":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /join <room>")
		}
		out.reset()
		return false, follower.Follow(ctx, room.ID(fields[1]))
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	log.OnError(scanner.Err())
}

// printer writes status changes and committed messages of the followed room.
type printer struct {
	mu         sync.Mutex
	w          io.Writer
	transcript *transcript.Transcript
	last       client.Snapshot
}

func (p *printer) onSnapshot(s client.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Room != p.last.Room || s.Status != p.last.Status || s.ErrorMessage != p.last.ErrorMessage {
		if s.ErrorMessage != "" {
			_, _ = fmt.Fprintf(p.w, "[%s] %s: %s\n", s.Room, s.Status, s.ErrorMessage)
		} else {
			_, _ = fmt.Fprintf(p.w, "[%s] %s\n", s.Room, s.Status)
		}
	}
	if ev := s.LatestEvent; ev != nil && ev != p.last.LatestEvent {
		if p.transcript.Apply(ev) && ev.IsFinal {
			_, _ = fmt.Fprintf(p.w, "[%s] > %s\n", s.Room, ev.TextValue())
		}
	}
	p.last = s
}

func (p *printer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcript.Clear()
	p.last = client.Snapshot{}
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, format, args...)
}
