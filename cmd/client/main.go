package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Meet/internal/adapters/capture"
	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/rtc"
	gateway "github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/layout"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
)

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "client",
		Short:         "Join a mesh video room and serve the local control API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				log.Error().Err(err).Msg("failed to load config")
				return err
			}
			if err := run(ctx, cfg); err != nil {
				log.Error().Err(err).Msg("session ended with error")
				return err
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("room", "", "room token")
	f.String("user", "", "local participant id (random when empty)")
	f.String("name", "", "display name")
	f.String("signal", "", "relay websocket url")
	f.String("listen", "", "control API address")
	f.String("log-level", "", "log level")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	zerolog.SetGlobalLevel(cfg.Level())
	cfg.OnChange(func(next *config.Config) {
		zerolog.SetGlobalLevel(next.Level())
	})

	userID := domain.UserID(cfg.UserID)
	if userID == "" {
		userID = domain.NewUserID()
	}
	if err := domain.ValidateUsername(cfg.Username); err != nil {
		return fmt.Errorf("username: %w", err)
	}
	room := domain.Room{Token: domain.RoomToken(cfg.RoomToken), LocalID: userID}

	device, err := capture.New(capture.Options{})
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	factory, err := rtc.NewFactory(rtc.Config{
		ICEServers: cfg.ICEServers,
		MediaSetup: device.MediaSetup,
	})
	if err != nil {
		return fmt.Errorf("webrtc: %w", err)
	}
	client, err := gateway.Dial(ctx, gateway.Options{
		URL:          cfg.SignalURL,
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		ChatLimit:    cfg.Chat.Limit,
		ChatInterval: cfg.Chat.Interval,
	})
	if err != nil {
		return err
	}

	// The session outlives ctx long enough to leave the room cleanly.
	sessionCtx, stopSession := context.WithCancel(context.Background())
	defer stopSession()

	loop := app.NewLoop()
	board := router.NewBoard(0)
	o := orch.New(sessionCtx, orch.Params{
		Room:           room,
		Username:       cfg.Username,
		Gateway:        client,
		Conns:          factory,
		Capture:        device,
		Renderer:       board,
		Policy:         app.TolerantPolicy{Transient: []error{gateway.ErrBackpressure}},
		Loop:           loop,
		ConnectTimeout: cfg.ConnectTimeout,
		Sampling: layout.SamplerConfig{
			Interval:  cfg.Speaking.Interval,
			Threshold: cfg.Speaking.Threshold,
			Window:    cfg.Speaking.Window,
		},
	})

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: router.SetupRouter(cfg, o, board),
	}

	log.Info().Str("addr", cfg.Listen).Msg("control API started")
	s := &session{orch: o, loop: loop, events: client, srv: srv}
	return s.serve(ctx, sessionCtx, stopSession)
}
