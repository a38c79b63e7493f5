package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/core"
)

const shutdownTimeout = 5 * time.Second

type server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type eventSource interface {
	Run(ctx context.Context, handle func(core.GatewayEvent)) error
	Close()
}

// session owns the goroutines of one joined room.
type session struct {
	orch   *orch.Orchestrator
	loop   *app.Loop
	events eventSource
	srv    server
}

// serve joins the room and blocks until ctx ends or a component fails.
// The loop runs on the session context, not the errgroup's, so that a
// failing gateway still leaves the room and releases local media.
func (s *session) serve(ctx, sessionCtx context.Context, stopSession context.CancelFunc) error {
	g, gctx := errgroup.WithContext(sessionCtx)
	g.Go(func() error {
		s.loop.Run(sessionCtx)
		return nil
	})
	g.Go(func() error {
		return s.events.Run(gctx, s.orch.OnGatewayEvent)
	})
	g.Go(func() error {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		joinErr := s.orch.Join(gctx)
		if joinErr == nil {
			log.Info().Str("room", string(s.orch.Room.Token)).Str("user", string(s.orch.Room.LocalID)).Msg("joined")
			select {
			case <-ctx.Done():
				log.Info().Msg("Shutting down")
			case <-gctx.Done():
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.orch.Leave(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("leave did not complete")
		}
		s.events.Close()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		stopSession()
		return joinErr
	})

	err := g.Wait()
	log.Info().Msg("Client exited gracefully")
	return err
}
