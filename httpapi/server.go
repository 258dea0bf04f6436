package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"aviator/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"
)

// NewRouter builds the HTTP routes for the game
func NewRouter(game service.GameService, allowedOrigins []string) chi.Router {
	h := NewHandler(HandlerDeps{Game: game})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           60 * 15,
	}))

	r.Get("/health", h.Health)

	r.Route("/round", func(rr chi.Router) {
		rr.Get("/", h.CurrentRound)
		rr.Get("/stream", h.Stream)
		rr.Post("/start", h.StartRound)
	})
	r.Get("/rounds", h.RecentRounds)

	r.Route("/accounts/{accountID}", func(rr chi.Router) {
		rr.Put("/", h.OpenAccount)
		rr.Get("/balance", h.Balance)
		rr.Get("/history", h.BalanceHistory)
		rr.Get("/stats", h.Stats)
		rr.Post("/bets", h.PlaceBet)
		rr.Get("/bets", h.BetHistory)
		rr.Get("/bets/active", h.ActiveBet)
		rr.Post("/deposits", h.SubmitDeposit)
		rr.Get("/deposits", h.ListDeposits)
	})

	r.Post("/bets/{betID}/cashout", h.CashOut)
	r.Post("/deposits/{reference}/confirmations", h.ConfirmDeposit)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"duration":  time.Since(start),
			"requestID": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

// Server runs the HTTP adapter
type Server struct {
	srv *http.Server
}

// NewServer creates a server listening on addr
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down within shutdownTimeout
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	// streams observe request contexts, so they end when ctx does
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.srv.Addr).Info("HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	log.Info("HTTP server stopped")
	return nil
}
