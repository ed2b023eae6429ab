package routes

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remitlend/core"
	"remitlend/gateway/middleware"
	"remitlend/indexer"
)

// EventIndex answers history queries. The indexer implements it.
type EventIndex interface {
	Events(ctx context.Context, f indexer.Filter) ([]indexer.Event, error)
}

// StreamConfig tunes /ws/events.
type StreamConfig struct {
	Buffer       int
	WriteTimeout time.Duration
	// OriginPatterns are the websocket origins accepted besides same-host.
	OriginPatterns []string
}

type Config struct {
	Protocol       *core.Protocol
	Index          EventIndex
	Authenticator  *middleware.Authenticator
	RateLimiter    *middleware.RateLimiter
	Observability  *middleware.Observability
	CORS           middleware.CORSConfig
	Stream         StreamConfig
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type handlers struct {
	protocol *core.Protocol
	index    EventIndex
	stream   StreamConfig
	logger   *slog.Logger
}

// New builds the gateway router over an in-process protocol.
func New(cfg Config) (http.Handler, error) {
	if cfg.Protocol == nil {
		return nil, errors.New("routes: protocol required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Stream.Buffer <= 0 {
		cfg.Stream.Buffer = 64
	}
	if cfg.Stream.WriteTimeout <= 0 {
		cfg.Stream.WriteTimeout = 5 * time.Second
	}
	h := &handlers{protocol: cfg.Protocol, index: cfg.Index, stream: cfg.Stream, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware)
	}

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Authenticator != nil {
			r.Use(cfg.Authenticator.Middleware)
		}
		r.Get("/ws/events", h.streamEvents)

		r.Route("/v1", func(r chi.Router) {
			if cfg.RequestTimeout > 0 {
				r.Use(chimw.Timeout(cfg.RequestTimeout))
			}
			r.Group(func(r chi.Router) {
				if cfg.RateLimiter != nil {
					r.Use(cfg.RateLimiter.Middleware("read"))
				}
				h.mountReads(r)
			})
			r.Group(func(r chi.Router) {
				if cfg.RateLimiter != nil {
					r.Use(cfg.RateLimiter.Middleware("write"))
				}
				h.mountWrites(r)
			})
		})
	})
	return r, nil
}

func (h *handlers) mountReads(r chi.Router) {
	r.Get("/protocol", h.getInfo)
	r.Get("/pool", h.getPool)
	r.Get("/pool/lenders", h.listLenders)
	r.Get("/pool/lenders/{address}", h.getLender)
	r.Get("/asset/balances/{address}", h.getBalance)
	r.Get("/asset/allowances/{owner}/{spender}", h.getAllowance)
	r.Get("/loans", h.listLoans)
	r.Get("/loans/{id}", h.getLoan)
	r.Get("/collateral", h.listCollateral)
	r.Get("/collateral/{id}", h.getCollateral)
	r.Get("/verifications/{address}", h.getVerification)
	r.Get("/oracle/operators", h.listOperators)
	r.Get("/oracle/monitoring/{loanId}", h.getMonitoring)
	r.Get("/admin/pauses", h.getPauses)
	r.Get("/events", h.listEvents)
}

func (h *handlers) mountWrites(r chi.Router) {
	r.Post("/asset/mint", h.mint)
	r.Post("/asset/transfers", h.transfer)
	r.Post("/asset/approvals", h.approve)
	r.Post("/pool/deposits", h.deposit)
	r.Post("/pool/withdrawals", h.withdraw)
	r.Post("/pool/lenders/{address}/settle", h.settleInterest)
	r.Post("/loans", h.requestLoan)
	r.Post("/loans/{id}/approve", h.approveLoan)
	r.Post("/loans/{id}/payments", h.makePayment)
	r.Post("/collateral/{id}/transfer", h.transferCollateral)
	r.Post("/verifications", h.requestVerification)
	r.Post("/verifications/{address}/attestations", h.submitVerification)
	r.Post("/verifications/{address}/rejection", h.rejectVerification)
	r.Post("/oracle/remittances", h.reportRemittance)
	r.Post("/oracle/missed-payments", h.reportMissedPayment)
	r.Post("/oracle/operators", h.addOperator)
	r.Delete("/oracle/operators/{address}", h.removeOperator)
	r.Put("/admin/pauses/{module}", h.setPaused)
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sequence": h.protocol.Sequence(),
	})
}
