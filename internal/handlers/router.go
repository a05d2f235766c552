package handlers

import (
	"net/http"

	"wagerbook/internal/config"
	"wagerbook/internal/db"
	"wagerbook/internal/metrics"
	"wagerbook/internal/middleware"
	"wagerbook/internal/store"
	"wagerbook/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	reconcileDB store.Selecter
	txRunner    db.TxRunner
	cfg         config.Config
	users       UserStore
	admin       AdminStore
	audit       AuditStore
	wallet      WalletService
	bets        BetService
	markets     MarketService
	cashouts    CashoutService
	actions     AdminService
	settlement  SettlementService
	pool        PoolService
	hub         *websocket.Hub
}

func New(reconcileDB store.Selecter, txRunner db.TxRunner, cfg config.Config, users UserStore, admin AdminStore, audit AuditStore, wallet WalletService, bets BetService, markets MarketService, cashouts CashoutService, actions AdminService, settlement SettlementService, pool PoolService, hub *websocket.Hub) *Handler {
	return &Handler{
		reconcileDB: reconcileDB,
		txRunner:    txRunner,
		cfg:         cfg,
		users:       users,
		admin:       admin,
		audit:       audit,
		wallet:      wallet,
		bets:        bets,
		markets:     markets,
		cashouts:    cashouts,
		actions:     actions,
		settlement:  settlement,
		pool:        pool,
		hub:         hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(metrics.Middleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})

	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/wallet", h.GetWallet)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/wallet/ledger", h.ListLedger)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/wallet/purchase", h.Purchase)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/wallet/self-check", h.SelfCheck)

	router.Get("/markets", h.ListMarkets)
	router.Get("/markets/{id}", h.GetMarket)

	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/bets", h.PlaceBet)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/bets/{id}/cancel", h.CancelBet)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/bets", h.ListBets)

	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/cashouts", h.RequestCashout)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/cashouts/{id}/cancel", h.CancelCashout)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/cashouts", h.ListCashouts)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/cashouts/{id}", h.GetCashout)

	router.Get("/ws/wallet", h.WSWallet)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleManageMarkets)).Post("/markets", h.CreateMarket)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleManageMarkets)).Put("/markets/{id}/lines", h.UpdateLines)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleManageMarkets)).Post("/markets/{id}/result", h.PostResult)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleManageMarkets)).Post("/markets/{id}/active", h.SetMarketActive)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleSettle)).Post("/markets/{id}/settle", h.SettleMarket)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleSettle)).Post("/settlements/run", h.RunSettlements)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleAdjustWallets)).Post("/actions", h.ApplyAction)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleAdjustWallets)).Get("/actions/{userID}", h.ListActions)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleReviewCashouts)).Get("/cashouts", h.CashoutQueue)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleReviewCashouts)).Get("/cashouts/{id}/detail", h.CashoutDetail)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleReviewCashouts)).Post("/cashouts/{id}/approve", h.ApproveCashout)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleReviewCashouts)).Post("/cashouts/{id}/reject", h.RejectCashout)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleReviewCashouts)).Post("/cashouts/{id}/process", h.ProcessCashout)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleReviewCashouts)).Post("/cashouts/{id}/complete", h.CompleteCashout)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleReviewCashouts)).Post("/cashouts/{id}/fail", h.FailCashout)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/roles/grant", h.GrantRole)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/promote", h.PromoteAdmin)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleViewLedger)).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, middleware.RoleViewLedger)).Get("/reconcile", h.Reconcile)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", metrics.Handler())
	return router
}
