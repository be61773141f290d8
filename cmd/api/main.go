package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockpledge/internal/accessgate"
	"stockpledge/internal/admin"
	"stockpledge/internal/audit"
	"stockpledge/internal/auth"
	"stockpledge/internal/config"
	"stockpledge/internal/db"
	"stockpledge/internal/execution"
	"stockpledge/internal/health"
	"stockpledge/internal/httpserver"
	"stockpledge/internal/logging"
	"stockpledge/internal/model"
	"stockpledge/internal/payments"
	"stockpledge/internal/pledges"
	"stockpledge/internal/sessions"
	"stockpledge/internal/statspoll"
	"stockpledge/internal/stream"
	"stockpledge/internal/types"
)

func main() {
	startedAt := time.Now().UTC()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	flush, err := logging.Setup(cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer flush()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		zap.L().Fatal("database connect failed", zap.Error(err))
	}
	defer pool.Close()

	bus := stream.NewBus()
	auditSvc := audit.NewService(pool)
	sessionsStore := sessions.NewStore(pool)
	accessStore := accessgate.NewPostgresStore(pool, auditSvc)
	accessSvc := accessgate.NewService(accessStore)
	pledgeStore := pledges.NewPostgresStore(pool, auditSvc)
	provider := payments.NewSimulatedProvider()
	workflow := pledges.NewWorkflow(pledgeStore, sessionsStore, accessSvc, provider, auditSvc, cfg.DisclosureVer)
	execStore := execution.NewPostgresStore(pool)
	engine := execution.NewEngine(execStore, sessionsStore, bus)
	authSvc := auth.NewService(pool, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:      auth.NewHandler(authSvc),
		AccessHandler:    accessgate.NewHandler(accessSvc),
		SessionsHandler:  sessions.NewHandler(sessionsStore, bus),
		PledgeHandler:    pledges.NewHandler(workflow, pledgeStore),
		ExecutionHandler: execution.NewHandler(engine, execStore),
		AuditHandler:     audit.NewHandler(auditSvc),
		AdminHandler:     admin.NewHandler(pool, cfg.AdminJWTSecret),
		HealthHandler:    health.NewHandler(pool, startedAt, cfg.Env, cfg.HTTPAddr, cfg.InternalToken),
		AuthService:      authSvc,
		AdminJWTSecret:   cfg.AdminJWTSecret,
		WSHandler:        httpserver.NewWSHandler(bus, authSvc, cfg.WebSocketOrigin),
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// Background stats poller: pushes fresh aggregates to websocket clients
	// and backs off while sessions are quiet.
	poller := statspoll.New(func(ctx context.Context) ([]byte, error) {
		return collectActiveStats(ctx, sessionsStore)
	}, func(data []byte) {
		bus.Publish(stream.Event{Type: stream.EventSessionStats, Data: json.RawMessage(data)})
	})
	go poller.Run(ctx)

	zap.L().Info("server listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zap.L().Fatal("server stopped", zap.Error(err))
	}
}

// collectActiveStats snapshots the aggregates of every active session as a
// stable JSON document so the poller's change detection stays meaningful.
func collectActiveStats(ctx context.Context, store *sessions.Store) ([]byte, error) {
	active, err := store.List(ctx, types.SessionStatusActive)
	if err != nil {
		return nil, err
	}
	all := make([]model.SessionStats, 0, len(active))
	for _, sess := range active {
		stats, err := store.Stats(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, stats)
	}
	return encodeStatsSnapshot(all)
}

// statsSnapshot carries only the aggregates. Per-call fields such as the
// computation timestamp would make every snapshot hash differently and pin
// the poller at its minimum interval.
type statsSnapshot struct {
	UniquePledgers   int             `json:"unique_pledgers_count"`
	TotalPledges     int             `json:"total_pledges"`
	TotalPledgeValue decimal.Decimal `json:"total_pledge_value"`
	BuyCount         int             `json:"buy_count"`
	SellCount        int             `json:"sell_count"`
	FillPercentage   decimal.Decimal `json:"fill_percentage"`
}

func encodeStatsSnapshot(all []model.SessionStats) ([]byte, error) {
	out := make(map[string]statsSnapshot, len(all))
	for _, st := range all {
		out[st.SessionID] = statsSnapshot{
			UniquePledgers:   st.UniquePledgers,
			TotalPledges:     st.TotalPledges,
			TotalPledgeValue: st.TotalPledgeValue,
			BuyCount:         st.BuyCount,
			SellCount:        st.SellCount,
			FillPercentage:   st.FillPercentage,
		}
	}
	return json.Marshal(out)
}
