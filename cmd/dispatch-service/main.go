package main

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"blesaf/dispatch-service/internal/alerts"
	"blesaf/dispatch-service/internal/config"
	"blesaf/dispatch-service/internal/counters"
	"blesaf/dispatch-service/internal/dispatch"
	"blesaf/dispatch-service/internal/httpapi"
	"blesaf/dispatch-service/internal/hub"
	"blesaf/dispatch-service/internal/models"
	"blesaf/dispatch-service/internal/notify"
	"blesaf/dispatch-service/internal/sequence"
	"blesaf/dispatch-service/internal/store"
	"blesaf/dispatch-service/internal/store/memory"
	"blesaf/dispatch-service/internal/store/postgres"
	"blesaf/dispatch-service/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("dispatch-service", cfg.OTLPEndpoint, cfg.OTLPInsecure)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	registry := counters.NewRegistry()

	var ticketStore store.TicketStore
	if cfg.DatabaseURL != "" {
		pg, err := postgres.NewStore(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pg.Close()
		ticketStore = pg
		seeded, err := pg.LoadCounters(context.Background())
		if err != nil {
			log.Fatalf("load counters: %v", err)
		}
		for _, counter := range seeded {
			registry.SeedCounter(counter)
		}
	} else {
		ms := memory.NewStore()
		seedDemo(ms, registry)
		ticketStore = ms
		log.Printf("level=warn msg=\"DB_DSN not set, using in-memory store with demo data\"")
	}

	var numbers sequence.Allocator
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		numbers = sequence.NewRedisAllocator(client)
	} else {
		numbers = sequence.NewMemoryAllocator()
	}

	h := hub.NewHub(cfg.HubSendBuffer)
	expvar.Publish("realtime_clients", expvar.Func(func() any { return h.ClientCount() }))

	notifier := notify.NewDispatcher(notify.LogSender{}, cfg.NotifyBuffer)
	notifyCtx, stopNotifier := context.WithCancel(context.Background())
	defer stopNotifier()
	go notifier.Run(notifyCtx)

	thresholds := alerts.Thresholds{
		LongWaitMins:   cfg.LongWaitMins,
		QueueWarning:   cfg.QueueWarningDepth,
		QueueCritical:  cfg.QueueCriticalDepth,
		SlowTellerMins: cfg.SlowTellerMins,
	}
	engine := dispatch.NewEngine(ticketStore, registry, numbers, h, notifier, thresholds)

	mux := http.NewServeMux()
	httpapi.NewHandler(engine).Register(mux)
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", newRealtimeHandler(h))

	limiter := httpapi.NewRateLimiter(cfg.RateLimitBurst, float64(cfg.RateLimitPerMinute)/60)
	handler := otelhttp.NewHandler(httpapi.WithLogging(limiter.Middleware(mux)), "dispatch-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler := cron.New()
	if cfg.AlertInterval > 0 {
		spec := "@every " + cfg.AlertInterval.String()
		if _, err := scheduler.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, branchID := range registry.Branches() {
				engine.EvaluateAlerts(ctx, branchID)
			}
		}); err != nil {
			log.Printf("alert schedule error: %v", err)
		}
	}
	if cfg.AutoOpenCron != "" {
		if _, err := scheduler.AddFunc(cfg.AutoOpenCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, branchID := range registry.Branches() {
				engine.AutoOpenQueue(ctx, branchID)
			}
		}); err != nil {
			log.Printf("auto-open schedule error: %v", err)
		}
	}
	if cfg.AutoCloseCron != "" {
		if _, err := scheduler.AddFunc(cfg.AutoCloseCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			for _, branchID := range registry.Branches() {
				if cancelled, err := engine.AutoCloseQueue(ctx, branchID); err != nil {
					log.Printf("auto-close error: branch=%s err=%v", branchID, err)
				} else {
					log.Printf("level=info msg=\"queue auto-closed\" branch=%s cancelled=%d", branchID, cancelled)
				}
			}
		}); err != nil {
			log.Printf("auto-close schedule error: %v", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	go func() {
		log.Printf("dispatch-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// newRealtimeHandler bridges SockJS sessions to the hub. Clients send
// subscribe/unsubscribe messages; events arrive as JSON envelopes.
func newRealtimeHandler(h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		clientID := uuid.NewString()
		client := h.Register(clientID)
		defer h.Unregister(clientID)

		go func() {
			for event := range client.Send {
				payload, err := json.Marshal(event)
				if err != nil {
					continue
				}
				if err := session.Send(string(payload)); err != nil {
					return
				}
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			action, rooms, err := hub.ParseSubscribe([]byte(msg))
			if err != nil || len(rooms) == 0 {
				continue
			}
			for _, room := range rooms {
				if action == "unsubscribe" {
					h.Unsubscribe(clientID, room)
				} else {
					h.Subscribe(clientID, room)
				}
			}
		}
	})
}

// seedDemo populates the in-memory store and registry so the service is
// usable without a database. Overridable through BRANCH_ID.
func seedDemo(ms *memory.Store, registry *counters.Registry) {
	branchID := strings.TrimSpace(os.Getenv("BRANCH_ID"))
	if branchID == "" {
		branchID = "branch-demo"
	}
	ms.SeedService(models.Service{ServiceID: "svc-deposits", BranchID: branchID, Name: "Deposits & Withdrawals", Prefix: "A", AvgServiceMins: 5, Active: true})
	ms.SeedService(models.Service{ServiceID: "svc-accounts", BranchID: branchID, Name: "Account Services", Prefix: "B", AvgServiceMins: 10, Active: true})
	ms.SeedService(models.Service{ServiceID: "svc-loans", BranchID: branchID, Name: "Loans & Credit", Prefix: "C", AvgServiceMins: 20, Active: true})
	registry.SeedCounter(models.Counter{CounterID: "counter-1", BranchID: branchID, Number: 1, Status: models.CounterOpen})
	registry.SeedCounter(models.Counter{CounterID: "counter-2", BranchID: branchID, Number: 2, Status: models.CounterOpen})
	registry.SeedCounter(models.Counter{CounterID: "counter-3", BranchID: branchID, Number: 3, Status: models.CounterClosed, ServiceIDs: []string{"svc-loans"}})
}
