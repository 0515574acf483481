package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"opsdeck.io/internal/audit"
	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/dashboard"
	"opsdeck.io/internal/httpapi"
	"opsdeck.io/internal/obs"
	"opsdeck.io/internal/store/pg"
	"opsdeck.io/internal/workspace"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	obs.Init()
	obs.InitAuthMetrics()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("OPSDECK_PG_DSN")
	if dsn == "" {
		log.Fatal("missing OPSDECK_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	accessSecret := os.Getenv("OPSDECK_JWT_SECRET")
	refreshSecret := os.Getenv("OPSDECK_JWT_REFRESH_SECRET")
	issuerOpts := []auth.IssuerOption{}
	if ttl := envDuration("OPSDECK_ACCESS_TTL"); ttl > 0 {
		issuerOpts = append(issuerOpts, auth.WithAccessTTL(ttl))
	}
	if ttl := envDuration("OPSDECK_REFRESH_TTL"); ttl > 0 {
		issuerOpts = append(issuerOpts, auth.WithRefreshTTL(ttl))
	}
	issuer, err := auth.NewIssuer(accessSecret, refreshSecret, issuerOpts...)
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}

	authSvc, err := auth.NewService(store.Users(), issuer)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	recorder, err := audit.NewRecorder(store.AuditLog())
	if err != nil {
		log.Fatalf("audit recorder: %v", err)
	}
	roleSvc, err := auth.NewRoleService(store.Roles(), store.Permissions(), recorder)
	if err != nil {
		log.Fatalf("role service: %v", err)
	}
	userSvc, err := auth.NewUserService(store.Users(), recorder)
	if err != nil {
		log.Fatalf("user service: %v", err)
	}
	dashSvc, err := dashboard.NewService(store.Dashboard())
	if err != nil {
		log.Fatalf("dashboard service: %v", err)
	}
	wsSvc, err := workspace.NewService(store.Teams(), store.Projects(), store.Tasks(), store.Documents(), recorder)
	if err != nil {
		log.Fatalf("workspace service: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		ReadyProbe:  httpapi.ReadyProbe{DB: store.DB()},
		Version:     version,
		CORSOrigins: splitList(os.Getenv("OPSDECK_CORS_ORIGINS")),
	}, authSvc, roleSvc, userSvc, wsSvc, store.AuditLog(), dashSvc)

	addr := os.Getenv("OPSDECK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting opsdeck-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

func envDuration(key string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return d
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
