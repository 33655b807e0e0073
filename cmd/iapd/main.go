package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/golang/glog"

	"iap-coordinator/internal/cache"
	"iap-coordinator/internal/config"
	"iap-coordinator/internal/dispatch"
	"iap-coordinator/internal/handler"
	"iap-coordinator/internal/iap"
	"iap-coordinator/internal/middleware"
	"iap-coordinator/internal/platform"
	"iap-coordinator/internal/repository"
	"iap-coordinator/internal/router"
	"iap-coordinator/internal/service"
)

type platformBinding struct {
	payments     iap.PaymentQueue
	catalog      iap.Catalog
	events       []iap.EventSource
	reachability iap.Reachability
	conn         handler.Connectivity
	close        func()
}

func main() {
	_ = flag.Set("logtostderr", "true")
	flag.Parse()
	defer glog.Flush()

	glog.Info("Starting IAP coordinator...")

	// Load configuration
	cfg := config.MustLoad()
	glog.Infof("Environment: %s", cfg.App.Environment)

	backend, err := repository.Open(&cfg.Storage)
	if err != nil {
		glog.Fatalf("Failed to initialize %s storage: %v", cfg.Storage.Type, err)
	}
	defer backend.Close()
	glog.Infof("%s storage initialized", cfg.Storage.Type)

	pb, err := bindPlatform(&cfg.Platform)
	if err != nil {
		glog.Fatalf("Failed to initialize platform: %v", err)
	}
	defer pb.close()

	products := cache.NewMemoryCache(cfg.Purchase.CatalogCacheTTL, 0)
	defer products.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Every completion callback runs on this one goroutine.
	completions := dispatch.NewSerial()
	completions.Start(ctx)

	coord, err := iap.NewCoordinator(ctx, iap.Config{
		Payments:          pb.payments,
		Catalog:           pb.catalog,
		Events:            pb.events,
		Reachability:      pb.reachability,
		Store:             iap.NewPurchaseStore(backend, cfg.Storage.Location),
		Products:          products,
		Executor:          completions,
		ShortCircuitOwned: cfg.Purchase.ShortCircuitOwned,
	})
	if err != nil {
		glog.Fatalf("Failed to initialize coordinator: %v", err)
	}

	expiry := service.NewExpiryScheduler(coord, service.ExpiryConfig{
		MaxAge:   cfg.Purchase.PendingTTL,
		Interval: cfg.Purchase.SweepInterval,
	})
	expiry.Start()

	// Initialize handlers
	var storage handler.StorageDescriber
	if d, ok := backend.(repository.Describer); ok {
		storage = d
	}
	healthHandler := handler.New(cfg.App.Name, cfg.App.Version, pb.conn)
	purchaseHandler := handler.NewPurchaseHandler(coord, cfg.Server.RequestWait)
	adminHandler := handler.NewAdminHandler(coord, storage, cfg.Storage.Type, completions)

	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		APIKeys:  cfg.App.APIKeys,
		AdminKey: cfg.App.AdminKey,
	})

	r := router.New(router.Config{
		Handler:         healthHandler,
		PurchaseHandler: purchaseHandler,
		AdminHandler:    adminHandler,
		AuthMiddleware:  authMiddleware,
		CORSOrigins:     cfg.App.CORSOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		glog.Infof("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("Server shutdown error: %v", err)
	}

	expiry.Stop()

	// Detach from the platform and save purchases before the store goes away.
	if err := coord.Close(shutdownCtx); err != nil {
		glog.Errorf("Coordinator close error: %v", err)
	}
	if !completions.Drain(shutdownCtx) {
		glog.Warningf("%d completion callbacks still queued at shutdown", completions.Pending())
	}
	completions.Stop()

	glog.Info("Server stopped")
}

// bindPlatform builds the platform binding selected by cfg.
func bindPlatform(cfg *config.PlatformConfig) (*platformBinding, error) {
	pb := &platformBinding{close: func() {}}

	switch strings.ToLower(cfg.Mode) {
	case "nats":
		bridge, err := platform.NewBridge(platform.BridgeConfig{
			URL:             cfg.NATSURL(),
			Username:        cfg.NATSUsername,
			Password:        cfg.NATSPassword,
			SubjectPrefix:   cfg.SubjectPrefix,
			PaymentsEnabled: cfg.PaymentsEnabled,
		})
		if err != nil {
			return nil, err
		}
		pb.payments = bridge
		pb.catalog = bridge
		pb.events = []iap.EventSource{bridge}
		pb.conn = bridge
		pb.close = func() {
			if err := bridge.Close(); err != nil {
				glog.Errorf("NATS close error: %v", err)
			}
		}
		glog.Info("NATS platform bridge initialized")

	default:
		sb := platform.NewSandbox(platform.SandboxConfig{
			Products:        platform.ParseSandboxProducts(cfg.SandboxProducts),
			PaymentsEnabled: cfg.PaymentsEnabled,
			Delay:           cfg.SandboxDelay,
		})
		pb.payments = sb
		pb.catalog = sb
		pb.events = []iap.EventSource{sb}
		pb.reachability = sb
		pb.conn = sb
		glog.Warning("Using the in-memory platform sandbox")
	}

	if strings.ToLower(cfg.CatalogMode) == "http" {
		hc := platform.NewHTTPCatalog(cfg.CatalogURL, cfg.CatalogTimeout)
		pb.catalog = hc
		pb.events = append(pb.events, hc)
	}

	if pb.reachability == nil && !cfg.ProbeDisabled {
		pb.reachability = platform.NewHostProbe(cfg.StorefrontHost, cfg.ProbeTimeout)
	}
	return pb, nil
}
