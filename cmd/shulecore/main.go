package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/shulecore/shulecore/pkg/async"
	"github.com/shulecore/shulecore/pkg/audit"
	"github.com/shulecore/shulecore/pkg/auth"
	"github.com/shulecore/shulecore/pkg/config"
	"github.com/shulecore/shulecore/pkg/enrollment"
	"github.com/shulecore/shulecore/pkg/finance"
	"github.com/shulecore/shulecore/pkg/observability"
	"github.com/shulecore/shulecore/pkg/rbac"
	"github.com/shulecore/shulecore/pkg/storage/postgres"
	"github.com/shulecore/shulecore/pkg/tenants"
)

const tokenIssuer = "shulecore"

func main() {
	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "shulecore: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "create-tenant":
		err = createTenant(ctx, cfg, logger, args)
	case "create-user":
		err = createUser(ctx, cfg, logger, args)
	case "assign-role":
		err = assignRole(ctx, cfg, logger, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		fmt.Fprintln(os.Stderr, "usage: shulecore [serve|create-tenant|create-user|assign-role]")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "shulecore %s: %v\n", command, err)
		os.Exit(1)
	}
}

// app holds the wired-up service graph shared by serve and the admin
// commands.
type app struct {
	db       *sql.DB
	metrics  *observability.Metrics
	registry *prometheus.Registry
	recorder *audit.AsyncRecorder

	tenantStore     *tenants.Store
	authStore       *auth.Store
	auditStore      *audit.Store
	enrollmentStore *enrollment.Store
	financeStore    *finance.Store

	tenantService     *tenants.Service
	tenantResolver    *tenants.Resolver
	rbacStore         *rbac.Store
	rbacService       *rbac.Service
	guard             *rbac.Guard
	authService       *auth.Service
	financeService    *finance.Service
	enrollmentService *enrollment.Service

	closeRedis func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*app, error) {
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	a := &app{
		db:              db,
		metrics:         metrics,
		registry:        registry,
		tenantStore:     tenants.NewStore(db),
		authStore:       auth.NewStore(db),
		auditStore:      audit.NewStore(db),
		enrollmentStore: enrollment.NewStore(db),
		financeStore:    finance.NewStore(db),
		rbacStore:       rbac.NewStore(db),
	}

	// Schema setup. Later packages reference earlier tables, so the order
	// matters: tenants before auth/rbac, enrollments before invoices.
	for _, migrate := range []func(context.Context) error{
		a.tenantStore.Migrate,
		a.authStore.Migrate,
		func(ctx context.Context) error { return rbac.Migrate(ctx, db) },
		func(ctx context.Context) error { return rbac.Seed(ctx, db) },
		a.auditStore.Migrate,
		a.enrollmentStore.Migrate,
		a.financeStore.Migrate,
	} {
		if err := migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	a.recorder = audit.NewAsyncRecorder(ctx, a.auditStore, logger, audit.RecorderOptions{
		QueueSize:    cfg.Audit.QueueSize,
		WriteTimeout: cfg.Audit.WriteTimeout,
		OnEvent:      metrics.AuditEventsTotal.Inc,
		OnDrop:       metrics.AuditEventsDroppedTotal.Inc,
		OnDepth:      func(depth int) { metrics.AuditQueueDepth.Set(float64(depth)) },
	})

	var cache *tenants.ResolutionCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, tenant resolution cache disabled")
			client.Close()
		} else {
			cache = tenants.NewResolutionCache(client)
			a.closeRedis = client.Close
		}
	}

	a.tenantService = tenants.NewService(a.tenantStore, cache, a.recorder)
	a.tenantResolver = tenants.NewResolver(a.tenantStore, cache)

	resolver := rbac.NewResolver(a.rbacStore, metrics.PermissionResolvesTotal.Inc)
	a.guard = rbac.NewGuard(resolver, a.rbacStore, func(code string) {
		metrics.PermissionDenialsTotal.WithLabelValues(code).Inc()
	})
	a.rbacService = rbac.NewService(a.rbacStore, a.recorder)

	codec := auth.NewCodec(cfg.Auth.JWTSecret, tokenIssuer, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	a.authService = auth.NewService(a.authStore, a.rbacStore, resolver, codec, a.recorder, auth.Hooks{
		OnLogin: func(success bool) {
			metrics.LoginAttemptsTotal.WithLabelValues(outcome(success)).Inc()
		},
		OnRefresh: func(success bool) {
			metrics.TokenRefreshesTotal.WithLabelValues(outcome(success)).Inc()
		},
		OnRevoke: metrics.SessionsRevokedTotal.Inc,
	})

	a.financeService = finance.NewService(a.financeStore, a.recorder, logger, finance.Hooks{
		OnPaymentRecorded: func(provider string) {
			metrics.PaymentsRecordedTotal.WithLabelValues(provider).Inc()
		},
		OnPaymentRejected: func(reason string) {
			metrics.PaymentsRejectedTotal.WithLabelValues(reason).Inc()
		},
		OnInvoiceCreated: func(invoiceType string) {
			metrics.InvoicesCreatedTotal.WithLabelValues(invoiceType).Inc()
		},
	})
	a.enrollmentService = enrollment.NewService(a.enrollmentStore, a.financeService, a.recorder, enrollment.Hooks{
		OnTransition: func(to enrollment.Status) {
			metrics.EnrollmentTransitionsTotal.WithLabelValues(string(to)).Inc()
		},
		OnGuardFail: func(transition string) {
			metrics.EnrollmentGuardFailsTotal.WithLabelValues(transition).Inc()
		},
	})

	return a, nil
}

func (a *app) close(flushWait time.Duration) {
	a.recorder.Shutdown(flushWait)
	if a.closeRedis != nil {
		a.closeRedis()
	}
	a.db.Close()
}

func serve(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(cfg.Audit.WriteTimeout)
	logger.Info("database schema ready")

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Auth.SessionSweepCron, func() {
		async.SafeGo(ctx, time.Minute, "session sweep", func(ctx context.Context) error {
			swept, err := a.authStore.DeleteExpiredSessions(ctx, cfg.Auth.RefreshTTL)
			if err != nil {
				return err
			}
			a.metrics.SessionsSweptTotal.Add(float64(swept))
			logger.WithField("count", swept).Info("swept expired sessions")
			return nil
		})
	}); err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	group, groupCtx := errgroup.WithContext(ctx)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := postgres.HealthCheck(r.Context(), a.db, 2*time.Second); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.Handler(a.registry))
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	group.Go(func() error {
		logger.WithField("addr", server.Addr).Info("ops listener started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				a.metrics.UpdateDBStats(a.db)
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("shulecore started")
	return group.Wait()
}

func createTenant(ctx context.Context, cfg *config.Config, logger *observability.Logger, args []string) error {
	flags := flag.NewFlagSet("create-tenant", flag.ExitOnError)
	name := flags.String("name", "", "Display name of the school")
	slug := flags.String("slug", "", "Unique subdomain slug")
	domain := flags.String("domain", "", "Optional custom primary domain")
	flags.Parse(args)

	if *name == "" || *slug == "" {
		return fmt.Errorf("-name and -slug are required")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(cfg.Audit.WriteTimeout)

	req := tenants.CreateTenantRequest{Name: *name, Slug: *slug}
	if *domain != "" {
		req.PrimaryDomain = domain
	}
	tenant, err := a.tenantService.Create(ctx, uuid.Nil, req)
	if err != nil {
		return err
	}
	fmt.Printf("created tenant %s (%s)\n", tenant.ID, tenant.Slug)
	return nil
}

func createUser(ctx context.Context, cfg *config.Config, logger *observability.Logger, args []string) error {
	flags := flag.NewFlagSet("create-user", flag.ExitOnError)
	email := flags.String("email", "", "Login email")
	password := flags.String("password", "", "Initial password")
	fullName := flags.String("name", "", "Optional full name")
	tenantFlag := flags.String("tenant", "", "Optional tenant UUID to grant membership in")
	flags.Parse(args)

	if *email == "" || *password == "" {
		return fmt.Errorf("-email and -password are required")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(cfg.Audit.WriteTimeout)

	hash, err := auth.HashPassword(*password, cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	var namePtr *string
	if *fullName != "" {
		namePtr = fullName
	}
	user, err := a.authStore.CreateUser(ctx, *email, hash, namePtr, nil)
	if err != nil {
		return err
	}

	if *tenantFlag != "" {
		tenantID, err := uuid.Parse(*tenantFlag)
		if err != nil {
			return fmt.Errorf("invalid -tenant: %w", err)
		}
		if err := a.authStore.UpsertMembership(ctx, tenantID, user.ID); err != nil {
			return err
		}
	}
	fmt.Printf("created user %s (%s)\n", user.ID, user.Email)
	return nil
}

func assignRole(ctx context.Context, cfg *config.Config, logger *observability.Logger, args []string) error {
	flags := flag.NewFlagSet("assign-role", flag.ExitOnError)
	userFlag := flags.String("user", "", "User UUID")
	role := flags.String("role", "", "Role code, e.g. DIRECTOR")
	tenantFlag := flags.String("tenant", "", "Tenant UUID; omit for a platform-wide role")
	flags.Parse(args)

	if *userFlag == "" || *role == "" {
		return fmt.Errorf("-user and -role are required")
	}
	userID, err := uuid.Parse(*userFlag)
	if err != nil {
		return fmt.Errorf("invalid -user: %w", err)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(cfg.Audit.WriteTimeout)

	if *tenantFlag == "" {
		if err := a.rbacService.AssignGlobalRole(ctx, uuid.Nil, userID, *role); err != nil {
			return err
		}
		fmt.Printf("assigned platform role %s to %s\n", *role, userID)
		return nil
	}

	tenantID, err := uuid.Parse(*tenantFlag)
	if err != nil {
		return fmt.Errorf("invalid -tenant: %w", err)
	}
	if err := a.rbacService.AssignRole(ctx, uuid.Nil, tenantID, userID, *role); err != nil {
		return err
	}
	fmt.Printf("assigned role %s to %s in tenant %s\n", *role, userID, tenantID)
	return nil
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
