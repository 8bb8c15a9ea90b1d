package main

import (
	"context"
	"database/sql"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wichananm65/recently-viewed/internal/config"
	"github.com/wichananm65/recently-viewed/internal/identity"
	"github.com/wichananm65/recently-viewed/internal/kvstore"
	"github.com/wichananm65/recently-viewed/internal/product"
	"github.com/wichananm65/recently-viewed/internal/recent"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db = mustOpenDB(cfg.DatabaseURL)
		defer db.Close()
	}

	store, closer := mustOpenStore(ctx, cfg, db)
	if closer != nil {
		defer closer.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := recent.NewMetrics(reg)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	app := fiber.New()
	setupCORS(app)
	app.Use(recover.New())
	app.Use(logger.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	app.Use(identity.Middleware(cfg.JWTSecret))

	registry := recent.NewRegistry(store, recent.WithMaxItems(cfg.RecentMaxItems), recent.WithMetrics(metrics))
	recentHandler := recent.NewHandler(registry)
	recentHandler.RegisterRoutes(app)

	productHandler := product.NewHandler(product.NewService(mustProductRepo(db)), recentHandler)
	productHandler.RegisterRoutes(app)

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	log.Infof("listening on %s (store=%s)", cfg.Addr, cfg.StoreBackend)
	if err := app.Listen(cfg.Addr); err != nil {
		log.Fatalf("listen: %v", err)
	}
}

func setupCORS(app *fiber.App) {
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,HEAD,DELETE",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, " + identity.DeviceHeader,
		ExposeHeaders: identity.DeviceHeader,
	}))
}

func mustOpenDB(dbURL string) *sql.DB {
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		panic(err)
	}

	if err := db.Ping(); err != nil {
		panic(err)
	}

	return db
}

// mustOpenStore builds the configured backend, optionally fronted by an LRU.
// The returned closer is nil for backends that hold no resources.
func mustOpenStore(ctx context.Context, cfg config.Config, db *sql.DB) (kvstore.Store, io.Closer) {
	var (
		store  kvstore.Store
		closer io.Closer
	)

	switch cfg.StoreBackend {
	case "memory":
		store = kvstore.NewMemoryStore(nil)
	case "file":
		fs, err := kvstore.OpenFileStore(cfg.StoreFile)
		if err != nil {
			log.Fatalf("file store: %v", err)
		}
		store, closer = fs, fs
	case "postgres":
		if db == nil {
			log.Fatal("STORE_BACKEND=postgres requires DATABASE_URL")
		}
		ps := kvstore.NewPostgresStore(db, cfg.KVTable)
		if err := ps.EnsureSchema(ctx); err != nil {
			log.Fatalf("postgres store: %v", err)
		}
		store = ps
	case "nats":
		if cfg.NATSURL == "" {
			log.Fatal("STORE_BACKEND=nats requires NATS_URL")
		}
		ns, err := kvstore.ConnectNATS(ctx, cfg.NATSURL, cfg.NATSBucket)
		if err != nil {
			log.Fatalf("nats store: %v", err)
		}
		store, closer = ns, ns
	default:
		log.Fatalf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.CacheFrontSize > 0 {
		front, err := kvstore.NewCached(store, cfg.CacheFrontSize)
		if err != nil {
			log.Fatalf("cache front: %v", err)
		}
		store = front
	}
	return store, closer
}

// mustProductRepo uses Postgres when a database is configured and the sample
// catalog in memory otherwise.
func mustProductRepo(db *sql.DB) product.Repository {
	if db == nil {
		return product.NewInMemoryRepository(product.SampleProducts())
	}
	repo := product.NewPostgresRepository(db)
	if err := repo.EnsureSchema(); err != nil {
		log.Fatalf("product schema: %v", err)
	}
	return repo
}
