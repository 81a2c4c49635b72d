package main // Entry point package

import (
    "context" // Context for background workers
    "log"     // Logging library

    "github.com/joho/godotenv"    // Loads .env files in development
    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/iliyamo/bus-ticketing/internal/booking"  // Reservation manager and payment coordinator
    "github.com/iliyamo/bus-ticketing/internal/config"   // Internal config loader
    "github.com/iliyamo/bus-ticketing/internal/database" // MySQL connection pool
    "github.com/iliyamo/bus-ticketing/internal/gateway"  // Payment gateway client
    "github.com/iliyamo/bus-ticketing/internal/handler"  // HTTP handlers
    "github.com/iliyamo/bus-ticketing/internal/ledger"   // Seat ledger
    "github.com/iliyamo/bus-ticketing/internal/queue"    // Booking event consumer
    "github.com/iliyamo/bus-ticketing/internal/repository"
    "github.com/iliyamo/bus-ticketing/internal/router" // Internal router setup
    queue_publisher "github.com/iliyamo/bus-ticketing/internal/service"
    "github.com/iliyamo/bus-ticketing/internal/txlog" // Append-only transaction log
)

func main() {
    _ = godotenv.Load() // Load .env if present; real env always wins
    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    defer db.Close()

    rdb := config.NewRedisClient() // nil when Redis is unreachable; limits and caching degrade

    // Core stores and services.
    trips := repository.NewTripRepo(db)
    reservations := repository.NewReservationRepo(db)
    payments := repository.NewPaymentRepo(db)
    seatLedger := ledger.NewSQLLedger(db)
    txLog := txlog.NewSQLLog(db)

    manager := booking.NewManager(booking.ManagerConfig{
        Trips:        trips,
        Ledger:       seatLedger,
        Reservations: reservations,
        Payments:     payments,
        TxLog:        txLog,
        Alerts:       queue_publisher.AlertPublisher{},
        HoldTTL:      cfg.HoldTTL,
        MaxQuantity:  cfg.MaxSeats,
    })
    gw := gateway.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)
    coordinator := booking.NewPaymentCoordinator(manager, gw, cfg.Currency, cfg.GatewayTimeout)

    // Background workers: hold expiry sweep, payment reconciliation
    // and the booking.confirmed consumer.
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    go booking.NewSweeper(manager, cfg.SweepInterval, 100).Run(ctx)
    go booking.NewReconciler(coordinator, cfg.ReconcileInterval, 50).Run(ctx)
    go func() {
        if err := queue.StartBookingConsumer(); err != nil {
            log.Printf("booking consumer stopped: %v", err)
        }
    }()

    e := echo.New()
    router.RegisterRoutes(e)
    router.RegisterTrips(e, handler.NewTripHandler(trips, seatLedger, manager, rdb), cfg.JWTSecret, rdb)
    router.RegisterBookings(e, handler.NewBookingHandler(manager, coordinator, trips), cfg.JWTSecret, rdb)
    router.RegisterAudit(e, handler.NewAuditHandler(txLog), cfg.JWTSecret)

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info
    if err := e.Start(addr); err != nil {                 // Start HTTP server
        log.Fatal(err) // Log and exit if server fails
    }
}
