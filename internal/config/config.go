package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"    // time expresses durations for TTLs and timeouts
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, durations for TTLs
// and timeouts.
type Config struct {
    Env               string        // application environment (e.g. "dev", "prod")
    Port              string        // HTTP port to listen on
    DBUser            string        // database username
    DBPass            string        // database password (optional)
    DBHost            string        // database host address
    DBPort            string        // database port number
    DBName            string        // database name
    JWTSecret         string        // secret used to verify access tokens
    HoldTTL           time.Duration // how long a reservation hold lives before expiring
    MaxSeats          uint32        // maximum seats per reservation
    SweepInterval     time.Duration // how often the expiry sweep runs
    ReconcileInterval time.Duration // how often ambiguous payments are reconciled
    GatewayURL        string        // base URL of the payment gateway
    GatewayAPIKey     string        // API key for the payment gateway
    GatewayTimeout    time.Duration // bound on each gateway call
    Currency          string        // ISO currency code for charges
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    return Config{
        Env:               must("APP_ENV"),      // environment (dev/test/prod)
        Port:              must("APP_PORT"),     // port to bind the HTTP server
        DBUser:            must("DB_USER"),      // database user
        DBPass:            os.Getenv("DB_PASS"), // database password (empty allowed)
        DBHost:            must("DB_HOST"),      // database host
        DBPort:            must("DB_PORT"),      // database port
        DBName:            must("DB_NAME"),      // database name
        JWTSecret:         must("JWT_SECRET"),   // secret used for verifying JWTs
        HoldTTL:           time.Duration(mustInt("HOLD_TTL_MIN")) * time.Minute,
        MaxSeats:          uint32(intOr("MAX_SEATS_PER_RESERVATION", 10)),
        SweepInterval:     time.Duration(intOr("SWEEP_INTERVAL_SEC", 30)) * time.Second,
        ReconcileInterval: time.Duration(intOr("RECONCILE_INTERVAL_SEC", 60)) * time.Second,
        GatewayURL:        must("GATEWAY_URL"),     // payment gateway base URL
        GatewayAPIKey:     must("GATEWAY_API_KEY"), // payment gateway credential
        GatewayTimeout:    time.Duration(intOr("GATEWAY_TIMEOUT_MS", 10000)) * time.Millisecond,
        Currency:          strOr("CURRENCY", "USD"),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}

// intOr returns the integer value of an optional environment variable,
// falling back to def when unset or malformed.
func intOr(key string, def int) int {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    n, err := strconv.Atoi(v)
    if err != nil {
        return def
    }
    return n
}

// strOr returns the value of an optional environment variable, falling
// back to def when unset.
func strOr(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}
