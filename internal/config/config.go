package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "strings" // strings normalizes list values such as ADMIN_EMAILS
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Secrets for the identity and payment providers
// are required: a missing value stops the process at boot instead of
// letting a half-configured server accept traffic.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    DBDriver       string // "mysql" (default) or "sqlite"
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    SQLitePath     string // database file when DBDriver is "sqlite"
    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time‑to‑live in minutes
    RefreshTTLDays int    // refresh token time‑to‑live in days
    PublicURL      string // base URL of the web app, used for reset links and redirects
    AdminEmails    []string
    AIAPIKey       string // key for the external analysis pipeline; only its presence is checked here
    Google         GoogleConfig
    Stripe         StripeConfig
}

// GoogleConfig carries the OAuth client used for "Sign in with Google".
type GoogleConfig struct {
    ClientID     string
    ClientSecret string
    RedirectURL  string
}

// StripeConfig carries the payment processor keys and the two price ids
// sold by the app.
type StripeConfig struct {
    SecretKey      string
    PublishableKey string
    WebhookSecret  string // optional; the webhook route is disabled without it
    PriceBasic     string
    PricePro       string
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    cfg := Config{
        Env:            must("APP_ENV"),
        Port:           must("APP_PORT"),
        DBDriver:       strings.ToLower(getenv("DB_DRIVER", "mysql")),
        JWTSecret:      must("JWT_SECRET"),
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
        PublicURL:      strings.TrimRight(must("PUBLIC_URL"), "/"),
        AdminEmails:    ParseEmailList(os.Getenv("ADMIN_EMAILS")),
        AIAPIKey:       must("ANTHROPIC_API_KEY"),
        Google: GoogleConfig{
            ClientID:     must("GOOGLE_CLIENT_ID"),
            ClientSecret: must("GOOGLE_CLIENT_SECRET"),
        },
        Stripe: StripeConfig{
            SecretKey:      must("STRIPE_SECRET_KEY"),
            PublishableKey: must("STRIPE_PUBLISHABLE_KEY"),
            WebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
            PriceBasic:     must("STRIPE_PRICE_BASIC"),
            PricePro:       must("STRIPE_PRICE_PRO"),
        },
    }
    cfg.Google.RedirectURL = getenv("GOOGLE_REDIRECT_URL", cfg.PublicURL+"/v1/auth/google/callback")

    switch cfg.DBDriver {
    case "sqlite":
        cfg.SQLitePath = getenv("SQLITE_PATH", "users.db")
    case "mysql":
        cfg.DBUser = must("DB_USER")
        cfg.DBPass = os.Getenv("DB_PASS")
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    default:
        log.Fatalf("unsupported DB_DRIVER: %q", cfg.DBDriver)
    }
    return cfg
}

// ParseEmailList splits a comma separated list of addresses, trimming and
// lower-casing each entry.  Empty entries are dropped.
func ParseEmailList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        p = strings.ToLower(strings.TrimSpace(p))
        if p != "" {
            out = append(out, p)
        }
    }
    return out
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
