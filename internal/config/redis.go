package config

import (
    "context"
    "crypto/tls"
    "log"
    "net"
    "os"
    "time"

    "github.com/redis/go-redis/v9"
)

// redisOptions resolves the connection settings.  REDIS_URL
// (redis:// or rediss://) wins; otherwise REDIS_ADDR, or REDIS_HOST and
// REDIS_PORT, with REDIS_PASSWORD, REDIS_DB and REDIS_TLS.
func redisOptions() (*redis.Options, error) {
    if u := os.Getenv("REDIS_URL"); u != "" {
        return redis.ParseURL(u)
    }
    addr := getenv("REDIS_ADDR", "localhost:6379")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = net.JoinHostPort(host, port)
    }
    opts := &redis.Options{
        Addr:     addr,
        Password: os.Getenv("REDIS_PASSWORD"),
        DB:       envInt("REDIS_DB", 0),
    }
    if envBool("REDIS_TLS", false) {
        host, _, _ := net.SplitHostPort(addr)
        opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
    }
    return opts, nil
}

// NewRedisClient connects and pings Redis.  It returns nil when Redis is
// not reachable: rate limiting and the catalog cache are then disabled and
// OAuth state falls back to process memory.
func NewRedisClient() *redis.Client {
    opts, err := redisOptions()
    if err != nil {
        log.Printf("redis: bad configuration: %v", err)
        return nil
    }
    client := redis.NewClient(opts)
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        log.Printf("redis: %s unreachable, running without it: %v", opts.Addr, err)
        _ = client.Close()
        return nil
    }
    return client
}
