// Command server starts the Inkwell blogging API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"inkwell/internal/api"
	"inkwell/internal/auth"
	"inkwell/internal/blob"
	"inkwell/internal/observability/logging"
	"inkwell/internal/observability/metrics"
	"inkwell/internal/server"
	"inkwell/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	tokenSecret := flag.String("token-secret", "", "secret used to sign bearer tokens")
	tokenTTL := flag.Duration("token-ttl", 0, "bearer token lifetime")
	pageSize := flag.Int("page-size", 0, "number of posts returned per feed page")
	uploadConcurrency := flag.Int("upload-concurrency", 0, "maximum concurrent image uploads")
	blobDriver := flag.String("blob-driver", "", "image store driver (fs or s3)")
	imagesDir := flag.String("images-dir", "", "directory for the filesystem image store")
	objectEndpoint := flag.String("object-endpoint", "", "object storage endpoint (e.g. http://127.0.0.1:9000)")
	objectRegion := flag.String("object-region", "", "object storage region")
	objectAccessKey := flag.String("object-access-key", "", "object storage access key")
	objectSecretKey := flag.String("object-secret-key", "", "object storage secret key")
	objectBucket := flag.String("object-bucket", "", "object storage bucket name")
	objectPrefix := flag.String("object-prefix", "", "object storage key prefix for images")
	objectUseSSL := flag.Bool("object-use-ssl", false, "enable TLS for object storage requests")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log output format (json or text)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("INKWELL_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("INKWELL_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	secret := firstNonEmpty(*tokenSecret, os.Getenv("INKWELL_TOKEN_SECRET"))
	if secret == "" {
		logger.Error("token secret is required: provide --token-secret or INKWELL_TOKEN_SECRET")
		os.Exit(1)
	}
	var tokenOptions []auth.TokenOption
	if ttl := resolveDuration(*tokenTTL, "INKWELL_TOKEN_TTL", 0); ttl > 0 {
		tokenOptions = append(tokenOptions, auth.WithTokenTTL(ttl))
	}
	tokens, err := auth.NewTokenManager(secret, tokenOptions...)
	if err != nil {
		logger.Error("failed to configure token manager", "error", err)
		os.Exit(1)
	}

	postgresDefaultDSN := strings.TrimSpace(firstNonEmpty(*postgresDSN, os.Getenv("INKWELL_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
	driver := resolveStorageDriver(*storageDriver, os.Getenv("INKWELL_STORAGE_DRIVER"), postgresDefaultDSN)

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("INKWELL_DATA"))
		store, err = storage.NewStorage(dataFile)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.Option
		maxConns := resolveInt(*postgresMaxConns, "INKWELL_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "INKWELL_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "INKWELL_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "INKWELL_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "INKWELL_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresConnLifetimes(maxLifetime, maxIdle, healthInterval))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "INKWELL_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("INKWELL_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(postgresDefaultDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	blobs, err := configureBlobStore(blobStoreSettings{
		Driver:    firstNonEmpty(*blobDriver, os.Getenv("INKWELL_BLOB_DRIVER")),
		ImagesDir: resolveImagesDir(*imagesDir, os.Getenv("INKWELL_IMAGES_DIR")),
		S3: blob.S3Config{
			Endpoint:  firstNonEmpty(*objectEndpoint, os.Getenv("INKWELL_OBJECT_ENDPOINT")),
			Region:    firstNonEmpty(*objectRegion, os.Getenv("INKWELL_OBJECT_REGION")),
			AccessKey: firstNonEmpty(*objectAccessKey, os.Getenv("INKWELL_OBJECT_ACCESS_KEY")),
			SecretKey: firstNonEmpty(*objectSecretKey, os.Getenv("INKWELL_OBJECT_SECRET_KEY")),
			Bucket:    firstNonEmpty(*objectBucket, os.Getenv("INKWELL_OBJECT_BUCKET")),
			Prefix:    strings.TrimSpace(firstNonEmpty(*objectPrefix, os.Getenv("INKWELL_OBJECT_PREFIX"))),
			UseSSL:    resolveBool(*objectUseSSL, "INKWELL_OBJECT_USE_SSL"),
		},
	})
	if err != nil {
		logger.Error("failed to configure image store", "error", err)
		os.Exit(1)
	}

	handlerOptions := []api.HandlerOption{api.WithMetrics(recorder)}
	if size := resolveInt(*pageSize, "INKWELL_PAGE_SIZE"); size > 0 {
		handlerOptions = append(handlerOptions, api.WithPageSize(size))
	}
	if limit := resolveInt(*uploadConcurrency, "INKWELL_UPLOAD_CONCURRENCY"); limit > 0 {
		handlerOptions = append(handlerOptions, api.WithUploadConcurrency(limit))
	}
	handler := api.NewHandler(store, tokens, blobs, logger, handlerOptions...)

	rateCfg := server.RateLimitConfig{
		GlobalRPS:     resolveFloat(*globalRPS, "INKWELL_RATE_GLOBAL_RPS"),
		GlobalBurst:   resolveInt(*globalBurst, "INKWELL_RATE_GLOBAL_BURST"),
		LoginLimit:    resolveInt(*loginLimit, "INKWELL_RATE_LOGIN_LIMIT"),
		LoginWindow:   resolveDuration(*loginWindow, "INKWELL_RATE_LOGIN_WINDOW", time.Minute),
		RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("INKWELL_RATE_REDIS_ADDR")),
		RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("INKWELL_RATE_REDIS_PASSWORD")),
		RedisTimeout:  resolveDuration(*redisTimeout, "INKWELL_RATE_REDIS_TIMEOUT", 2*time.Second),
	}

	tlsCfg := server.TLSConfig{
		CertFile: firstNonEmpty(*tlsCert, os.Getenv("INKWELL_TLS_CERT")),
		KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("INKWELL_TLS_KEY")),
	}

	listenAddr := resolveListenAddr(*addr, os.Getenv("INKWELL_ADDR"))
	srv, err := server.New(handler, server.Config{
		Addr:      listenAddr,
		TLS:       tlsCfg,
		RateLimit: rateCfg,
		Logger:    logger,
		Metrics:   recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("Inkwell API listening", "addr", listenAddr, "storage", driver)
		if tlsCfg.CertFile != "" && tlsCfg.KeyFile != "" {
			logger.Info("TLS enabled", "cert_file", tlsCfg.CertFile)
		}
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	if err := store.Close(ctx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}

	logger.Info("server stopped")
}

type blobStoreSettings struct {
	Driver    string
	ImagesDir string
	S3        blob.S3Config
}

func configureBlobStore(settings blobStoreSettings) (blob.Store, error) {
	driver := strings.ToLower(strings.TrimSpace(settings.Driver))
	if driver == "" {
		if settings.S3.Endpoint != "" && settings.S3.Bucket != "" {
			driver = "s3"
		} else {
			driver = "fs"
		}
	}
	switch driver {
	case "fs":
		return blob.NewFilesystemStore(settings.ImagesDir)
	case "s3":
		return blob.NewS3Store(settings.S3)
	default:
		return nil, fmt.Errorf("unsupported blob driver %q", driver)
	}
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) string {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres"
	}
	return "json"
}

func resolveListenAddr(flagValue, envValue string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envValue)
	}
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	return listenAddr
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolveImagesDir(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/images"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
