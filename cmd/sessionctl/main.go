package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chat-client/internal/authapi"
	"chat-client/internal/config"
	"chat-client/internal/repository"
	"chat-client/internal/service"
)

const usage = `uso: sessionctl <comando>

comandos:
  login         inicia sesion con email y contraseña
  register      crea una cuenta e inicia sesion
  logout        cierra la sesion local y remota
  whoami        muestra la sesion vigente
  verify        valida el token contra el servidor
  profile       actualiza nombre, email o imagen
  password      cambia la contraseña
  remove-image  borra la imagen de perfil
  health        comprueba la conexion con el servidor
  watch         verifica la sesion periodicamente y muestra eventos`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newCredentialStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("credential store init", zap.Error(err))
	}
	defer closeStore()

	api := authapi.NewHTTPClient(cfg.APIBaseURL, cfg.HTTPTimeout, logger).
		WithHealthPolicy(authapi.HealthPolicy{
			Timeout:    cfg.HealthTimeout,
			Retries:    cfg.HealthRetries,
			RetryDelay: cfg.HealthRetryDelay,
		})
	events := service.NewBroadcaster()
	mgr := service.NewSessionManager(api, store, events, logger, service.WithAssetBaseURL(cfg.AssetBaseURL))

	cli := &commandLine{
		mgr:    mgr,
		events: events,
		reader: bufio.NewReader(os.Stdin),
	}
	if err := cli.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.LogDevelopment {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newCredentialStore arma el store configurado. Si Redis no responde se cae
// al store de archivos.
func newCredentialStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.CredentialStore, func(), error) {
	noop := func() {}

	switch cfg.SessionStore {
	case config.StoreMemory:
		return repository.NewMemoryCredentialStore(), noop, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(ctxPing).Err()
		cancel()
		if err == nil {
			installationID := cfg.InstallationID
			if installationID == "" {
				logger.Warn("installation id not configured, using shared redis namespace")
			}
			store := repository.NewRedisCredentialStore(client, installationID, logger)
			return store, func() { _ = client.Close() }, nil
		}
		logger.Warn("redis ping failed, falling back to file store", zap.Error(err))
		_ = client.Close()
	}

	dir, err := cfg.SessionDir()
	if err != nil {
		return nil, noop, err
	}
	installationID, err := loadInstallationID(dir, cfg.InstallationID)
	if err != nil {
		return nil, noop, err
	}
	key := repository.DeriveKey(cfg.EncryptionKey, installationID)
	if key == nil {
		logger.Warn("session encryption key not configured, credentials stored in plain text")
	}
	store, err := repository.NewFileCredentialStore(dir, key, logger)
	if err != nil {
		return nil, noop, err
	}
	return store, noop, nil
}

// loadInstallationID devuelve el id configurado o el persistido en dir,
// generando uno nuevo la primera vez.
func loadInstallationID(dir, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	path := filepath.Join(dir, "installation_id")
	raw, err := os.ReadFile(path)
	if err == nil && strings.TrimSpace(string(raw)) != "" {
		return strings.TrimSpace(string(raw)), nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read installation id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write installation id: %w", err)
	}
	return id, nil
}
