package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"marketchat/api"
	"marketchat/auth"
	"marketchat/chat"
	"marketchat/config"
	"marketchat/crypto"
	"marketchat/discovery"
	"marketchat/realtime"
	"marketchat/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	issueToken := flag.String("issue-token", "", "print a session token for the given user ID and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("startup failed while loading .env: %v", err)
	}

	cfg, cfgPath, dataDir, err := config.LoadOrCreate()
	if err != nil {
		log.Fatalf("startup failed while loading config: %v", err)
	}

	signingKey, err := crypto.LoadOrCreateSigningKey(cfg.SigningPrivateKeyPath, cfg.SigningPublicKeyPath)
	if err != nil {
		log.Fatalf("startup failed while preparing signing key: %v", err)
	}
	if cfg.KeyFingerprint != signingKey.Fingerprint {
		cfg.KeyFingerprint = signingKey.Fingerprint
		if err := persistFingerprint(cfgPath, signingKey.Fingerprint); err != nil {
			log.Fatalf("startup failed while persisting key fingerprint: %v", err)
		}
	}

	tokens := auth.NewAuthenticator(signingKey.Private, cfg.TokenIssuer, cfg.TokenValidity())
	if *issueToken != "" {
		token, err := tokens.GenerateToken(*issueToken)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	location, err := cfg.Location()
	if err != nil {
		log.Fatalf("startup failed while loading display time zone: %v", err)
	}

	fmt.Printf("Instance ID:     %s\n", cfg.InstanceID)
	fmt.Printf("Instance Name:   %s\n", cfg.InstanceName)
	fmt.Printf("Fingerprint:     %s\n", crypto.FormatFingerprint(cfg.KeyFingerprint))
	fmt.Printf("Config File:     %s\n", cfgPath)
	fmt.Printf("Data Directory:  %s\n", dataDir)

	store, dbPath, err := storage.Open(dataDir)
	if err != nil {
		log.Fatalf("startup failed while opening database: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
	}()
	fmt.Printf("Database File:   %s\n", dbPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := realtime.NewBroker()
	store.SetNotifier(broker)
	if cfg.RedisAddr != "" {
		relay, closeRelay, err := startRelay(ctx, cfg, broker)
		if err != nil {
			log.Printf("realtime: redis relay disabled addr=%s: %v", cfg.RedisAddr, err)
		} else {
			defer closeRelay()
			store.SetNotifier(relay)
			fmt.Printf("Redis Relay:     %s (%s)\n", cfg.RedisAddr, cfg.RedisChannel)
		}
	}

	aggregator := chat.NewAggregator(store, broker, location)
	threads := chat.NewThreads(store, broker)
	router := api.NewRouter(api.Dependencies{
		Sender:         chat.NewSender(store, cfg.CanonicalSummaryKeys),
		Aggregator:     aggregator,
		Reads:          chat.NewReadTracker(store),
		Threads:        threads,
		Summaries:      chat.NewSummaries(store, cfg.CanonicalSummaryKeys),
		Profiles:       store,
		Tokens:         tokens,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	server, err := api.Listen(cfg.ListenAddr, router)
	if err != nil {
		log.Fatalf("startup failed while starting HTTP server: %v", err)
	}
	fmt.Printf("Listening:       %s\n", server.Addr())

	if cfg.AdvertiseMDNS {
		broadcaster, err := startBroadcaster(cfg, server.Addr().String())
		if err != nil {
			log.Printf("discovery: mDNS broadcast disabled: %v", err)
		} else {
			defer broadcaster.Stop()
			fmt.Println("Discovery:       advertising via mDNS")
		}
	}

	fmt.Println("Status:          running (press Ctrl+C to stop)")
	select {
	case <-ctx.Done():
	case err := <-server.Errors():
		log.Printf("http server stopped: %v", err)
	}
	fmt.Println("Status:          shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}

// persistFingerprint writes the fingerprint to config.json without the
// environment overrides applied to the in-memory config.
func persistFingerprint(cfgPath, fingerprint string) error {
	stored, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	stored.KeyFingerprint = fingerprint
	return config.Save(cfgPath, stored)
}

func startRelay(ctx context.Context, cfg *config.ServerConfig, broker *realtime.Broker) (*realtime.RedisRelay, func(), error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	// Origins are per process so that two servers sharing one instance ID
	// still replay each other's events.
	relay := realtime.NewRedisRelay(client, cfg.RedisChannel, cfg.InstanceID+"/"+uuid.NewString(), broker)
	if err := relay.Start(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return relay, func() {
		relay.Stop()
		if err := client.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}, nil
}

func startBroadcaster(cfg *config.ServerConfig, addr string) (*discovery.Broadcaster, error) {
	port, err := discovery.PortFromAddr(addr)
	if err != nil {
		return nil, err
	}
	return discovery.StartBroadcaster(discovery.Config{
		InstanceID:     cfg.InstanceID,
		InstanceName:   cfg.InstanceName,
		Port:           port,
		KeyFingerprint: cfg.KeyFingerprint,
	})
}

