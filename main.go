package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"google.golang.org/api/option"

	"inbox-service/internal/auth"
	"inbox-service/internal/cache"
	"inbox-service/internal/config"
	"inbox-service/internal/db"
	fsstore "inbox-service/internal/firestore"
	"inbox-service/internal/grpcserver"
	"inbox-service/internal/handlers"
	"inbox-service/internal/maintenance"
	"inbox-service/internal/middleware"
	"inbox-service/internal/notify"
	"inbox-service/internal/observability"
	"inbox-service/internal/rabbitmq"
	"inbox-service/internal/repositories"
	"inbox-service/internal/storage"
	"inbox-service/internal/synchronizer"
	"inbox-service/internal/telemetry"
	"inbox-service/internal/ws"
)

const serviceName = "inbox-service"

type backend struct {
	messages repositories.MessageRepository
	users    repositories.UserRepository
	feed     repositories.MessageFeed
	probe    grpcserver.Probe
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("event publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, serviceName, cfg.Environment)

	var app *firebase.App
	if cfg.NeedsFirebase() {
		app, err = newFirebaseApp(ctx, cfg)
		if err != nil {
			log.Fatalf("failed to init firebase: %v", err)
		}
	}

	store, err := openBackend(ctx, cfg, app)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer store.close()

	verifier, err := newVerifier(ctx, cfg, app)
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

	var notifier notify.Notifier = notify.Noop{}
	if app != nil {
		messaging, err := app.Messaging(ctx)
		if err != nil {
			log.Printf("push disabled: %v", err)
		} else {
			notifier = notify.NewFCMNotifier(messaging)
		}
	}

	var media storage.ObjectStore
	if cfg.AWSBucket != "" {
		s3Store, err := storage.NewS3Store(ctx, cfg.AWSRegion, cfg.AWSBucket, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
		if err != nil {
			log.Fatalf("failed to init s3: %v", err)
		}
		media = s3Store
	}

	deps := synchronizer.Deps{Messages: store.messages, Users: store.users}
	snapshots, err := cache.Open(cfg.CacheDir)
	if err != nil {
		log.Printf("snapshot cache disabled dir=%s: %v", cfg.CacheDir, err)
	} else {
		defer snapshots.Close()
		deps.Cache = snapshots
	}
	registry := synchronizer.NewRegistry(deps)
	registry.StartSweeper(ctx, cfg.RegistrySweepInterval, cfg.RegistryIdleTTL)

	stopBackfill, err := maintenance.StartBackfill(ctx, cfg.BackfillCron, store.messages)
	if err != nil {
		log.Fatalf("failed to schedule backfill: %v", err)
	}
	defer stopBackfill()

	health := grpcserver.NewServer(store.probe, 15*time.Second)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatalf("failed to listen grpc: %v", err)
	}
	go func() {
		if err := health.Serve(ctx, lis); err != nil {
			log.Printf("grpc server error: %v", err)
		}
	}()
	defer health.Stop()

	hub := ws.NewHub()
	conversationHandler := handlers.NewConversationHandler(registry, store.users, media, notifier, hub, audit)
	inboxWS := ws.NewInboxWebSocketHandler(hub, verifier, registry, store.feed, store.users, synchronizer.SubscribeOptions{
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	})

	router := gin.New()

	// middlewares
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.POST("/conversations/start", authMiddleware, conversationHandler.StartConversation)
	router.GET("/conversations/:user_id/messages", authMiddleware, conversationHandler.GetMessages)
	router.POST("/conversations/:user_id/messages", authMiddleware, conversationHandler.PostMessage)
	router.POST("/conversations/:user_id/posts", authMiddleware, conversationHandler.PostSharedPost)
	router.POST("/conversations/:user_id/read", authMiddleware, conversationHandler.MarkRead)
	router.POST("/messages/:local_id/retry", authMiddleware, conversationHandler.RetryMessage)
	router.DELETE("/messages/:local_id", authMiddleware, conversationHandler.DiscardMessage)
	router.GET("/users/search", authMiddleware, conversationHandler.SearchUsers)

	router.GET("/ws/inbox", inboxWS.Handle)

	handlers.RegisterDebugRoutes(router, audit, registry, cfg.DebugRoutes)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Printf("http listening port=%s store=%s auth=%s", cfg.Port, cfg.StoreBackend, cfg.AuthMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}

func newFirebaseApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.FirebaseCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
	}
	return firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
}

func openBackend(ctx context.Context, cfg *config.Config, app *firebase.App) (*backend, error) {
	if cfg.StoreBackend == config.BackendFirestore {
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, err
		}
		messages := fsstore.NewMessageRepo(client)
		return &backend{
			messages: messages,
			users:    fsstore.NewUserRepo(client),
			feed:     fsstore.NewFeed(messages),
			probe: func(ctx context.Context) error {
				_, err := client.Collection("users").Limit(1).Documents(ctx).GetAll()
				return err
			},
			close: func() { _ = client.Close() },
		}, nil
	}

	database, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	messages := repositories.NewMessageRepo(database)
	return &backend{
		messages: messages,
		users:    repositories.NewUserRepo(database),
		feed:     repositories.NewPGFeed(cfg.DBDSN, messages, cfg.FeedResyncInterval),
		probe:    database.PingContext,
		close:    func() { _ = database.Close() },
	}, nil
}

func newVerifier(ctx context.Context, cfg *config.Config, app *firebase.App) (auth.Verifier, error) {
	if cfg.AuthMode == config.AuthFirebase {
		client, err := app.Auth(ctx)
		if err != nil {
			return nil, err
		}
		return auth.NewFirebaseVerifier(client), nil
	}
	return auth.NewJWTVerifier(cfg.JWTSecret), nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", "X-Request-ID", "X-Device-ID")
	for _, origin := range origins {
		if origin == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	return c
}
