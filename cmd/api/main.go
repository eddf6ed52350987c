package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/officehub-api/internal/config"
	"github.com/noah-isme/officehub-api/internal/database"
	"github.com/noah-isme/officehub-api/internal/handler"
	"github.com/noah-isme/officehub-api/internal/middleware"
	"github.com/noah-isme/officehub-api/internal/models"
	"github.com/noah-isme/officehub-api/internal/repository"
	"github.com/noah-isme/officehub-api/internal/router"
	"github.com/noah-isme/officehub-api/internal/service"
	"github.com/noah-isme/officehub-api/pkg/mailer"
	"github.com/noah-isme/officehub-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Room{},
		&models.RoomMember{},
		&models.Message{},
		&models.Attachment{},
		&models.Notification{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	store, err := attachmentStore(ctx, cfg, natsConn)
	if err != nil {
		log.Fatalf("failed to open attachment storage: %v", err)
	}

	var mail service.MailSender = service.NewLogMailSender(logger)
	if cfg.SMTPEnabled() {
		smtpSender, err := mailer.NewSMTP(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			log.Fatalf("failed to configure smtp: %v", err)
		}
		mail = smtpSender
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	verifier := middleware.NewJWTVerifier(cfg.JWTSecret)
	permissions := middleware.NewClaimsPermissionChecker("admin", "superadmin")

	roomRepo := repository.NewRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)

	roomService := service.NewRoomService(roomRepo, validate, logger)
	messageService := service.NewMessageService(roomRepo, messageRepo, validate, logger)
	attachmentService := service.NewAttachmentService(store, messageRepo, cfg.AttachmentsMaxBytes, logger)
	chatService := service.NewChatService(roomService, messageService, verifier, redisClient, natsConn, validate, service.ChatConfig{
		HandshakeTimeout: cfg.ChatHandshakeTimeout,
		SendBuffer:       cfg.ChatSendBuffer,
		ChannelBase:      cfg.RealtimeChannelBase,
	}, logger)
	notificationService := service.NewNotificationService(notificationRepo, userRepo, mail, chatService, validate, service.NotificationConfig{
		MailTimeout: cfg.MailTimeout,
		PageSize:    cfg.NotificationsPageSize,
	}, logger)

	chatService.Start(ctx)
	go service.NewNotificationSweeper(notificationService, cfg.SweepInterval, logger).Run(ctx)

	app := fiber.New(fiber.Config{
		AppName:           cfg.AppName,
		ServerHeader:      cfg.AppName,
		BodyLimit:         cfg.HTTPBodyLimit,
		StreamRequestBody: true,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.AllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		ChatHandler:         handler.NewChatHandler(chatService, verifier, logger),
		RoomHandler:         handler.NewRoomHandler(roomService, chatService, logger),
		MessageHandler:      handler.NewMessageHandler(messageService, attachmentService, chatService, logger),
		AttachmentHandler:   handler.NewAttachmentHandler(attachmentService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, chatService, permissions, logger, 15*time.Second),
		JWTMiddleware:       middleware.JWTProtected(verifier),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(ctx, app)
}

func attachmentStore(ctx context.Context, cfg config.Config, conn *nats.Conn) (service.ObjectStorage, error) {
	if cfg.AttachmentsBackend == "nats" {
		return storage.NewJetStream(ctx, conn, cfg.AttachmentsBucket)
	}
	return storage.NewDisk(cfg.AttachmentsDir)
}

func waitForShutdown(shutdownCtx context.Context, app *fiber.App) {
	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
