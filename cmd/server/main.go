package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teledrive-vn/teledrive/internal/conf"
	"github.com/teledrive-vn/teledrive/internal/drive/biz"
	"github.com/teledrive-vn/teledrive/internal/drive/data"
	"github.com/teledrive-vn/teledrive/internal/drive/service"
	"github.com/teledrive-vn/teledrive/internal/pkg/database"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"github.com/teledrive-vn/teledrive/internal/pkg/redis"
	"github.com/teledrive-vn/teledrive/internal/pkg/sse"
	"github.com/teledrive-vn/teledrive/internal/server"
	"github.com/teledrive-vn/teledrive/internal/telegram"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger with config
	logConfig := &logger.Config{
		Level:            config.Log.Level,
		Format:           config.Log.Format,
		Output:           config.Log.Output,
		EnableCaller:     config.Log.EnableCaller,
		EnableStacktrace: config.Log.EnableStacktrace,
		File: logger.FileConfig{
			Filename:   config.Log.File.Filename,
			MaxSize:    config.Log.File.MaxSize,
			MaxAge:     config.Log.File.MaxAge,
			MaxBackups: config.Log.File.MaxBackups,
			Compress:   config.Log.File.Compress,
		},
	}

	log, err := logger.New(logConfig)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if err := logger.InitGlobal(logConfig); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	// Initialize postgres
	dbConfig := database.DefaultConfig()
	dbConfig.Host = config.Database.Host
	dbConfig.Port = config.Database.Port
	dbConfig.User = config.Database.User
	dbConfig.Password = config.Database.Password
	dbConfig.DBName = config.Database.DBName
	dbConfig.SSLMode = config.Database.SSLMode

	db, err := database.New(dbConfig, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if err := db.AutoMigrate(data.Models()...); err != nil {
		log.Fatal("failed to migrate schema", zap.Error(err))
	}

	// Initialize redis
	redisConfig := redis.DefaultConfig()
	redisConfig.Addr = config.Redis.Addr()
	redisConfig.Password = config.Redis.Password
	redisConfig.DB = config.Redis.DB

	rdb, err := redis.New(redisConfig, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Make sure the storage roots exist before anything writes to them
	for _, dir := range []string{config.Storage.UploadsRoot, config.Storage.OutputRoot, config.Storage.TempRoot, config.Telegram.ScratchDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal("failed to create storage directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	// Initialize the Telegram storage core
	sessionStore, err := telegram.NewSessionStore(config.Telegram.SessionFile, log)
	if err != nil {
		log.Fatal("failed to open session store", zap.Error(err))
	}

	broker, err := telegram.NewBroker(&config.Telegram, sessionStore, log)
	if err != nil {
		log.Fatal("failed to create session broker", zap.Error(err))
	}
	defer broker.Close()

	remote := telegram.NewService(broker, log)

	// Progress fan-out
	hub := sse.NewHub(log)
	defer hub.Close()
	progress := biz.NewHubPublisher(hub)

	// Bootstrap the owner
	userRepo := data.NewUserRepo(db)
	owner, err := biz.EnsureDefaultUser(context.Background(), userRepo)
	if err != nil {
		log.Fatal("failed to ensure default owner", zap.Error(err))
	}

	// Initialize repositories
	catalogRepo := data.NewCatalogRepo(db)
	folderRepo := data.NewFolderRepo(db)
	shareRepo := data.NewShareRepo(db)
	scanJobRepo := data.NewScanJobRepo(db)
	listingCache := data.NewListingCache(rdb, log)

	// Initialize use cases
	catalogUseCase := biz.NewCatalogUseCase(catalogRepo, listingCache, log)
	folderUseCase := biz.NewFolderUseCase(folderRepo, catalogRepo, listingCache)
	storageUseCase := biz.NewStorageUseCase(remote, catalogRepo, listingCache, progress, &config.Storage, log)
	scanUseCase := biz.NewScanUseCase(remote, catalogRepo, scanJobRepo, listingCache, progress, &config.Telegram, log)
	shareUseCase := biz.NewShareUseCase(shareRepo, catalogRepo, storageUseCase, &config.Storage, log)

	// Initialize services
	svcs := &server.Services{
		File:   service.NewFileService(catalogUseCase, storageUseCase, &config.Storage, owner.ID, log),
		Folder: service.NewFolderService(folderUseCase, owner.ID, log),
		Share:  service.NewShareService(shareUseCase, &config.Share, owner.ID, log),
		Scan:   service.NewScanService(scanUseCase, hub, owner.ID, log),
	}

	httpServer := server.NewHTTPServer(config, log, svcs)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("failed to stop HTTP server", zap.Error(err))
	}
}
