package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/CUknot/lostfound_backend/cache"
	"github.com/CUknot/lostfound_backend/chat"
	"github.com/CUknot/lostfound_backend/config"
	"github.com/CUknot/lostfound_backend/controllers"
	"github.com/CUknot/lostfound_backend/database"
	"github.com/CUknot/lostfound_backend/docs"
	"github.com/CUknot/lostfound_backend/logger"
	"github.com/CUknot/lostfound_backend/middleware"
	"github.com/CUknot/lostfound_backend/store"
	"github.com/CUknot/lostfound_backend/utils"
	"github.com/CUknot/lostfound_backend/websocket"
)

// @title           Lost & Found Chat API
// @version         1.0
// @description     Real-time chat relay for the lost and found listing app
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.L()
		boot.Fatal().Err(err).Msg("load config")
	}

	logger.Init(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "lostfound-chat"})
	log := logger.L()

	db, err := database.Connect(cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	log.Info().Msg("database migration completed")

	var summaryCache chat.SummaryCache
	var redisCache *cache.RedisSummaryCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedisSummaryCache(cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, serving chat lists without cache")
		} else {
			summaryCache = redisCache
		}
	}

	service := chat.NewService(
		store.NewMessageStore(db, cfg.Chat.MaxTextLength),
		store.NewListingStore(db),
		summaryCache,
		chat.Config{
			MaxTextLength: cfg.Chat.MaxTextLength,
			HistoryLimit:  cfg.Chat.HistoryLimit,
			SendBuffer:    cfg.Chat.SendBuffer,
			EchoSender:    cfg.Chat.EchoSender,
		},
		log,
	)
	tokens := utils.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TTL)
	hub := websocket.NewHub()
	wsHandler := websocket.NewHandler(service, tokens, hub, cfg.WebSocket)

	docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(log), middleware.CORS())

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	health := &controllers.HealthController{DB: db, Service: service}
	router.GET("/health", health.Health)

	auth := &controllers.AuthController{DB: db, Tokens: tokens}
	public := router.Group("/api")
	{
		public.POST("/register", auth.Register)
		public.POST("/login", auth.Login)
	}

	chats := &controllers.ChatController{Service: service}
	router.GET("/chats", middleware.JWTAuth(tokens), chats.GetChats)

	api := router.Group("/api")
	api.Use(middleware.JWTAuth(tokens))
	{
		api.GET("/chats", chats.GetChats)
		api.GET("/rooms/:room/messages", chats.GetRoomMessages)
		api.GET("/rooms/:room/online", chats.GetRoomOnline)
	}

	// WebSocket route
	router.GET("/ws", wsHandler.HandleConnection)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server running")
		log.Info().Msgf("swagger documentation available at http://localhost:%s/swagger/index.html", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Int("open", hub.Len()).Msg("websocket connections still open")
	}
	service.Shutdown()

	if redisCache != nil {
		redisCache.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}
