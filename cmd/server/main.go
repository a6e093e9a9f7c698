package main

import (
	"context"
	"log"

	"channel-relay/internal/api"
	"channel-relay/internal/channels/instagram"
	"channel-relay/internal/channels/webchat"
	"channel-relay/internal/channels/whatsapp"
	"channel-relay/internal/config"
	"channel-relay/internal/database"
	"channel-relay/internal/integrations"
	"channel-relay/internal/ledger"
	"channel-relay/internal/media"
	"channel-relay/internal/relay"
	"channel-relay/internal/responder"
	"channel-relay/internal/storage"
	"channel-relay/internal/transcribe"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()
	ctx := context.Background()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	msgLedger, err := ledger.New(db)
	if err != nil {
		log.Fatalf("Failed to initialize ledger: %v", err)
	}

	store, err := storage.NewS3Store(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}
	pipeline := media.NewPipeline(store)

	transcriber := transcribe.NewAdapter()
	if cfg.OpenAIAPIKey != "" {
		whisper, err := transcribe.NewWhisperBackend(cfg.OpenAIAPIKey)
		if err != nil {
			log.Printf("Whisper transcription unavailable: %v", err)
		} else {
			transcriber.Register(transcribe.ProviderWhisper, whisper)
		}
	}
	if cfg.GeminiAPIKey != "" {
		backend, err := transcribe.NewGeminiBackend(ctx, cfg.GeminiAPIKey)
		if err != nil {
			log.Printf("Gemini transcription unavailable: %v", err)
		} else {
			transcriber.Register(transcribe.ProviderGemini, backend)
		}
	}

	hub := webchat.NewHub()
	go hub.Run()

	intStore := integrations.NewStore(db)
	events := integrations.NewEvents(db)

	var dispatchers []integrations.Dispatcher
	var zoho *integrations.ZohoManager
	var hubspot *integrations.HubSpotManager
	if cfg.ZohoClientID != "" {
		zoho, err = integrations.NewZohoManager(intStore, events, cfg.ZohoClientID, cfg.ZohoClientSecret, cfg.ZohoRedirectURL)
		if err != nil {
			log.Fatalf("Failed to initialize Zoho: %v", err)
		}
		dispatchers = append(dispatchers, zoho)
	}
	if cfg.HubSpotClientID != "" {
		hubspot, err = integrations.NewHubSpotManager(intStore, events, cfg.HubSpotClientID, cfg.HubSpotClientSecret, cfg.HubSpotRedirectURL)
		if err != nil {
			log.Fatalf("Failed to initialize HubSpot: %v", err)
		}
		dispatchers = append(dispatchers, hubspot)
	}
	dispatchers = append(dispatchers, integrations.NewOdooManager(intStore, events))

	var respond responder.Responder
	if cfg.OpenAIAPIKey != "" {
		respond = responder.NewOpenAIResponder(cfg.OpenAIAPIKey)
	} else {
		log.Println("No OPENAI_API_KEY set, replying with the static acknowledgment")
		respond = responder.Static{}
	}

	rly := &relay.Relay{
		Ledger:      msgLedger,
		Media:       pipeline,
		Transcriber: transcriber,
		WhatsApp:    whatsapp.NewClient(),
		Instagram:   instagram.NewClient(),
		Hub:         hub,
		Responder:   respond,
		Events:      events,
		Dispatchers: dispatchers,
	}

	linker := instagram.NewLinker(cfg.MetaAppID, cfg.MetaAppSecret, msgLedger)

	webhookHandler := api.NewWebhookHandler(cfg, msgLedger, rly)
	uploadHandler := api.NewUploadHandler(store)
	oauthHandler := api.NewOAuthHandler(zoho, hubspot, cfg.DashboardURL)
	conversationHandler := api.NewConversationHandler(msgLedger, rly)
	channelHandler := api.NewChannelHandler(msgLedger, linker)
	widgetHandler := api.NewWidgetHandler(msgLedger, rly, hub)
	integrationHandler := api.NewIntegrationHandler(intStore, events, zoho)

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Webhook Routes
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleMessage)

	// OAuth callbacks
	r.GET("/oauth/zoho/callback", oauthHandler.ZohoCallback)
	r.GET("/oauth/hubspot/callback", oauthHandler.HubSpotCallback)

	// Widget Routes
	r.POST("/widget/:siteKey/message", widgetHandler.PostMessage)
	r.GET("/widget/ws", widgetHandler.ServeWs)

	// Dashboard API Routes
	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/upload", uploadHandler.Upload)

		// Channel Routes
		apiGroup.GET("/channels", channelHandler.ListChannels)
		apiGroup.POST("/channels/whatsapp", channelHandler.ConnectWhatsApp)
		apiGroup.POST("/channels/webchat", channelHandler.ConnectWebchat)
		apiGroup.POST("/channels/instagram/accounts", channelHandler.InstagramAccounts)
		apiGroup.POST("/channels/instagram", channelHandler.ConnectInstagram)
		apiGroup.POST("/channels/:id/disable", channelHandler.DisableChannel)

		// Conversation Routes
		apiGroup.GET("/conversations", conversationHandler.ListConversations)
		apiGroup.GET("/conversations/:id/messages", conversationHandler.GetMessages)
		apiGroup.POST("/conversations/:id/messages", conversationHandler.SendMessage)

		// Integration Routes
		apiGroup.GET("/integrations/:agentId", integrationHandler.List)
		apiGroup.GET("/integrations/:agentId/health", integrationHandler.Health)
		apiGroup.POST("/integrations/odoo", integrationHandler.ConnectOdoo)
		apiGroup.POST("/integrations/zoho/lead", integrationHandler.CreateZohoLead)
		apiGroup.DELETE("/integrations/:agentId/:provider", integrationHandler.Disconnect)
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
