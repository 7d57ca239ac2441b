// Package bootstrap wires every component the orchestrator needs into one
// Container, the same shape the teacher's own bootstrap package uses:
// build every facade once here, hand the finished graph to the server.
package bootstrap

import (
	"context"
	"log"

	"streamchat-orchestrator/internal/bus"
	"streamchat-orchestrator/internal/catalog"
	"streamchat-orchestrator/internal/config"
	"streamchat-orchestrator/internal/consumer"
	"streamchat-orchestrator/internal/controller"
	"streamchat-orchestrator/internal/coordinator"
	"streamchat-orchestrator/internal/fanout"
	"streamchat-orchestrator/internal/modelprofile"
	"streamchat-orchestrator/internal/pkg/logger"
	"streamchat-orchestrator/internal/registry"
	"streamchat-orchestrator/internal/repository/memory"
	"streamchat-orchestrator/internal/session"
	"streamchat-orchestrator/internal/transcript"
	"streamchat-orchestrator/internal/upstream"
	"streamchat-orchestrator/internal/websocket"

	"github.com/redis/go-redis/v9"
)

type Container struct {
	ChatController    *controller.ChatController
	SessionController *controller.SessionController
	AuthController    *controller.AuthController
	WSController      *controller.WebSocketController
	AdminController   *controller.AdminController

	WebSocketHub *websocket.Hub
	Fanout       *fanout.Fanout
	Bus          *bus.Bus

	Coordinator *coordinator.Coordinator
	Session     *session.Context
}

func NewContainer(cfg *config.Config) *Container {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	controller.SetJWTSecret(cfg.App.JWTSecret)

	// Bus: one JetStream connection for the process lifetime. A failed
	// connect does not abort boot — the Consumer Manager's IsConnected
	// check degrades every acquire to UNAVAILABLE instead.
	natsBus, err := bus.Connect(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] failed to connect to the bus: %v", err)
	}

	// Redis: backs the Push Fanout's cross-instance relay.
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] failed to parse redis url: %v, using as direct addr", err)
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] failed to connect to redis: %v", err)
	}

	catalogRepo := memory.NewCatalogRepository()
	transcriptRepo := memory.NewTranscriptRepository()

	cat := catalog.New(catalogRepo, sysLogger)
	ts := transcript.New(transcriptRepo, sysLogger)
	cat.AddEvictionHook(ts)

	consumerMgr := consumer.NewManager(natsBus, sysLogger)

	upstreamClient := upstream.New(
		cfg.Upstream.BaseURL,
		cfg.Upstream.MetadataTimeout,
		cfg.Upstream.HistoryTimeout,
		cfg.Upstream.ChatTimeout,
		cfg.Upstream.StopTimeout,
	)

	// Hub and Fanout each need the other: the Hub relays cross-instance
	// through the Fanout's Relay slot, and the Fanout delivers to the Hub's
	// locally-bridged rooms. SetFanout below breaks the construction cycle.
	wsHub := websocket.NewHub(nil, rdb, sysLogger)
	fo := fanout.New(sysLogger, wsHub)
	wsHub.SetFanout(fo)
	go wsHub.Run()

	profiles := modelprofile.NewStaticRegistry()

	co := coordinator.New(cat, ts, consumerMgr, upstreamClient, fo, profiles, cfg.Timing, sysLogger)

	reg := registry.New()
	reg.SetCurrentUserGetter(registry.CtxUserGetter{})
	reg.SetPersonalizedFiles(registry.NewFSPersonalizedFiles("./uploads"))
	// The Coordinator's active-chat table is per-user state just like the
	// catalog and transcript, so logout must flush it the same way.
	reg.AddFlushHook(co.FlushUser)

	sessionCtx := session.New(cat, ts, consumerMgr, reg, natsBus, sysLogger)

	return &Container{
		ChatController:    controller.NewChatController(co, cat, fo, reg),
		SessionController: controller.NewSessionController(cat, ts, upstreamClient, sysLogger),
		AuthController:    controller.NewAuthController(sessionCtx),
		WSController:      controller.NewWebSocketController(wsHub, sysLogger),
		AdminController:   controller.NewAdminController(sysLogger),
		WebSocketHub:      wsHub,
		Fanout:            fo,
		Bus:               natsBus,
		Coordinator:       co,
		Session:           sessionCtx,
	}
}
