package controller

import (
	"context"
	"testing"
	"time"

	"streamchat-orchestrator/internal/bus"
	"streamchat-orchestrator/internal/catalog"
	"streamchat-orchestrator/internal/config"
	"streamchat-orchestrator/internal/consumer"
	"streamchat-orchestrator/internal/coordinator"
	"streamchat-orchestrator/internal/fanout"
	"streamchat-orchestrator/internal/modelprofile"
	"streamchat-orchestrator/internal/pkg/logger"
	"streamchat-orchestrator/internal/pkg/serverutils"
	"streamchat-orchestrator/internal/registry"
	"streamchat-orchestrator/internal/repository/memory"
	"streamchat-orchestrator/internal/transcript"
	"streamchat-orchestrator/internal/upstream"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// newTestApp wires the same error-mapping middleware the real server uses,
// so handler tests see the same status codes production traffic would.
func newTestApp() *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	return app
}

type noopBus struct{}

func (noopBus) IsConnected() bool { return false }
func (noopBus) Subscribe(ctx context.Context, subject, durable string, handler func(bus.Msg)) (bus.Subscription, error) {
	return nil, nil
}

const testJWTSecret = "test-secret"

func signToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID})
	s, err := tok.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

type testHarness struct {
	Catalog     *catalog.Catalog
	Transcript  *transcript.Store
	Coordinator *coordinator.Coordinator
	Upstream    *upstream.Client
	Fanout      *fanout.Fanout
	Registry    *registry.Registry
	Logger      logger.ILogger
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	SetJWTSecret(testJWTSecret)

	log := logger.NewZapLogger(t.TempDir()+"/t.log", false)
	cat := catalog.New(memory.NewCatalogRepository(), log)
	ts := transcript.New(memory.NewTranscriptRepository(), log)
	cat.AddEvictionHook(ts)

	cm := consumer.NewManager(noopBus{}, log)
	uc := upstream.New("http://127.0.0.1:0", time.Second, time.Second, time.Second, time.Second)
	fo := fanout.New(log, nil)
	t.Cleanup(func() { fo.Close() })
	profiles := modelprofile.NewStaticRegistry()
	reg := registry.New()

	co := coordinator.New(cat, ts, cm, uc, fo, profiles, config.TimingConfig{
		IdleBeforeFirstDone:    50 * time.Millisecond,
		IdleBeforeFirstPending: 50 * time.Millisecond,
		QuiescenceDone:         50 * time.Millisecond,
		QuiescenceNone:         50 * time.Millisecond,
		SafetyTimeout:          time.Second,
		ErrorDrain:             50 * time.Millisecond,
	}, log)

	return &testHarness{Catalog: cat, Transcript: ts, Coordinator: co, Upstream: uc, Fanout: fo, Registry: reg, Logger: log}
}
