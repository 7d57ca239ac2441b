package controller

import (
	"bufio"
	"context"
	"encoding/json"

	"streamchat-orchestrator/internal/apperr"
	"streamchat-orchestrator/internal/catalog"
	"streamchat-orchestrator/internal/coordinator"
	"streamchat-orchestrator/internal/domain"
	"streamchat-orchestrator/internal/dto"
	"streamchat-orchestrator/internal/fanout"
	"streamchat-orchestrator/internal/pkg/serverutils"
	"streamchat-orchestrator/internal/registry"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ChatController owns the chat admission/streaming and stop endpoints: §6's
// POST /chat, POST /stop, POST /nextchatid, GET /sessioncount.
type ChatController struct {
	coordinator *coordinator.Coordinator
	catalog     *catalog.Catalog
	fanout      *fanout.Fanout
	registry    *registry.Registry
}

func NewChatController(co *coordinator.Coordinator, cat *catalog.Catalog, fo *fanout.Fanout, reg *registry.Registry) *ChatController {
	return &ChatController{coordinator: co, catalog: cat, fanout: fo, registry: reg}
}

func (c *ChatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.NewJwtMiddleware(jwtSecret))
	h.Post("", c.Chat)
	h.Post("/stop", c.Stop)
	h.Post("/nextchatid", c.NextChatID)
	h.Get("/sessioncount", c.SessionCount)
}

// jwtSecret is wired by bootstrap via SetJWTSecret before any route fires.
var jwtSecret string

func SetJWTSecret(s string) { jwtSecret = s }

func userIDFrom(ctx *fiber.Ctx) string {
	if id, ok := (registry.CtxUserGetter{}).CurrentUserID(ctx.UserContext()); ok {
		return id
	}
	v, _ := ctx.Locals("user_id").(string)
	return v
}

// Chat admits the chat synchronously, then streams every push-channel event
// for its room back as line-delimited JSON until `complete` — the
// fasthttp-idiomatic equivalent of the teacher's buffered-writer SSE
// pattern, per the ambient stack's HTTP/transport note.
func (c *ChatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.KindValidation, "malformed request body", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	userID := userIDFrom(ctx)
	if userID == "" {
		return apperr.Auth("no bound current user")
	}

	if req.SessionID == "" {
		req.SessionID = c.catalog.NextLocalID(userID)
	}
	if req.InstanceID == "" {
		req.InstanceID = uuid.NewString()
	}

	if req.PersonalizeFlag && len(req.TempFilePaths) == 0 {
		if files, err := c.registry.PersonalizedFilesFor(ctx.Context(), userID); err == nil {
			req.TempFilePaths = files
		}
	}

	chatReq := domain.ChatRequest{
		Prompt:     req.Prompt,
		UserID:     userID,
		SessionID:  req.SessionID,
		ChatID:     req.ChatID,
		InstanceID: req.InstanceID,
		ModelID:    req.ModelID,
		Flags: domain.PromptFlags{
			SummarizeFlag:      req.SummarizeFlag,
			CodebaseSearchFlag: req.CodebaseSearchFlag,
			PersonalizeFlag:    req.PersonalizeFlag,
			TempFileFlag:       req.TempFileFlag,
			FirstChatFlag:      req.FirstChatFlag,
			WebSearchFlag:      req.WebSearchFlag,
		},
		TempFilePaths: req.TempFilePaths,
	}

	room := domain.Fingerprint{UserID: userID, SessionID: req.SessionID, ChatID: req.ChatID, InstanceID: req.InstanceID}.String()

	// Stream's own doc comment requires the caller already be subscribed
	// before it runs: replay() and the producer goroutine both publish onto
	// room immediately, and the Fanout's gochannel pub/sub holds nothing for
	// a subscriber that arrives late. Subscribing before admission means the
	// buffered channel absorbs everything from history_start onward.
	subCtx, cancel := context.WithCancel(context.Background())
	msgs, err := c.fanout.Subscribe(subCtx, room)
	if err != nil {
		cancel()
		return apperr.Wrap(apperr.KindUnavailable, "failed to subscribe to chat room", err)
	}

	upsertRes, err := c.coordinator.Stream(ctx.Context(), chatReq)
	if err != nil {
		cancel()
		return err
	}

	admitted := dto.ChatAdmittedResponse{SessionID: req.SessionID, ChatID: req.ChatID}
	if upsertRes.EvictedSessionID != "" || upsertRes.NearLimitWarning {
		admitted.WindowManagement = &dto.WindowManagement{NearLimitWarning: upsertRes.NearLimitWarning}
		if upsertRes.EvictedSessionID != "" {
			admitted.WindowManagement.DeletedSession = &dto.DeletedSession{SessionID: upsertRes.EvictedSessionID}
		}
	}

	ctx.Set(fiber.HeaderContentType, "application/x-ndjson")
	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		writeLine(w, admitted)
		w.Flush()

		for msg := range msgs {
			var evt map[string]interface{}
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				msg.Nack()
				continue
			}
			writeLine(w, evt)
			msg.Ack()
			if err := w.Flush(); err != nil {
				return
			}
			if evt["type"] == string(domain.EventComplete) {
				return
			}
		}
	})
	return nil
}

func writeLine(w *bufio.Writer, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	w.Write(data)
	w.WriteByte('\n')
}

func (c *ChatController) Stop(ctx *fiber.Ctx) error {
	var req dto.StopRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.KindValidation, "malformed request body", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	userID := userIDFrom(ctx)
	if userID == "" {
		return apperr.Auth("no bound current user")
	}

	c.coordinator.Stop(ctx.Context(), userID, req.SessionID, req.ChatID, req.InstanceID)
	return ctx.JSON(serverutils.SuccessResponse("stop cleanup completed", dto.StopResponse{CleanupCompleted: true}))
}

func (c *ChatController) NextChatID(ctx *fiber.Ctx) error {
	userID := userIDFrom(ctx)
	if userID == "" {
		return apperr.Auth("no bound current user")
	}
	return ctx.JSON(serverutils.SuccessResponse("next chat id", fiber.Map{"chat_id": uuid.NewString()}))
}

func (c *ChatController) SessionCount(ctx *fiber.Ctx) error {
	userID := userIDFrom(ctx)
	if userID == "" {
		return apperr.Auth("no bound current user")
	}
	return ctx.JSON(serverutils.SuccessResponse("session count", fiber.Map{"count": len(c.catalog.List(userID))}))
}
