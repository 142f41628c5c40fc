package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harshit-ig/startup-genie/internal/domain"
	"github.com/harshit-ig/startup-genie/internal/relay"
	"github.com/harshit-ig/startup-genie/internal/service"
)

// AIHandler expone la creacion de prompts, el stream de respuestas y el historial.
type AIHandler struct {
	logger  *zap.Logger
	prompts *service.PromptService
	relay   *relay.Relay
}

func NewAIHandler(logger *zap.Logger, prompts *service.PromptService, r *relay.Relay) *AIHandler {
	return &AIHandler{
		logger:  logger,
		prompts: prompts,
		relay:   r,
	}
}

// CreatePrompt maneja POST /api/ai/prompt.
func (h *AIHandler) CreatePrompt(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		fail(c, http.StatusUnauthorized, msgNotAuthorized)
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		// Un body invalido se trata como mensaje vacio.
		h.logger.Debug("prompt body not bound", zap.String("user_id", claims.UserID), zap.Error(err))
	}

	prompt, err := h.prompts.CreatePrompt(c.Request.Context(), claims.UserID, req.Message)
	if err != nil {
		if errors.Is(err, service.ErrPromptEmpty) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Message is required"})
			return
		}
		h.logger.Error("create prompt failed", zap.String("user_id", claims.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "promptId": prompt.ID})
}

// Stream maneja GET /api/ai/stream/:promptId. La conexion queda abierta hasta
// que el relay llega a un estado terminal o el cliente se desconecta.
func (h *AIHandler) Stream(c *gin.Context) {
	promptID := c.Param("promptId")
	if !domain.IsValidID(promptID) {
		h.logger.Warn("invalid prompt id", zap.String("prompt_id", promptID))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid prompt ID format"})
		return
	}
	claims, _ := GetAuthClaims(c)

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	header.Set("Access-Control-Allow-Origin", "*")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	res := h.relay.Run(c.Request.Context(), relay.Request{
		PromptID: promptID,
		UserID:   claims.UserID,
	}, &sseSink{w: c.Writer})

	h.logger.Info("stream closed",
		zap.String("prompt_id", promptID),
		zap.String("state", string(res.State)),
		zap.Int("tokens_sent", res.TokensSent),
	)
}

// History maneja GET /api/ai/history.
func (h *AIHandler) History(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		fail(c, http.StatusUnauthorized, msgNotAuthorized)
		return
	}
	history, err := h.prompts.History(c.Request.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("load chat history failed", zap.String("user_id", claims.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": history})
}

// sseSink escribe cada evento como "data: <json>\n\n" y hace flush.
type sseSink struct {
	w gin.ResponseWriter
}

func (s *sseSink) Send(ev relay.Event) error {
	if err := sse.Encode(s.w, sse.Event{Data: ev}); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}
