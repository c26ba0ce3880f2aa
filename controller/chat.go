package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"streamrelay/platform"
	"streamrelay/service"
)

var logger = platform.Logger

type ChatController struct {
	relay *service.RelayService
	store service.MessageStore
}

func NewChatController(relay *service.RelayService, store service.MessageStore) *ChatController {
	return &ChatController{relay: relay, store: store}
}

// Message relays one user turn and streams the model's answer back as
// server-sent events. Once the event stream is open, failures arrive as
// a single {"type":"error"} event rather than an HTTP status.
func (ch *ChatController) Message(c *gin.Context) {
	var req service.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Warnf("[%s] get Writer flusher error", c.GetString("requestId"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink := &sseSink{w: w, flusher: flusher}
	if err := ch.relay.Relay(c.Request.Context(), req, sink); err != nil {
		logger.Warnf("[%s] relay failed for conversation %s: %s", c.GetString("requestId"), req.ConversationId, err)
	}
}

// History returns the most recent messages of a conversation, oldest
// first. With no limit the whole log is returned.
func (ch *ChatController) History(c *gin.Context) {
	conversationId := c.Param("id")
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "0"), 10, 64)
	if err != nil || limit < 0 {
		logger.Warnf("[%s] invalid limit %q", c.GetString("requestId"), c.Query("limit"))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	messages := ch.store.Tail(c.Request.Context(), conversationId, limit)
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
