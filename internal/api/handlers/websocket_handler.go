package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/complymatch/backend/internal/assessment"
	"github.com/complymatch/backend/internal/evaluation"
	"github.com/complymatch/backend/pkg/logger"
)

type WebSocketHandler struct {
	service *assessment.Service
	runner  *evaluation.Runner
}

func NewWebSocketHandler(service *assessment.Service, runner *evaluation.Runner) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		runner:  runner,
	}
}

// HandleConnection streams evaluation progress for one assessment. Each
// completed evaluation also pushes a fresh overall score so dashboards update
// live without polling.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	assessmentID := c.Params("id")

	logger.Info("WebSocket connection established", zap.String("assessment_id", assessmentID))

	events, release := h.runner.Subscribe(assessmentID)
	defer func() {
		release()
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("assessment_id", assessmentID))
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := h.sendEvent(c, event); err != nil {
				logger.Error("Failed to write WebSocket message", zap.Error(err))
				return
			}
			if event.Status == evaluation.StatusCompleted {
				h.sendScore(c, assessmentID)
			}
		}
	}
}

func (h *WebSocketHandler) sendEvent(c *websocket.Conn, event evaluation.Event) error {
	msg := map[string]interface{}{
		"type":        "evaluation",
		"question_id": event.QuestionID,
		"status":      event.Status,
	}
	if event.Error != "" {
		msg["error"] = event.Error
	}
	if event.Status == evaluation.StatusCompleted {
		msg["answered_questions"] = event.Progress.AnsweredQuestions
		msg["total_questions"] = event.Progress.TotalQuestions
		msg["answer_version"] = event.Progress.AnswerVersion
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendScore(c *websocket.Conn, assessmentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	root, err := h.service.ComputeScore(ctx, assessmentID)
	if err != nil {
		logger.Warn("Failed to compute score for WebSocket push",
			zap.String("assessment_id", assessmentID),
			zap.Error(err),
		)
		return
	}

	c.WriteJSON(map[string]interface{}{
		"type":          "score",
		"assessment_id": assessmentID,
		"overall":       root.Overall(),
	})
}
