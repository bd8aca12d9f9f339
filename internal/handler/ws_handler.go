package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prepdeck/prepdeck-backend/internal/middleware"
	"github.com/prepdeck/prepdeck-backend/internal/model"
	"github.com/prepdeck/prepdeck-backend/internal/service"
	"github.com/prepdeck/prepdeck-backend/internal/session"
	ws "github.com/prepdeck/prepdeck-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live attempt over WebSocket: server-side countdown
// ticks flow out, answer mutations and proctoring events flow in.
type WSHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
// Upgrades to WebSocket for the live attempt: ticks, saves and grading.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	ctrl, err := h.attempts.Resolve(attemptID, claims.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()

	// Question index lookup for q_id-addressed actions. The paper order
	// is fixed for the life of the attempt.
	indexByQID := make(map[string]int)
	for i, rec := range ctrl.State().Answers {
		indexByQID[rec.QuestionID.String()] = i
	}

	// Push countdown ticks and the terminal result to this connection.
	// The controller delivers events off its lock; writes are serialized
	// by the wrapped connection.
	ctrl.SetNotify(func(ev session.Event) {
		switch ev.Kind {
		case session.EventTick:
			conn.WriteTyped(ws.TickEvent{Event: ws.EventTick, RemainingSeconds: ev.RemainingSeconds})
		case session.EventFinished:
			conn.WriteTyped(ws.GradedEvent{Event: ws.EventGraded, Reason: ev.Result.Status, Result: ev.Result})
		}
	})
	defer ctrl.SetNotify(nil)

	wsLog.Info().Msg("Student connected")

	for {
		var envelope ws.RequestEnvelope
		raw.SetReadDeadline(readDeadline())
		_, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		if err := decode(data, &envelope); err != nil {
			conn.WriteError("malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionGoto:
			h.handleGoto(conn, ctrl, data)
		case ws.ActionAnswer:
			h.handleAnswer(conn, ctrl, indexByQID, data)
		case ws.ActionClear:
			h.handleClear(conn, ctrl, indexByQID, data)
		case ws.ActionReview:
			h.handleReview(conn, ctrl, indexByQID, data)
		case ws.ActionProctor:
			h.handleProctor(conn, wsLog, ctrl, data)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, ctrl)
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(envelope.Action))
		}
	}
}

func decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func readDeadline() time.Time {
	return time.Now().Add(5 * time.Minute)
}

func (h *WSHandler) handleGoto(conn *ws.Conn, ctrl *session.Controller, data []byte) {
	var req ws.GotoRequest
	if err := decode(data, &req); err != nil {
		conn.WriteError("malformed goto")
		return
	}
	if err := ctrl.Goto(req.Index); err != nil {
		conn.WriteError(err.Error())
		return
	}
	conn.WriteTyped(ws.SavedEvent{Event: ws.EventSaved, Status: "ok"})
}

func (h *WSHandler) handleAnswer(conn *ws.Conn, ctrl *session.Controller, indexByQID map[string]int, data []byte) {
	var req ws.AnswerRequest
	if err := decode(data, &req); err != nil {
		conn.WriteError("malformed answer")
		return
	}
	if !h.focus(conn, ctrl, indexByQID, req.QID) {
		return
	}
	if err := ctrl.Select(req.Option); err != nil {
		conn.WriteError(err.Error())
		return
	}
	h.enqueue(ctrl, indexByQID[req.QID])
	conn.WriteTyped(ws.SavedEvent{Event: ws.EventSaved, QID: req.QID, Status: "saved"})
}

func (h *WSHandler) handleClear(conn *ws.Conn, ctrl *session.Controller, indexByQID map[string]int, data []byte) {
	var req ws.ClearRequest
	if err := decode(data, &req); err != nil {
		conn.WriteError("malformed clear")
		return
	}
	if !h.focus(conn, ctrl, indexByQID, req.QID) {
		return
	}
	if err := ctrl.Clear(); err != nil {
		conn.WriteError(err.Error())
		return
	}
	h.enqueue(ctrl, indexByQID[req.QID])
	conn.WriteTyped(ws.SavedEvent{Event: ws.EventSaved, QID: req.QID, Status: "cleared"})
}

func (h *WSHandler) handleReview(conn *ws.Conn, ctrl *session.Controller, indexByQID map[string]int, data []byte) {
	var req ws.ReviewRequest
	if err := decode(data, &req); err != nil {
		conn.WriteError("malformed review")
		return
	}
	if !h.focus(conn, ctrl, indexByQID, req.QID) {
		return
	}
	if err := ctrl.ToggleReview(); err != nil {
		conn.WriteError(err.Error())
		return
	}
	h.enqueue(ctrl, indexByQID[req.QID])
	conn.WriteTyped(ws.SavedEvent{Event: ws.EventSaved, QID: req.QID, Status: "saved"})
}

func (h *WSHandler) handleProctor(conn *ws.Conn, wsLog zerolog.Logger, ctrl *session.Controller, data []byte) {
	var req ws.ProctorRequest
	if err := decode(data, &req); err != nil {
		conn.WriteError("malformed proctor event")
		return
	}

	count, exceeded := h.attempts.RecordViolation(context.Background(), ctrl, req.Kind, req.Detail)
	wsLog.Info().Str("kind", req.Kind).Int("count", count).Msg("Proctor event recorded")
	if !exceeded {
		return
	}

	wsLog.Warn().Int("count", count).Msg("Violation threshold exceeded, terminating attempt")
	result, err := h.attempts.Terminate(context.Background(), ctrl, model.TerminalTerminatedPolicy)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyFinished) || errors.Is(err, session.ErrSubmitInFlight) {
			return
		}
		wsLog.Error().Err(err).Msg("Policy termination persist failed")
		conn.WriteTyped(ws.TerminatedEvent{Event: ws.EventTerminated, Reason: model.TerminalTerminatedPolicy})
		return
	}
	conn.WriteTyped(ws.GradedEvent{Event: ws.EventGraded, Reason: result.Status, Result: result})
}

func (h *WSHandler) handleSubmit(conn *ws.Conn, wsLog zerolog.Logger, ctrl *session.Controller) {
	result, err := h.attempts.Submit(context.Background(), ctrl)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyFinished) || errors.Is(err, session.ErrSubmitInFlight) {
			// The other submit path already has (or will push) the result.
			return
		}
		wsLog.Error().Err(err).Msg("Submit failed, attempt kept alive")
		conn.WriteError("submit failed, please retry")
		return
	}
	conn.WriteTyped(ws.GradedEvent{Event: ws.EventGraded, Reason: result.Status, Result: result})
}

// focus moves the controller cursor to the addressed question.
func (h *WSHandler) focus(conn *ws.Conn, ctrl *session.Controller, indexByQID map[string]int, qid string) bool {
	idx, ok := indexByQID[qid]
	if !ok {
		conn.WriteError("unknown question: " + qid)
		return false
	}
	if err := ctrl.Goto(idx); err != nil {
		conn.WriteError(err.Error())
		return false
	}
	return true
}

func (h *WSHandler) enqueue(ctrl *session.Controller, index int) {
	state := ctrl.State()
	if index < len(state.Answers) {
		rec := state.Answers[index]
		h.attempts.EnqueueAnswerLog(context.Background(), ctrl.ID(), &rec)
	}
}
