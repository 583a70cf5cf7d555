package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abhisheksenku/paisatrack/internal/auth"
	"github.com/abhisheksenku/paisatrack/internal/core"
	applog "github.com/abhisheksenku/paisatrack/internal/log"
)

// MutationService is the write path the inbound handlers commit
// through. Implemented by services.ExpenseService.
type MutationService interface {
	AddExpense(ctx context.Context, rec core.Record) (core.Record, error)
	UpdateExpense(ctx context.Context, rec core.Record) (core.Record, error)
	DeleteExpense(ctx context.Context, userID string, id int64) error
	BulkDeleteExpenses(ctx context.Context, userID string, ids []int64) error
	RefreshPremiumStatus(ctx context.Context, userID string) error
}

// Server upgrades authenticated connections into sessions and dispatches
// their inbound events. Handlers run serially in each session's read
// loop, so one user's mutations broadcast in commit order.
type Server struct {
	verifier *auth.Verifier
	router   *Router
	hub      Broadcaster
	svc      MutationService
	logger   *applog.Logger
	upgrader websocket.Upgrader
}

func NewServer(verifier *auth.Verifier, router *Router, hub Broadcaster, svc MutationService, logger *applog.Logger) *Server {
	return &Server{
		verifier: verifier,
		router:   router,
		hub:      hub,
		svc:      svc,
		logger:   logger.WithComponent(applog.ComponentRealtime),
		upgrader: websocket.Upgrader{
			// The browser client talks through whatever host serves it;
			// same open policy as the legacy deployment.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS is the connection handshake. Verification failures are
// rejected before the upgrade with a descriptive reason, never a silent
// drop; no session exists until verification passes.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.verifier.Verify(bearerToken(r))
	if err != nil {
		s.logger.Warn("handshake rejected",
			applog.FieldRemoteAddr, r.RemoteAddr,
			applog.FieldReason, err.Error())
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", applog.FieldError, err)
		return
	}

	sess := newSession(identity.UserID, identity.IsPremium, conn)
	s.router.Register(sess)
	go sess.writePump()

	s.logger.Info("session connected",
		applog.FieldSessionID, sess.ID,
		applog.FieldUserID, sess.UserID,
		"premium", sess.IsPremium(),
		"sessions", s.router.SessionCount())

	s.readLoop(r.Context(), sess, conn)

	// Disconnect is the cancellation signal: membership goes first so
	// no later broadcast cycle can pick this session up.
	s.router.Unregister(sess)
	sess.close()
	_ = conn.Close()

	s.logger.Info("session disconnected",
		applog.FieldSessionID, sess.ID,
		applog.FieldUserID, sess.UserID,
		"connected_for", time.Since(sess.CreatedAt).String(),
		"sessions", s.router.SessionCount())
}

func (s *Server) readLoop(ctx context.Context, sess *Session, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("unexpected close",
					applog.FieldSessionID, sess.ID,
					applog.FieldError, err)
			}
			return
		}
		s.dispatch(ctx, sess, msg)
	}
}

// dispatch routes one inbound event. Handler failures are reported back
// to the originating session only, as expense_error; they never fan out.
func (s *Server) dispatch(ctx context.Context, sess *Session, msg inboundMessage) {
	var err error
	switch msg.Event {
	case EventAddExpense:
		err = s.handleAddExpense(ctx, sess, msg.Data)
	case EventEditExpense:
		err = s.handleEditExpense(ctx, sess, msg.Data)
	case EventDeleteExpense:
		err = s.handleDeleteExpense(ctx, sess, msg.Data)
	case EventBulkDeleteExpenses:
		err = s.handleBulkDelete(ctx, sess, msg.Data)
	case EventPremiumStatusChanged:
		err = s.svc.RefreshPremiumStatus(ctx, sess.UserID)
	case EventLeaderboardRefreshRequest:
		s.hub.Broadcast(Premium, EventLeaderboardRefresh, nil)
	default:
		s.logger.Debug("ignoring unknown event",
			applog.FieldSessionID, sess.ID,
			applog.FieldEvent, msg.Event)
	}

	if err != nil {
		s.logger.Error("event handler failed",
			applog.FieldSessionID, sess.ID,
			applog.FieldUserID, sess.UserID,
			applog.FieldEvent, msg.Event,
			applog.FieldError, err)
		sess.queue(Envelope{
			Event: EventExpenseError,
			Data:  ErrorPayload{Message: errorMessage(msg.Event)},
		})
	}
}

func (s *Server) handleAddExpense(ctx context.Context, sess *Session, data json.RawMessage) error {
	var req addExpenseRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	rec, err := req.toRecord(sess.UserID)
	if err != nil {
		return err
	}
	_, err = s.svc.AddExpense(ctx, rec)
	return err
}

func (s *Server) handleEditExpense(ctx context.Context, sess *Session, data json.RawMessage) error {
	var req editExpenseRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	rec, err := req.toRecord(sess.UserID)
	if err != nil {
		return err
	}
	rec.ID = req.ID
	_, err = s.svc.UpdateExpense(ctx, rec)
	return err
}

func (s *Server) handleDeleteExpense(ctx context.Context, sess *Session, data json.RawMessage) error {
	var req DeletePayload
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	return s.svc.DeleteExpense(ctx, sess.UserID, req.ID)
}

func (s *Server) handleBulkDelete(ctx context.Context, sess *Session, data json.RawMessage) error {
	var req BulkDeletePayload
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	return s.svc.BulkDeleteExpenses(ctx, sess.UserID, req.IDs)
}

func (r addExpenseRequest) toRecord(userID string) (core.Record, error) {
	cents, err := core.ParseDecimalToCents(r.Amount)
	if err != nil {
		return core.Record{}, err
	}
	date, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return core.Record{}, core.ErrInvalidDate
	}
	rec := core.Record{
		UserID:      userID,
		Kind:        core.Kind(r.Kind),
		Category:    r.Category,
		Description: r.Description,
		Note:        r.Note,
		Amount:      core.Money{Cents: cents},
		Date:        date,
	}
	return rec, rec.Validate()
}

func errorMessage(event string) string {
	switch event {
	case EventAddExpense:
		return "Failed to add expense"
	case EventEditExpense:
		return "Failed to update expense"
	case EventDeleteExpense:
		return "Failed to delete expense"
	case EventBulkDeleteExpenses:
		return "Failed to bulk delete expenses"
	case EventPremiumStatusChanged:
		return "Failed to update premium status"
	}
	return "Request failed"
}

// bearerToken pulls the handshake credential from the Authorization
// header, falling back to the token query parameter for browser
// websocket clients that cannot set headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
