package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/tejasgit/zero-trust-agent/pkg/engine"
	"github.com/tejasgit/zero-trust-agent/pkg/gate"
	"github.com/tejasgit/zero-trust-agent/pkg/httpx"
	"github.com/tejasgit/zero-trust-agent/pkg/models"
	"github.com/tejasgit/zero-trust-agent/pkg/stream"
)

type evaluateRequest struct {
	Alert          models.Alert          `json:"alert"`
	Classification models.Classification `json:"classification"`
}

func (s *Server) evaluateAlert(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Alert.Title) == "" || strings.TrimSpace(req.Alert.Source) == "" {
		httpx.Error(w, http.StatusUnprocessableEntity, "alert source and title required")
		return
	}
	if req.Alert.Timestamp.IsZero() {
		req.Alert.Timestamp = time.Now().UTC()
	}
	out, err := s.Engine.Evaluate(r.Context(), req.Alert, req.Classification)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	// A decision that waits on a human opens its ledger entry here, so
	// the caller gets the approval id to act on.
	if out.Result == engine.ResultAwaitingApproval && out.Incident != nil && out.Gate != nil {
		approval := s.Ledger.Open(out.Incident.ID, out.ActionType, *out.Gate)
		out.Approval = &approval
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) listApprovals(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, s.Ledger.Pending())
}

type approvalRequest struct {
	Decision string `json:"decision"`
	Approver string `json:"approver"`
}

func (s *Server) resolveApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	approver := strings.TrimSpace(req.Approver)
	if approver == "" {
		approver = actorFrom(r)
	}
	id := chi.URLParam(r, "id")
	var err error
	switch strings.ToLower(strings.TrimSpace(req.Decision)) {
	case "approve":
		err = s.Ledger.Approve(id, approver)
	case "reject":
		err = s.Ledger.Reject(id, approver)
	default:
		httpx.Error(w, http.StatusUnprocessableEntity, `decision must be "approve" or "reject"`)
		return
	}
	switch {
	case errors.Is(err, gate.ErrApprovalNotFound):
		httpx.Error(w, http.StatusNotFound, "approval not found")
		return
	case errors.Is(err, gate.ErrApprovalResolved):
		httpx.Error(w, http.StatusConflict, "approval already resolved")
		return
	case err != nil:
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	approval, getErr := s.Ledger.Get(id)
	if getErr != nil {
		httpx.Error(w, http.StatusInternalServerError, getErr.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, approval)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "stream unavailable")
		return
	}
	opts := &websocket.AcceptOptions{}
	if origins := wsOriginPatterns(env("WS_ALLOWED_ORIGINS", "")); len(origins) > 0 {
		opts.OriginPatterns = origins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub := s.Events.Subscribe(64)
	defer s.Events.Unsubscribe(sub)

	_ = wsjson.Write(ctx, conn, stream.NewEvent("ready", nil))
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

func wsOriginPatterns(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
