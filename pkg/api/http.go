// Package api exposes the local query surface consumed by a CLI or
// bot-command layer: deleted-message queries, edit-history queries, sends
// through the ghost filter, and runtime ghost flag control.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vaultgram/pkg/antidelete"
	"vaultgram/pkg/ghost"
	"vaultgram/pkg/history"
	"vaultgram/pkg/logger"
	"vaultgram/pkg/models"
)

// Deps carries the components the handlers query.
type Deps struct {
	AntiDelete *antidelete.Engine
	History    *history.Tracker
	Ghost      *ghost.Filter
}

// Handler builds the HTTP router.
func Handler(d Deps) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/v1/chats/{chat}/deleted", d.handleDeleted).Methods(http.MethodGet)
	r.HandleFunc("/v1/chats/{chat}/messages/{id}/history", d.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/v1/messages", d.handleSend).Methods(http.MethodPost)
	r.HandleFunc("/v1/ghost", d.handleGhostGet).Methods(http.MethodGet)
	r.HandleFunc("/v1/ghost", d.handleGhostPut).Methods(http.MethodPut)
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func pathInt64(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("response_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// deletedResponse carries the records plus a warning when unreadable
// records were skipped; a partial answer is still an answer.
type deletedResponse struct {
	Deleted []models.Deletion `json:"deleted"`
	Warning string            `json:"warning,omitempty"`
}

func (d Deps) handleDeleted(w http.ResponseWriter, r *http.Request) {
	chat, err := pathInt64(r, "chat")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	dels, derr := d.AntiDelete.DeletedMessages(r.Context(), chat)
	resp := deletedResponse{Deleted: dels}
	if resp.Deleted == nil {
		resp.Deleted = []models.Deletion{}
	}
	if derr != nil {
		logger.Warn("deleted_query_partial", "chat", chat, "error", derr)
		resp.Warning = "some records were unreadable and skipped"
	}
	writeJSON(w, http.StatusOK, resp)
}

type historyResponse struct {
	Revisions []models.Revision `json:"revisions"`
	Warning   string            `json:"warning,omitempty"`
}

func (d Deps) handleHistory(w http.ResponseWriter, r *http.Request) {
	chat, err := pathInt64(r, "chat")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	revs, herr := d.History.EditHistory(r.Context(), chat, id)
	if errors.Is(herr, history.ErrNoHistory) {
		writeError(w, http.StatusNotFound, "no revisions for message")
		return
	}
	resp := historyResponse{Revisions: revs}
	if herr != nil {
		logger.Warn("history_query_partial", "chat", chat, "id", id, "error", herr)
		resp.Warning = "some revisions were unreadable and skipped"
	}
	writeJSON(w, http.StatusOK, resp)
}

type sendRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
	Silent bool   `json:"silent"`
}

func (d Deps) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ChatID == 0 || req.Text == "" {
		writeError(w, http.StatusBadRequest, "chat_id and text are required")
		return
	}
	res, err := d.Ghost.SendMessage(r.Context(), req.ChatID, req.Text, req.Silent)
	if err != nil {
		logger.Error("send_failed", "chat", req.ChatID, "error", err)
		writeError(w, http.StatusBadGateway, "send failed")
		return
	}
	logger.Info("message_sent", "chat", req.ChatID, "silent", res.Silent)
	writeJSON(w, http.StatusOK, res)
}

type ghostFlags struct {
	Enabled    bool `json:"enabled"`
	HideOnline bool `json:"hide_online"`
	HideTyping bool `json:"hide_typing"`
	HideRead   bool `json:"hide_read"`
}

func (d Deps) handleGhostGet(w http.ResponseWriter, r *http.Request) {
	f := d.Ghost.Flags()
	writeJSON(w, http.StatusOK, ghostFlags{
		Enabled:    f.Enabled,
		HideOnline: f.HideOnline,
		HideTyping: f.HideTyping,
		HideRead:   f.HideRead,
	})
}

func (d Deps) handleGhostPut(w http.ResponseWriter, r *http.Request) {
	var req ghostFlags
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	d.Ghost.SetFlags(ghost.Flags{
		Enabled:    req.Enabled,
		HideOnline: req.HideOnline,
		HideTyping: req.HideTyping,
		HideRead:   req.HideRead,
	})
	writeJSON(w, http.StatusOK, req)
}
