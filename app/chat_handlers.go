package huddle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/putto11262002/huddle/core"
	"github.com/putto11262002/huddle/pkg/router"
)

const (
	errFetchMessages = "Failed to fetch messages"
	errJoinGroup     = "Failed to join group"
	errInvalidJSON   = "invalid json"
)

type ChatHandler struct {
	store    core.MessageStore
	registry *core.Registry
}

func NewChatHandler(store core.MessageStore, registry *core.Registry) *ChatHandler {
	return &ChatHandler{store: store, registry: registry}
}

// GetGroupMessagesHandler returns the history of a group, oldest first.
func (h *ChatHandler) GetGroupMessagesHandler(w http.ResponseWriter, r *http.Request) error {
	messages, err := h.store.ListMessages(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		return fmt.Errorf("ListMessages: %w: %w", err, router.NewJsonError(http.StatusInternalServerError, errFetchMessages))
	}
	return router.WriteJSON(w, http.StatusOK, messages)
}

type OnlineUsersResponse struct {
	Online []string `json:"online"`
}

// GetOnlineUsersHandler always answers with an empty list. Live presence is only pushed over websockets.
func (h *ChatHandler) GetOnlineUsersHandler(w http.ResponseWriter, r *http.Request) error {
	return router.WriteJSON(w, http.StatusOK, OnlineUsersResponse{Online: []string{}})
}

type JoinGroupPayload struct {
	UserName string `json:"userName"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

// JoinGroupHandler records the member in the store. An empty body joins with an empty user name.
func (h *ChatHandler) JoinGroupHandler(w http.ResponseWriter, r *http.Request) error {
	var payload JoinGroupPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		return router.NewJsonError(http.StatusBadRequest, errInvalidJSON)
	}
	r.Body.Close()

	if err := h.store.JoinGroup(r.Context(), chi.URLParam(r, "groupId"), payload.UserName); err != nil {
		return fmt.Errorf("JoinGroup: %w: %w", err, router.NewJsonError(http.StatusInternalServerError, errJoinGroup))
	}
	return router.WriteJSON(w, http.StatusOK, OKResponse{OK: true})
}

type HealthResponse struct {
	Status      string `json:"status"`
	Store       string `json:"store"`
	Persistent  bool   `json:"persistent"`
	Connections int    `json:"connections"`
	Groups      int    `json:"groups"`
}

func (h *ChatHandler) HealthHandler(w http.ResponseWriter, r *http.Request) error {
	return router.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Store:       h.store.Name(),
		Persistent:  h.store.Persistent(),
		Connections: h.registry.Len(),
		Groups:      len(h.registry.Groups()),
	})
}
