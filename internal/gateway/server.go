package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bonfirelabs/bonfire/internal/chat"
	"github.com/bonfirelabs/bonfire/internal/pipeline"
)

// Handler runs the reply pipeline for one persisted message.
type Handler interface {
	Handle(ctx context.Context, in pipeline.Incoming) (*pipeline.Outcome, error)
}

// Server is the HTTP API the web frontend talks to.
type Server struct {
	store   *chat.Store
	handler Handler
}

func NewServer(store *chat.Store, handler Handler) *Server {
	return &Server{store: store, handler: handler}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/rooms", s.handleCreateRoom)
		r.Get("/rooms/{roomID}/messages", s.handleListMessages)
		r.Post("/rooms/{roomID}/messages", s.handlePostMessage)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createRoomRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	room, err := s.store.CreateRoom(req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": room.ID, "name": room.Name})
}

type messageView struct {
	ID         string         `json:"id"`
	AuthorID   string         `json:"authorId"`
	AuthorName string         `json:"authorName,omitempty"`
	Content    string         `json:"content"`
	CreatedAt  time.Time      `json:"createdAt"`
	IsAgent    bool           `json:"isAgent"`
	Kind       string         `json:"kind"`
	Metadata   *chat.Metadata `json:"metadata,omitempty"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	history, err := s.store.RecentHistory(roomID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	// Newest-first in storage, oldest-first on the wire.
	views := make([]messageView, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		views = append(views, messageView{
			ID:         m.ID,
			AuthorID:   m.AuthorID,
			AuthorName: m.AuthorName,
			Content:    m.Content,
			CreatedAt:  m.CreatedAt,
			IsAgent:    m.IsAgent,
			Kind:       m.Kind,
			Metadata:   m.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": views})
}

type postMessageRequest struct {
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Content    string `json:"content"`
	IsPrivate  bool   `json:"isPrivate"`
}

type postMessageResponse struct {
	MessageID string     `json:"messageId"`
	Silent    bool       `json:"silent,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Text      string     `json:"text,omitempty"`
	ReplyID   string     `json:"replyId,omitempty"`
	Poll      *chat.Poll `json:"poll,omitempty"`
}

// handlePostMessage persists the user message, then lets the pipeline
// decide whether the agent answers. The user message stays on record even
// when reply generation fails.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if strings.TrimSpace(req.AuthorID) == "" {
		writeError(w, http.StatusBadRequest, "authorId is required")
		return
	}
	if room, err := s.store.Room(roomID); err != nil || room == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	msg := &chat.Message{
		RoomID:    roomID,
		AuthorID:  req.AuthorID,
		Content:   req.Content,
		IsPrivate: req.IsPrivate,
	}
	if err := s.store.InsertMessage(msg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	if req.IsPrivate {
		// Private notes never reach the agent.
		writeJSON(w, http.StatusOK, postMessageResponse{MessageID: msg.ID, Silent: true, Reason: "private"})
		return
	}

	outcome, err := s.handler.Handle(r.Context(), pipeline.Incoming{
		RoomID:     roomID,
		MessageID:  msg.ID,
		AuthorID:   req.AuthorID,
		AuthorName: req.AuthorName,
		Text:       req.Content,
	})
	if err != nil {
		log.Printf("[gateway] pipeline error: %v", err)
		writeError(w, http.StatusInternalServerError, "reply generation failed")
		return
	}

	resp := postMessageResponse{MessageID: msg.ID}
	if outcome.Replied {
		resp.Text = outcome.Text
		resp.ReplyID = outcome.MessageID
		resp.Poll = outcome.Poll
	} else {
		resp.Silent = true
		resp.Reason = outcome.Reason
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[gateway] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
