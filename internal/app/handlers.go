package app

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/legalsathi/sathi/internal/auth"
	"github.com/legalsathi/sathi/internal/legal"
	"github.com/legalsathi/sathi/internal/observe"
	"github.com/legalsathi/sathi/internal/store"
	"github.com/legalsathi/sathi/internal/transcript"
	"github.com/legalsathi/sathi/pkg/audio/wsbridge"
)

// routes builds the HTTP mux and wraps it with the observability middleware.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", a.handleRegister)
	mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", a.handleLogout)

	mux.HandleFunc("POST /api/chat", a.withUser(a.handleChat))
	mux.HandleFunc("POST /api/documents", a.withUser(a.handleUploadDocument))
	mux.HandleFunc("GET /api/documents", a.withUser(a.handleListDocuments))

	mux.HandleFunc("GET /api/voice", a.withUser(a.handleVoice))
	mux.HandleFunc("GET /api/voice/transcripts/{sessionID}", a.withUser(a.handleTranscripts))

	a.deps.Health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(a.deps.Metrics)(mux)
}

// ─── Wire types ──────────────────────────────────────────────────────────────

type userPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Verified  bool   `json:"verified"`
	AvatarURL string `json:"avatarUrl"`
}

func toUserPayload(u *auth.User) userPayload {
	return userPayload{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		Verified:  u.Verified,
		AvatarURL: u.AvatarURL,
	}
}

type authResponse struct {
	User  userPayload `json:"user"`
	Token string      `json:"token"`
}

type chatMessage struct {
	FromUser bool   `json:"fromUser"`
	Text     string `json:"text"`
}

type documentPayload struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MIMEType   string    `json:"mimeType"`
	Analysis   string    `json:"analysis"`
	UploadedAt time.Time `json:"uploadedAt"`
}

func toDocumentPayload(d store.Document) documentPayload {
	return documentPayload{
		ID:         d.ID,
		Name:       d.Name,
		MIMEType:   d.MIMEType,
		Analysis:   d.Analysis,
		UploadedAt: d.UploadedAt,
	}
}

// ─── Auth ────────────────────────────────────────────────────────────────────

func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = string(auth.RoleUser)
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, token, err := a.deps.Auth.Register(r.Context(), req.Name, req.Email, req.Password, role)
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
		return
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "password should be at least 6 characters")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{User: toUserPayload(user), Token: token})
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := a.deps.Auth.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: toUserPayload(user), Token: token})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		a.deps.Auth.Logout(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

// withUser wraps a handler with bearer-token authentication. The token comes
// from the Authorization header or, for WebSocket clients that cannot set
// headers, the "token" query parameter.
func (a *App) withUser(next func(http.ResponseWriter, *http.Request, *auth.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := a.deps.Auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r, user)
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// ─── Chat ────────────────────────────────────────────────────────────────────

func (a *App) handleChat(w http.ResponseWriter, r *http.Request, _ *auth.User) {
	var req struct {
		History  []chatMessage `json:"history"`
		Question string        `json:"question"`
		Language string        `json:"language"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	lang, err := a.language(req.Language)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history := make([]legal.Message, len(req.History))
	for i, m := range req.History {
		history[i] = legal.Message{FromUser: m.FromUser, Text: m.Text}
	}

	start := time.Now()
	reply, err := a.deps.Advisor.Advise(r.Context(), history, req.Question, lang)
	if err != nil {
		slog.Error("chat completion failed", "error", err)
		writeError(w, http.StatusBadGateway, "legal advice is temporarily unavailable")
		return
	}
	a.deps.Metrics.RecordChat(r.Context(), "chat", time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// ─── Documents ───────────────────────────────────────────────────────────────

func (a *App) handleUploadDocument(w http.ResponseWriter, r *http.Request, user *auth.User) {
	var req struct {
		Name     string `json:"name"`
		MIMEType string `json:"mimeType"`
		Data     string `json:"data"`
		Language string `json:"language"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.MIMEType == "" || req.Data == "" {
		writeError(w, http.StatusBadRequest, "name, mimeType and data are required")
		return
	}
	if _, err := base64.StdEncoding.DecodeString(req.Data); err != nil {
		writeError(w, http.StatusBadRequest, "data must be base64-encoded")
		return
	}
	lang, err := a.language(req.Language)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc := &store.Document{
		ID:         newID(),
		OwnerID:    user.ID,
		Name:       req.Name,
		MIMEType:   req.MIMEType,
		UploadedAt: time.Now().UTC(),
	}
	if err := a.deps.Documents.SaveDocument(r.Context(), doc); err != nil {
		slog.Error("failed to save document", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save document")
		return
	}

	start := time.Now()
	analysis, err := a.deps.Advisor.AnalyzeDocument(r.Context(), req.Data, req.MIMEType, lang)
	switch {
	case errors.Is(err, legal.ErrNotLegalDocument):
		writeError(w, http.StatusUnprocessableEntity, "the uploaded file does not appear to be a legal document")
		return
	case err != nil:
		slog.Error("document analysis failed", "document_id", doc.ID, "error", err)
		writeError(w, http.StatusBadGateway, "document analysis is temporarily unavailable")
		return
	}
	a.deps.Metrics.DocumentAnalysisDuration.Record(r.Context(), time.Since(start).Seconds())

	if err := a.deps.Documents.UpdateAnalysis(r.Context(), doc.ID, analysis); err != nil {
		slog.Warn("failed to store analysis", "document_id", doc.ID, "error", err)
	}
	doc.Analysis = analysis

	writeJSON(w, http.StatusCreated, toDocumentPayload(*doc))
}

func (a *App) handleListDocuments(w http.ResponseWriter, r *http.Request, user *auth.User) {
	docs, err := a.deps.Documents.ListByOwner(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	out := make([]documentPayload, len(docs))
	for i, d := range docs {
		out[i] = toDocumentPayload(d)
	}
	writeJSON(w, http.StatusOK, out)
}

// ─── Voice ───────────────────────────────────────────────────────────────────

// handleVoice upgrades the request to a WebSocket and runs a live voice
// session over it until the client disconnects or the session ends.
func (a *App) handleVoice(w http.ResponseWriter, r *http.Request, user *auth.User) {
	lang, err := a.language(r.URL.Query().Get("language"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}

	ctx := r.Context()
	bridge := wsbridge.New(conn)

	// Clients may name their own session so they can fetch the archived
	// transcript afterwards.
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = newID()
	}
	log := slog.With("session_id", sessionID, "user_id", user.ID)

	vs := NewVoiceSession(VoiceSessionConfig{
		SessionID:     sessionID,
		Provider:      a.deps.Live,
		Source:        bridge,
		Sink:          bridge.Sink(),
		Archive:       a.deps.Transcripts,
		Metrics:       a.deps.Metrics,
		Language:      lang,
		Voice:         a.cfg.Gemini.Voice,
		OnState:       func(s VoiceState) { bridge.SendState(string(s)) },
		OnEntry:       func(e transcript.Entry) { bridge.SendTranscript(string(e.Role), e.Text) },
		OnInterrupted: bridge.SendInterrupted,
		OnError:       bridge.SendError,
	})

	a.trackSession(vs)
	defer a.untrackSession(vs)

	if err := vs.Connect(ctx); err != nil {
		log.Error("voice connect failed", "error", err)
		bridge.SendError("Connection error.")
		_ = bridge.Close()
		return
	}
	log.Info("voice session started")

	select {
	case <-ctx.Done():
	case <-vs.Done():
	}

	vs.Disconnect()
	if err := bridge.Close(); err != nil {
		log.Debug("bridge close", "error", err)
	}
	log.Info("voice session ended")
}

// handleTranscripts returns the archived transcript of a voice session,
// oldest entry first.
func (a *App) handleTranscripts(w http.ResponseWriter, r *http.Request, _ *auth.User) {
	sessionID := r.PathValue("sessionID")

	entries, err := a.deps.Transcripts.Entries(r.Context(), sessionID)
	if err != nil {
		slog.Error("failed to read transcript", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read transcript")
		return
	}

	type entryPayload struct {
		Role      string    `json:"role"`
		Text      string    `json:"text"`
		CreatedAt time.Time `json:"createdAt"`
	}
	out := make([]entryPayload, len(entries))
	for i, e := range entries {
		out[i] = entryPayload{Role: string(e.Role), Text: e.Text, CreatedAt: e.CreatedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func newID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
