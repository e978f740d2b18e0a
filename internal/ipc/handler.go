// Package ipc provides the HTTP control surface for the NULL Engine.
package ipc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/broadcast"
	"github.com/null-engine/nullengine/internal/consensus"
	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/herald"
	"github.com/null-engine/nullengine/internal/metrics"
	"github.com/null-engine/nullengine/internal/simulation"
	"github.com/null-engine/nullengine/internal/store"
)

// Controller starts and stops world runners.
type Controller interface {
	Start(ctx context.Context, worldID string) error
	Stop(ctx context.Context, worldID string) error
	IsRunning(worldID string) bool
	ActiveCount() int
}

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	DB        *sql.DB
	Worlds    *store.WorldRepo
	Events    *store.WorldEventRepo
	Posts     *store.PostRepo
	Wiki      *store.WikiRepo
	Audit     *store.AuditRepo
	Genesis   *simulation.Genesis
	Runners   Controller
	Triggers  *simulation.Events
	Herald    *herald.Herald
	Consensus *consensus.Engine
	Hub       *broadcast.Hub
	Metrics   *metrics.Store
	Alerts    metrics.Thresholds

	// Background outlives requests; genesis populates under it.
	Background context.Context
	Logger     zerolog.Logger
}

// CreateWorldRequest is the body for POST /api/v1/worlds.
type CreateWorldRequest struct {
	SeedPrompt string         `json:"seed_prompt"`
	Config     map[string]any `json:"config"`
}

// InjectEventRequest is the body for POST /api/v1/worlds/{worldID}/events.
type InjectEventRequest struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Targets     []string `json:"targets"`
}

// VoteClaimRequest is the body for POST /api/v1/worlds/{worldID}/claims/vote.
type VoteClaimRequest struct {
	Claim   string `json:"claim"`
	Voter   string `json:"voter"`
	Faction string `json:"faction"`
}

// WorldView is a world plus whether a runner is live for it.
type WorldView struct {
	domain.World
	Running bool `json:"running"`
}

// OpsMetrics is the response for GET /api/v1/ops/metrics.
type OpsMetrics struct {
	WorldCounts   map[domain.WorldStatus]int `json:"world_counts"`
	ActiveRunners int                        `json:"active_runners"`
	Loops         []domain.LoopMetric        `json:"loops"`
	Runners       []domain.RunnerMetric      `json:"runners"`
	Alerts        []domain.Alert             `json:"alerts"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"active_runners": h.Runners.ActiveCount(),
	})
}

// CreateWorld handles POST /api/v1/worlds. The world is inserted as
// generating and populated in the background.
func (h *Handler) CreateWorld(w http.ResponseWriter, r *http.Request) {
	var req CreateWorldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}

	world, err := h.Genesis.Begin(r.Context(), req.SeedPrompt, req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, world.ID, "world.create", req)

	bg := h.Background
	if bg == nil {
		bg = context.Background()
	}
	go func(world domain.World) {
		if err := h.Genesis.Populate(bg, &world); err != nil {
			h.Logger.Error().Err(err).Str("world_id", world.ID).Msg("ipc.genesis_failed")
		}
	}(*world)

	writeJSON(w, http.StatusAccepted, WorldView{World: *world})
}

// ListWorlds handles GET /api/v1/worlds.
func (h *Handler) ListWorlds(w http.ResponseWriter, r *http.Request) {
	worlds, err := h.Worlds.List(r.Context(), h.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]WorldView, 0, len(worlds))
	for _, wd := range worlds {
		out = append(out, WorldView{World: wd, Running: h.Runners.IsRunning(wd.ID)})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetWorld handles GET /api/v1/worlds/{worldID}.
func (h *Handler) GetWorld(w http.ResponseWriter, r *http.Request) {
	world, err := h.Worlds.GetByID(r.Context(), h.DB, r.PathValue("worldID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WorldView{World: *world, Running: h.Runners.IsRunning(world.ID)})
}

// StartWorld handles POST /api/v1/worlds/{worldID}/start.
func (h *Handler) StartWorld(w http.ResponseWriter, r *http.Request) {
	worldID := r.PathValue("worldID")
	if err := h.Runners.Start(r.Context(), worldID); err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, worldID, "world.start", nil)
	writeJSON(w, http.StatusOK, map[string]any{"world_id": worldID, "status": domain.WorldRunning})
}

// StopWorld handles POST /api/v1/worlds/{worldID}/stop.
func (h *Handler) StopWorld(w http.ResponseWriter, r *http.Request) {
	worldID := r.PathValue("worldID")
	if err := h.Runners.Stop(r.Context(), worldID); err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, worldID, "world.stop", nil)
	writeJSON(w, http.StatusOK, map[string]any{"world_id": worldID, "status": domain.WorldPaused})
}

// InjectEvent handles POST /api/v1/worlds/{worldID}/events.
func (h *Handler) InjectEvent(w http.ResponseWriter, r *http.Request) {
	var req InjectEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	world, err := h.Worlds.GetByID(r.Context(), h.DB, r.PathValue("worldID"))
	if err != nil {
		writeError(w, err)
		return
	}

	ev, err := h.Triggers.Inject(r.Context(), h.DB, *world, req.Type, req.Description, req.Targets)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Herald.Buffer(world.ID, domain.EventBufferEntry{Description: ev.Description, Type: ev.Type})
	h.audit(r, world.ID, "event.inject", req)
	writeJSON(w, http.StatusCreated, ev)
}

// ListEvents handles GET /api/v1/worlds/{worldID}/events?since_id=N.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	worldID := r.PathValue("worldID")
	var sinceID int64
	if s := r.URL.Query().Get("since_id"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid since_id"})
			return
		}
		sinceID = v
	}
	events, err := h.Events.ListByWorld(r.Context(), h.DB, worldID, sinceID)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.WorldEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// ListClaims handles GET /api/v1/worlds/{worldID}/claims.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	world, err := h.Worlds.GetByID(r.Context(), h.DB, r.PathValue("worldID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Consensus.Pending(world.ID))
}

// VoteClaim handles POST /api/v1/worlds/{worldID}/claims/vote. A claim that
// reaches quorum is reported on the world's next tick.
func (h *Handler) VoteClaim(w http.ResponseWriter, r *http.Request) {
	var req VoteClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Claim) == "" || req.Voter == "" || req.Faction == "" {
		writeError(w, domain.ErrInvalidVote)
		return
	}
	world, err := h.Worlds.GetByID(r.Context(), h.DB, r.PathValue("worldID"))
	if err != nil {
		writeError(w, err)
		return
	}

	status, ok := h.Consensus.Vote(world.ID, req.Claim, req.Voter, req.Faction)
	if !ok {
		writeError(w, domain.ErrClaimNotPending)
		return
	}
	h.audit(r, world.ID, "claim.vote", req)
	writeJSON(w, http.StatusOK, map[string]any{"claim": req.Claim, "status": status})
}

// ListPosts handles GET /api/v1/worlds/{worldID}/posts?limit=N.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid limit"})
			return
		}
		limit = v
	}
	posts, err := h.Posts.ListByWorld(r.Context(), h.DB, r.PathValue("worldID"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if posts == nil {
		posts = []domain.AgentPost{}
	}
	writeJSON(w, http.StatusOK, posts)
}

// ListWiki handles GET /api/v1/worlds/{worldID}/wiki.
func (h *Handler) ListWiki(w http.ResponseWriter, r *http.Request) {
	pages, err := h.Wiki.ListByWorld(r.Context(), h.DB, r.PathValue("worldID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if pages == nil {
		pages = []domain.WikiPage{}
	}
	writeJSON(w, http.StatusOK, pages)
}

// ListAudit handles GET /api/v1/worlds/{worldID}/audit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	records, err := h.Audit.ListByWorld(r.Context(), h.DB, r.PathValue("worldID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// OpsMetrics handles GET /api/v1/ops/metrics.
func (h *Handler) OpsMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OpsMetrics{
		WorldCounts:   snap.WorldCounts,
		ActiveRunners: snap.ActiveRunners,
		Loops:         snap.Loops,
		Runners:       snap.Runners,
		Alerts:        metrics.DeriveAlerts(snap, h.Alerts),
	})
}

// OpsAlerts handles GET /api/v1/ops/alerts.
func (h *Handler) OpsAlerts(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics.DeriveAlerts(snap, h.Alerts))
}

func (h *Handler) snapshot(ctx context.Context) (metrics.Snapshot, error) {
	counts, err := h.Worlds.CountByStatus(ctx, h.DB)
	if err != nil {
		return metrics.Snapshot{}, err
	}
	return metrics.Snapshot{
		Loops:         h.Metrics.Loops(),
		Runners:       h.Metrics.Runners(),
		WorldCounts:   counts,
		ActiveRunners: h.Runners.ActiveCount(),
	}, nil
}

// ServeWS handles GET /ws/{worldID}. The connection receives every envelope
// broadcast for the world until the client disconnects.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	worldID := r.PathValue("worldID")
	if _, err := h.Worlds.GetByID(r.Context(), h.DB, worldID); err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn().Err(err).Str("world_id", worldID).Msg("ipc.upgrade_failed")
		return
	}
	obs := broadcast.NewWSObserver(conn)
	h.Hub.Subscribe(worldID, obs)
	h.Logger.Debug().Str("world_id", worldID).Int("observers", h.Hub.Count(worldID)).Msg("ipc.observer_joined")

	obs.Drain()

	h.Hub.Unsubscribe(worldID, obs)
	obs.Close()
	h.Logger.Debug().Str("world_id", worldID).Msg("ipc.observer_left")
}

func (h *Handler) audit(r *http.Request, worldID, action string, body any) {
	if h.Audit == nil {
		return
	}
	actor := strings.TrimSpace(r.Header.Get("X-Actor"))
	if actor == "" {
		actor = "operator"
	}
	reqJSON := "{}"
	if body != nil {
		if data, err := json.Marshal(body); err == nil {
			reqJSON = string(data)
		}
	}
	rec := domain.AuditRecord{
		ID:          uuid.NewString(),
		WorldID:     worldID,
		Category:    "control",
		Actor:       actor,
		Action:      action,
		RequestJSON: reqJSON,
		Severity:    "info",
		CreatedAt:   time.Now().Unix(),
	}
	if err := h.Audit.Record(r.Context(), h.DB, rec); err != nil {
		h.Logger.Warn().Err(err).Str("world_id", worldID).Str("action", action).Msg("ipc.audit_failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var engErr *domain.EngineError
	if errors.As(err, &engErr) {
		status := http.StatusInternalServerError
		switch engErr.Code {
		case domain.ErrWorldNotFound.Code, domain.ErrClaimNotPending.Code:
			status = http.StatusNotFound
		case domain.ErrRunnerAlreadyRunning.Code, domain.ErrRunnerNotRunning.Code,
			domain.ErrWorldNotReady.Code, domain.ErrInvalidWorldStatus.Code:
			status = http.StatusConflict
		case domain.ErrInvalidSeed.Code, domain.ErrInvalidEvent.Code, domain.ErrInvalidVote.Code:
			status = http.StatusBadRequest
		case domain.ErrGenerationUnavailable.Code:
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}
