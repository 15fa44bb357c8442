package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"georemind/internal/app/coordinator"
	"georemind/internal/app/location"
	"georemind/internal/app/tasks"
	"georemind/internal/domain/geo"
	"georemind/internal/domain/task"
	"georemind/internal/shared/logging"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type apiHandler struct {
	deps      RouterDeps
	logger    logging.Logger
	startedAt time.Time
	upgrader  websocket.Upgrader
}

func newAPIHandler(deps RouterDeps, cfg RouterConfig, logger logging.Logger) *apiHandler {
	return &apiHandler{
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
		upgrader:  newUpgrader(cfg.AllowedOrigins),
	}
}

type healthResponse struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	ActiveSessions int    `json:"active_sessions"`
}

func (h *apiHandler) handleHealth(c *gin.Context) {
	active := 0
	if h.deps.Tasks != nil {
		active = len(h.deps.Tasks.Reminders(task.UserContext{}))
	}
	writeJSON(c, http.StatusOK, healthResponse{
		Status:         "ok",
		Uptime:         time.Since(h.startedAt).Round(time.Second).String(),
		ActiveSessions: active,
	})
}

func (h *apiHandler) handleCreateTask(c *gin.Context) {
	var in tasks.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	created, err := h.deps.Tasks.Create(c.Request.Context(), currentUser(c), in)
	if err != nil {
		h.writeMappedError(c, err, "failed to create task")
		return
	}
	writeJSON(c, http.StatusCreated, created)
}

type taskListResponse struct {
	Tasks []*task.Task `json:"tasks"`
}

func (h *apiHandler) handleListTasks(c *gin.Context) {
	filter := task.ListFilter{Status: task.Status(strings.TrimSpace(c.Query("status")))}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	list, err := h.deps.Tasks.List(c.Request.Context(), currentUser(c), filter)
	if err != nil {
		h.writeMappedError(c, err, "failed to list tasks")
		return
	}
	if list == nil {
		list = []*task.Task{}
	}
	writeJSON(c, http.StatusOK, taskListResponse{Tasks: list})
}

func (h *apiHandler) handleGetTask(c *gin.Context) {
	got, err := h.deps.Tasks.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.writeMappedError(c, err, "failed to load task")
		return
	}
	writeJSON(c, http.StatusOK, got)
}

func (h *apiHandler) handleDeleteTask(c *gin.Context) {
	if err := h.deps.Tasks.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		h.writeMappedError(c, err, "failed to delete task")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *apiHandler) handleCompleteTask(c *gin.Context) {
	rec, err := h.deps.Tasks.Complete(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.writeMappedError(c, err, "failed to complete task")
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (h *apiHandler) handleCompleteAll(c *gin.Context) {
	result, err := h.deps.Tasks.CompleteAll(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeMappedError(c, err, "failed to complete tasks")
		return
	}
	writeJSON(c, http.StatusOK, result)
}

func (h *apiHandler) handleReopenTask(c *gin.Context) {
	reopened, err := h.deps.Tasks.Reopen(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.writeMappedError(c, err, "failed to reopen task")
		return
	}
	writeJSON(c, http.StatusOK, reopened)
}

func (h *apiHandler) handleSummary(c *gin.Context) {
	summary, err := h.deps.Tasks.Summary(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeMappedError(c, err, "failed to summarise tasks")
		return
	}
	writeJSON(c, http.StatusOK, summary)
}

// startReminderRequest overrides session defaults. Durations use Go syntax
// ("30m", "90s").
type startReminderRequest struct {
	ArrivalRadiusKm   *float64 `json:"arrival_radius_km,omitempty"`
	InitialDelay      string   `json:"initial_delay,omitempty"`
	ReminderInterval  string   `json:"reminder_interval,omitempty"`
	MaxReminders      *int     `json:"max_reminders,omitempty"`
	MinDistanceMeters *float64 `json:"min_distance_meters,omitempty"`
	Accuracy          string   `json:"accuracy,omitempty"`
}

func (r startReminderRequest) options() ([]coordinator.SessionOption, error) {
	var opts []coordinator.SessionOption
	if r.ArrivalRadiusKm != nil {
		opts = append(opts, coordinator.WithArrivalRadiusKm(*r.ArrivalRadiusKm))
	}
	if r.InitialDelay != "" {
		d, err := time.ParseDuration(r.InitialDelay)
		if err != nil {
			return nil, err
		}
		opts = append(opts, coordinator.WithInitialDelay(d))
	}
	if r.ReminderInterval != "" {
		d, err := time.ParseDuration(r.ReminderInterval)
		if err != nil {
			return nil, err
		}
		opts = append(opts, coordinator.WithReminderInterval(d))
	}
	if r.MaxReminders != nil {
		opts = append(opts, coordinator.WithMaxReminders(*r.MaxReminders))
	}
	if r.MinDistanceMeters != nil {
		opts = append(opts, coordinator.WithMinDistanceMeters(*r.MinDistanceMeters))
	}
	if r.Accuracy != "" {
		acc, err := location.ParseAccuracy(r.Accuracy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, coordinator.WithAccuracy(acc))
	}
	return opts, nil
}

func (h *apiHandler) handleStartReminder(c *gin.Context) {
	var req startReminderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	opts, err := req.options()
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := h.deps.Tasks.StartReminder(c.Request.Context(), currentUser(c), c.Param("id"), opts...)
	if err != nil {
		h.writeMappedError(c, err, "failed to start reminder")
		return
	}
	writeJSON(c, http.StatusCreated, sess.Info())
}

func (h *apiHandler) handleGetReminder(c *gin.Context) {
	info, ok := h.deps.Tasks.Reminder(currentUser(c), c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "no active reminder for task")
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func (h *apiHandler) handleCancelReminder(c *gin.Context) {
	if !h.deps.Tasks.CancelReminder(currentUser(c), c.Param("id")) {
		writeError(c, http.StatusNotFound, "no active reminder for task")
		return
	}
	c.Status(http.StatusNoContent)
}

type reminderListResponse struct {
	Reminders []coordinator.SessionInfo `json:"reminders"`
}

func (h *apiHandler) handleListReminders(c *gin.Context) {
	infos := h.deps.Tasks.Reminders(currentUser(c))
	if infos == nil {
		infos = []coordinator.SessionInfo{}
	}
	writeJSON(c, http.StatusOK, reminderListResponse{Reminders: infos})
}

type positionRequest struct {
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

type positionResponse struct {
	Delivered int `json:"delivered"`
}

func (h *apiHandler) handlePublishPosition(c *gin.Context) {
	if h.deps.Positions == nil {
		writeError(c, http.StatusServiceUnavailable, "position ingestion disabled")
		return
	}
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(c, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	coord := geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if !coord.Valid() {
		writeError(c, http.StatusBadRequest, "coordinate out of range")
		return
	}
	delivered := h.deps.Positions.Publish(currentUser(c).UserID, geo.Sample{Coordinate: coord, Timestamp: req.Timestamp})
	writeJSON(c, http.StatusAccepted, positionResponse{Delivered: delivered})
}

type permissionRequest struct {
	Status string `json:"status"`
}

func (h *apiHandler) handleSetPermission(c *gin.Context) {
	if h.deps.Permissions == nil {
		writeError(c, http.StatusServiceUnavailable, "permission registry disabled")
		return
	}
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	perm, err := location.ParsePermission(req.Status)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	user := currentUser(c)
	h.deps.Permissions.Set(user.UserID, perm)
	writeJSON(c, http.StatusOK, permissionRequest{Status: string(h.deps.Permissions.Get(user.UserID))})
}

type placesResponse struct {
	Places []geo.Place `json:"places"`
}

func (h *apiHandler) handleSearchPlaces(c *gin.Context) {
	if h.deps.Places == nil {
		writeError(c, http.StatusServiceUnavailable, "places lookup disabled")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	places, err := h.deps.Places.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		h.writeMappedError(c, err, "places lookup failed")
		return
	}
	if places == nil {
		places = []geo.Place{}
	}
	writeJSON(c, http.StatusOK, placesResponse{Places: places})
}
