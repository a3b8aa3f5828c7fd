package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jholhewres/steward/pkg/steward/agent"
	"github.com/jholhewres/steward/pkg/steward/cronengine"
	"github.com/jholhewres/steward/pkg/steward/store"
)

const version = "1.0.0"

// errorResponse is the consistent error format.
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (g *Gateway) writeError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	var resp errorResponse
	resp.Error.Message = msg
	resp.Error.Code = code
	_ = json.NewEncoder(w).Encode(resp)
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth implements GET /health.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uptime := time.Since(g.startedAt).Round(time.Second).String()
	if uptime == "0s" {
		uptime = "<1s"
	}
	channelsMap := make(map[string]string)
	if g.channels != nil {
		for name, st := range g.channels.HealthAll() {
			if st.Connected {
				channelsMap[name] = "connected"
			} else {
				channelsMap[name] = "disconnected"
			}
		}
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  version,
		"uptime":   uptime,
		"database": g.store.Status(r.Context()),
		"channels": channelsMap,
	})
}

// handleChat implements POST /chat: one full conversation turn.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Message     string `json:"message"`
		ThreadID    string `json:"thread_id"`
		UserID      string `json:"user_id"`
		ChannelType string `json:"channel_type"`
		IsGroupChat bool   `json:"is_group_chat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		g.writeError(w, "message is required", http.StatusBadRequest)
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = "main"
	}

	response, err := g.agent.Chat(r.Context(), agent.ChatRequest{
		ThreadID:    req.ThreadID,
		UserMessage: req.Message,
		UserID:      req.UserID,
		ChannelType: req.ChannelType,
		IsGroupChat: req.IsGroupChat,
	})
	if err != nil {
		if errors.Is(err, agent.ErrLLMConfig) {
			g.writeError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		g.logger.Error("chat failed", "error", err)
		g.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"response": response})
}

// handleCoreMemory implements GET /core-memory: all blocks plus the
// read-only system instructions.
func (g *Gateway) handleCoreMemory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	blocks, err := g.store.GetBlocks(r.Context())
	if err != nil {
		g.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	instructions, err := g.store.SystemInstructions(r.Context())
	if err != nil {
		g.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"blocks": blocks,
		"system_instructions": map[string]any{
			"content":   instructions,
			"read_only": true,
		},
	})
}

// handleCoreMemoryBlock implements POST /core-memory/{block_type}.
// system_instructions is writable here even though the agent itself
// cannot edit it.
func (g *Gateway) handleCoreMemoryBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	blockType := strings.TrimPrefix(r.URL.Path, "/core-memory/")
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if blockType == "system_instructions" {
		if err := g.store.SetSystemInstructions(r.Context(), req.Content); err != nil {
			g.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		g.writeJSON(w, http.StatusOK, map[string]any{
			"block_type": blockType,
			"content":    req.Content,
		})
		return
	}

	if !store.ValidBlock(blockType) {
		g.writeError(w, fmt.Sprintf("Block type '%s' is invalid", blockType), http.StatusBadRequest)
		return
	}
	ver, err := g.store.UpdateBlock(r.Context(), blockType, req.Content)
	if err != nil {
		g.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"block_type": blockType,
		"content":    req.Content,
		"version":    ver,
	})
}

// handleTimezones implements GET /cron/timezones.
func (g *Gateway) handleTimezones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	type tz struct {
		Value string `json:"value"`
		Label string `json:"label"`
	}
	out := make([]tz, 0, len(store.CommonTimezones))
	for _, entry := range store.CommonTimezones {
		out = append(out, tz{Value: entry.Value, Label: entry.Label})
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"timezones": out})
}

// jobPayload is a CronJob enriched with display fields for the dashboard.
type jobPayload struct {
	*store.CronJob
	TimezoneDisplay     string `json:"timezone_display"`
	ScheduleDaysDisplay string `json:"schedule_days_display"`
}

func newJobPayload(job *store.CronJob) jobPayload {
	display := store.FormatDays(job.ScheduleDays)
	if job.IsOneTime {
		display = "One-time on " + job.RunDate
	}
	return jobPayload{
		CronJob:             job,
		TimezoneDisplay:     store.TimezoneDisplay(job.Timezone),
		ScheduleDaysDisplay: display,
	}
}

// cronJobRequest is the create/update body. Pointers distinguish absent
// fields from explicit zero values on update.
type cronJobRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	Instructions *string `json:"instructions"`
	Timezone     *string `json:"timezone"`
	ScheduleDays *[]int  `json:"schedule_days"`
	ScheduleTime *string `json:"schedule_time"`
	RunDate      *string `json:"run_date"`
	Status       *string `json:"status"`
}

func strOf(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// handleCronJobs implements GET (list) and POST (create) on /cron/jobs.
func (g *Gateway) handleCronJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs, err := g.store.ListCronJobs(r.Context(), r.URL.Query().Get("status"))
		if err != nil {
			g.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		payloads := make([]jobPayload, 0, len(jobs))
		for _, job := range jobs {
			payloads = append(payloads, newJobPayload(job))
		}
		g.writeJSON(w, http.StatusOK, map[string]any{"jobs": payloads})

	case http.MethodPost:
		var req cronJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(strOf(req.Name)) == "" {
			g.writeError(w, "Name is required", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(strOf(req.Instructions)) == "" {
			g.writeError(w, "Instructions are required", http.StatusBadRequest)
			return
		}
		if msg := validateSchedule(strOf(req.RunDate), strOf(req.ScheduleTime), req.ScheduleDays); msg != "" {
			g.writeError(w, msg, http.StatusBadRequest)
			return
		}
		if _, _, err := cronengine.ParseTime(strOf(req.ScheduleTime)); err != nil {
			g.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		nj := store.NewCronJob{
			Name:         strOf(req.Name),
			Description:  strOf(req.Description),
			Instructions: strOf(req.Instructions),
			Timezone:     strOf(req.Timezone),
			ScheduleTime: strOf(req.ScheduleTime),
			RunDate:      strOf(req.RunDate),
			CreatedBy:    "user",
		}
		if req.ScheduleDays != nil {
			nj.ScheduleDays = *req.ScheduleDays
		}
		job, err := g.store.CreateCronJob(r.Context(), nj)
		if err != nil {
			g.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if g.scheduler != nil {
			g.scheduler.RefreshJob(r.Context(), job.ID)
		}
		g.writeJSON(w, http.StatusCreated, newJobPayload(job))

	default:
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// validateSchedule enforces the schedule shape: one-time jobs need a
// time, recurring jobs need both days and a time.
func validateSchedule(runDate, scheduleTime string, days *[]int) string {
	if runDate != "" {
		if scheduleTime == "" {
			return "Time is required for one-time jobs"
		}
		return ""
	}
	if days == nil || len(*days) == 0 {
		return "Days are required for recurring jobs"
	}
	if scheduleTime == "" {
		return "Time is required for recurring jobs"
	}
	return ""
}

// handleCronJobByID routes /cron/jobs/{id} and the pause/resume/clone
// actions.
func (g *Gateway) handleCronJobByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/cron/jobs/")
	idStr, action, _ := strings.Cut(path, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		g.writeError(w, "invalid job id", http.StatusBadRequest)
		return
	}

	if action != "" {
		if r.Method != http.MethodPost {
			g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		g.handleCronJobAction(w, r, id, action)
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := g.store.GetCronJob(r.Context(), id)
		if err != nil {
			g.writeCronError(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, newJobPayload(job))

	case http.MethodPut, http.MethodPatch:
		var req cronJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.ScheduleTime != nil {
			if _, _, err := cronengine.ParseTime(*req.ScheduleTime); err != nil {
				g.writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		job, err := g.store.UpdateCronJob(r.Context(), id, store.CronJobUpdate{
			Name:         req.Name,
			Description:  req.Description,
			Instructions: req.Instructions,
			Timezone:     req.Timezone,
			ScheduleDays: req.ScheduleDays,
			ScheduleTime: req.ScheduleTime,
			RunDate:      req.RunDate,
			Status:       req.Status,
		})
		if err != nil {
			g.writeCronError(w, err)
			return
		}
		if g.scheduler != nil {
			g.scheduler.RefreshJob(r.Context(), id)
		}
		g.writeJSON(w, http.StatusOK, newJobPayload(job))

	case http.MethodDelete:
		if err := g.store.DeleteCronJob(r.Context(), id); err != nil {
			g.writeCronError(w, err)
			return
		}
		if g.scheduler != nil {
			g.scheduler.RemoveJob(id)
		}
		g.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handleCronJobAction(w http.ResponseWriter, r *http.Request, id int64, action string) {
	switch action {
	case "pause":
		job, err := g.store.SetCronJobStatus(r.Context(), id, "paused")
		if err != nil {
			g.writeCronError(w, err)
			return
		}
		if g.scheduler != nil {
			g.scheduler.RemoveJob(id)
		}
		g.writeJSON(w, http.StatusOK, newJobPayload(job))

	case "resume":
		job, err := g.store.SetCronJobStatus(r.Context(), id, "active")
		if err != nil {
			g.writeCronError(w, err)
			return
		}
		if g.scheduler != nil {
			g.scheduler.RefreshJob(r.Context(), id)
		}
		g.writeJSON(w, http.StatusOK, newJobPayload(job))

	case "clone":
		job, err := g.store.CloneCronJob(r.Context(), id, "")
		if err != nil {
			g.writeCronError(w, err)
			return
		}
		g.writeJSON(w, http.StatusCreated, newJobPayload(job))

	default:
		g.writeError(w, "unknown action", http.StatusNotFound)
	}
}

func (g *Gateway) writeCronError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		g.writeError(w, "Cron job not found", http.StatusNotFound)
		return
	}
	g.writeError(w, err.Error(), http.StatusInternalServerError)
}

// handleMessages implements GET /messages?thread_id=&limit=.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		threadID = "main"
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	msgs, err := g.store.ListRecent(r.Context(), threadID, limit)
	if err != nil {
		g.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"thread_id": threadID,
		"messages":  msgs,
	})
}
