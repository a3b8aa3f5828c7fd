package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/steward/pkg/steward/store"
)

// Scheduler is the part of the cron engine the tools need: picking up
// job changes without a restart.
type Scheduler interface {
	RefreshJob(ctx context.Context, jobID int64)
	RemoveJob(jobID int64)
}

// RegisterBuiltinTools wires the full tool set onto the agent: core
// memory editing, archival memory, conversation search, daily
// summaries, episodic recall, time awareness, and cron job management.
func RegisterBuiltinTools(a *Agent, sched Scheduler) {
	registerCoreMemoryTools(a)
	registerArchivalTools(a)
	registerConversationSearch(a)
	registerDailySummaryTool(a)
	registerHindsightTools(a)
	registerTimeTools(a)
	registerCronTools(a, sched)
}

func registerCoreMemoryTools(a *Agent) {
	blockParam := map[string]any{
		"type":        "string",
		"description": "One of 'user', 'identity', or 'ideaspace'.",
		"enum":        []string{"user", "identity", "ideaspace"},
	}

	a.executor.Register(MakeToolDefinition("core_memory_update",
		"Replace the entire content of a core memory block.\n\n"+
			"Use when you need to fully rewrite a block. Prefer core_memory_append when "+
			"adding new information to avoid accidentally removing existing content.",
		objectSchema(map[string]any{
			"block_type": blockParam,
			"content":    map[string]any{"type": "string", "description": "The new full content for the block."},
		}, "block_type", "content")),
		func(ctx context.Context, args map[string]any) (any, error) {
			block := stringArg(args, "block_type")
			version, err := a.store.UpdateBlock(ctx, block, stringArg(args, "content"))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Updated %s (v%d)", block, version), nil
		})

	a.executor.Register(MakeToolDefinition("core_memory_append",
		"Append new content to a core memory block.\n\n"+
			"Prefer this over core_memory_update when adding information, as it preserves "+
			"existing content and reduces the risk of accidental deletion.",
		objectSchema(map[string]any{
			"block_type": blockParam,
			"addition":   map[string]any{"type": "string", "description": "The text to append (will be added after existing content)."},
		}, "block_type", "addition")),
		func(ctx context.Context, args map[string]any) (any, error) {
			block := stringArg(args, "block_type")
			version, err := a.store.AppendToBlock(ctx, block, stringArg(args, "addition"))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Updated %s (v%d)", block, version), nil
		})

	a.executor.Register(MakeToolDefinition("core_memory_rollback",
		"Restore a core memory block to its previous version.\n\n"+
			"Use immediately if you made an editing mistake (wrong content, accidental "+
			"deletion, etc.). Each rollback restores one step back in history.",
		objectSchema(map[string]any{"block_type": blockParam}, "block_type")),
		func(ctx context.Context, args map[string]any) (any, error) {
			block := stringArg(args, "block_type")
			version, ok, err := a.store.RollbackBlock(ctx, block)
			if err != nil {
				return nil, err
			}
			if !ok {
				return fmt.Sprintf("No previous version of %s to rollback to", block), nil
			}
			return fmt.Sprintf("Rolled back %s to version %d", block, version), nil
		})
}

func registerArchivalTools(a *Agent) {
	a.executor.Register(MakeToolDefinition("archival_store",
		"Store a fact in your archival memory — things you choose to remember long-term.\n\n"+
			"Use when: the user shares something important you want to retain, or you learn a "+
			"fact that should persist beyond the current conversation. This is curated "+
			"memory, not raw chat. Store facts, preferences, decisions, key details.",
		objectSchema(map[string]any{
			"content":  map[string]any{"type": "string", "description": "The fact to store (clear, concise)."},
			"category": map[string]any{"type": "string", "description": `Optional category (e.g., "preferences", "projects", "family").`},
		}, "content")),
		func(ctx context.Context, args map[string]any) (any, error) {
			if err := a.store.StoreFact(ctx, stringArg(args, "content"), stringArg(args, "category")); err != nil {
				return nil, err
			}
			return "Stored in archival memory", nil
		})

	a.executor.Register(MakeToolDefinition("archival_query",
		"Query your archival memory for facts you've stored.\n\n"+
			"Use when: You need to recall something you chose to remember — preferences, "+
			"past decisions, project details, etc. This searches facts you archived, not "+
			"conversation history.",
		objectSchema(map[string]any{
			"query":    map[string]any{"type": "string", "description": "What to search for (keywords or phrase)."},
			"category": map[string]any{"type": "string", "description": "Optional — limit to a category."},
		}, "query")),
		func(ctx context.Context, args map[string]any) (any, error) {
			facts, err := a.store.QueryFacts(ctx, stringArg(args, "query"), stringArg(args, "category"), 20)
			if err != nil {
				return nil, err
			}
			if len(facts) == 0 {
				return "No matching facts in archival memory.", nil
			}
			lines := make([]string, 0, len(facts))
			for _, f := range facts {
				line := "- " + f.Content
				if f.Category != "" {
					line += " [" + f.Category + "]"
				}
				lines = append(lines, line)
			}
			return strings.Join(lines, "\n"), nil
		})
}

func registerConversationSearch(a *Agent) {
	a.executor.Register(MakeToolDefinition("conversation_search",
		"Search your full conversation history for messages matching a query.\n\n"+
			"Your active context only holds the last 30 messages. Use this tool when:\n"+
			"- The user references something from an older conversation (\"remember when...\")\n"+
			"- You need context or details you don't have in the current window\n"+
			"- You want to check what was said about a specific topic in the past",
		objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "What to search for — keywords, phrases, or a topic."},
			"mode": map[string]any{
				"type": "string",
				"description": `"keyword" — fast substring match in PostgreSQL (best for names, dates, specific phrases). ` +
					`"semantic" — Hindsight semantic recall (best for topics, concepts, feelings). ` +
					`"both" — runs keyword first; if fewer than 3 results, also runs semantic. (default)`,
				"enum": []string{"keyword", "semantic", "both"},
			},
			"limit": map[string]any{"type": "integer", "description": "Max number of results to return (default 10, max 20)."},
		}, "query")),
		func(ctx context.Context, args map[string]any) (any, error) {
			query := stringArg(args, "query")
			mode := stringArg(args, "mode")
			if mode == "" {
				mode = "both"
			}
			limit := intArg(args, "limit", 10)
			if limit > 20 {
				limit = 20
			}

			var sections []string
			var rows []store.Message

			if mode == "keyword" || mode == "both" {
				var err error
				rows, err = a.store.Search(ctx, query, "", limit)
				if err != nil {
					return nil, err
				}
				if len(rows) > 0 {
					sections = append(sections, "--- Keyword matches from conversation history ---", formatSearchResults(rows))
				}
			}

			if mode == "semantic" || (mode == "both" && len(rows) < 3) {
				if a.hindsight != nil {
					semantic := a.hindsight.Recall(ctx, query)
					if semantic != "" &&
						!strings.Contains(semantic, "don't have any memories") &&
						!strings.Contains(semantic, "not available") {
						sections = append(sections, "--- Semantic recall from Hindsight ---", semantic)
					}
				}
			}

			if len(sections) == 0 {
				return fmt.Sprintf("No conversation history found matching '%s'.", query), nil
			}
			return strings.Join(sections, "\n\n"), nil
		})
}

// formatSearchResults renders rows as readable snippets with role and
// date, truncating very long messages.
func formatSearchResults(rows []store.Message) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		role := strings.ToUpper(row.Role[:1]) + row.Role[1:]
		lines = append(lines, fmt.Sprintf("[%s @ %s]\n%s",
			role,
			row.CreatedAt.Format("2006-01-02 15:04"),
			store.Snippet(strings.TrimSpace(row.Content), 500)))
	}
	return strings.Join(lines, "\n\n")
}

func registerDailySummaryTool(a *Agent) {
	a.executor.Register(MakeToolDefinition("daily_summary_write",
		"Write or update the daily summary for a specific date.\n\n"+
			"Use this at the end of each day (or during a heartbeat) to record what "+
			"happened today — key conversations, tasks completed, things you learned, "+
			"anything worth carrying forward as context for tomorrow.\n\n"+
			"This summary is automatically loaded into your context every session, "+
			"so writing a good summary means future-you will remember the shape of the day "+
			"even after specific messages have scrolled out of the context window.",
		objectSchema(map[string]any{
			"date":    map[string]any{"type": "string", "description": "The date to summarise in YYYY-MM-DD format (usually today)."},
			"summary": map[string]any{"type": "string", "description": "A concise but meaningful summary of the day in your own words. Aim for 3-8 sentences covering key topics, outcomes, and anything you want to remember tomorrow."},
		}, "date", "summary")),
		func(ctx context.Context, args map[string]any) (any, error) {
			sum, err := a.store.UpsertDailySummary(ctx, stringArg(args, "date"), stringArg(args, "summary"))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Daily summary saved for %s.", sum.Date), nil
		})
}

func registerHindsightTools(a *Agent) {
	a.executor.Register(MakeToolDefinition("hindsight_recall",
		"Search your deep memory (Hindsight) for past experiences.\n\n"+
			"Use when: the user references a specific past event, project, or detail that is NOT "+
			"in your Core Memory or loaded conversation history. Do not hallucinate — if you "+
			"don't know, use this tool to search your lived experience before replying.\n\n"+
			"The results are YOUR recollections — speak from \"I\" perspective, reference them "+
			"as your own experience.",
		objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": `What to search for (e.g., "sci-fi book we discussed", "voice analysis project").`},
		}, "query")),
		func(ctx context.Context, args map[string]any) (any, error) {
			if a.hindsight == nil {
				return "Hindsight is not available. Memory recall failed.", nil
			}
			return a.hindsight.Recall(ctx, stringArg(args, "query")), nil
		})

	a.executor.Register(MakeToolDefinition("hindsight_reflect",
		"Reflect deeply on your memories — synthesize patterns, insights, and understanding.\n\n"+
			"Use when: the user asks deep, relational, or pattern-based questions. "+
			"This goes beyond simple recall — it reasons over your experiences to form new "+
			"connections and insights.",
		objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "The question or theme to reflect on."},
		}, "query")),
		func(ctx context.Context, args map[string]any) (any, error) {
			if a.hindsight == nil {
				return "Hindsight is not available. Reflection failed.", nil
			}
			return a.hindsight.Reflect(ctx, stringArg(args, "query")), nil
		})
}

func registerTimeTools(a *Agent) {
	a.executor.Register(MakeToolDefinition("get_current_time",
		"Get the current date and time.",
		objectSchema(map[string]any{
			"timezone": map[string]any{"type": "string", "description": `Optional timezone (e.g., "America/New_York", "UTC"). Defaults to the agent's configured timezone.`},
		})),
		func(ctx context.Context, args map[string]any) (any, error) {
			loc := a.store.Location()
			if tz := stringArg(args, "timezone"); tz != "" {
				parsed, err := time.LoadLocation(tz)
				if err != nil {
					return nil, fmt.Errorf("unknown timezone %q", tz)
				}
				loc = parsed
			}
			now := time.Now().In(loc)
			return fmt.Sprintf("Current date and time: %s\nDate: %s\nTime: %s\nTimezone: %s",
				FormatCurrentTime(now),
				now.Format("2006-01-02"),
				now.Format("15:04:05"),
				loc.String()), nil
		})

	a.executor.Register(MakeToolDefinition("get_current_timestamp",
		"Get the current Unix timestamp.", nil),
		func(ctx context.Context, args map[string]any) (any, error) {
			return fmt.Sprintf("%d", time.Now().Unix()), nil
		})
}

func registerCronTools(a *Agent, sched Scheduler) {
	a.executor.Register(MakeToolDefinition("cron_list_jobs",
		"List all scheduled cron jobs.",
		objectSchema(map[string]any{
			"status": map[string]any{"type": "string", "description": `Filter by "active", "paused", or "" for all jobs`},
		})),
		func(ctx context.Context, args map[string]any) (any, error) {
			jobs, err := a.store.ListCronJobs(ctx, strings.TrimSpace(stringArg(args, "status")))
			if err != nil {
				return nil, err
			}
			if len(jobs) == 0 {
				return "No cron jobs found.", nil
			}
			lines := make([]string, 0, len(jobs))
			for _, job := range jobs {
				lines = append(lines, formatJobSummary(job))
			}
			return strings.Join(lines, "\n\n"), nil
		})

	a.executor.Register(MakeToolDefinition("cron_create_job",
		"Create a new cron job (scheduled agent task).\n\n"+
			"For RECURRING jobs: provide schedule_days and schedule_time.\n"+
			"For ONE-TIME jobs: provide run_date (YYYY-MM-DD) and schedule_time; leave schedule_days empty.",
		objectSchema(map[string]any{
			"name":          map[string]any{"type": "string", "description": "Short descriptive job name"},
			"instructions":  map[string]any{"type": "string", "description": "What the agent should do when this job runs (the full prompt)"},
			"schedule_time": map[string]any{"type": "string", "description": `Time to run, e.g. "7:00 PM" or "9:00 AM" (default "12:00 PM")`},
			"schedule_days": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"description": "Days to run — 0=Mon, 1=Tue, 2=Wed, 3=Thu, 4=Fri, 5=Sat, 6=Sun. e.g. [0,1,2,3,4] for weekdays. Leave empty for one-time jobs.",
			},
			"timezone":    map[string]any{"type": "string", "description": `Timezone string (default "America/New_York")`},
			"description": map[string]any{"type": "string", "description": "Optional human-readable description"},
			"run_date":    map[string]any{"type": "string", "description": `For one-time jobs: date in YYYY-MM-DD format. Leave "" for recurring.`},
		}, "name", "instructions")),
		func(ctx context.Context, args map[string]any) (any, error) {
			scheduleTime := stringArg(args, "schedule_time")
			if scheduleTime == "" {
				scheduleTime = "12:00 PM"
			}
			job, err := a.store.CreateCronJob(ctx, store.NewCronJob{
				Name:         stringArg(args, "name"),
				Description:  stringArg(args, "description"),
				Instructions: stringArg(args, "instructions"),
				Timezone:     stringArg(args, "timezone"),
				ScheduleDays: intSliceArg(args, "schedule_days"),
				ScheduleTime: scheduleTime,
				RunDate:      stringArg(args, "run_date"),
				CreatedBy:    "agent",
			})
			if err != nil {
				return fmt.Sprintf("Error creating cron job: %v", err), nil
			}
			if sched != nil {
				sched.RefreshJob(ctx, job.ID)
			}
			jobType := "recurring"
			if job.IsOneTime {
				jobType = "one-time"
			}
			return fmt.Sprintf("Created %s cron job '%s' (id=%d). It is now scheduled.", jobType, job.Name, job.ID), nil
		})

	a.executor.Register(MakeToolDefinition("cron_update_job",
		"Update an existing cron job. Only provide the fields you want to change.",
		objectSchema(map[string]any{
			"job_id":        map[string]any{"type": "integer", "description": "ID of the job to update (get from cron_list_jobs)"},
			"name":          map[string]any{"type": "string", "description": "New name (omit to keep current)"},
			"instructions":  map[string]any{"type": "string", "description": "New instructions/prompt (omit to keep current)"},
			"schedule_time": map[string]any{"type": "string", "description": `New time e.g. "8:00 AM" (omit to keep current)`},
			"schedule_days": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"description": "New days list e.g. [0,1,2,3,4] (omit to keep current)",
			},
			"timezone":    map[string]any{"type": "string", "description": "New timezone (omit to keep current)"},
			"description": map[string]any{"type": "string", "description": "New description (omit to keep current)"},
			"run_date":    map[string]any{"type": "string", "description": "New run date for one-time jobs YYYY-MM-DD (omit to keep current)"},
			"status":      map[string]any{"type": "string", "description": `"active" or "paused" (omit to keep current)`},
		}, "job_id")),
		func(ctx context.Context, args map[string]any) (any, error) {
			jobID := int64(intArg(args, "job_id", 0))
			var update store.CronJobUpdate
			setIf := func(dst **string, key string) {
				if v := stringArg(args, key); v != "" {
					*dst = &v
				}
			}
			setIf(&update.Name, "name")
			setIf(&update.Instructions, "instructions")
			setIf(&update.ScheduleTime, "schedule_time")
			setIf(&update.Timezone, "timezone")
			setIf(&update.Description, "description")
			setIf(&update.RunDate, "run_date")
			setIf(&update.Status, "status")
			if days := intSliceArg(args, "schedule_days"); len(days) > 0 {
				update.ScheduleDays = &days
			}
			if update == (store.CronJobUpdate{}) {
				return "No fields provided to update.", nil
			}

			job, err := a.store.UpdateCronJob(ctx, jobID, update)
			if err == store.ErrNotFound {
				return fmt.Sprintf("Job %d not found.", jobID), nil
			}
			if err != nil {
				return fmt.Sprintf("Error updating cron job: %v", err), nil
			}
			if sched != nil {
				sched.RefreshJob(ctx, jobID)
			}
			return fmt.Sprintf("Updated cron job '%s' (id=%d). Changes are live.", job.Name, jobID), nil
		})

	a.executor.Register(MakeToolDefinition("cron_delete_job",
		"Permanently delete a cron job.",
		objectSchema(map[string]any{
			"job_id": map[string]any{"type": "integer", "description": "ID of the job to delete (get from cron_list_jobs)"},
		}, "job_id")),
		func(ctx context.Context, args map[string]any) (any, error) {
			jobID := int64(intArg(args, "job_id", 0))
			if sched != nil {
				sched.RemoveJob(jobID)
			}
			err := a.store.DeleteCronJob(ctx, jobID)
			if err == store.ErrNotFound {
				return fmt.Sprintf("Job %d not found.", jobID), nil
			}
			if err != nil {
				return fmt.Sprintf("Error deleting cron job: %v", err), nil
			}
			return fmt.Sprintf("Deleted cron job %d.", jobID), nil
		})

	a.executor.Register(MakeToolDefinition("cron_pause_job",
		"Pause a cron job (stops it from running without deleting it).",
		objectSchema(map[string]any{
			"job_id": map[string]any{"type": "integer", "description": "ID of the job to pause"},
		}, "job_id")),
		func(ctx context.Context, args map[string]any) (any, error) {
			jobID := int64(intArg(args, "job_id", 0))
			job, err := a.store.SetCronJobStatus(ctx, jobID, "paused")
			if err == store.ErrNotFound {
				return fmt.Sprintf("Job %d not found.", jobID), nil
			}
			if err != nil {
				return fmt.Sprintf("Error pausing cron job: %v", err), nil
			}
			if sched != nil {
				sched.RefreshJob(ctx, jobID)
			}
			return fmt.Sprintf("Paused cron job '%s' (id=%d).", job.Name, jobID), nil
		})

	a.executor.Register(MakeToolDefinition("cron_resume_job",
		"Resume a paused cron job.",
		objectSchema(map[string]any{
			"job_id": map[string]any{"type": "integer", "description": "ID of the job to resume"},
		}, "job_id")),
		func(ctx context.Context, args map[string]any) (any, error) {
			jobID := int64(intArg(args, "job_id", 0))
			job, err := a.store.SetCronJobStatus(ctx, jobID, "active")
			if err == store.ErrNotFound {
				return fmt.Sprintf("Job %d not found.", jobID), nil
			}
			if err != nil {
				return fmt.Sprintf("Error resuming cron job: %v", err), nil
			}
			if sched != nil {
				sched.RefreshJob(ctx, jobID)
			}
			return fmt.Sprintf("Resumed cron job '%s' (id=%d). It will run as scheduled.", job.Name, jobID), nil
		})
}

// formatJobSummary renders one job for cron_list_jobs output.
func formatJobSummary(job *store.CronJob) string {
	var schedule string
	timeStr := job.ScheduleTime
	if timeStr == "" {
		timeStr = "N/A"
	}
	if job.IsOneTime {
		schedule = fmt.Sprintf("One-time on %s at %s", job.RunDate, timeStr)
	} else {
		schedule = fmt.Sprintf("%s at %s (%s)", store.FormatDays(job.ScheduleDays), timeStr, job.Timezone)
	}

	instructions := job.Instructions
	if len(instructions) > 120 {
		instructions = instructions[:120] + "..."
	}

	lastRun := "Never"
	if job.LastRunAt != nil {
		lastRun = job.LastRunAt.Format(time.RFC3339)
	}
	lastStatus := job.LastRunStatus
	if lastStatus == "" {
		lastStatus = "N/A"
	}

	return fmt.Sprintf("[id=%d] %s — %s\n  Schedule: %s\n  Instructions: %s\n  Last run: %s (%s)",
		job.ID, job.Name, strings.ToUpper(job.Status), schedule, instructions, lastRun, lastStatus)
}

// objectSchema builds a JSON-schema object with the given properties
// and required fields.
func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
