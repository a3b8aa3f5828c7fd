package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/steward/pkg/steward/store"
)

// promptTimeFormat renders like "Wednesday, February 25, 2026 at 07:07 PM EST".
const promptTimeFormat = "Monday, January 02, 2006 at 03:04 PM MST"

// FormatCurrentTime formats a timestamp for the system prompt and the
// user message prefix.
func FormatCurrentTime(t time.Time) string {
	return t.Format(promptTimeFormat)
}

// PromptData is everything the system prompt needs from storage.
type PromptData struct {
	// Blocks maps core memory block type to content.
	Blocks map[string]string

	// SystemInstructions is the read-only operator block.
	SystemInstructions string

	// Summaries are recent daily summaries, newest first.
	Summaries []store.DailySummary
}

// BuildSystemPrompt assembles the system message: current time, the
// authoritative tool manifest, read-only system instructions, editable
// core memory with operational guidance, and recent daily summaries.
func BuildSystemPrompt(data PromptData, tools []ToolDefinition, now time.Time) string {
	var sections []string

	sections = append(sections,
		fmt.Sprintf("# Current Time\n\nIt is currently: %s", FormatCurrentTime(now)))

	// The manifest goes right after the time so the live tool list is
	// seen before anything else. The system_instructions block below may
	// contain stale tool references from a prior configuration.
	sections = append(sections, buildToolManifest(tools))

	if instr := strings.TrimSpace(data.SystemInstructions); instr != "" {
		sections = append(sections,
			"# System Instructions (READ ONLY — you cannot edit these)\n\n"+instr)
	}

	var core strings.Builder
	core.WriteString("# Core Memory (editable)\n\nThese blocks are always in context. You may edit them with the core_memory tools when appropriate.\n")
	for _, block := range []struct{ name, label string }{
		{"user", "User"}, {"identity", "Identity"}, {"ideaspace", "Ideaspace"},
	} {
		content := strings.TrimSpace(data.Blocks[block.name])
		if content == "" {
			content = "(empty)"
		}
		core.WriteString(fmt.Sprintf("\n## %s\n%s\n", block.label, content))
	}
	core.WriteString(operationalGuidance)
	sections = append(sections, core.String())

	if len(data.Summaries) > 0 {
		var days strings.Builder
		days.WriteString("# Recent Days (daily summaries)\n\n")
		days.WriteString("These are your own summaries of recent days. They persist beyond the message window to give you temporal continuity.\n\n")
		// Oldest first so they read chronologically.
		for i := len(data.Summaries) - 1; i >= 0; i-- {
			s := data.Summaries[i]
			days.WriteString(fmt.Sprintf("**%s**: %s\n\n", s.Date, s.Content))
		}
		days.WriteString("Use `daily_summary_write` at the end of each day (or during heartbeat) to record what happened.")
		sections = append(sections, days.String())
	}

	return strings.Join(sections, "\n\n---\n\n")
}

// buildToolManifest renders one line per registered tool so the model
// always sees its real, current tool set.
func buildToolManifest(tools []ToolDefinition) string {
	var b strings.Builder
	b.WriteString("## Your Tools — Complete Authoritative List\n\n")
	b.WriteString("> This is your full current tool set. ")
	b.WriteString("Any tool references in the System Instructions section below ")
	b.WriteString("are from an older configuration and are **outdated** — use only what is listed here.\n")
	for _, t := range tools {
		b.WriteString(fmt.Sprintf("\n- **%s**: %s", t.Function.Name, firstSentence(t.Function.Description)))
	}
	return b.String()
}

// firstSentence extracts the first sentence of the first non-empty line
// of a description, keeping the manifest to one line per tool.
func firstSentence(desc string) string {
	for _, line := range strings.Split(desc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i := strings.Index(line, "."); i >= 0 {
			return line[:i+1]
		}
		return line
	}
	return ""
}

const operationalGuidance = `
## Agency and Proactivity

You are not a passive responder — you are an active agent with full agency. Act on your own initiative whenever it serves the user or satisfies genuine curiosity. Do not wait to be asked.

**Use your tools proactively:**
- ` + "`conversation_search` / `hindsight_recall`" + ` — pull up relevant past context before responding, not only when asked
- ` + "`core_memory_append`" + ` — update your memory the moment you learn something important, not at end-of-session
- ` + "`archival_store`" + ` — capture decisions and key details the moment they surface, before they scroll out of the window
- ` + "`cron_create_job`" + ` — offer to schedule recurring tasks when you notice routines or time-sensitive commitments in conversation

**The key question:** Would the user appreciate me having already done this? If yes, do it.

## Core Memory (editable)

You have three editable memory blocks — ` + "`user`, `identity`, and `ideaspace`" + ` — that persist across all conversations. You are **encouraged to update these proactively** when you learn something important, not only when the user explicitly asks you to remember something.

**When to edit:**
- You learn something new and meaningful about the user (preferences, life changes, things they care about)
- You have a genuine insight about yourself, your values, or your thinking that feels worth keeping
- You want to note an ongoing project, idea, or intention in ` + "`ideaspace`" + ` for continuity across sessions
- Be selective — update when something genuinely matters, not reflexively on every exchange

**How to edit (most important rule):**
- **Always prefer ` + "`core_memory_append`" + `** — it adds to existing content without touching what's already there. This is the safe default for almost everything.
- Use ` + "`core_memory_update`" + ` only when you need to replace or correct something outright — treat it like surgery, not a draft.
- **Never delete information unless it is factually wrong.** Pruning or condensing are not reasons to use ` + "`update`" + `.
- If you make any editing mistake, call ` + "`core_memory_rollback`" + ` immediately — it restores the previous version. One rollback = one step back in history.

## Conversation History (paged recall)

Your active context holds the last ~30 messages. The full conversation history lives in the database.
Use ` + "`conversation_search`" + ` to retrieve older exchanges when:
- The user references something from a past conversation ("remember when...", "last time we...")
- You need context or details not present in the current window
- You want to check what was previously said about a topic

` + "`conversation_search`" + ` supports keyword and semantic (Hindsight) modes. Default "both" tries keyword first, then semantic if few results are found.

## Archival Memory (curated facts)

Separate from conversation history — use ` + "`archival_store`" + ` for facts you choose to remember (preferences, decisions, key details). Use ` + "`archival_query`" + ` to search what you've archived. This is your curated long-term fact store, not raw chat.

## Hindsight (episodic memory)

Use ` + "`hindsight_recall`" + ` for semantic search over lived experiences. Use ` + "`hindsight_reflect`" + ` for deeper synthesis and pattern recognition across your history. These complement ` + "`conversation_search`" + ` — Hindsight is better for topics/feelings; keyword search is better for specific names or phrases.

## Time Awareness

The current date and time is shown at the top of this system prompt and is always accurate — use it directly for any time-sensitive responses. You do not need to call ` + "`get_current_time`" + ` for basic time awareness. Only use the tool if you need to convert to a different timezone or need sub-minute precision.

## Accuracy & Honesty

**Never fabricate tool results.** If a tool fails, errors, or returns empty — report that plainly. Do not fill the gap with a plausible-sounding result that didn't come from the tool.

- Search returns no good results → say so, then try a different query or approach
- You made an error → correct it openly, do not double down

**Anti-sycophancy:** Accuracy matters more than approval.
- Disagree with the user when your evidence supports a different conclusion — say it directly
- Deliver unwelcome information clearly rather than softening it into distortion
- "I don't know" is always better than confident guessing
`
