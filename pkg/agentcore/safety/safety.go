// Package safety implements the SafetyGate: the single authority that
// decides whether a tool call may run, grounded on the teacher's
// pkg/config/security.go (Is*Allowed/ShouldRequireApproval) and on the
// original Rust predecessor's permission.rs precedence order and
// oversight.rs audit trail.
package safety

import (
	"strings"
	"sync"
	"time"

	"github.com/forgecore/agentrt/pkg/agentcore/analyzer"
	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// Pattern is a parsed permission rule like "Bash(git:*)" or "Write(/etc/*)".
// Action is the tool/action family ("Bash", "Write", "Read", "WebFetch", ...),
// Matcher is the glob-ish suffix applied to the action's subject (command for
// Bash, path for Read/Write, domain for WebFetch).
type Pattern struct {
	Action  string
	Matcher string
}

// ParsePattern parses "Action(matcher)" into a Pattern. A bare "Action" with
// no parens matches every subject.
func ParsePattern(s string) Pattern {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return Pattern{Action: s, Matcher: "*"}
	}
	return Pattern{Action: s[:open], Matcher: s[open+1 : len(s)-1]}
}

// Matches reports whether the pattern applies to the given tool action.
func (p Pattern) Matches(action types.Action, toolAction string) bool {
	if !strings.EqualFold(p.Action, toolAction) {
		return false
	}
	subject := subjectOf(action)
	return globMatch(p.Matcher, subject)
}

func subjectOf(a types.Action) string {
	switch a.Kind {
	case types.ActionExecute:
		return a.Command
	case types.ActionFileRead, types.ActionFileWrite:
		return a.Path
	case types.ActionNetwork:
		return a.URL
	default:
		return a.Domain
	}
}

// globMatch implements the limited glob grammar settings patterns use:
// "*" matches any suffix, "prefix:*" matches a colon-delimited prefix
// (e.g. "git:*" matches "git status" and "git commit"), "/path/*" matches
// a path prefix.
func globMatch(pattern, subject string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	if strings.HasSuffix(pattern, ":*") {
		cmd := strings.TrimSuffix(pattern, ":*")
		return subject == cmd || strings.HasPrefix(subject, cmd+" ")
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(subject, prefix)
	}
	return pattern == subject
}

// Grant is a recorded permission decision.
type Grant struct {
	Permission types.Permission
	GrantedAt  time.Time
}

// Decision is the outcome of a Check call.
type Decision struct {
	Status types.PermissionStatus
	Reason string
	Risk   types.RiskTier
}

// historyEntry is one past Check call, retained only long enough to feed
// detectRiskPattern's sliding window.
type historyEntry struct {
	kind   types.ActionKind
	source types.SourceTag
	at     time.Time
}

// historyWindow bounds both the recency and the count of calls
// detectRiskPattern considers, per the original's oversight.rs sequence
// scan (a fixed small lookback rather than the whole session).
const (
	historyWindow = 5
	historyMaxAge = 2 * time.Minute
)

// Gate is the SafetyGate. It holds configured allow/deny patterns plus
// runtime session and permanent grants. Safe for concurrent use.
type Gate struct {
	mu sync.RWMutex

	allow []Pattern
	deny  []Pattern
	ask   []Pattern

	sessionGrants   []Grant
	permanentGrants []Grant
	grantsPath      string

	history []historyEntry
}

// New builds a Gate from configured allow/deny pattern strings (as loaded
// from settings.json's permissions.allow / permissions.deny).
func New(allow, deny []string) *Gate {
	return NewWithAsk(allow, deny, nil)
}

// NewWithAsk builds a Gate that additionally honors an "ask" pattern list
// (settings.json's permissions.ask). A matching ask pattern forces
// PermissionStatus Unknown even for an otherwise Safe/auto-approved or
// explicitly allowed command, per spec §4.2 and §9 ("ask is dominant").
func NewWithAsk(allow, deny, ask []string) *Gate {
	g := &Gate{}
	for _, a := range allow {
		g.allow = append(g.allow, ParsePattern(a))
	}
	for _, d := range deny {
		g.deny = append(g.deny, ParsePattern(d))
	}
	for _, a := range ask {
		g.ask = append(g.ask, ParsePattern(a))
	}
	return g
}

// toolActionFor maps a tool name to the permission-pattern action family
// it is checked against (e.g. the "bash" tool is checked against "Bash"
// patterns). Unrecognized tools fall back to a capitalized form of their
// own name, matching the teacher's convention of 1:1 tool-name/config-key
// correspondence in pkg/config/security.go.
func toolActionFor(toolName string) string {
	switch strings.ToLower(toolName) {
	case "bash", "shell", "exec":
		return "Bash"
	case "read", "read_file":
		return "Read"
	case "write", "write_file":
		return "Write"
	case "edit", "edit_file":
		return "Edit"
	case "webfetch", "fetch":
		return "WebFetch"
	default:
		if toolName == "" {
			return ""
		}
		return strings.ToUpper(toolName[:1]) + toolName[1:]
	}
}

// Check decides whether action may proceed for the named tool, following
// the ordered precedence from spec §4.2, extended with the call-sequence
// check supplemented from the original's oversight.rs:
//
//  1. forbidden (analyzer.IsForbidden for Execute actions) -> deny, final
//  2. dangerous call sequence (detectRiskPattern) -> deny or force unknown
//  3. explicit deny pattern match -> deny
//  4. explicit allow pattern match, or an existing grant -> allowed
//  5. auto-approve: Safe-tier commands / non-sensitive paths -> allowed
//  6. otherwise -> unknown, caller must prompt
func (g *Gate) Check(toolName string, action types.Action) Decision {
	toolAction := toolActionFor(toolName)
	defer g.record(action)

	var risk types.RiskTier
	if action.Kind == types.ActionExecute {
		risk = analyzer.AnalyzeCommand(action.Command).Risk
		if risk == types.RiskForbidden {
			return Decision{Status: types.StatusDenied, Reason: "forbidden command pattern", Risk: risk}
		}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if sev, matched := g.detectRiskPattern(action, risk); matched {
		desc := sequenceDescription(g.history)
		if sev == patternSeverityHigh {
			return Decision{Status: types.StatusDenied, Reason: "dangerous call sequence (" + desc + ")", Risk: risk}
		}
		return Decision{Status: types.StatusUnknown, Reason: "suspicious call sequence forces confirmation (" + desc + ")", Risk: risk}
	}

	for _, p := range g.deny {
		if p.Matches(action, toolAction) {
			return Decision{Status: types.StatusDenied, Reason: "matched deny pattern " + p.Action + "(" + p.Matcher + ")", Risk: risk}
		}
	}

	for _, p := range g.ask {
		if p.Matches(action, toolAction) {
			return Decision{Status: types.StatusUnknown, Reason: "matched ask pattern " + p.Action + "(" + p.Matcher + ")", Risk: risk}
		}
	}

	for _, p := range g.allow {
		if p.Matches(action, toolAction) {
			return Decision{Status: types.StatusGranted, Reason: "matched allow pattern " + p.Action + "(" + p.Matcher + ")", Risk: risk}
		}
	}

	if g.hasGrant(toolName, action) {
		return Decision{Status: types.StatusGranted, Reason: "explicit grant", Risk: risk}
	}

	if g.autoApprove(action, risk) {
		return Decision{Status: types.StatusAutoApproved, Reason: "auto-approved safe action", Risk: risk}
	}

	return Decision{Status: types.StatusUnknown, Reason: "no matching rule", Risk: risk}
}

// record appends action to the sequence-detection history under its own
// write lock. Deferred first in Check (so it runs LAST, after the
// RUnlock deferred later has already released the read lock) -- Go runs
// deferred calls LIFO, which is what makes taking a write lock here safe
// even though Check also holds an RLock earlier in its body.
func (g *Gate) record(action types.Action) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.appendHistory(action)
}

func (g *Gate) appendHistory(action types.Action) {
	g.history = append(g.history, historyEntry{kind: action.Kind, source: action.Source, at: time.Now()})
	if len(g.history) > historyWindow {
		g.history = g.history[len(g.history)-historyWindow:]
	}
}

type patternSeverity int

const (
	patternSeverityNone patternSeverity = iota
	patternSeverityModerate
	patternSeverityHigh
)

// detectRiskPattern watches the recent-call window for the dangerous
// sequences the original's oversight.rs flags: reading or fetching
// content and then executing a shell command shortly after, which is how
// prompt-injected content turns into an executed command. Only
// Caution-or-higher commands are checked, against the most recent
// read/fetch still inside the history window (other calls in between are
// skipped). A read/fetch from a low-trust source
// (SourceToolResult/SourceExternal) followed by a Dangerous-or-higher
// command is scored high (deny outright); every other match -- a
// low-trust source before a Caution command, or any trusted source -- is
// scored moderate (force a confirmation prompt even if the command would
// otherwise auto-run).
// Must be called with g.mu held (read or write).
func (g *Gate) detectRiskPattern(action types.Action, risk types.RiskTier) (patternSeverity, bool) {
	if action.Kind != types.ActionExecute || risk < types.RiskCaution {
		return patternSeverityNone, false
	}
	now := time.Now()
	for i := len(g.history) - 1; i >= 0; i-- {
		prev := g.history[i]
		if now.Sub(prev.at) > historyMaxAge {
			break
		}
		if prev.kind != types.ActionFileRead && prev.kind != types.ActionNetwork {
			continue
		}
		if prev.source == types.SourceToolResult || prev.source == types.SourceExternal {
			if risk >= types.RiskDangerous {
				return patternSeverityHigh, true
			}
			return patternSeverityModerate, true
		}
		return patternSeverityModerate, true
	}
	return patternSeverityNone, false
}

func sequenceDescription(history []historyEntry) string {
	if len(history) == 0 {
		return "read/fetch -> execute"
	}
	prev := history[len(history)-1]
	switch prev.kind {
	case types.ActionNetwork:
		return "fetch -> execute"
	default:
		return "read -> execute"
	}
}

// autoApprove implements the safe-by-default carve-out: Safe-tier shell
// commands and file reads with zero PathSensitivity score never need a
// prompt (file writes are never auto-approved), matching the teacher's SecurityConfig.EnableSecurityChecks
// default-allow posture for unlisted paths/commands.
func (g *Gate) autoApprove(action types.Action, risk types.RiskTier) bool {
	switch action.Kind {
	case types.ActionExecute:
		return risk == types.RiskSafe
	case types.ActionFileRead:
		return analyzer.PathSensitivity(action.Path) == 0
	case types.ActionFileWrite:
		return false
	default:
		return false
	}
}

func (g *Gate) hasGrant(toolName string, action types.Action) bool {
	subject := subjectOf(action)
	for _, grants := range [][]Grant{g.sessionGrants, g.permanentGrants} {
		for _, gr := range grants {
			if !strings.EqualFold(gr.Permission.Tool, toolName) {
				continue
			}
			if gr.Permission.Action.Kind != action.Kind {
				continue
			}
			if subjectOf(gr.Permission.Action) == subject || subjectOf(gr.Permission.Action) == "*" {
				return true
			}
		}
	}
	return false
}

// GrantPermission records a new permission at the given scope. ScopeOnce
// grants are not persisted -- they apply only to the call that prompted
// them, so callers should not call Grant for a once-scoped decision; it
// is accepted here for completeness but expires immediately. A
// ScopePermanent grant is additionally journalled to whatever path
// LoadGrantsFile armed (a no-op, returning a nil error, if none was).
func (g *Gate) GrantPermission(toolName string, action types.Action, scope types.Scope) error {
	perm := types.Permission{Tool: toolName, Action: action, Scope: scope}
	g.mu.Lock()
	defer g.mu.Unlock()
	switch scope {
	case types.ScopeSession:
		g.sessionGrants = append(g.sessionGrants, Grant{Permission: perm, GrantedAt: time.Now()})
	case types.ScopePermanent:
		g.permanentGrants = append(g.permanentGrants, Grant{Permission: perm, GrantedAt: time.Now()})
		return g.persistPermanentGrants()
	}
	return nil
}

// Revoke removes a previously granted session or permanent permission
// matching tool+action exactly, write-through persisting the updated
// permanent-grant set to whatever path LoadGrantsFile armed.
func (g *Gate) Revoke(toolName string, action types.Action) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionGrants = filterOut(g.sessionGrants, toolName, action)
	g.permanentGrants = filterOut(g.permanentGrants, toolName, action)
	return g.persistPermanentGrants()
}

func filterOut(grants []Grant, toolName string, action types.Action) []Grant {
	out := grants[:0]
	for _, gr := range grants {
		if strings.EqualFold(gr.Permission.Tool, toolName) &&
			gr.Permission.Action.Kind == action.Kind &&
			subjectOf(gr.Permission.Action) == subjectOf(action) {
			continue
		}
		out = append(out, gr)
	}
	return out
}

// ClearSession drops all session-scoped grants, leaving permanent grants
// and configured allow/deny patterns untouched. The Gate never calls it
// itself; session grants last until a caller does.
func (g *Gate) ClearSession() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionGrants = nil
}
