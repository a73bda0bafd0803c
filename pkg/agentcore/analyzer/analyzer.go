// Package analyzer performs pure, stateless lexical classification of shell
// commands and filesystem paths into risk tiers, adapted from the teacher's
// pkg/agent_tools/safety.go (DestructiveCommands) and generalized against
// the risk taxonomy in crates/Layer2-core/src/tool/security.rs and
// crates/Layer3-agent/src/tool_router.rs of the Rust predecessor.
package analyzer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// commandPattern is one regex-backed classification rule.
type commandPattern struct {
	re   *regexp.Regexp
	desc string
}

func mustPattern(expr, desc string) commandPattern {
	return commandPattern{re: regexp.MustCompile(expr), desc: desc}
}

// forbiddenPatterns is the closed, absolute-deny set from spec §4.1.
var forbiddenPatterns = []commandPattern{
	mustPattern(`^\s*rm\s+-rf\s+/\s*$`, "recursive root deletion"),
	mustPattern(`^\s*rm\s+-rf\s+~\s*$`, "recursive home deletion"),
	mustPattern(`^\s*rm\s+-rf\s+\./\*\s*$`, "recursive wildcard deletion"),
	mustPattern(`^\s*dd\s+.*\bif=.*\bof=/dev/`, "raw device write"),
	mustPattern(`^\s*mkfs`, "filesystem format"),
	mustPattern(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`, "fork bomb"),
	mustPattern(`^\s*chmod\s+-R\s+777\s+/\s*$`, "world-writable root"),
	mustPattern(`>\s*/dev/sda\b`, "raw disk overwrite"),
	mustPattern(`\|\s*sh\s*$`, "piped fetch-and-run"),
	mustPattern(`\|\s*bash\s*$`, "piped fetch-and-run"),
}

// dangerousPatterns: require confirmation.
var dangerousPatterns = []commandPattern{
	mustPattern(`^\s*rm\s+-[a-zA-Z]*[rR]`, "recursive deletion"),
	mustPattern(`^\s*rm\s+-[a-zA-Z]*f`, "forced deletion"),
	mustPattern(`^\s*mv\s+.*\s+/(etc|usr|var|bin|sbin|lib)(/|\s|$)`, "move of system path"),
	mustPattern(`^\s*git\s+reset\s+--hard\b`, "hard git reset"),
	mustPattern(`^\s*git\s+clean\s+-fd\b`, "forced git clean"),
	mustPattern(`^\s*git\s+push\s+.*--force`, "force push"),
	mustPattern(`^\s*docker\s+system\s+prune`, "docker prune"),
	mustPattern(`^\s*kubectl\s+delete\b`, "kubectl delete"),
	mustPattern(`\.ssh(/|\\|$)`, "ssh credential path"),
	mustPattern(`\.aws(/|\\|$)`, "aws credential path"),
	mustPattern(`\.kube(/|\\|$)`, "kube credential path"),
}

var interactiveFirstWords = map[string]bool{
	"vim": true, "nvim": true, "vi": true, "nano": true, "emacs": true,
	"less": true, "more": true, "top": true, "htop": true, "ssh": true,
	"telnet": true, "irb": true, "psql": true, "mysql": true, "mongo": true,
	"redis-cli": true,
}

// safePrefixes are first words that may be Safe on their own -- composite
// commands (git status, cargo check) are matched below by prefix instead.
var safePrefixes = []string{
	"ls", "dir", "pwd", "cat ", "head ", "tail ", "echo ", "date", "whoami",
	"hostname", "which ", "git status", "git log", "git diff", "git branch",
	"cargo check", "cargo --version", "npm --version", "pip list",
}

var cautionPrefixes = []string{
	"npm install", "pip install", "git commit", "git push",
}

var shellMetacharacters = regexp.MustCompile(`[|&;<>]`)

// normalize strips a leading sudo/env and collapses whitespace, as spec
// §4.1 requires before pattern matching.
func normalize(cmd string) string {
	c := strings.TrimSpace(cmd)
	for {
		switch {
		case strings.HasPrefix(c, "sudo "):
			c = strings.TrimSpace(strings.TrimPrefix(c, "sudo "))
			continue
		case strings.HasPrefix(c, "env "):
			c = strings.TrimSpace(strings.TrimPrefix(c, "env "))
			continue
		}
		break
	}
	return strings.Join(strings.Fields(c), " ")
}

// firstWord returns the command's leading token, ignoring normalization
// of the full string (so "git status --short" -> "git").
func firstWord(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// IsForbidden reports whether a command matches the absolute-deny set.
func IsForbidden(cmd string) bool {
	n := normalize(cmd)
	for _, p := range forbiddenPatterns {
		if p.re.MatchString(n) {
			return true
		}
	}
	return false
}

// CommandAnalysis is the result of AnalyzeCommand.
type CommandAnalysis struct {
	Risk      types.RiskTier
	FirstWord string
	Flags     []string
}

// flagsOf extracts dash-prefixed tokens, used for display/audit purposes.
func flagsOf(cmd string) []string {
	var flags []string
	for _, f := range strings.Fields(cmd) {
		if strings.HasPrefix(f, "-") {
			flags = append(flags, f)
		}
	}
	return flags
}

// AnalyzeCommand classifies a shell command string into a RiskTier per the
// ordered rules of spec §4.1.
func AnalyzeCommand(cmd string) CommandAnalysis {
	n := normalize(cmd)
	out := CommandAnalysis{FirstWord: firstWord(n), Flags: flagsOf(n)}

	if n == "" {
		out.Risk = types.RiskUnknown
		return out
	}

	for _, p := range forbiddenPatterns {
		if p.re.MatchString(n) {
			out.Risk = types.RiskForbidden
			return out
		}
	}
	for _, p := range dangerousPatterns {
		if p.re.MatchString(n) {
			out.Risk = types.RiskDangerous
			return out
		}
	}
	if interactiveFirstWords[out.FirstWord] {
		out.Risk = types.RiskInteractive
		return out
	}

	// Safe never includes a shell metacharacter unless every participant
	// segment is itself Safe (spec §4.1).
	if shellMetacharacters.MatchString(n) {
		if allSegmentsSafe(n) {
			out.Risk = types.RiskSafe
		} else {
			out.Risk = types.RiskUnknown
		}
		return out
	}

	for _, prefix := range safePrefixes {
		if n == strings.TrimSpace(prefix) || strings.HasPrefix(n, prefix) {
			out.Risk = types.RiskSafe
			return out
		}
	}
	for _, prefix := range cautionPrefixes {
		if strings.HasPrefix(n, prefix) {
			out.Risk = types.RiskCaution
			return out
		}
	}

	out.Risk = types.RiskUnknown
	return out
}

// allSegmentsSafe splits a command on shell connectors and requires every
// segment to independently classify as Safe.
func allSegmentsSafe(cmd string) bool {
	segments := regexp.MustCompile(`\|\||&&|\||;`).Split(cmd, -1)
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		matched := false
		for _, prefix := range safePrefixes {
			if seg == strings.TrimSpace(prefix) || strings.HasPrefix(seg, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// exactSensitiveSuffixes scores paths ending in a credential-file name or
// extension at 10.
var exactSensitiveSuffixes = []string{".env", "id_rsa", "id_ed25519", ".pem", ".key"}

// sensitiveDirs scores paths under these directories at 8.
var sensitiveDirs = []string{".ssh/", ".aws/", ".gnupg/", ".kube/"}

// systemFiles scores well-known system files at 6.
var systemFiles = []string{"/etc/passwd", "/etc/shadow", "/etc/sudoers"}

// kernelPaths scores kernel/device paths at 4.
var kernelPaths = []string{"/proc/", "/sys/", "/dev/", "system32"}

// PathSensitivity scores a filesystem path 0-10 by proximity to
// credentials, system files, or secrets, per spec §4.1. Case-sensitive on
// POSIX, case-insensitive on Windows is the platform's job to pass a
// lower-cased path in; this function always compares case-sensitively.
func PathSensitivity(path string) int {
	for _, suf := range exactSensitiveSuffixes {
		if strings.HasSuffix(path, suf) {
			return 10
		}
	}
	for _, dir := range sensitiveDirs {
		if strings.Contains(path, dir) {
			return 8
		}
	}
	for _, f := range systemFiles {
		if strings.Contains(path, f) {
			return 6
		}
	}
	for _, k := range kernelPaths {
		if strings.Contains(path, k) {
			return 4
		}
	}
	return 0
}

// PathSensitivityPlatform scores a path the way the named platform would:
// case-insensitively on "windows", case-sensitively everywhere else.
func PathSensitivityPlatform(path, goos string) int {
	if goos == "windows" {
		return PathSensitivity(strings.ToLower(path))
	}
	return PathSensitivity(path)
}

// ValidatePath rejects a target path that would resolve outside every
// root in allowedRoots, supplementing PathSensitivity's numeric score
// with a hard boundary check, grounded on the original's
// crates/Layer2-core/src/tool/security.rs path canonicalization. Unlike
// PathSensitivity (which only governs whether to prompt), a failure here
// is unconditional: a Write/Edit tool must refuse the call outright
// rather than let the gate weigh it.
//
// The check resolves ".."-traversal and, when the path (or an existing
// parent of it) is a symlink, follows the link to its real target before
// testing containment -- a symlink inside an allowed root that points
// outside it is rejected even though the link's own path looks fine.
func ValidatePath(path string, allowedRoots []string) error {
	if len(allowedRoots) == 0 {
		return nil
	}

	resolved, err := resolveReal(path)
	if err != nil {
		return fmt.Errorf("analyzer: resolve path %q: %w", path, err)
	}

	for _, root := range allowedRoots {
		realRoot, err := resolveReal(root)
		if err != nil {
			continue
		}
		if withinRoot(resolved, realRoot) {
			return nil
		}
	}
	return fmt.Errorf("analyzer: path %q escapes every allowed root", path)
}

// resolveReal returns path's absolute, symlink-free form. It walks up to
// the nearest existing ancestor (the path itself may not exist yet, as
// for a Write that creates a new file) and resolves symlinks from there,
// then reapplies the non-existent suffix.
func resolveReal(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	existing := abs
	var suffix []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		suffix = append([]string{filepath.Base(existing)}, suffix...)
		existing = parent
	}

	real, err := filepath.EvalSymlinks(existing)
	if err != nil {
		real = existing
	}
	return filepath.Join(append([]string{real}, suffix...)...), nil
}

// withinRoot reports whether resolved is root itself or a descendant of
// it, comparing cleaned absolute paths component-wise rather than by
// string prefix (so "/home/u/project-evil" is never mistaken for a
// descendant of "/home/u/project").
func withinRoot(resolved, root string) bool {
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
	return first != ".."
}
