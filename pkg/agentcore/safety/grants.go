package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// grantRecord is the on-disk form of a permanent Grant, journalled to a
// grants file alongside settings.json per spec §4.2 ("permanent grants
// are journalled to a settings file... The gate must read permanent
// grants at startup and write through on every permanent grant").
type grantRecord struct {
	Tool       string           `json:"tool"`
	ActionKind types.ActionKind `json:"action_kind"`
	Command    string           `json:"command,omitempty"`
	Path       string           `json:"path,omitempty"`
	URL        string           `json:"url,omitempty"`
	Domain     string           `json:"domain,omitempty"`
	Details    string           `json:"details,omitempty"`
	GrantedAt  time.Time        `json:"granted_at"`
}

func toRecord(g Grant) grantRecord {
	a := g.Permission.Action
	return grantRecord{
		Tool: g.Permission.Tool, ActionKind: a.Kind,
		Command: a.Command, Path: a.Path, URL: a.URL, Domain: a.Domain, Details: a.Details,
		GrantedAt: g.GrantedAt,
	}
}

func fromRecord(r grantRecord) Grant {
	return Grant{
		Permission: types.Permission{
			Tool: r.Tool,
			Action: types.Action{
				Kind: r.ActionKind, Command: r.Command, Path: r.Path, URL: r.URL, Domain: r.Domain, Details: r.Details,
			},
			Scope: types.ScopePermanent,
		},
		GrantedAt: r.GrantedAt,
	}
}

// LoadGrantsFile reads previously journalled permanent grants from path
// into the Gate and arms write-through persistence to that path for
// every subsequent permanent grant. A missing file is not an error -- a
// fresh install simply has none yet. Intended to be called once, right
// after constructing the Gate.
func (g *Gate) LoadGrantsFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		g.mu.Lock()
		g.grantsPath = path
		g.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("safety: read grants file %s: %w", path, err)
	}

	var records []grantRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("safety: parse grants file %s: %w", path, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.grantsPath = path
	for _, r := range records {
		g.permanentGrants = append(g.permanentGrants, fromRecord(r))
	}
	return nil
}

// persistPermanentGrants writes every current permanent grant back to
// g.grantsPath. No-op when no path has been armed via LoadGrantsFile.
// Must be called with g.mu held.
func (g *Gate) persistPermanentGrants() error {
	if g.grantsPath == "" {
		return nil
	}
	records := make([]grantRecord, 0, len(g.permanentGrants))
	for _, gr := range g.permanentGrants {
		records = append(records, toRecord(gr))
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("safety: marshal grants: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(g.grantsPath), 0755); err != nil {
		return fmt.Errorf("safety: mkdir %s: %w", filepath.Dir(g.grantsPath), err)
	}
	if err := os.WriteFile(g.grantsPath, data, 0644); err != nil {
		return fmt.Errorf("safety: write grants file %s: %w", g.grantsPath, err)
	}
	return nil
}
