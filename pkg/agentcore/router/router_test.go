package router

import (
	"testing"

	"github.com/forgecore/agentrt/pkg/agentcore/safety"
	"github.com/forgecore/agentrt/pkg/agentcore/types"
	"github.com/stretchr/testify/assert"
)

func TestDecide_DeniedAlwaysBlocked(t *testing.T) {
	d := safety.Decision{Status: types.StatusDenied, Risk: types.RiskForbidden}
	assert.Equal(t, types.StrategyBlocked, Decide("bash", "rm -rf /", d))
}

func TestDecide_ForbiddenRiskBlockedEvenIfNotDenied(t *testing.T) {
	d := safety.Decision{Status: types.StatusUnknown, Risk: types.RiskForbidden}
	assert.Equal(t, types.StrategyBlocked, Decide("bash", "rm -rf /", d))
}

func TestDecide_NonExecuteToolUnknownRequiresConfirmation(t *testing.T) {
	d := safety.Decision{Status: types.StatusUnknown, Risk: types.RiskUnknown}
	assert.Equal(t, types.StrategyRequiresConfirmation, Decide("write", "", d))
}

func TestDecide_NonExecuteToolApprovedIsDirect(t *testing.T) {
	d := safety.Decision{Status: types.StatusAutoApproved, Risk: types.RiskSafe}
	assert.Equal(t, types.StrategyDirect, Decide("read", "", d))
}

func TestDecide_InteractivePatternIsTaskPty(t *testing.T) {
	d := safety.Decision{Status: types.StatusGranted, Risk: types.RiskCaution}
	assert.Equal(t, types.StrategyTaskPty, Decide("bash", "vim main.go", d))
}

func TestDecide_ServerPatternIsTask(t *testing.T) {
	d := safety.Decision{Status: types.StatusGranted, Risk: types.RiskCaution}
	assert.Equal(t, types.StrategyTask, Decide("bash", "npm run dev", d))
}

func TestDecide_LongRunningPatternIsTask(t *testing.T) {
	d := safety.Decision{Status: types.StatusGranted, Risk: types.RiskCaution}
	assert.Equal(t, types.StrategyTask, Decide("bash", "tail -f log.txt", d))
}

func TestDecide_UnknownExecuteRequiresConfirmation(t *testing.T) {
	d := safety.Decision{Status: types.StatusUnknown, Risk: types.RiskCaution}
	assert.Equal(t, types.StrategyRequiresConfirmation, Decide("bash", "npm install left-pad", d))
}

func TestDecide_DangerousRiskRequiresConfirmation(t *testing.T) {
	d := safety.Decision{Status: types.StatusGranted, Risk: types.RiskDangerous}
	assert.Equal(t, types.StrategyRequiresConfirmation, Decide("bash", "git push --force", d))
}

func TestDecide_InstantPatternIsDirect(t *testing.T) {
	d := safety.Decision{Status: types.StatusAutoApproved, Risk: types.RiskSafe}
	assert.Equal(t, types.StrategyDirect, Decide("bash", "ls -la", d))
}

func TestDecide_UnrecognizedApprovedCommandDefaultsToTask(t *testing.T) {
	d := safety.Decision{Status: types.StatusAutoApproved, Risk: types.RiskSafe}
	assert.Equal(t, types.StrategyTask, Decide("bash", "some-custom-cli build", d))
}

func TestDecide_ShellAliasesAreExecuteTools(t *testing.T) {
	d := safety.Decision{Status: types.StatusAutoApproved, Risk: types.RiskSafe}
	assert.Equal(t, types.StrategyDirect, Decide("shell", "ls", d))
	assert.Equal(t, types.StrategyDirect, Decide("exec", "ls", d))
}

func TestDecide_TaskControlToolsAlwaysRouteToTask(t *testing.T) {
	d := safety.Decision{Status: types.StatusAutoApproved, Risk: types.RiskSafe}
	assert.Equal(t, types.StrategyTask, Decide("task_spawn", "npm start", d))
	assert.Equal(t, types.StrategyTask, Decide("task_stop", "", d))
	assert.Equal(t, types.StrategyTask, Decide("task_send", "", d))
}

func TestDecide_TaskControlToolUnknownRequiresConfirmation(t *testing.T) {
	d := safety.Decision{Status: types.StatusUnknown, Risk: types.RiskUnknown}
	assert.Equal(t, types.StrategyRequiresConfirmation, Decide("task_spawn", "rm -rf /tmp/x", d))
}
