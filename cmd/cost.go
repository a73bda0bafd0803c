package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CostReporter is the interface a host agent implements to expose its own
// token/dollar accounting; agentrt doesn't talk to an LLM provider itself
// (out of scope per spec's Non-goals), so `cost` has nothing to compute on
// its own. DefaultCostReporter is a no-op that explains this rather than
// fabricating a number.
type CostReporter interface {
	Report() (summary string, err error)
}

// costReporter is the active CostReporter; a host process embedding
// agentrt can replace this before calling Execute() to wire in its own
// accounting.
var costReporter CostReporter = noopCostReporter{}

type noopCostReporter struct{}

func (noopCostReporter) Report() (string, error) {
	return "", fmt.Errorf("no cost reporter configured: agentrt tracks tool execution, not LLM token spend -- the embedding agent must set cmd.SetCostReporter")
}

// SetCostReporter lets an embedding process supply its own cost accounting
// before Execute() runs.
func SetCostReporter(r CostReporter) { costReporter = r }

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Report accumulated cost for the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := costReporter.Report()
		if err != nil {
			return err
		}
		fmt.Println(summary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(costCmd)
}
