package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewPlanCmd создаёт группу команд для просмотра планов.
func NewPlanCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect step plans",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show VARIANT",
		Short: "Show the step table of a variant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			plan, err := client.GetPlan(args[0])
			if err != nil {
				return err
			}

			headers := []string{"#", "NAME", "OPERATION", "POLICY", "RETRY", "PERCENT", "PAUSE"}
			rows := make([][]string, len(plan.Steps))
			for i, s := range plan.Steps {
				pause := ""
				if s.PauseAfter {
					pause = "yes"
				}
				rows[i] = []string{
					strconv.Itoa(s.Index),
					s.Name,
					s.Operation,
					policy(s),
					strconv.Itoa(s.RetryCount),
					strconv.Itoa(s.Percent) + "%",
					pause,
				}
			}

			out.Print(headers, rows, plan)
			return nil
		},
	})

	return cmd
}

func policy(s PlanStep) string {
	switch {
	case s.Critical:
		return "critical"
	case s.ContinueOnError:
		return "continue"
	default:
		return "abort"
	}
}
