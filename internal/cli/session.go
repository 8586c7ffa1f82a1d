package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewSessionCmd создаёт группу команд для просмотра журнала сессий.
func NewSessionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect session segments",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show a session segment with its step log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			s, err := client.GetSession(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(s)
				return nil
			}

			out.Table(
				[]string{"ID", "VARIANT", "PHASE", "STATUS", "ORDER_ID", "ERROR"},
				[][]string{{s.ID, s.Variant, s.Phase, s.Status, s.OrderID, s.Error}},
			)

			rows := make([][]string, len(s.Steps))
			for i, st := range s.Steps {
				rows[i] = []string{strconv.Itoa(st.Index), st.Name, st.Status, strconv.Itoa(st.Attempts), st.Error}
			}
			out.Table([]string{"#", "STEP", "STATUS", "ATTEMPTS", "ERROR"}, rows)
			return nil
		},
	})

	return cmd
}
