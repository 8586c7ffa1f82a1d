package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewApplyCmd создаёт группу команд оформления устройства.
func NewApplyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Run device issuance",
	}

	cmd.AddCommand(
		newApplyStartCmd(clientFn, outputFn),
		newApplyResumeCmd(clientFn, outputFn),
	)

	return cmd
}

func newApplyStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var variant string
	var params []string
	var sandbox bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run steps up to the verification code",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			parsed, err := parseParams(params)
			if err != nil {
				return err
			}

			res, err := client.Start(StartRequest{
				Variant:   variant,
				Params:    parsed,
				IsSandbox: sandbox,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Waiting for verification code: session %s", res.SessionID))
			out.Print(
				[]string{"SESSION_ID", "ORDER_ID", "SIGN_ORDER_ID", "VERIFY_CODE_NO"},
				[][]string{{res.SessionID, res.OrderID, res.SignOrderID, res.VerifyCodeNo}},
				res,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "passenger", "Application variant (passenger, freight)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Applicant parameter as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&sandbox, "sandbox", false, "Run against the sandbox gateway")

	return cmd
}

func newApplyResumeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req ResumeRequest
	var params []string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Submit the verification code and finish issuance",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			req.Params = parsed

			res, err := client.Resume(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Application %s: order %s", res.Status, res.OrderID))
			for _, f := range res.Swallowed {
				out.Error(fmt.Sprintf("%d. %s failed: %s", f.Index, f.Name, f.Reason))
			}

			if out.jsonMode {
				out.JSON(res)
				return nil
			}
			out.KeyValues(res.Context)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Variant, "variant", "passenger", "Application variant (passenger, freight)")
	cmd.Flags().StringVar(&req.Code, "code", "", "Verification code received by the applicant")
	cmd.Flags().StringVar(&req.OrderID, "order-id", "", "Order ID returned by start")
	cmd.Flags().StringVar(&req.SignOrderID, "sign-order-id", "", "Sign order ID returned by start")
	cmd.Flags().StringVar(&req.VerifyCodeNo, "verify-code-no", "", "Verification code number returned by start")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Applicant parameter as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&req.IsSandbox, "sandbox", false, "Run against the sandbox gateway")

	for _, name := range []string{"code", "order-id", "sign-order-id", "verify-code-no"} {
		cmd.MarkFlagRequired(name)
	}

	return cmd
}

// parseParams разбирает список KEY=VALUE.
func parseParams(kvs []string) (map[string]string, error) {
	params := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid param format %q, expected KEY=VALUE", kv)
		}
		params[strings.TrimSpace(key)] = value
	}
	return params, nil
}
