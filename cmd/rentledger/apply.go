package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/rent-ledger/api"
	"github.com/warp/rent-ledger/rent"
)

func init() {
	rootCmd.AddCommand(applyCmd)
}

var applyCmd = &cobra.Command{
	Use:   "apply PAYMENTS_JSON",
	Short: "Apply a batch of payments once",
	Long: `Apply the payments in a JSON file, in file order, and print one line per
payment. The file has the same shape as the POST /api/payments body.
Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	payments, err := readPayments(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := rent.NewRunner(a.engine, a.workbook, a.registry)
	outcomes, runErr := runner.Run(cmd.Context(), payments)
	printOutcomes(cmd.OutOrStdout(), outcomes)
	if runErr != nil {
		return runErr
	}

	s := rent.Summarize(outcomes)
	fmt.Fprintf(cmd.OutOrStdout(), "\napplied %d, duplicates %d, rejected %d, failed %d\n",
		s.Applied, s.Duplicates, s.Rejected, s.Failed)
	if s.Failed > 0 {
		return fmt.Errorf("%d payment(s) failed", s.Failed)
	}
	return nil
}

func readPayments(path string) ([]rent.Payment, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var req api.ApplyRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	payments := make([]rent.Payment, len(req.Payments))
	for i, pr := range req.Payments {
		p, err := pr.ToPayment()
		if err != nil {
			return nil, fmt.Errorf("payment %d: %w", i, err)
		}
		payments[i] = p
	}
	return payments, nil
}

func printOutcomes(w io.Writer, outcomes []rent.Outcome) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REFERENCE\tACCOUNT\tLEDGER\tROW\tPERIOD\tPAID\tPENALTY\tBALANCE\tFUTURE\tERROR")
	for _, o := range outcomes {
		res := o.Result
		if o.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\t\t\t\t\t\t\t%v\n", o.Payment.Reference, o.Payment.AccountCode, res.SheetTitle, o.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%d\t\n",
			o.Payment.Reference, o.Payment.AccountCode, res.SheetTitle, res.RowNumber, res.PeriodLabel,
			res.PaidAfter, res.Penalty, res.Balance, res.AutoCreatedFuturePeriods)
	}
	tw.Flush()
}
