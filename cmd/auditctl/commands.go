package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"haven/internal/audit/keys"
	"haven/internal/audit/models"
	auditservice "haven/internal/audit/service"
	"haven/pkg/requestcontext"
)

// opener returns the audit service and a release func that drains it.
type opener func(ctx context.Context) (*auditservice.Service, func(context.Context) error, error)

// operatorID identifies auditctl runs in the audit log.
const operatorID = "auditctl"

func newRootCmd(out io.Writer, open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "auditctl",
		Short:        "Operate the Haven audit log",
		SilenceUsage: true,
	}
	root.SetOut(out)

	root.AddCommand(&cobra.Command{
		Use:   "keygen",
		Short: "Print a new AUDIT_LOG_KEY (hex)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := keys.Generate()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	})

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Decrypt and verify every record in a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := windowFlags(cmd)
			if err != nil {
				return err
			}
			return withService(cmd, open, func(ctx context.Context, svc *auditservice.Service) error {
				rep, err := svc.VerifyIntegrity(ctx, from, to)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checked %d records, %d failed\n", rep.Checked, len(rep.Failed))
				for _, eventID := range rep.Failed {
					fmt.Fprintf(cmd.OutOrStdout(), "  failed: %s\n", eventID)
				}
				if !rep.OK() {
					return fmt.Errorf("integrity check failed for %d records", len(rep.Failed))
				}
				return nil
			})
		},
	}
	addWindowFlags(verifyCmd)
	root.AddCommand(verifyCmd)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a signed compliance report as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := windowFlags(cmd)
			if err != nil {
				return err
			}
			generatedBy, _ := cmd.Flags().GetString("generated-by")
			reportType, _ := cmd.Flags().GetString("type")
			return withService(cmd, open, func(ctx context.Context, svc *auditservice.Service) error {
				rep, err := svc.GenerateComplianceReport(ctx, auditservice.ReportRequest{
					StartDate:   from,
					EndDate:     to,
					GeneratedBy: generatedBy,
					ReportType:  models.ReportType(reportType),
				})
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			})
		},
	}
	addWindowFlags(reportCmd)
	reportCmd.Flags().String("generated-by", operatorID, "Identity recorded as the report author")
	reportCmd.Flags().String("type", string(models.ReportTypeHIPAA), "Report type")
	root.AddCommand(reportCmd)

	root.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete records whose retention period has ended",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, open, func(ctx context.Context, svc *auditservice.Service) error {
				n, err := svc.PurgeExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired records\n", n)
				return nil
			})
		},
	})

	return root
}

func addWindowFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "Window start (RFC3339)")
	cmd.Flags().String("to", "", "Window end (RFC3339), defaults to now")
	_ = cmd.MarkFlagRequired("from")
}

func windowFlags(cmd *cobra.Command) (time.Time, time.Time, error) {
	rawFrom, _ := cmd.Flags().GetString("from")
	rawTo, _ := cmd.Flags().GetString("to")
	from, err := time.Parse(time.RFC3339, rawFrom)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
	}
	to := time.Now().UTC()
	if rawTo != "" {
		to, err = time.Parse(time.RFC3339, rawTo)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from must be before --to")
	}
	return from.UTC(), to.UTC(), nil
}

// withService opens the audit log, runs fn as the operator, and drains the
// events the run itself produced.
func withService(cmd *cobra.Command, open opener, fn func(context.Context, *auditservice.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, release, err := open(ctx)
	if err != nil {
		return err
	}
	ctx = requestcontext.WithActor(ctx, requestcontext.Actor{UserID: operatorID, Role: "operator"})

	runErr := fn(ctx, svc)

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := release(drainCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
