package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

func newVendorsCmd(env *adminEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendors",
		Short: "Review vendor accounts awaiting approval",
	}

	list := &cobra.Command{
		Use:   "list-pending",
		Short: "List vendors awaiting approval, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			ctx, cancel := commandContext(cmd)
			defer cancel()

			return env.withDeps(ctx, func(deps *adminDeps) error {
				pending, err := deps.Approvals.ListPending(ctx, limit)
				if err != nil {
					return err
				}
				return printPendingVendors(env.Out, pending)
			})
		},
	}
	list.Flags().Int("limit", 50, "Maximum number of vendors to list")

	cmd.AddCommand(
		list,
		newApprovalCmd(env, "approve", "Approve a vendor so they can reach the vendor dashboard", true),
		newApprovalCmd(env, "reject", "Withdraw a vendor's approval", false),
	)
	return cmd
}

func newApprovalCmd(env *adminEnv, name, short string, approve bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " <vendor-user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			yes, _ := cmd.Flags().GetBool("yes")
			if !approve && !yes {
				if err := confirmAction(env.In, env.Out, "reject vendor "+args[0]); err != nil {
					return err
				}
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			return env.withDeps(ctx, func(deps *adminDeps) error {
				set := deps.Approvals.Reject
				if approve {
					set = deps.Approvals.Approve
				}
				prof, err := set(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return writef(env.Out, "%s: approved=%t\n", prof.UserID, prof.IsApproved)
			})
		},
	}
	cmd.Flags().String("actor", defaultActor(), "Operator recorded against the change")
	if !approve {
		cmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
	}
	return cmd
}

func printPendingVendors(w io.Writer, pending []domainauth.Profile) error {
	if len(pending) == 0 {
		return writeln(w, "No vendors are waiting for approval.")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "USER ID\tNAME\tCOMPANY\tLOCATION\tSIGNED UP"); err != nil {
		return err
	}
	for _, p := range pending {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.UserID, p.Name, deref(p.CompanyName), deref(p.Location), p.CreatedAt.UTC().Format("2006-01-02 15:04"),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return "cli:" + u
	}
	return "cli"
}

// confirmAction asks for a y/N answer on in.
func confirmAction(in io.Reader, out io.Writer, action string) error {
	if err := writef(out, "About to %s. Continue? [y/N]: ", action); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}
