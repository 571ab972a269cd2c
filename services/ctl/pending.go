package ctl

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cmdb/pkg/client"
	"cmdb/services/inventory"
)

func newPendingCommand(opts *rootOptions) *cobra.Command {
	cmd := groupCommand("pending", "Review staged reports")
	cmd.AddCommand(newPendingListCommand(opts))
	cmd.AddCommand(newPendingShowCommand(opts))
	cmd.AddCommand(newPendingDecisionCommand(opts, "approve"))
	cmd.AddCommand(newPendingDecisionCommand(opts, "reject"))
	return cmd
}

func newPendingListCommand(opts *rootOptions) *cobra.Command {
	var assetType, manufacturer string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staged reports awaiting a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			pending, err := c.ListPending(cmd.Context(), inventory.PendingFilter{
				AssetType:    inventory.AssetType(assetType),
				Manufacturer: manufacturer,
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(opts.out, 0, 4, 2, ' ', 0)
			fprintf(tw, "SN\tTYPE\tDISPOSITION\tMODEL\tMANUFACTURER\tSUBMITTED BY\tUPDATED\n")
			for _, p := range pending {
				fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					p.SN, p.AssetType, p.Disposition, orDash(p.Model), orDash(p.Manufacturer), p.SubmittedBy, formatTime(p.MTime))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&assetType, "asset-type", "", "Only this asset type")
	cmd.Flags().StringVar(&manufacturer, "manufacturer", "", "Only this manufacturer")
	return cmd
}

func newPendingShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show SN",
		Short: "Print a staged report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			p, err := c.GetPending(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printYAML(opts.out, p)
		},
	}
}

func newPendingDecisionCommand(opts *rootOptions, action string) *cobra.Command {
	var principal string

	cmd := &cobra.Command{
		Use:   action + " SN [SN...]",
		Short: fmt.Sprintf("%s staged reports", capitalize(action)),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePrincipal(principal); err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if len(args) == 1 {
				if action == "approve" {
					id, err := c.Approve(ctx, args[0], principal)
					if err != nil {
						return err
					}
					fprintf(opts.out, "approved %s asset=%s\n", args[0], id)
					return nil
				}
				if err := c.Reject(ctx, args[0], principal); err != nil {
					return err
				}
				fprintf(opts.out, "rejected %s\n", args[0])
				return nil
			}

			var res client.BatchResult
			if action == "approve" {
				res, err = c.ApproveMany(ctx, args, principal)
			} else {
				res, err = c.RejectMany(ctx, args, principal)
			}
			if err != nil {
				return err
			}
			return printBatch(opts, action, res)
		},
	}

	principalFlag(cmd, &principal)
	return cmd
}

func printBatch(opts *rootOptions, action string, res client.BatchResult) error {
	tw := tabwriter.NewWriter(opts.out, 0, 4, 2, ' ', 0)
	fprintf(tw, "SN\tRESULT\tDETAIL\n")
	for _, item := range res.Items {
		switch {
		case item.Error != "":
			fprintf(tw, "%s\tfailed\t%s\n", item.SN, item.Error)
		case item.AssetID != nil:
			fprintf(tw, "%s\t%sd\t%s\n", item.SN, action, item.AssetID)
		default:
			fprintf(tw, "%s\t%sd\t-\n", item.SN, action)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fprintf(opts.out, "%d succeeded, %d failed\n", res.Succeeded, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d %s decisions failed", res.Failed, len(res.Items), action)
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
