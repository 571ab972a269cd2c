package ctl

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"cmdb/services/inventory"
)

func newAssetsCommand(opts *rootOptions) *cobra.Command {
	cmd := groupCommand("assets", "Query canonical assets")
	cmd.AddCommand(newAssetsListCommand(opts))
	cmd.AddCommand(newAssetsGetCommand(opts))
	return cmd
}

func newAssetsListCommand(opts *rootOptions) *cobra.Command {
	var (
		filter       inventory.AssetFilter
		assetType    string
		since, until string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List canonical assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.AssetType = inventory.AssetType(assetType)
			var err error
			if filter.Since, err = parseTimeFlag("since", since); err != nil {
				return err
			}
			if filter.Until, err = parseTimeFlag("until", until); err != nil {
				return err
			}

			c, err := opts.client()
			if err != nil {
				return err
			}
			assets, err := c.ListAssets(cmd.Context(), filter)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(opts.out, 0, 4, 2, ' ', 0)
			fprintf(tw, "ID\tSN\tTYPE\tSTATUS\tMODEL\tMANUFACTURER\tAPPROVED BY\tUPDATED\n")
			for _, a := range assets {
				fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					a.ID, a.SN, a.AssetType, a.Status, orDash(a.Model), orDash(a.Manufacturer), orDash(a.ApprovedBy), formatTime(a.MTime))
			}
			return tw.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&assetType, "asset-type", "", "Only this asset type")
	f.StringVar(&filter.Manufacturer, "manufacturer", "", "Only this manufacturer")
	f.StringVar(&filter.TimeField, "time-field", "", "Column for --since/--until: c_time or m_time")
	f.StringVar(&since, "since", "", "Inclusive lower bound, RFC3339 or a duration such as 24h")
	f.StringVar(&until, "until", "", "Exclusive upper bound, RFC3339 or a duration")
	f.IntVar(&filter.Limit, "limit", 0, "Maximum rows")
	f.IntVar(&filter.Offset, "offset", 0, "Rows to skip")
	return cmd
}

func newAssetsGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID|SN",
		Short: "Print one asset with its components",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var asset inventory.Asset
			if id, perr := uuid.Parse(args[0]); perr == nil {
				asset, err = c.GetAsset(cmd.Context(), id)
			} else {
				asset, err = c.AssetBySN(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return printYAML(opts.out, asset)
		},
	}
}

func newEventsCommand(opts *rootOptions) *cobra.Command {
	var (
		filter    inventory.EventFilter
		assetID   string
		eventType string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if assetID != "" {
				id, err := uuid.Parse(assetID)
				if err != nil {
					return fmt.Errorf("--asset-id: %w", err)
				}
				filter.AssetID = &id
			}
			filter.Type = inventory.EventType(eventType)

			c, err := opts.client()
			if err != nil {
				return err
			}
			events, err := c.ListEvents(cmd.Context(), filter)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(opts.out, 0, 4, 2, ' ', 0)
			fprintf(tw, "ID\tAT\tSN\tEVENT\tACTOR\n")
			for _, e := range events {
				fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, formatTime(e.At), e.SN, e.Type, e.Actor)
			}
			return tw.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&filter.SN, "sn", "", "Only events for this serial number")
	f.StringVar(&assetID, "asset-id", "", "Only events for this asset")
	f.StringVar(&eventType, "type", "", "Only this event type")
	f.IntVar(&filter.Limit, "limit", 0, "Maximum rows")
	return cmd
}

// parseTimeFlag accepts RFC3339 or a duration counted back from now.
func parseTimeFlag(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be RFC3339 or a duration: %q", name, v)
	}
	return time.Now().Add(-d), nil
}
