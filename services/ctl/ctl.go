// Package ctl implements cmdbctl, the operator command line for the CMDB API.
package ctl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"cmdb/pkg/client"
)

type rootOptions struct {
	configPath string
	server     string
	agent      string
	verbose    bool
	out        io.Writer
}

// NewRootCommand builds the cmdbctl command tree writing results to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}

	cmd := &cobra.Command{
		Use:           "cmdbctl",
		Short:         "Submit hardware reports and review pending CMDB changes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("CMDB_CONFIG"), "Path to a YAML client config")
	flags.StringVar(&opts.server, "server", os.Getenv("CMDB_SERVER"), "Base URL of the CMDB API, overrides the config file")
	flags.StringVar(&opts.agent, "agent", "", "Agent name sent with reports")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log HTTP retries to stderr")

	cmd.AddCommand(newReportCommand(opts))
	cmd.AddCommand(newPendingCommand(opts))
	cmd.AddCommand(newAssetsCommand(opts))
	cmd.AddCommand(newEventsCommand(opts))
	return cmd
}

func (o *rootOptions) client() (*client.Client, error) {
	logger := zerolog.Nop()
	if o.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}

	cfg := client.DefaultConfig()
	if o.configPath != "" {
		loaded, err := client.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.agent != "" {
		cfg.Agent = o.agent
	}
	if cfg.Agent == "" {
		host, _ := os.Hostname()
		cfg.Agent = "cmdbctl@" + host
	}

	if o.server != "" {
		return client.NewWithBaseURL(o.server, cfg, logger), nil
	}
	return client.New(cfg, logger)
}

func principalFlag(cmd *cobra.Command, principal *string) {
	cmd.Flags().StringVar(principal, "principal", os.Getenv("CMDB_PRINCIPAL"), "Operator identity recorded with the decision")
}

func requirePrincipal(principal string) error {
	if strings.TrimSpace(principal) == "" {
		return errors.New("--principal is required (or set CMDB_PRINCIPAL)")
	}
	return nil
}

func groupCommand(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// printYAML renders v with its JSON field names.
func printYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func fprintf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
