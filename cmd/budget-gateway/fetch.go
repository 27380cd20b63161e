package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/txn2/budget-data-gateway/pkg/dataservice"
	"github.com/txn2/budget-data-gateway/pkg/query"
)

func newFetchCmd() *cobra.Command {
	sf := &storeFlag{}
	var filterArgs []string

	cmd := &cobra.Command{
		Use:   "fetch <entity>",
		Short: "Read an entity through the persisted data source",
		Long: `fetch reads accounts, transactions, projects, budget_entries, vendors
or kpis through the persisted data source and prints the records as JSON.
When the source fails, fixture data is printed and a warning goes to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := query.Parse(args[0])
			if err != nil {
				return err
			}
			filters, err := parseKV("filter", filterArgs)
			if err != nil {
				return err
			}
			svc, err := sf.service()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close(cmd.Context()) }()

			res := svc.Fetch(cmd.Context(), l, filters)
			if res.Source == dataservice.SourceFallback {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s data source failed, showing fixture data: %v\n",
					svc.Active().Kind, res.Cause)
			}

			return writeResult(cmd, res)
		},
	}
	sf.register(cmd)
	cmd.Flags().StringArrayVarP(&filterArgs, "filter", "f", nil, "Equality filter as column=value (repeatable)")
	return cmd
}

func newQueryCmd() *cobra.Command {
	sf := &storeFlag{}
	cmd := &cobra.Command{
		Use:   "query <statement>",
		Short: "Run a raw statement through a remote data source",
		Long: `query runs the statement verbatim on the remote warehouse session of the
persisted data source and prints the result as JSON. Raw statements never
fall back to fixtures; other data source kinds are rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := sf.service()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close(cmd.Context()) }()

			res, err := svc.Query(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeResult(cmd, res)
		},
	}
	sf.register(cmd)
	return cmd
}

func writeResult(cmd *cobra.Command, res dataservice.Result) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
