package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/txn2/budget-data-gateway/pkg/dataservice"
	"github.com/txn2/budget-data-gateway/pkg/dataservice/store"
)

// storeFlag is the --store flag shared by datasource and fetch.
type storeFlag struct {
	path string
}

func (f *storeFlag) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.path, "store", "", "Data source config file (default: user config dir)")
}

func (f *storeFlag) open() (*store.FileStore, error) {
	if f.path != "" {
		return store.NewFileStore(f.path), nil
	}
	path, err := store.DefaultPath()
	if err != nil {
		return nil, err
	}
	return store.NewFileStore(path), nil
}

// service builds the data service on the persisted configuration.
func (f *storeFlag) service() (*dataservice.Service, error) {
	st, err := f.open()
	if err != nil {
		return nil, err
	}
	return dataservice.New(dataservice.WithStore(st))
}

func newDatasourceCmd() *cobra.Command {
	sf := &storeFlag{}
	cmd := &cobra.Command{
		Use:   "datasource",
		Short: "Manage the persisted client data source",
	}
	sf.register(cmd)

	cmd.AddCommand(
		newDatasourceSetCmd(sf),
		newDatasourceShowCmd(sf),
		newDatasourceTestCmd(sf),
		newDatasourceStatusCmd(sf),
		newDatasourceClearCmd(sf),
	)
	return cmd
}

func newDatasourceSetCmd(sf *storeFlag) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Activate and persist a data source",
	}

	var delay time.Duration
	fixtureCmd := &cobra.Command{
		Use:   "fixture",
		Short: "Serve the built-in fixture data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return configure(cmd, sf, dataservice.Config{
				Kind:    dataservice.KindFixture,
				Fixture: &dataservice.FixtureConfig{SimulatedDelay: delay},
			})
		},
	}
	fixtureCmd.Flags().DurationVar(&delay, "delay", 0, "Simulated latency before every read")

	rw := &dataservice.RemoteWarehouseConfig{}
	remoteCmd := &cobra.Command{
		Use:   "remote",
		Short: "Read through a session facade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return configure(cmd, sf, dataservice.Config{Kind: dataservice.KindRemoteWarehouse, RemoteWarehouse: rw})
		},
	}
	remoteCmd.Flags().StringVar(&rw.GatewayURL, "gateway-url", "", "Session facade base URL")
	remoteCmd.Flags().StringVar(&rw.GatewayAPIKey, "gateway-api-key", "", "API key sent as X-API-Key to the facade")
	remoteCmd.Flags().StringVar(&rw.Driver, "driver", "", "Warehouse driver (databricks, trino)")
	remoteCmd.Flags().StringVar(&rw.EndpointURL, "endpoint", "", "Warehouse host")
	remoteCmd.Flags().StringVar(&rw.AccessPath, "access-path", "", "Warehouse HTTP path")
	remoteCmd.Flags().StringVar(&rw.Catalog, "catalog", "", "Initial catalog")
	remoteCmd.Flags().StringVar(&rw.Schema, "schema", "", "Initial schema")
	remoteCmd.Flags().StringVar(&rw.CredentialToken, "token", "", "Warehouse access token")

	var headers []string
	ga := &dataservice.GenericAPIConfig{}
	genericCmd := &cobra.Command{
		Use:   "generic",
		Short: "Read from a REST API exposing GET {base}/{entity}",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := parseKV("header", headers)
			if err != nil {
				return err
			}
			if len(h) > 0 {
				ga.Headers = h
			}
			return configure(cmd, sf, dataservice.Config{Kind: dataservice.KindGenericAPI, GenericAPI: ga})
		},
	}
	genericCmd.Flags().StringVar(&ga.BaseURL, "base-url", "", "API base URL")
	genericCmd.Flags().StringVar(&ga.APIKey, "api-key", "", "Bearer token sent on every request")
	genericCmd.Flags().StringArrayVar(&headers, "header", nil, "Extra request header as name=value (repeatable)")

	cmd.AddCommand(fixtureCmd, remoteCmd, genericCmd)
	return cmd
}

func configure(cmd *cobra.Command, sf *storeFlag, cfg dataservice.Config) error {
	st, err := sf.open()
	if err != nil {
		return err
	}
	svc, err := dataservice.New(dataservice.WithStore(st))
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close(cmd.Context()) }()

	if err := svc.Configure(cmd.Context(), cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "data source set to %s (%s)\n", cfg.Kind, st.Path())
	return nil
}

func newDatasourceShowCmd(sf *storeFlag) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the persisted data source with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := sf.open()
			if err != nil {
				return err
			}
			cfg, err := st.Load()
			if err != nil {
				return err
			}
			if cfg == nil {
				def := dataservice.FixtureDefault()
				cfg = &def
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newDatasourceTestCmd(sf *storeFlag) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check that the persisted data source answers",
		Long: `test checks the persisted data source without falling back to fixtures.
A remote warehouse is tested through the facade's connection test, so no
session is left open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := sf.service()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close(cmd.Context()) }()

			kind := svc.Active().Kind
			if err := svc.Check(cmd.Context()); err != nil {
				return fmt.Errorf("%s data source check failed: %w", kind, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s data source ok\n", kind)
			return nil
		},
	}
}

func newDatasourceStatusCmd(sf *storeFlag) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the status of the facade behind a remote data source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := sf.service()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close(cmd.Context()) }()

			st, err := svc.GatewayStatus(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "gateway:         %s\n", st.URL)
			fmt.Fprintf(w, "status:          %s\n", st.Facade.Status)
			fmt.Fprintf(w, "active sessions: %d\n", st.Facade.ActiveConnections)
			fmt.Fprintf(w, "session ttl:     %s\n", st.Facade.SessionTTL())
			fmt.Fprintf(w, "server time:     %s\n", st.Facade.ServerTime.Format(time.RFC3339))
			return nil
		},
	}
}

func newDatasourceClearCmd(sf *storeFlag) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the persisted data source; reads revert to fixtures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := sf.open()
			if err != nil {
				return err
			}
			if err := st.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "data source cleared")
			return nil
		},
	}
}

// parseKV parses name=value pairs.
func parseKV(flag string, pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --%s %q, want name=value", flag, p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}
