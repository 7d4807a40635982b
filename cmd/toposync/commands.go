package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"toposync/internal/collector"
	"toposync/internal/config"
	"toposync/internal/loader"
	"toposync/internal/provider"
)

func newSeedCmd() *cobra.Command {
	var validateOnly bool
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Load an inventory seed; reapplying is idempotent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if validateOnly {
				seed, err := loader.LoadSeed(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d objects, %d pools, %d sync groups\n",
					args[0], len(seed.Objects), len(seed.Pools), len(seed.SyncGroups))
				return nil
			}

			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.loader.ApplyFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&validateOnly, "validate", false, "parse and check references without touching the database")
	return cmd
}

func printStats(w io.Writer, s loader.Stats) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Kind", "Created"})
	t.AppendRows([]table.Row{
		{"classes", s.Classes},
		{"objects", s.Objects},
		{"pools", s.Pools},
		{"relationships", s.Relationships},
		{"variables", s.Variables},
		{"sync groups", s.Groups},
		{"data sources", s.DataSources},
	})
	t.AppendFooter(table.Row{"already present", s.Existing})
	t.Render()
}

func newProbeCmd() *cobra.Command {
	var port uint16
	cmd := &cobra.Command{
		Use:   "probe <address>",
		Short: "Check that an SNMP agent port answers (needs raw socket privileges)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			prober := collector.NewProber(cfg.Probe.Timeout.Duration(), cfg.NewLogger())
			res, err := prober.Probe(cmd.Context(), args[0], port)
			if err != nil {
				return err
			}

			state := text.FgGreen.Sprint(res.State)
			if !res.Reachable {
				state = text.FgRed.Sprint(res.State)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s:%d/udp %s %s\n", res.Address, res.Port, state, res.Reason)
			if !res.Reachable {
				return fmt.Errorf("agent %s:%d did not answer", res.Address, res.Port)
			}
			return nil
		},
	}
	cmd.Flags().Uint16Var(&port, "port", 161, "agent UDP port")
	return cmd
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List sync providers and the parameters they take",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()
			printProviders(cmd.OutOrStdout(), a.providers.List())
			return nil
		},
	}
}

func printProviders(w io.Writer, infos []provider.Info) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Automated", "Capabilities", "Parameters"})
	for _, info := range infos {
		params := make([]string, 0, len(info.Parameters))
		for _, p := range info.Parameters {
			name := p.Key
			if p.Required {
				name += "*"
			}
			params = append(params, name)
		}
		t.AppendRow(table.Row{info.ID, info.DisplayName, info.Automated,
			strings.Join(info.Capabilities, ", "), strings.Join(params, ", ")})
	}
	t.Render()
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}
			if path == "" {
				path = "(defaults)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n# %s\n",
				path, strings.ReplaceAll(cfg.Summary(), "\n", "\n# "))
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "paths",
		Short: "List where the configuration file is looked for, in order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			found := config.FindConfigPath()
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"#", "SOURCE", "PATH", "USED"})
			for i, c := range config.SearchPaths() {
				used := ""
				if c.Path == found {
					used = "*"
				}
				t.AppendRow(table.Row{i + 1, c.Source, c.Path, used})
			}
			t.Render()
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists, use --force to overwrite", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}
