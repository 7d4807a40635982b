package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"toposync/internal/codec"
	"toposync/internal/domain"
	"toposync/internal/orchestrator"
)

type runFlags struct {
	mode        string
	groups      []int64
	dataSources []int64
	providers   []string
	format      string
	out         string
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synchronization in the foreground and print its report",
		Example: `  toposync run --group 1 --group 2
  toposync run --group 1 --provider ip --provider bgp
  toposync run --mode supervised --provider ip --data-source 4 --out plan.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()
			return runOnce(cmd.Context(), a, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.mode, "mode", string(orchestrator.ModeAutomated), "automated or supervised")
	cmd.Flags().Int64SliceVar(&f.groups, "group", nil, "sync group ID, repeatable, runs in order")
	cmd.Flags().Int64SliceVar(&f.dataSources, "data-source", nil, "data source ID to run as one ad hoc group")
	cmd.Flags().StringSliceVar(&f.providers, "provider", nil,
		"provider to run over every group, repeatable, runs in order (default each group's own; the first is the ad hoc group's)")
	cmd.Flags().StringVar(&f.format, "format", "", "report format: table, json or yaml (default from --out, else table)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write the report to a file")
	return cmd
}

func runOnce(ctx context.Context, a *app, f runFlags, stdout io.Writer) error {
	groups, err := collectGroups(ctx, a, f)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return fmt.Errorf("nothing to run: pass --group or --data-source: %w", domain.ErrInvalidArgument)
	}

	var report *codec.Report
	switch orchestrator.Mode(f.mode) {
	case orchestrator.ModeAutomated:
		results, err := a.orch.RunAutomated(ctx, groups, f.providers...)
		if err != nil {
			return err
		}
		report = codec.NewReport(f.mode, results, nil)
	case orchestrator.ModeSupervised:
		findings, err := a.orch.RunSupervised(ctx, groups, f.providers...)
		if err != nil {
			return err
		}
		report = codec.NewReport(f.mode, nil, findings)
	default:
		return fmt.Errorf("mode %q: %w", f.mode, domain.ErrInvalidArgument)
	}
	report.Provider = commonProvider(groups, f.providers)

	return writeReport(report, f.format, f.out, stdout)
}

func collectGroups(ctx context.Context, a *app, f runFlags) ([]*domain.SynchronizationGroup, error) {
	groups := make([]*domain.SynchronizationGroup, 0, len(f.groups)+1)
	for _, id := range f.groups {
		g, err := a.repo.GetSyncGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if len(f.dataSources) == 0 {
		return groups, nil
	}

	if len(f.providers) == 0 {
		return nil, fmt.Errorf("--data-source needs --provider: %w", domain.ErrInvalidArgument)
	}
	if _, err := a.providers.Get(f.providers[0]); err != nil {
		return nil, fmt.Errorf("--provider: %w", err)
	}
	cfgs := make([]*domain.DataSourceConfiguration, 0, len(f.dataSources))
	for _, id := range f.dataSources {
		cfg, err := a.repo.GetDataSourceConfiguration(ctx, id)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, cfg)
	}
	return append(groups, domain.NewAdHocGroup(f.providers[0], cfgs...)), nil
}

// commonProvider names the provider when the whole run used only one
func commonProvider(groups []*domain.SynchronizationGroup, providerIDs []string) string {
	switch {
	case len(providerIDs) == 1:
		return providerIDs[0]
	case len(providerIDs) > 1:
		return ""
	}
	if len(groups) == 0 {
		return ""
	}
	id := groups[0].ProviderID
	for _, g := range groups[1:] {
		if g.ProviderID != id {
			return ""
		}
	}
	return id
}

// formatFor picks an explicit format, else the file extension
func formatFor(format, path string) string {
	if format != "" {
		return format
	}
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

func writeReport(report *codec.Report, format, out string, stdout io.Writer) error {
	exp, err := codec.ExporterFor(formatFor(format, out))
	if err != nil {
		return err
	}
	if out == "" {
		return exp.Export(report, stdout)
	}

	file, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := exp.Export(report, file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Report written to %s (%s)\n", out, summaryLine(report.Summary))
	return nil
}

func summaryLine(s codec.Summary) string {
	parts := make([]string, 0, len(s))
	for _, sev := range s.Severities() {
		parts = append(parts, fmt.Sprintf("%s: %d", sev, s[sev]))
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, ", ")
}

func newFinalizeCmd() *cobra.Command {
	var plan, providerID, format string
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Apply the approved findings of a supervised report",
		Long: `finalize reads a report written by "run --mode supervised". Findings
marked SKIP are passed over; every other finding is applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := readReport(plan)
			if err != nil {
				return err
			}
			if providerID == "" {
				providerID = report.Provider
			}
			if providerID == "" {
				return fmt.Errorf("report names no single provider, pass --provider: %w", domain.ErrInvalidArgument)
			}

			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.orch.Finalize(cmd.Context(), providerID, report.Actions())
			if err != nil {
				return err
			}
			out := codec.NewReport("finalize", results, nil)
			out.Provider = providerID
			return writeReport(out, format, "", cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "supervised report (json or yaml)")
	cmd.Flags().StringVar(&providerID, "provider", "", "provider to finalize with (default from the report)")
	cmd.Flags().StringVar(&format, "format", "table", "output format")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func readReport(path string) (*codec.Report, error) {
	imp, err := codec.ImporterFor(formatFor("", path))
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer file.Close()
	return imp.Parse(file)
}
