package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toposync/internal/codec"
	"toposync/internal/domain"
)

func TestFormatFor(t *testing.T) {
	tests := []struct {
		format, path, want string
	}{
		{"json", "plan.yaml", "json"},
		{"", "plan.yaml", "yaml"},
		{"", "out/plan.json", "json"},
		{"", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFor(tt.format, tt.path), "%q %q", tt.format, tt.path)
	}
}

func TestCommonProvider(t *testing.T) {
	bgp := &domain.SynchronizationGroup{ProviderID: "bgp"}
	ip := &domain.SynchronizationGroup{ProviderID: "ip"}

	tests := []struct {
		name      string
		groups    []*domain.SynchronizationGroup
		providers []string
		want      string
	}{
		{"no groups", nil, nil, ""},
		{"shared group provider", []*domain.SynchronizationGroup{bgp, bgp}, nil, "bgp"},
		{"mixed group providers", []*domain.SynchronizationGroup{bgp, ip}, nil, ""},
		{"one explicit provider", []*domain.SynchronizationGroup{bgp, ip}, []string{"ip"}, "ip"},
		{"several explicit providers", []*domain.SynchronizationGroup{bgp}, []string{"ip", "bgp"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, commonProvider(tt.groups, tt.providers))
		})
	}
}

func TestRunProviderFlagIsAList(t *testing.T) {
	cmd := newRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--provider", "ip", "--provider", "bgp", "--group", "1"}))

	got, err := cmd.Flags().GetStringSlice("provider")
	require.NoError(t, err)
	assert.Equal(t, []string{"ip", "bgp"}, got)
}

func TestPlanRoundTrip(t *testing.T) {
	findings := []domain.SyncFinding{
		{DataSourceID: 3, Severity: domain.SeverityWarning, Title: "New address", Action: domain.ActionApply},
		{DataSourceID: 3, Severity: domain.SeverityWarning, Title: "Stale address", Action: domain.ActionSkip},
	}
	report := codec.NewReport("supervised", nil, findings)
	report.Provider = "ip"

	path := filepath.Join(t.TempDir(), "plan.yaml")
	var stdout bytes.Buffer
	require.NoError(t, writeReport(report, "", path, &stdout))
	assert.Contains(t, stdout.String(), path)

	back, err := readReport(path)
	require.NoError(t, err)
	assert.Equal(t, "ip", back.Provider)

	actions := back.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, domain.ActionApply, actions[0].Type)
	assert.Equal(t, domain.ActionSkip, actions[1].Type)
}

func TestReadReportRejectsTable(t *testing.T) {
	_, err := readReport("plan.txt")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
