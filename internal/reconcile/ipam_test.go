package reconcile

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toposync/internal/domain"
	"toposync/internal/repository/sqlite"
)

func TestSubnetKey(t *testing.T) {
	tests := []struct {
		addr    string
		want    string
		wantErr bool
	}{
		{addr: "10.0.0.5", want: "10.0.0"},
		{addr: "192.168.1.255", want: "192.168.1"},
		{addr: "0.0.0.0", want: "0.0.0"},
		{addr: "2001:db8::1", wantErr: true},
		{addr: "10.0.0", wantErr: true},
		{addr: "bogus", wantErr: true},
		{addr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got, err := SubnetKey(tt.addr)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want+".0/24", SubnetName(got))
		})
	}
}

func newTestSession(t *testing.T, w *world, device domain.ObjectLight) *session {
	t.Helper()
	s, err := newSession(context.Background(), w.store, configFor(1, device), zerolog.Nop())
	require.NoError(t, err)
	require.True(t, s.loadSnapshot(context.Background()))
	return s
}

func TestEnsureAddressDerivesSubnet(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	s := newTestSession(t, w, w.edge)

	ip, ok := s.ensureAddress(ctx, "10.1.2.5", "")
	require.True(t, ok)
	assert.Equal(t, "10.1.2.5", ip.Name)
	assert.Equal(t, []string{domain.ClassSubnetIPv4, domain.ClassIPAddress}, w.store.created)
	assert.Equal(t, []string{"New Subnet", "Added IP address to Subnet"}, titles(s.res.List(), domain.SeveritySuccess))

	subnetRef, ok := s.snap.Subnet("10.1.2.0/24")
	require.True(t, ok)
	subnet, err := w.repo.GetObject(ctx, subnetRef.ClassName, subnetRef.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.0", subnet.Attr(domain.AttrNetworkIP))
	assert.Equal(t, "10.1.2.255", subnet.Attr(domain.AttrBroadcastIP))
	assert.Equal(t, "254", subnet.Attr(domain.AttrHosts))

	stored, err := w.repo.GetObject(ctx, ip.ClassName, ip.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultMask, stored.Attr(domain.AttrMask))

	// same address, same mask: nothing to do
	w.store.reset()
	again, ok := s.ensureAddress(ctx, "10.1.2.5", DefaultMask)
	require.True(t, ok)
	assert.Equal(t, ip.ID, again.ID)
	assert.Zero(t, w.store.mutations())

	// a second address in the same /24 reuses the subnet
	_, ok = s.ensureAddress(ctx, "10.1.2.6", "")
	require.True(t, ok)
	assert.Equal(t, []string{domain.ClassIPAddress}, w.store.created)
}

func TestEnsureAddressUpdatesMask(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	s := newTestSession(t, w, w.edge)

	ip, ok := s.ensureAddress(ctx, "10.0.0.1", "255.255.255.128")
	require.True(t, ok)
	assert.Empty(t, w.store.created)
	assert.Equal(t, 1, w.store.updates)

	results := s.res.List()
	require.Len(t, results, 1)
	assert.Equal(t, "Updating the netmask for IP address 10.0.0.1 [IPAddress]", results[0].Title)
	assert.Equal(t, "From: 255.255.255.0 to: 255.255.255.128", results[0].Message)

	stored, err := w.repo.GetObject(ctx, ip.ClassName, ip.ID)
	require.NoError(t, err)
	assert.Equal(t, "255.255.255.128", stored.Attr(domain.AttrMask))
}

func TestEnsureAddressWithoutRootPool(t *testing.T) {
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	ctx := context.Background()

	routerID, err := repo.CreateObject(ctx, domain.ClassRouter, "", "", map[string]string{domain.AttrName: "lonely"})
	require.NoError(t, err)
	store := &countingStore{Repository: repo}
	router := domain.ObjectLight{ClassName: domain.ClassRouter, ID: routerID, Name: "lonely"}
	s := newTestSession(t, &world{repo: repo, store: store}, router)

	_, ok := s.ensureAddress(ctx, "10.1.2.5", "")
	assert.False(t, ok)

	results := s.res.List()
	require.Len(t, results, 1)
	assert.Equal(t, domain.SeverityError, results[0].Severity)
	assert.Equal(t, "10.1.2.0/24 [Subnet] can not be created", results[0].Title)
	assert.Zero(t, store.mutations())
}

func TestEnsureAddressRejectsIPv6(t *testing.T) {
	w := newWorld(t)
	s := newTestSession(t, w, w.edge)

	_, ok := s.ensureAddress(context.Background(), "2001:db8::1", "")
	assert.False(t, ok)
	assert.Equal(t, 1, domain.CountSeverity(s.res.List(), domain.SeverityError))
	assert.Zero(t, w.store.mutations())
}
