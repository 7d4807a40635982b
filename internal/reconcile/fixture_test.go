package reconcile

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"toposync/internal/collector"
	"toposync/internal/domain"
	"toposync/internal/peeringdb"
	"toposync/internal/repository/sqlite"
)

// countingStore records every mutation that goes through it
type countingStore struct {
	*sqlite.Repository

	created   []string
	updates   int
	relations int
	audits    int
}

func (c *countingStore) CreateObject(ctx context.Context, className, parentClass, parentID string, attrs map[string]string) (string, error) {
	c.created = append(c.created, className)
	return c.Repository.CreateObject(ctx, className, parentClass, parentID, attrs)
}

func (c *countingStore) CreateSpecialObject(ctx context.Context, className, parentClass, parentID string, attrs map[string]string) (string, error) {
	c.created = append(c.created, className)
	return c.Repository.CreateSpecialObject(ctx, className, parentClass, parentID, attrs)
}

func (c *countingStore) CreatePoolItem(ctx context.Context, poolID, className string, attrs map[string]string) (string, error) {
	c.created = append(c.created, className)
	return c.Repository.CreatePoolItem(ctx, poolID, className, attrs)
}

func (c *countingStore) UpdateObject(ctx context.Context, className, id string, attrs map[string]string) error {
	c.updates++
	return c.Repository.UpdateObject(ctx, className, id, attrs)
}

func (c *countingStore) CreateSpecialRelationship(ctx context.Context, aClass, aID, bClass, bID, name string, bidirectional bool) error {
	c.relations++
	return c.Repository.CreateSpecialRelationship(ctx, aClass, aID, bClass, bID, name, bidirectional)
}

func (c *countingStore) CreateActivityLogEntry(ctx context.Context, actor string, activity domain.ActivityType, note string) error {
	c.audits++
	return c.Repository.CreateActivityLogEntry(ctx, actor, activity, note)
}

func (c *countingStore) mutations() int {
	return len(c.created) + c.updates + c.relations
}

func (c *countingStore) reset() {
	c.created = nil
	c.updates, c.relations, c.audits = 0, 0, 0
}

func (c *countingStore) createdOf(className string) int {
	n := 0
	for _, cl := range c.created {
		if cl == className {
			n++
		}
	}
	return n
}

// world is a small inventory: two routers in one city, each with a port
// related to an address of 10.0.0.0/24
type world struct {
	repo  *sqlite.Repository
	store *countingStore

	city     domain.ObjectLight
	edge     domain.ObjectLight
	core     domain.ObjectLight
	edgePort domain.ObjectLight
	corePort domain.ObjectLight
	rootPool string
	subnet   domain.ObjectLight
}

func newWorld(t *testing.T) *world {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	w := &world{repo: repo, store: &countingStore{Repository: repo}}
	ctx := context.Background()

	w.city = w.create(t, domain.ClassCity, domain.ObjectLight{}, "Cali")
	w.edge = w.create(t, domain.ClassRouter, w.city, "edge-1")
	w.core = w.create(t, domain.ClassRouter, w.city, "core-2")
	w.edgePort = w.create(t, domain.ClassElectricalPort, w.edge, "ge-0/0/0")
	w.corePort = w.create(t, domain.ClassElectricalPort, w.core, "ge-0/0/1")

	w.rootPool, err = repo.CreatePool(ctx, "", "IPv4", domain.ClassSubnetIPv4, domain.PoolTypeModuleRoot)
	require.NoError(t, err)
	subnetID, err := repo.CreatePoolItem(ctx, w.rootPool, domain.ClassSubnetIPv4, map[string]string{domain.AttrName: "10.0.0.0/24"})
	require.NoError(t, err)
	w.subnet = domain.ObjectLight{ClassName: domain.ClassSubnetIPv4, ID: subnetID, Name: "10.0.0.0/24"}

	w.relate(t, w.edgePort, w.address(t, w.subnet, "10.0.0.1"))
	w.relate(t, w.corePort, w.address(t, w.subnet, "10.0.0.2"))

	require.NoError(t, repo.SetConfigurationVariable(ctx, DefaultLocalASNVariable, "64500"))
	return w
}

func (w *world) create(t *testing.T, className string, parent domain.ObjectLight, name string) domain.ObjectLight {
	t.Helper()
	id, err := w.repo.CreateObject(context.Background(), className, parent.ClassName, parent.ID,
		map[string]string{domain.AttrName: name})
	require.NoError(t, err)
	return domain.ObjectLight{ClassName: className, ID: id, Name: name}
}

func (w *world) address(t *testing.T, subnet domain.ObjectLight, addr string) domain.ObjectLight {
	t.Helper()
	id, err := w.repo.CreateSpecialObject(context.Background(), domain.ClassIPAddress, subnet.ClassName, subnet.ID,
		map[string]string{domain.AttrName: addr, domain.AttrMask: DefaultMask})
	require.NoError(t, err)
	return domain.ObjectLight{ClassName: domain.ClassIPAddress, ID: id, Name: addr}
}

func (w *world) relate(t *testing.T, port, addr domain.ObjectLight) {
	t.Helper()
	require.NoError(t, w.repo.CreateSpecialRelationship(context.Background(),
		port.ClassName, port.ID, addr.ClassName, addr.ID, domain.RelIPAMHasIPAddress, true))
}

func configFor(id int64, device domain.ObjectLight) *domain.DataSourceConfiguration {
	return &domain.DataSourceConfiguration{
		ID:   id,
		Name: device.Name,
		Parameters: map[string]string{
			domain.ParamDeviceID:    device.ID,
			domain.ParamDeviceClass: device.ClassName,
		},
	}
}

// peer is one bgpTable row: identifier, local address, remote address,
// remote port, remote AS
type peer [5]string

func bgpTables(localAS string, peers ...peer) []domain.TableData {
	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		rows = append(rows, []string{p[2], p[0], p[1], p[2], p[3], p[4]})
	}
	local := [][]string{}
	if localAS != "" {
		local = append(local, []string{"0", localAS})
	}
	return []domain.TableData{
		collector.ToTableData(collector.BGPPeerTable, rows),
		collector.ToTableData(collector.BGPLocalTable, local),
	}
}

// registry answers AS lookups from a map
type registry map[string]string

func (r registry) ASName(_ context.Context, asn string) (string, error) {
	if name, ok := r[asn]; ok {
		return name, nil
	}
	return "", domain.ErrExternalLookup
}

var testRegistry = registry{
	"64500": "Home Net",
	"65001": "Transit One",
	"65002": "Transit Two",
	"65003": "Transit Three",
	"65004": "Transit Four",
	"65010": "Exchange Peer",
}

func (w *world) reconcileBGP(t *testing.T, device domain.ObjectLight, opts Options, tables []domain.TableData) []domain.SyncResult {
	t.Helper()
	r := NewBGPReconciler(w.store, opts, zerolog.Nop())
	return r.Reconcile(context.Background(), configFor(1, device), tables, peeringdb.NewCache(testRegistry))
}

func titles(results []domain.SyncResult, sev domain.Severity) []string {
	var out []string
	for _, r := range results {
		if r.Severity == sev {
			out = append(out, r.Title)
		}
	}
	return out
}
