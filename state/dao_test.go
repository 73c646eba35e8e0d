package state

import (
	"context"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/tomyedwab/wifigrid/database"
)

func setupTestDB(t *testing.T) *WifiDatabase {
	t.Helper()
	wdb, err := Open(context.Background(), database.Config{Path: path.Join(t.TempDir(), "wifi.db")})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() {
		wdb.Close()
	})
	return wdb
}

func strPtr(s string) *string {
	return &s
}

func sampleResult(ssid string, timestamp int64) TestResult {
	return TestResult{
		Ssid:              ssid,
		Timestamp:         timestamp,
		DownloadMbps:      50.0,
		UploadMbps:        12.5,
		LatencyMs:         18,
		JitterMs:          3,
		PacketLossPercent: 0,
		Rssi:              -55,
		Frequency:         5180,
		LinkSpeed:         866,
		Bssid:             "aa:bb:cc:dd:ee:ff",
		GatewayIp:         "192.168.1.1",
		ReliabilityScore:  92,
		QualityLabel:      "Excellent",
	}
}

func TestOpenValidatesWifiSchema(t *testing.T) {
	wdb := setupTestDB(t)
	for _, table := range WifiSchema.Tables {
		found, err := database.ReadTableInfo(context.Background(), wdb.GetDB(), table.Name)
		if err != nil {
			t.Fatalf("ReadTableInfo(%s) failed: %v", table.Name, err)
		}
		if found.Fingerprint() != table.Info().Fingerprint() {
			t.Errorf("Table %s does not match its definition:\n%s\n%s", table.Name, table.Info(), found)
		}
	}
	if wdb.Dao() != wdb.Dao() {
		t.Error("Dao should be constructed once")
	}
}

func TestOpenRecreatesOlderVersion(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "old.db")
	wdb, err := Open(context.Background(), database.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := wdb.Dao().InsertVault(context.Background(), VaultEntry{Ssid: "home"}); err != nil {
		t.Fatalf("InsertVault failed: %v", err)
	}
	wdb.GetDB().MustExec("PRAGMA user_version = 2")
	wdb.Close()

	wdb, err = Open(context.Background(), database.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("Reopen returned error: %v", err)
	}
	defer wdb.Close()

	entries, err := wdb.Dao().GetVaultSnapshot(context.Background())
	if err != nil {
		t.Fatalf("GetVaultSnapshot failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected tables to be recreated empty, got %v", entries)
	}
}

func TestSelectedNetworkUpsert(t *testing.T) {
	dao := setupTestDB(t).Dao()
	ctx := context.Background()

	if err := dao.InsertSelected(ctx, SelectedNetwork{Ssid: "home", Password: strPtr("one"), IsEnabled: true}); err != nil {
		t.Fatalf("InsertSelected failed: %v", err)
	}
	if err := dao.InsertSelected(ctx, SelectedNetwork{Ssid: "home", Password: strPtr("two"), IsEnabled: false}); err != nil {
		t.Fatalf("InsertSelected failed: %v", err)
	}

	networks, err := dao.GetSelectedNetworksSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetSelectedNetworksSnapshot failed: %v", err)
	}
	if len(networks) != 1 {
		t.Fatalf("Expected 1 network, got %d", len(networks))
	}
	got := networks[0]
	if got.Ssid != "home" || got.Password == nil || *got.Password != "two" || got.IsEnabled {
		t.Errorf("Expected latest payload, got %+v", got)
	}
}

func TestRemoveSelected(t *testing.T) {
	dao := setupTestDB(t).Dao()
	ctx := context.Background()

	if err := dao.InsertSelected(ctx, SelectedNetwork{Ssid: "home", IsEnabled: true}); err != nil {
		t.Fatalf("InsertSelected failed: %v", err)
	}
	if err := dao.InsertSelected(ctx, SelectedNetwork{Ssid: "office", IsEnabled: true}); err != nil {
		t.Fatalf("InsertSelected failed: %v", err)
	}
	if err := dao.RemoveSelected(ctx, "home"); err != nil {
		t.Fatalf("RemoveSelected failed: %v", err)
	}

	networks, err := dao.GetSelectedNetworksSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetSelectedNetworksSnapshot failed: %v", err)
	}
	if len(networks) != 1 || networks[0].Ssid != "office" {
		t.Errorf("Expected only office to remain, got %+v", networks)
	}
	if networks[0].Password != nil {
		t.Errorf("Expected NULL password, got %q", *networks[0].Password)
	}
}

func TestDeleteMissingIsNoop(t *testing.T) {
	wdb := setupTestDB(t)
	dao := wdb.Dao()
	ctx := context.Background()

	if err := dao.InsertVault(ctx, VaultEntry{Ssid: "home", Password: strPtr("abc")}); err != nil {
		t.Fatalf("InsertVault failed: %v", err)
	}
	before := wdb.Tracker().Versions()

	if err := dao.RemoveSelected(ctx, "nowhere"); err != nil {
		t.Errorf("RemoveSelected of missing ssid returned error: %v", err)
	}
	if err := dao.DeleteVault(ctx, "nowhere"); err != nil {
		t.Errorf("DeleteVault of missing ssid returned error: %v", err)
	}

	after := wdb.Tracker().Versions()
	for table, version := range before {
		if after[table] != version {
			t.Errorf("Table %s was invalidated by a no-op delete", table)
		}
	}
	entries, err := dao.GetVaultSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetVaultSnapshot failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected vault to be unchanged, got %+v", entries)
	}
}

func TestInsertResultAssignsID(t *testing.T) {
	dao := setupTestDB(t).Dao()
	ctx := context.Background()

	id, err := dao.InsertResult(ctx, sampleResult("home", 1000))
	if err != nil {
		t.Fatalf("InsertResult failed: %v", err)
	}
	if id <= 0 {
		t.Fatalf("Expected positive id, got %d", id)
	}

	duplicate := sampleResult("other", 2000)
	duplicate.ID = id
	_, err = dao.InsertResult(ctx, duplicate)
	var conflict *database.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ConflictError, got %v", err)
	}
	if conflict.Key != id {
		t.Errorf("Expected conflict on id %d, got %v", id, conflict.Key)
	}

	results, err := dao.GetResultsForSsid(ctx, "home", 10)
	if err != nil {
		t.Fatalf("GetResultsForSsid failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	want := sampleResult("home", 1000)
	want.ID = id
	if results[0] != want {
		t.Errorf("Stored row changed:\n got %+v\nwant %+v", results[0], want)
	}
	if others, _ := dao.GetResultsForSsid(ctx, "other", 10); len(others) != 0 {
		t.Errorf("Conflicting insert should not have written, got %+v", others)
	}
}

func TestInsertResultWithExplicitID(t *testing.T) {
	dao := setupTestDB(t).Dao()
	result := sampleResult("home", 1000)
	result.ID = 77

	id, err := dao.InsertResult(context.Background(), result)
	if err != nil {
		t.Fatalf("InsertResult failed: %v", err)
	}
	if id != 77 {
		t.Errorf("Expected id 77, got %d", id)
	}
}

func TestResultsRankedByTimestamp(t *testing.T) {
	dao := setupTestDB(t).Dao()
	ctx := context.Background()

	for _, ts := range []int64{3000, 1000, 5000, 2000, 4000} {
		if _, err := dao.InsertResult(ctx, sampleResult("home", ts)); err != nil {
			t.Fatalf("InsertResult failed: %v", err)
		}
	}
	if _, err := dao.InsertResult(ctx, sampleResult("office", 6000)); err != nil {
		t.Fatalf("InsertResult failed: %v", err)
	}

	testCases := []struct {
		name     string
		limit    int
		expected []int64
	}{
		{"all", 10, []int64{5000, 4000, 3000, 2000, 1000}},
		{"limited", 2, []int64{5000, 4000}},
		{"zero", 0, []int64{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			results, err := dao.GetResultsForSsid(ctx, "home", tc.limit)
			if err != nil {
				t.Fatalf("GetResultsForSsid failed: %v", err)
			}
			if len(results) != len(tc.expected) {
				t.Fatalf("Expected %d results, got %d", len(tc.expected), len(results))
			}
			for i, r := range results {
				if r.Timestamp != tc.expected[i] {
					t.Errorf("Result %d: expected timestamp %d, got %d", i, tc.expected[i], r.Timestamp)
				}
			}
		})
	}

	q, err := dao.GetRankedResults(ctx)
	if err != nil {
		t.Fatalf("GetRankedResults failed: %v", err)
	}
	defer q.Close()
	ranked := <-q.Updates()
	if len(ranked) != 6 || ranked[0].Ssid != "office" {
		t.Fatalf("Expected 6 results led by office, got %+v", ranked)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Timestamp > ranked[i-1].Timestamp {
			t.Errorf("Results out of order at %d: %d after %d", i, ranked[i].Timestamp, ranked[i-1].Timestamp)
		}
	}
}

func TestVaultPasswordCollapsesNull(t *testing.T) {
	dao := setupTestDB(t).Dao()
	ctx := context.Background()

	if err := dao.InsertVault(ctx, VaultEntry{Ssid: "home", Password: strPtr("abc")}); err != nil {
		t.Fatalf("InsertVault failed: %v", err)
	}
	password, ok, err := dao.GetPasswordFromVault(ctx, "home")
	if err != nil || !ok || password != "abc" {
		t.Fatalf("Expected abc, got %q %v %v", password, ok, err)
	}

	if err := dao.InsertVault(ctx, VaultEntry{Ssid: "home", Password: nil}); err != nil {
		t.Fatalf("InsertVault failed: %v", err)
	}
	entries, err := dao.GetVaultSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetVaultSnapshot failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Ssid != "home" || entries[0].Password != nil {
		t.Fatalf("Expected one home entry without password, got %+v", entries)
	}

	for _, ssid := range []string{"home", "missing"} {
		password, ok, err := dao.GetPasswordFromVault(ctx, ssid)
		if err != nil {
			t.Errorf("GetPasswordFromVault(%s) returned error: %v", ssid, err)
		}
		if ok || password != "" {
			t.Errorf("GetPasswordFromVault(%s): expected absent, got %q", ssid, password)
		}
	}

	entry, err := dao.GetVaultEntry(ctx, "home")
	if err != nil || entry == nil || entry.Password != nil {
		t.Errorf("Expected entry without password, got %+v %v", entry, err)
	}
	entry, err = dao.GetVaultEntry(ctx, "missing")
	if err != nil || entry != nil {
		t.Errorf("Expected no entry, got %+v %v", entry, err)
	}
}

func TestLiveQueriesFollowWrites(t *testing.T) {
	dao := setupTestDB(t).Dao()
	ctx := context.Background()

	networks, err := dao.GetSelectedNetworks(ctx)
	if err != nil {
		t.Fatalf("GetSelectedNetworks failed: %v", err)
	}
	defer networks.Close()
	vault, err := dao.GetVaultNetworks(ctx)
	if err != nil {
		t.Fatalf("GetVaultNetworks failed: %v", err)
	}
	defer vault.Close()

	if initial := <-networks.Updates(); len(initial) != 0 {
		t.Errorf("Expected no networks, got %+v", initial)
	}
	if initial := <-vault.Updates(); len(initial) != 0 {
		t.Errorf("Expected empty vault, got %+v", initial)
	}

	if err := dao.InsertVault(ctx, VaultEntry{Ssid: "home", Password: strPtr("abc")}); err != nil {
		t.Fatalf("InsertVault failed: %v", err)
	}

	select {
	case snapshot := <-vault.Updates():
		if len(snapshot) != 1 || snapshot[0].Ssid != "home" {
			t.Errorf("Expected vault snapshot with home, got %+v", snapshot)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for vault snapshot")
	}

	select {
	case snapshot := <-networks.Updates():
		t.Errorf("Vault write produced a networks snapshot: %+v", snapshot)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSnapshotCancelled(t *testing.T) {
	dao := setupTestDB(t).Dao()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := dao.GetVaultSnapshot(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestClearAllTablesEmptiesWifiTables(t *testing.T) {
	wdb := setupTestDB(t)
	dao := wdb.Dao()
	ctx := context.Background()

	if err := dao.InsertSelected(ctx, SelectedNetwork{Ssid: "home", IsEnabled: true}); err != nil {
		t.Fatalf("InsertSelected failed: %v", err)
	}
	if _, err := dao.InsertResult(ctx, sampleResult("home", 1000)); err != nil {
		t.Fatalf("InsertResult failed: %v", err)
	}
	if err := wdb.ClearAllTables(ctx); err != nil {
		t.Fatalf("ClearAllTables failed: %v", err)
	}

	results, err := dao.GetResultsForSsid(ctx, "home", 10)
	if err != nil {
		t.Fatalf("GetResultsForSsid failed: %v", err)
	}
	networks, err := dao.GetSelectedNetworksSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetSelectedNetworksSnapshot failed: %v", err)
	}
	if len(results) != 0 || len(networks) != 0 {
		t.Errorf("Expected empty tables, got %d results and %d networks", len(results), len(networks))
	}
}
