package state

import (
	"context"

	"github.com/tomyedwab/wifigrid/database"
)

const (
	SelectedNetworksTable = "selected_networks"
	TestResultsTable      = "test_results"
	VaultTable            = "wifi_vault"
)

const createSelectedNetworksSql = "CREATE TABLE IF NOT EXISTS `selected_networks` (`ssid` TEXT NOT NULL, `password` TEXT, `isEnabled` INTEGER NOT NULL, PRIMARY KEY(`ssid`))"

const createTestResultsSql = "CREATE TABLE IF NOT EXISTS `test_results` (`id` INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, " +
	"`ssid` TEXT NOT NULL, `timestamp` INTEGER NOT NULL, `downloadMbps` REAL NOT NULL, `uploadMbps` REAL NOT NULL, " +
	"`latencyMs` INTEGER NOT NULL, `jitterMs` INTEGER NOT NULL, `packetLossPercent` INTEGER NOT NULL, " +
	"`rssi` INTEGER NOT NULL, `frequency` INTEGER NOT NULL, `linkSpeed` INTEGER NOT NULL, `bssid` TEXT NOT NULL, " +
	"`gatewayIp` TEXT NOT NULL, `reliabilityScore` INTEGER NOT NULL, `qualityLabel` TEXT NOT NULL)"

const createVaultSql = "CREATE TABLE IF NOT EXISTS `wifi_vault` (`ssid` TEXT NOT NULL, `password` TEXT, PRIMARY KEY(`ssid`))"

// WifiSchema is revision 3 of the wifi test database. The identity hash
// matches databases exported from the Android client.
var WifiSchema = &database.Schema{
	Version:      3,
	IdentityHash: "4ae59bc76916dd2eab4cbc1d340f53cc",
	VersionToken: "ae1dfe4c660cc44b758f0391b83e3cac",
	Tables: []database.Table{
		{
			Name:      SelectedNetworksTable,
			CreateSql: createSelectedNetworksSql,
			Columns: []database.Column{
				{Name: "ssid", Type: "TEXT", NotNull: true, PrimaryKeyPosition: 1},
				{Name: "password", Type: "TEXT"},
				{Name: "isEnabled", Type: "INTEGER", NotNull: true},
			},
		},
		{
			Name:      TestResultsTable,
			CreateSql: createTestResultsSql,
			Columns: []database.Column{
				{Name: "id", Type: "INTEGER", NotNull: true, PrimaryKeyPosition: 1},
				{Name: "ssid", Type: "TEXT", NotNull: true},
				{Name: "timestamp", Type: "INTEGER", NotNull: true},
				{Name: "downloadMbps", Type: "REAL", NotNull: true},
				{Name: "uploadMbps", Type: "REAL", NotNull: true},
				{Name: "latencyMs", Type: "INTEGER", NotNull: true},
				{Name: "jitterMs", Type: "INTEGER", NotNull: true},
				{Name: "packetLossPercent", Type: "INTEGER", NotNull: true},
				{Name: "rssi", Type: "INTEGER", NotNull: true},
				{Name: "frequency", Type: "INTEGER", NotNull: true},
				{Name: "linkSpeed", Type: "INTEGER", NotNull: true},
				{Name: "bssid", Type: "TEXT", NotNull: true},
				{Name: "gatewayIp", Type: "TEXT", NotNull: true},
				{Name: "reliabilityScore", Type: "INTEGER", NotNull: true},
				{Name: "qualityLabel", Type: "TEXT", NotNull: true},
			},
		},
		{
			Name:      VaultTable,
			CreateSql: createVaultSql,
			Columns: []database.Column{
				{Name: "ssid", Type: "TEXT", NotNull: true, PrimaryKeyPosition: 1},
				{Name: "password", Type: "TEXT"},
			},
		},
	},
}

// WifiDatabase is the wifi test database together with its single Dao.
type WifiDatabase struct {
	*database.Database
	dao *Dao
}

// Open opens the wifi test database. A database written with a different
// schema version is dropped and recreated.
func Open(ctx context.Context, config database.Config) (*WifiDatabase, error) {
	config.FallbackToDestructiveMigration = true
	db, err := database.Open(ctx, config, WifiSchema)
	if err != nil {
		return nil, err
	}
	return &WifiDatabase{Database: db, dao: newDao(db)}, nil
}

func (w *WifiDatabase) Dao() *Dao {
	return w.dao
}
