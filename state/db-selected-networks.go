package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/tomyedwab/wifigrid/database"
)

type SelectedNetwork struct {
	Ssid      string  `json:"ssid"`
	Password  *string `json:"password"`
	IsEnabled bool    `json:"isEnabled"`
}

const insertSelectedSql = "INSERT OR REPLACE INTO `selected_networks` (`ssid`,`password`,`isEnabled`) VALUES (?, ?, ?)"
const removeSelectedSql = "DELETE FROM selected_networks WHERE ssid = ?"
const selectSelectedSql = "SELECT ssid, password, isEnabled FROM selected_networks"

func scanSelectedNetwork(rows *sqlx.Rows) (SelectedNetwork, error) {
	var (
		network  SelectedNetwork
		password sql.NullString
	)
	if err := rows.Scan(&network.Ssid, &password, &network.IsEnabled); err != nil {
		return network, err
	}
	if password.Valid {
		network.Password = &password.String
	}
	return network, nil
}

// InsertSelected adds the network, replacing any existing row for its ssid.
func (d *Dao) InsertSelected(ctx context.Context, network SelectedNetwork) error {
	err := d.execCached(ctx, SelectedNetworksTable, insertSelectedSql,
		network.Ssid, nullableString(network.Password), network.IsEnabled)
	if err != nil {
		return fmt.Errorf("failed to insert selected network %s: %w", network.Ssid, err)
	}
	return nil
}

// RemoveSelected deletes the network with this ssid. Removing a network that
// is not selected does nothing.
func (d *Dao) RemoveSelected(ctx context.Context, ssid string) error {
	if err := d.execCached(ctx, SelectedNetworksTable, removeSelectedSql, ssid); err != nil {
		return fmt.Errorf("failed to remove selected network %s: %w", ssid, err)
	}
	return nil
}

func (d *Dao) selectedNetworks(ctx context.Context) ([]SelectedNetwork, error) {
	return selectAll(ctx, d.db.GetDB(), scanSelectedNetwork, selectSelectedSql)
}

// GetSelectedNetworks watches the full set of selected networks, in no
// particular order.
func (d *Dao) GetSelectedNetworks(ctx context.Context) (*database.LiveQuery[SelectedNetwork], error) {
	return database.Watch(ctx, d.db, d.selectedNetworks, SelectedNetworksTable)
}

func (d *Dao) GetSelectedNetworksSnapshot(ctx context.Context) ([]SelectedNetwork, error) {
	return d.selectedNetworks(ctx)
}
