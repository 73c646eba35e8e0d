package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/tomyedwab/wifigrid/database"
)

type VaultEntry struct {
	Ssid     string  `json:"ssid"`
	Password *string `json:"password"`
}

const insertVaultSql = "INSERT OR REPLACE INTO `wifi_vault` (`ssid`,`password`) VALUES (?, ?)"
const deleteVaultSql = "DELETE FROM wifi_vault WHERE ssid = ?"
const selectVaultSql = "SELECT ssid, password FROM wifi_vault"
const selectVaultEntrySql = "SELECT ssid, password FROM wifi_vault WHERE ssid = ?"

func scanVaultEntry(rows *sqlx.Rows) (VaultEntry, error) {
	var (
		entry    VaultEntry
		password sql.NullString
	)
	if err := rows.Scan(&entry.Ssid, &password); err != nil {
		return entry, err
	}
	if password.Valid {
		entry.Password = &password.String
	}
	return entry, nil
}

// InsertVault stores the entry, replacing any existing entry for its ssid.
func (d *Dao) InsertVault(ctx context.Context, entry VaultEntry) error {
	err := d.execCached(ctx, VaultTable, insertVaultSql, entry.Ssid, nullableString(entry.Password))
	if err != nil {
		return fmt.Errorf("failed to insert vault entry %s: %w", entry.Ssid, err)
	}
	return nil
}

// DeleteVault deletes the entry for ssid, if there is one.
func (d *Dao) DeleteVault(ctx context.Context, ssid string) error {
	if err := d.execCached(ctx, VaultTable, deleteVaultSql, ssid); err != nil {
		return fmt.Errorf("failed to delete vault entry %s: %w", ssid, err)
	}
	return nil
}

func (d *Dao) vaultEntries(ctx context.Context) ([]VaultEntry, error) {
	return selectAll(ctx, d.db.GetDB(), scanVaultEntry, selectVaultSql)
}

// GetVaultNetworks watches the full vault, in no particular order.
func (d *Dao) GetVaultNetworks(ctx context.Context) (*database.LiveQuery[VaultEntry], error) {
	return database.Watch(ctx, d.db, d.vaultEntries, VaultTable)
}

func (d *Dao) GetVaultSnapshot(ctx context.Context) ([]VaultEntry, error) {
	return d.vaultEntries(ctx)
}

// GetVaultEntry returns the entry for ssid, or nil if there is none. Unlike
// GetPasswordFromVault it tells an entry without a password apart from a
// missing entry.
func (d *Dao) GetVaultEntry(ctx context.Context, ssid string) (*VaultEntry, error) {
	entries, err := selectAll(ctx, d.db.GetDB(), scanVaultEntry, selectVaultEntrySql, ssid)
	if err != nil {
		return nil, fmt.Errorf("failed to get vault entry %s: %w", ssid, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// GetPasswordFromVault returns the stored password for ssid. ok is false both
// when there is no entry and when the entry has no password.
func (d *Dao) GetPasswordFromVault(ctx context.Context, ssid string) (string, bool, error) {
	var password sql.NullString
	err := d.db.GetDB().GetContext(ctx, &password, "SELECT password FROM wifi_vault WHERE ssid = ?", ssid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get password for %s: %w", ssid, err)
	}
	return password.String, password.Valid, nil
}
