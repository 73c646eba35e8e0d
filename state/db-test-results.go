package state

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/tomyedwab/wifigrid/database"
)

// TestResult is one completed measurement of a network. An ID of zero asks
// the database to assign one.
type TestResult struct {
	ID                int64   `json:"id"`
	Ssid              string  `json:"ssid"`
	Timestamp         int64   `json:"timestamp"`
	DownloadMbps      float64 `json:"downloadMbps"`
	UploadMbps        float64 `json:"uploadMbps"`
	LatencyMs         int64   `json:"latencyMs"`
	JitterMs          int64   `json:"jitterMs"`
	PacketLossPercent int     `json:"packetLossPercent"`
	Rssi              int     `json:"rssi"`
	Frequency         int     `json:"frequency"`
	LinkSpeed         int     `json:"linkSpeed"`
	Bssid             string  `json:"bssid"`
	GatewayIp         string  `json:"gatewayIp"`
	ReliabilityScore  int     `json:"reliabilityScore"`
	QualityLabel      string  `json:"qualityLabel"`
}

const insertResultSql = "INSERT OR ABORT INTO `test_results` (`id`,`ssid`,`timestamp`,`downloadMbps`,`uploadMbps`," +
	"`latencyMs`,`jitterMs`,`packetLossPercent`,`rssi`,`frequency`,`linkSpeed`,`bssid`,`gatewayIp`," +
	"`reliabilityScore`,`qualityLabel`) VALUES (nullif(?, 0), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

const resultColumns = "id, ssid, timestamp, downloadMbps, uploadMbps, latencyMs, jitterMs, packetLossPercent, " +
	"rssi, frequency, linkSpeed, bssid, gatewayIp, reliabilityScore, qualityLabel"

const selectRankedResultsSql = "SELECT " + resultColumns + " FROM test_results ORDER BY timestamp DESC"
const selectResultsForSsidSql = "SELECT " + resultColumns + " FROM test_results WHERE ssid = ? ORDER BY timestamp DESC LIMIT ?"

func scanTestResult(rows *sqlx.Rows) (TestResult, error) {
	var r TestResult
	err := rows.Scan(&r.ID, &r.Ssid, &r.Timestamp, &r.DownloadMbps, &r.UploadMbps, &r.LatencyMs, &r.JitterMs,
		&r.PacketLossPercent, &r.Rssi, &r.Frequency, &r.LinkSpeed, &r.Bssid, &r.GatewayIp,
		&r.ReliabilityScore, &r.QualityLabel)
	return r, err
}

// InsertResult stores a test result and returns its id. Inserting a result
// whose ID is already taken fails with a *database.ConflictError and leaves
// the existing row untouched.
func (d *Dao) InsertResult(ctx context.Context, result TestResult) (int64, error) {
	var id int64
	err := d.db.WithTransaction(ctx, func(tx *database.Tx) (bool, error) {
		stmt, err := tx.Stmt(insertResultSql)
		if err != nil {
			return false, err
		}
		res, err := stmt.ExecContext(ctx,
			result.ID, result.Ssid, result.Timestamp, result.DownloadMbps, result.UploadMbps,
			result.LatencyMs, result.JitterMs, result.PacketLossPercent, result.Rssi, result.Frequency,
			result.LinkSpeed, result.Bssid, result.GatewayIp, result.ReliabilityScore, result.QualityLabel)
		if err != nil {
			if result.ID != 0 && database.IsConstraintViolation(err) {
				return false, &database.ConflictError{Table: TestResultsTable, Key: result.ID, Err: err}
			}
			return false, err
		}
		id, err = res.LastInsertId()
		return true, err
	}, TestResultsTable)
	if err != nil {
		return 0, fmt.Errorf("failed to insert test result for %s: %w", result.Ssid, err)
	}
	return id, nil
}

func (d *Dao) rankedResults(ctx context.Context) ([]TestResult, error) {
	return selectAll(ctx, d.db.GetDB(), scanTestResult, selectRankedResultsSql)
}

// GetRankedResults watches every test result, most recent first.
func (d *Dao) GetRankedResults(ctx context.Context) (*database.LiveQuery[TestResult], error) {
	return database.Watch(ctx, d.db, d.rankedResults, TestResultsTable)
}

func (d *Dao) GetRankedResultsSnapshot(ctx context.Context) ([]TestResult, error) {
	return d.rankedResults(ctx)
}

// GetResultsForSsid returns up to limit of the most recent results for ssid.
func (d *Dao) GetResultsForSsid(ctx context.Context, ssid string, limit int) ([]TestResult, error) {
	results, err := selectAll(ctx, d.db.GetDB(), scanTestResult, selectResultsForSsidSql, ssid, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get results for %s: %w", ssid, err)
	}
	return results, nil
}
