package state

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// csvHeader matches the export files written by the Android client.
var csvHeader = []string{"Timestamp", "SSID", "BSSID", "RSSI", "Freq", "LinkSpeed", "Gateway", "Mbps", "Latency", "Jitter", "Loss", "Score", "Label"}

const csvTimeFormat = "2006-01-02 15:04:05"

// CsvFileName names an export taken at t, e.g. Wifi_Tests_20250101_120000.csv.
func CsvFileName(t time.Time) string {
	return fmt.Sprintf("Wifi_Tests_%s.csv", t.Format("20060102_150405"))
}

// WriteResultsCsv writes results as CSV, one row per result in the given
// order. Timestamps are rendered in loc, or the local zone if loc is nil.
func WriteResultsCsv(w io.Writer, results []TestResult, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		err := writer.Write([]string{
			time.UnixMilli(r.Timestamp).In(loc).Format(csvTimeFormat),
			r.Ssid,
			r.Bssid,
			strconv.Itoa(r.Rssi),
			strconv.Itoa(r.Frequency),
			strconv.Itoa(r.LinkSpeed),
			r.GatewayIp,
			strconv.FormatFloat(r.DownloadMbps, 'f', -1, 64),
			strconv.FormatInt(r.LatencyMs, 10),
			strconv.FormatInt(r.JitterMs, 10),
			strconv.Itoa(r.PacketLossPercent),
			strconv.Itoa(r.ReliabilityScore),
			r.QualityLabel,
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}
