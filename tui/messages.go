package tui

import (
	"github.com/tomyedwab/wifigrid/database"
	"github.com/tomyedwab/wifigrid/state"
)

// resultsWatchMsg is sent once the ranked results live query is running.
type resultsWatchMsg struct {
	query *database.LiveQuery[state.TestResult]
}

// networksWatchMsg is sent once the selected networks live query is running.
type networksWatchMsg struct {
	query *database.LiveQuery[state.SelectedNetwork]
}

// ResultsSnapshotMsg carries a fresh snapshot of the ranked results.
type ResultsSnapshotMsg struct {
	Results []state.TestResult
}

// NetworksSnapshotMsg carries a fresh snapshot of the selected networks.
type NetworksSnapshotMsg struct {
	Networks []state.SelectedNetwork
}

// LiveQueryErrorMsg is sent when a live query could not start or ended with
// an error.
type LiveQueryErrorMsg struct {
	Err error
}
