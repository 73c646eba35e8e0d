// Package state holds the wifi test tables and the data access object that
// reads and writes them.
//
// A WifiDatabase is opened once at startup with Open and handed to whatever
// needs it. All reads and writes go through the Dao returned by
// WifiDatabase.Dao:
//
//	wdb, err := state.Open(ctx, database.Config{Path: "/var/lib/wifigrid/wifi.db"})
//	if err != nil {
//		return err
//	}
//	defer wdb.Close()
//
//	id, err := wdb.Dao().InsertResult(ctx, state.TestResult{Ssid: "home", Timestamp: 1000})
//
// Live queries such as GetRankedResults deliver a new snapshot after every
// committed write to their table.
package state
