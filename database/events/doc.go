package events

// Package events tracks which tables have changed. Writers notify the tracker
// after a transaction commits; live queries subscribe to the tables they read
// from and re-run when any of them is invalidated. Each table also carries a
// monotonically increasing version so that remote clients can long-poll for
// changes they have not seen yet.
