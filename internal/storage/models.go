package storage

// CounterRow is one row of rig_counters.
type CounterRow struct {
	ID    string `db:"id" json:"id"`
	Value int64  `db:"value" json:"value"`
}
