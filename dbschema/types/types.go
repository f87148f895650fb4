package types

// DBInfo describes an open database connection
type DBInfo struct {
	URL     string `json:"url"`     // Connection URL with the password masked
	Dialect string `json:"dialect"` // One of the platform dialect constants
	Driver  string `json:"driver"`  // database/sql driver name used to open it
	Version string `json:"version"` // Server version, when it could be read
}

// Result is the backend independent outcome of a write statement
type Result struct {
	LastInsertID int64 `json:"last_insert_id"` // Zero for statements that insert nothing
	RowsAffected int64 `json:"rows_affected"`
}
