package mcp

import "time"

// SiloIDInput is the input schema shared by tools that operate on one
// existing silo by ID: silo_delete, silo_stop, silo_wake, silo_rebuild.
type SiloIDInput struct {
	Silo string `json:"silo" jsonschema:"the silo ID to operate on"`
}

// SiloCreateInput defines the input schema for the silo_create tool.
type SiloCreateInput struct {
	Name               string   `json:"name" jsonschema:"human-facing display name for the new silo"`
	Directories        []string `json:"directories" jsonschema:"absolute paths this silo indexes"`
	DBPath             string   `json:"db_path,omitempty" jsonschema:"path to this silo's SQLite database file; auto-derived from name if omitted"`
	ModelID            string   `json:"model_id,omitempty" jsonschema:"embedding model, as provider:model; write-once per silo"`
	IgnorePatterns     []string `json:"ignore_patterns,omitempty" jsonschema:"additional gitignore-syntax exclude patterns"`
	IgnoreFilePatterns []string `json:"ignore_file_patterns,omitempty" jsonschema:"glob patterns matched against file names only"`
}

// SiloUpdateInput defines the input schema for the silo_update tool. A nil
// slice field leaves that attribute unchanged.
type SiloUpdateInput struct {
	Silo               string   `json:"silo" jsonschema:"the silo ID to update"`
	Directories        []string `json:"directories,omitempty" jsonschema:"replacement directory list, if changing"`
	IgnorePatterns     []string `json:"ignore_patterns,omitempty" jsonschema:"replacement ignore patterns, if changing"`
	IgnoreFilePatterns []string `json:"ignore_file_patterns,omitempty" jsonschema:"replacement file-name ignore patterns, if changing"`
}

// SiloRenameInput defines the input schema for the silo_rename tool.
type SiloRenameInput struct {
	Silo string `json:"silo" jsonschema:"the silo ID to rename"`
	Name string `json:"name" jsonschema:"new display name"`
}

// ListSilosInput defines the (empty) input schema for the list_silos tool.
type ListSilosInput struct{}

// SiloStatusOutput mirrors orchestrator.SiloStatus in a JSON-friendly shape.
type SiloStatusOutput struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Directories        []string  `json:"directories"`
	DBPath             string    `json:"db_path"`
	ModelID            string    `json:"model_id,omitempty"`
	IgnorePatterns     []string  `json:"ignore_patterns,omitempty"`
	IgnoreFilePatterns []string  `json:"ignore_file_patterns,omitempty"`
	State              string    `json:"state"`
	IndexedFileCount   int       `json:"indexed_file_count"`
	ChunkCount         int       `json:"chunk_count"`
	LastUpdated        time.Time `json:"last_updated,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
}

// ListSilosOutput defines the output schema for the list_silos tool.
type ListSilosOutput struct {
	Silos []SiloStatusOutput `json:"silos"`
}

// ActivityRecentInput defines the input schema for the activity_recent tool.
type ActivityRecentInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of events, default 50; 0 returns every retained event"`
}

// ActivityEventOutput is one entry in the activity_recent tool's output.
type ActivityEventOutput struct {
	Time   time.Time `json:"time"`
	Silo   string    `json:"silo"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail"`
}

// ActivityRecentOutput defines the output schema for the activity_recent tool.
type ActivityRecentOutput struct {
	Events []ActivityEventOutput `json:"events"`
}

// ServerStatusInput defines the (empty) input schema for the server_status tool.
type ServerStatusInput struct{}

// ServerStatusOutput defines the output schema for the server_status tool.
type ServerStatusOutput struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	SiloCount         int     `json:"silo_count"`
	TotalIndexedFiles int     `json:"total_indexed_files"`
}
