// Package sym defines canonical symbols for bkingest segments.
// These symbols are stable across CLI output and structured logs.
package sym

// Segment glyphs.
const (
	AM      = "≡" // am: configuration and system settings
	IX      = "⨳" // ix: document ingestion (jobs)
	Replica = "⧉" // replica flag bookkeeping
	Spool   = "꩜" // spool directory processing
	DB      = "⊔" // database/storage layer
	Server  = "⋈" // HTTP document receiver
)

var names = map[string]string{
	AM:      "am",
	IX:      "ix",
	Replica: "replica",
	Spool:   "spool",
	DB:      "db",
	Server:  "serve",
}

// Name returns the short command name of a glyph, or "" if unknown.
func Name(glyph string) string {
	return names[glyph]
}
