package types

// Event represents a typed fact emitted during ledger state transitions. The
// attribute set and field names are the compatibility contract with external
// indexers and must not be reordered or renamed.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
