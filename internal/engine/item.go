// Package engine implements the reconciliation core: date resolution,
// identity correlation, event materialization, and the create-or-patch
// driver that keeps one calendar event per dated tracker item.
package engine

// Kind distinguishes item categories in correlation metadata.
type Kind string

const (
	KindIssue   Kind = "issue"
	KindProject Kind = "project"
)

// Relation is a lightweight reference to another tracker record.
type Relation struct {
	ID    string
	Title string
	URL   string
}

// Container is the project/initiative an issue belongs to.
type Container struct {
	ID          string
	Name        string
	Description string
	URL         string
}

// Label is a tracker label, color optional.
type Label struct {
	Name  string
	Color string
}

// Item is one normalized tracker record. ID is the correlation key: assigned
// by the source system, globally unique, and stable across runs.
type Item struct {
	ID          string
	Kind        Kind
	Title       string
	Description string
	URL         string

	// Date-bearing fields in resolution priority order, kept as delivered
	// by the source: an RFC3339 timestamp or a bare 2006-01-02 date. An
	// item with all five empty is out of scope for the run.
	DueDate             string
	ContainerTargetDate string
	CompletedAt         string
	StartedAt           string
	CreatedAt           string

	Container *Container
	Parent    *Relation
	Children  []Relation
	Labels    []Label
}
