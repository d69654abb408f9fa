package types

// DefaultListLimit and MaxListLimit bound every unbounded listing
// path (spec §4.2/§4.8 SAFE_LIMIT).
const (
	DefaultListLimit = 100
	MaxListLimit     = 50000
)

// IssueFilter narrows a Repository.List / Search call. Zero-value
// fields are unconstrained.
type IssueFilter struct {
	ProjectID *ID
	Status    *Status
	Priority  *Priority
	Type      *IssueType
	EpicID    *ID
	Assignee  *string
	Label     *string
}

// SortField enumerates the fixed set of columns a listing may sort
// by — never a user-supplied column name (spec §9 "reflection / dynamic
// table access" redesign note).
type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortUpdatedAt SortField = "updated_at"
	SortPriority  SortField = "priority"
	SortStatus    SortField = "status"
)

// SortDirection is ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortPolicy is the sort clause passed to a List call.
type SortPolicy struct {
	Field     SortField
	Direction SortDirection
}

// DefaultSort orders newest first, the common listing default.
var DefaultSort = SortPolicy{Field: SortCreatedAt, Direction: SortDesc}

// ListOptions bounds and orders a repository listing.
type ListOptions struct {
	Sort   SortPolicy
	Limit  int
	Offset int
}

// Normalize clamps Limit into (0, MaxListLimit] and fills in a default
// sort when unset, returning the adjusted options.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Sort.Field == "" {
		o.Sort = DefaultSort
	}
	return o
}

// TreeNode is one entry in a dependency tree/graph traversal.
type TreeNode struct {
	Issue
	Depth     int
	CycleStop bool // true if this node closes a cycle and traversal stopped
}

// DuplicateCandidate is one ranked result of find_duplicates.
type DuplicateCandidate struct {
	Issue      *Issue
	Similarity float64
}

// MergeDisposition controls what happens to the source issue of a merge.
type MergeDisposition string

const (
	DispositionClose  MergeDisposition = "close"
	DispositionDelete MergeDisposition = "delete"
)

// BulkError pairs a failed item (by index or id) with the reason.
type BulkError struct {
	Ref    string
	Reason string
}

// BulkResult reports the outcome of an all-or-nothing bulk operation.
type BulkResult struct {
	Total     int
	Succeeded int
	Failed    int
	Errors    []BulkError
	IDs       []ID // ids created/affected, in input order, on success
}

// ScopeFilter resolves (project, topics, include_shared) into a
// membership predicate used by every search/listing path.
type ScopeFilter struct {
	Project        *string
	Topics         []string
	ExcludeTopics  []string
	IncludeShared  bool
}
