// Package jsonl implements the newline-delimited JSON import/export
// format for issues: one issue per line, RFC3339 UTC timestamps,
// unknown fields rejected unless the caller opts into lenient mode.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dotwork/issuegraph/internal/types"
)

// knownFields is the wire format's full key set, used to flag unknown
// fields in lenient mode without failing the import.
var knownFields = map[string]bool{
	"id": true, "project_id": true, "title": true, "description": true,
	"design_notes": true, "acceptance_criteria": true, "status": true,
	"priority": true, "type": true, "assignees": true, "labels": true,
	"epic_id": true, "blocked_reason": true, "source_url": true,
	"references": true, "content_hash": true, "created_at": true,
	"updated_at": true, "closed_at": true,
}

// record is the wire shape of one exported issue. Field names are
// fixed by the format contract; renaming a Go field never changes the
// JSON key.
type record struct {
	ID                 string     `json:"id"`
	ProjectID          string     `json:"project_id,omitempty"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	DesignNotes        string     `json:"design_notes,omitempty"`
	AcceptanceCriteria string     `json:"acceptance_criteria,omitempty"`
	Status             string     `json:"status"`
	Priority           string     `json:"priority"`
	Type               string     `json:"type"`
	Assignees          []string   `json:"assignees,omitempty"`
	Labels             []string   `json:"labels,omitempty"`
	EpicID             string     `json:"epic_id,omitempty"`
	BlockedReason      string     `json:"blocked_reason,omitempty"`
	SourceURL          string     `json:"source_url,omitempty"`
	References         []string   `json:"references,omitempty"`
	ContentHash        string     `json:"content_hash,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

func toRecord(issue *types.Issue) record {
	r := record{
		ID:                 issue.ID.String(),
		ProjectID:          issue.ProjectID.String(),
		Title:              issue.Title,
		Description:        issue.Description,
		DesignNotes:        issue.DesignNotes,
		AcceptanceCriteria: issue.AcceptanceCriteria,
		Status:             string(issue.Status),
		Priority:           issue.Priority.String(),
		Type:               string(issue.Type),
		Assignees:          issue.Assignees,
		Labels:             issue.Labels,
		EpicID:             issue.EpicID.String(),
		BlockedReason:      issue.BlockedReason,
		SourceURL:          issue.SourceURL,
		References:         issue.References,
		ContentHash:        issue.ContentHash,
		CreatedAt:          issue.CreatedAt.UTC(),
		UpdatedAt:          issue.UpdatedAt.UTC(),
	}
	if issue.ClosedAt != nil {
		closed := issue.ClosedAt.UTC()
		r.ClosedAt = &closed
	}
	return r
}

func (r record) toIssue() (*types.Issue, error) {
	id, err := types.ParseID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	priority, ok := types.ParsePriority(r.Priority)
	if !ok {
		return nil, fmt.Errorf("priority %q is not recognized", r.Priority)
	}
	var epicID types.ID
	if r.EpicID != "" {
		epicID, err = types.ParseID(r.EpicID)
		if err != nil {
			return nil, fmt.Errorf("epic_id: %w", err)
		}
	}
	var projectID types.ID
	if r.ProjectID != "" {
		projectID, err = types.ParseID(r.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("project_id: %w", err)
		}
	}
	return &types.Issue{
		ID:                 id,
		ProjectID:          projectID,
		Title:              r.Title,
		Description:        r.Description,
		DesignNotes:        r.DesignNotes,
		AcceptanceCriteria: r.AcceptanceCriteria,
		Status:             types.Status(r.Status),
		Priority:           priority,
		Type:               types.IssueType(r.Type),
		Assignees:          r.Assignees,
		Labels:             r.Labels,
		EpicID:             epicID,
		BlockedReason:      r.BlockedReason,
		SourceURL:          r.SourceURL,
		References:         r.References,
		ContentHash:        r.ContentHash,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		ClosedAt:           r.ClosedAt,
	}, nil
}

// Export writes one JSON object per issue to w, fields in the wire
// record's fixed order, timestamps normalized to UTC RFC 3339.
func Export(w io.Writer, issues []*types.Issue) error {
	enc := json.NewEncoder(w)
	for _, issue := range issues {
		if err := enc.Encode(toRecord(issue)); err != nil {
			return fmt.Errorf("encode issue %s: %w", issue.ID, err)
		}
	}
	return nil
}

// Import reads one issue per line from r. In strict mode (lenient =
// false), a line containing a field not in the wire format is
// rejected; in lenient mode unknown fields are silently dropped.
func Import(r io.Reader, lenient bool) ([]*types.Issue, error) {
	issues, _, err := ImportWithReport(r, lenient)
	return issues, err
}

// LenientReport summarizes what a lenient import silently dropped, one
// entry per line that carried a field outside the wire format. It
// renders to YAML so an operator can skim it without re-parsing JSON.
type LenientReport struct {
	DroppedFields []DroppedFieldEntry `yaml:"dropped_fields"`
}

// DroppedFieldEntry names the line and the unknown keys found on it.
type DroppedFieldEntry struct {
	Line   int      `yaml:"line"`
	Fields []string `yaml:"fields"`
}

// ImportWithReport is Import plus a YAML-rendered LenientReport of
// every unknown field dropped along the way (nil when lenient is
// false, since strict mode rejects unknown fields outright instead of
// dropping them).
func ImportWithReport(r io.Reader, lenient bool) ([]*types.Issue, []byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var issues []*types.Issue
	var report LenientReport
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		if lenient {
			if unknown := unknownFieldsOf(text); len(unknown) > 0 {
				report.DroppedFields = append(report.DroppedFields, DroppedFieldEntry{Line: line, Fields: unknown})
			}
		}

		var rec record
		dec := json.NewDecoder(bytes.NewReader(text))
		if !lenient {
			dec.DisallowUnknownFields()
		}
		if err := dec.Decode(&rec); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		issue, err := rec.toIssue()
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		issues = append(issues, issue)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan jsonl: %w", err)
	}

	if !lenient || len(report.DroppedFields) == 0 {
		return issues, nil, nil
	}
	out, err := yaml.Marshal(report)
	if err != nil {
		return nil, nil, fmt.Errorf("render lenient report: %w", err)
	}
	return issues, out, nil
}

func unknownFieldsOf(line []byte) []string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil
	}
	var unknown []string
	for key := range raw {
		if !knownFields[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}
