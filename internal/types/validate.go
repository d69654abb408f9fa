package types

import "strings"

// Validate checks the invariants an Issue must satisfy before it is
// persisted: non-empty title, known enums, and the closed_at/status
// pairing (invariant 2 in spec §3). It does not check that referenced
// ids (project, epic) resolve — that requires a store round-trip and
// is the service layer's job.
func (i *Issue) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return NewValidationError("title", "required")
	}
	if len(i.Title) > 500 {
		return NewValidationError("title", "exceeds 500 characters")
	}
	if !i.Status.IsValid() {
		return NewValidationError("status", "unknown status "+string(i.Status))
	}
	if i.Priority < PriorityCritical || i.Priority > PriorityBacklog {
		return NewValidationError("priority", "out of range")
	}
	if !i.Type.IsValid() {
		return NewValidationError("type", "unknown type "+string(i.Type))
	}
	if i.Type == TypeEpic && i.EpicID != "" {
		return NewValidationError("epic_id", "an epic cannot itself belong to another epic")
	}
	if i.Status.Terminal() && i.ClosedAt == nil {
		return NewValidationError("closed_at", "must be set when status is terminal")
	}
	if !i.Status.Terminal() && i.ClosedAt != nil {
		return NewValidationError("closed_at", "must be nil when status is not terminal")
	}
	if i.UpdatedAt.Before(i.CreatedAt) {
		return NewValidationError("updated_at", "must not precede created_at")
	}
	seen := make(map[string]bool, len(i.Labels))
	for _, l := range i.Labels {
		if seen[l] {
			return NewValidationError("labels", "duplicate label "+l)
		}
		seen[l] = true
	}
	return nil
}
