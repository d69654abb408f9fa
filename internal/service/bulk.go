package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dotwork/issuegraph/internal/audit"
	"github.com/dotwork/issuegraph/internal/storage"
	"github.com/dotwork/issuegraph/internal/types"
	"github.com/dotwork/issuegraph/internal/uow"
)

// BulkService implements the all-or-nothing batch operations (spec
// §4.9). Every operation runs inside one uow.Run transaction: either
// every item lands or none do.
type BulkService struct {
	store storage.Store
	audit *audit.Log
}

func NewBulkService(store storage.Store, auditLog *audit.Log) *BulkService {
	return &BulkService{store: store, audit: auditLog}
}

// BulkCreate validates every input concurrently (errgroup) before
// opening the transaction, then creates each issue inside it.
func (s *BulkService) BulkCreate(ctx context.Context, inputs []CreateIssueInput) (types.BulkResult, error) {
	result := types.BulkResult{Total: len(inputs)}
	if len(inputs) == 0 {
		return result, nil
	}

	reasons := make([]string, len(inputs))
	var g errgroup.Group
	for i := range inputs {
		i := i
		g.Go(func() error {
			if inputs[i].Title == "" {
				reasons[i] = "title required"
			}
			if inputs[i].Type != "" && !inputs[i].Type.IsValid() {
				reasons[i] = "type: unknown type " + string(inputs[i].Type)
			}
			return nil
		})
	}
	_ = g.Wait()

	var anyInvalid bool
	for i, reason := range reasons {
		if reason != "" {
			anyInvalid = true
			result.Errors = append(result.Errors, types.BulkError{Ref: fmt.Sprintf("%d", i), Reason: reason})
		}
	}
	if anyInvalid {
		result.Failed = result.Total
		return result, nil
	}

	err := uow.Run(ctx, s.store, func(u *uow.UnitOfWork) error {
		svc := NewIssueService(u, s.audit)
		for i, in := range inputs {
			issue, err := svc.CreateIssue(ctx, in)
			if err != nil {
				result.Failed = result.Total
				result.Errors = append(result.Errors, types.BulkError{Ref: fmt.Sprintf("%d", i), Reason: err.Error()})
				return fmt.Errorf("bulk_create item %d: %w", i, err)
			}
			result.Succeeded++
			result.IDs = append(result.IDs, issue.ID)
		}
		return nil
	})
	if err != nil {
		result.Succeeded = 0
		result.IDs = nil
		if result.Failed == 0 {
			result.Failed = result.Total
		}
		return result, nil
	}
	return result, nil
}

// BulkClose transitions every id to closed inside one transaction;
// an unknown id or an illegal transition fails the whole batch.
func (s *BulkService) BulkClose(ctx context.Context, ids []types.ID, user string) (types.BulkResult, error) {
	return s.bulkTransition(ctx, ids, types.StatusClosed, user)
}

func (s *BulkService) bulkTransition(ctx context.Context, ids []types.ID, next types.Status, user string) (types.BulkResult, error) {
	result := types.BulkResult{Total: len(ids)}
	err := uow.Run(ctx, s.store, func(u *uow.UnitOfWork) error {
		svc := NewIssueService(u, s.audit)
		for i, id := range ids {
			if _, err := svc.Transition(ctx, id, next, user); err != nil {
				result.Failed = result.Total
				result.Errors = append(result.Errors, types.BulkError{Ref: id.String(), Reason: err.Error()})
				return fmt.Errorf("bulk transition item %d (%s): %w", i, id, err)
			}
			result.Succeeded++
			result.IDs = append(result.IDs, id)
		}
		return nil
	})
	if err != nil {
		result.Succeeded = 0
		result.IDs = nil
		return result, nil
	}
	return result, nil
}

// BulkUpdate applies the same IssueChanges to every id inside one
// transaction.
func (s *BulkService) BulkUpdate(ctx context.Context, ids []types.ID, changes IssueChanges) (types.BulkResult, error) {
	result := types.BulkResult{Total: len(ids)}
	err := uow.Run(ctx, s.store, func(u *uow.UnitOfWork) error {
		svc := NewIssueService(u, s.audit)
		for i, id := range ids {
			if _, err := svc.UpdateIssue(ctx, id, changes); err != nil {
				result.Failed = result.Total
				result.Errors = append(result.Errors, types.BulkError{Ref: id.String(), Reason: err.Error()})
				return fmt.Errorf("bulk update item %d (%s): %w", i, id, err)
			}
			result.Succeeded++
			result.IDs = append(result.IDs, id)
		}
		return nil
	})
	if err != nil {
		result.Succeeded = 0
		result.IDs = nil
		return result, nil
	}
	return result, nil
}

// BulkLabelAdd/BulkLabelRemove are idempotent per id: an id that
// already has (or lacks) the label is a success, not an error.
func (s *BulkService) BulkLabelAdd(ctx context.Context, ids []types.ID, label, user string) (types.BulkResult, error) {
	return s.bulkLabel(ctx, ids, label, user, true)
}

func (s *BulkService) BulkLabelRemove(ctx context.Context, ids []types.ID, label, user string) (types.BulkResult, error) {
	return s.bulkLabel(ctx, ids, label, user, false)
}

func (s *BulkService) bulkLabel(ctx context.Context, ids []types.ID, label, user string, add bool) (types.BulkResult, error) {
	result := types.BulkResult{Total: len(ids)}
	err := uow.Run(ctx, s.store, func(u *uow.UnitOfWork) error {
		svc := NewIssueService(u, s.audit)
		for i, id := range ids {
			var opErr error
			if add {
				_, opErr = svc.AddLabel(ctx, id, label, user)
			} else {
				_, opErr = svc.RemoveLabel(ctx, id, label, user)
			}
			if opErr != nil {
				result.Failed = result.Total
				result.Errors = append(result.Errors, types.BulkError{Ref: id.String(), Reason: opErr.Error()})
				return fmt.Errorf("bulk label item %d (%s): %w", i, id, opErr)
			}
			result.Succeeded++
			result.IDs = append(result.IDs, id)
		}
		return nil
	})
	if err != nil {
		result.Succeeded = 0
		result.IDs = nil
		return result, nil
	}
	return result, nil
}
