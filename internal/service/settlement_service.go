package service

import (
	"context"
	"fmt"
	"time"

	"opsboard/internal/apperror"
	"opsboard/internal/model"
	"opsboard/internal/policy"
	"opsboard/internal/repository"
	"opsboard/internal/wage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type BatchLineInput struct {
	Description string `json:"description"`
	Units       int64  `json:"units" binding:"gte=0"`
	Rate        string `json:"rate" binding:"required"` // decimal per-unit price
}

type CreateBatchRequest struct {
	Kind         string           `json:"kind" binding:"required,oneof=production delivery"`
	Reference    string           `json:"reference" binding:"required"`
	WorkDate     string           `json:"work_date" binding:"required"` // YYYY-MM-DD
	Participants []string         `json:"participants" binding:"required,min=1"`
	Lines        []BatchLineInput `json:"lines" binding:"required,min=1,dive"`
}

type PreviewSplitRequest struct {
	Split       []int64 `json:"split"`
	EditedIndex int     `json:"edited_index"`
	NewValue    int64   `json:"new_value"`
}

// --- Interface ---

type SettlementService interface {
	CreateBatch(ctx context.Context, actor policy.Actor, req CreateBatchRequest) (*model.Batch, error)
	// Settle credits every participant and marks the batch paid in one unit.
	// A nil split means the initial equal split.
	Settle(ctx context.Context, actor policy.Actor, batchID uuid.UUID, split []int64) (*model.Batch, error)
	// Discard reverses the batch's credits and marks it unpaid in one unit.
	Discard(ctx context.Context, actor policy.Actor, batchID uuid.UUID) (*model.Batch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*model.Batch, error)
	ListBatches(ctx context.Context, status string, page, limit int) ([]model.Batch, int64, error)
	PreviewSplit(ctx context.Context, batchID uuid.UUID, req PreviewSplitRequest) ([]int64, error)
}

type settlementService struct {
	batchRepo repository.BatchRepository
	auditRepo repository.AuditRepository
	ledger    LedgerService
	txManager repository.TransactionManager
	policy    *policy.Table
	clock     Clock
	log       *zap.Logger
	outcome   outcome
}

func NewSettlementService(
	batchRepo repository.BatchRepository,
	auditRepo repository.AuditRepository,
	ledger LedgerService,
	txManager repository.TransactionManager,
	deps Deps,
) SettlementService {
	deps = deps.withDefaults()
	return &settlementService{
		batchRepo: batchRepo,
		auditRepo: auditRepo,
		ledger:    ledger,
		txManager: txManager,
		policy:    deps.Policy,
		clock:     deps.Clock,
		log:       deps.Log,
		outcome:   deps.outcome(),
	}
}

// --- Implementation ---

func (s *settlementService) CreateBatch(ctx context.Context, actor policy.Actor, req CreateBatchRequest) (*model.Batch, error) {
	if err := s.policy.Check(actor, policy.BatchCreate, policy.State{}); err != nil {
		return nil, err
	}
	if req.Kind != model.BatchKindProduction && req.Kind != model.BatchKindDelivery {
		return nil, apperror.Validation("unknown batch kind %q", req.Kind)
	}
	if req.Reference == "" {
		return nil, apperror.Validation("reference is required")
	}
	workDate, err := time.Parse(time.DateOnly, req.WorkDate)
	if err != nil {
		return nil, apperror.Validation("invalid work_date %q, expected YYYY-MM-DD", req.WorkDate)
	}
	if len(req.Participants) == 0 {
		return nil, apperror.Validation("at least one participant is required")
	}

	memberIDs := make([]uuid.UUID, 0, len(req.Participants))
	seen := make(map[uuid.UUID]bool, len(req.Participants))
	for _, raw := range req.Participants {
		id, err := parseID(raw, "participant")
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, apperror.Validation("participant %s listed twice", id)
		}
		seen[id] = true
		memberIDs = append(memberIDs, id)
	}

	lines := make([]wage.Line, 0, len(req.Lines))
	batchLines := make([]model.BatchLine, 0, len(req.Lines))
	for i, l := range req.Lines {
		rate, err := decimal.NewFromString(l.Rate)
		if err != nil {
			return nil, apperror.Validation("line %d: invalid rate %q", i, l.Rate)
		}
		lines = append(lines, wage.Line{Units: l.Units, Rate: rate})
		batchLines = append(batchLines, model.BatchLine{Description: l.Description, Units: l.Units, Rate: rate})
	}
	total, err := wage.BatchTotal(lines)
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.ResolveMembers(ctx, memberIDs); err != nil {
		return nil, err
	}

	batch := model.Batch{
		Kind:        req.Kind,
		Reference:   req.Reference,
		WorkDate:    workDate,
		TotalAmount: total,
		Status:      model.BatchStatusUnpaid,
		Version:     1,
		Lines:       batchLines,
		CreatedBy:   actor.ID,
	}
	for i, id := range memberIDs {
		batch.Participants = append(batch.Participants, model.BatchParticipant{MemberID: id, Position: i})
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.batchRepo.Create(txCtx, &batch); err != nil {
			return fmt.Errorf("failed to create batch: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionCreateBatch, batch.ID.String(), batch.Reference, map[string]interface{}{
			"kind":         batch.Kind,
			"total_amount": batch.TotalAmount,
			"participants": req.Participants,
		})
	})
	if err != nil {
		return nil, apperror.Persistence(apperror.CodePersistenceFailure, "batch not created", err)
	}
	return &batch, nil
}

func (s *settlementService) Settle(ctx context.Context, actor policy.Actor, batchID uuid.UUID, split []int64) (batch *model.Batch, err error) {
	defer func() {
		s.outcome.report(ctx, actor, policy.BatchSettle, batchID.String(), err, "batch settled")
	}()

	if err := s.policy.Check(actor, policy.BatchSettle, policy.State{}); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.batchRepo.FindByID(txCtx, batchID)
		if err != nil {
			return lookupErr(err, apperror.CodeBatchNotFound, "batch %s", batchID)
		}
		if current.Status == model.BatchStatusPaid {
			return apperror.Conflict(apperror.CodeAlreadySettled, "batch %s is already settled", current.Reference)
		}

		amounts, err := s.resolveSplit(current, split)
		if err != nil {
			return err
		}

		inputs, err := s.creditEntries(txCtx, current, amounts)
		if err != nil {
			return err
		}
		if len(inputs) > 0 {
			if _, err := s.ledger.Apply(txCtx, actor, inputs); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		rows, err := s.batchRepo.TransitionStatus(txCtx, batchID, current.Version, model.BatchStatusUnpaid, model.BatchStatusPaid, &now, actor.ID)
		if err != nil {
			return fmt.Errorf("failed to mark batch paid: %w", err)
		}
		if rows == 0 {
			// Someone else settled it between our read and this write.
			return apperror.Conflict(apperror.CodeAlreadySettled, "batch %s is already settled", current.Reference)
		}

		return writeAudit(txCtx, s.auditRepo, actor, model.ActionSettleBatch, batchID.String(), current.Reference, map[string]interface{}{
			"total_amount": current.TotalAmount,
			"split":        amounts,
		})
	})
	if err != nil {
		return nil, apperror.Persistence(apperror.CodePartialApplyFailure, "batch settlement rolled back", err)
	}

	return s.GetBatch(ctx, batchID)
}

func (s *settlementService) resolveSplit(batch *model.Batch, split []int64) ([]int64, error) {
	n := len(batch.Participants)
	if split == nil {
		return wage.InitialSplit(batch.TotalAmount, n)
	}
	if len(split) != n {
		return nil, apperror.Validation("split has %d shares, batch has %d participants", len(split), n)
	}
	if err := wage.Validate(batch.TotalAmount, split); err != nil {
		return nil, err
	}
	return split, nil
}

// creditEntries builds one credit per participant with a non-zero share. Linked
// pair members resolve to their shared account.
func (s *settlementService) creditEntries(ctx context.Context, batch *model.Batch, amounts []int64) ([]EntryInput, error) {
	memberIDs := make([]uuid.UUID, 0, len(batch.Participants))
	for _, p := range batch.Participants {
		memberIDs = append(memberIDs, p.MemberID)
	}
	members, err := s.ledger.ResolveMembers(ctx, memberIDs)
	if err != nil {
		return nil, err
	}

	inputs := make([]EntryInput, 0, len(members))
	for i, m := range members {
		if amounts[i] == 0 {
			continue
		}
		memberID := m.ID
		inputs = append(inputs, EntryInput{
			AccountID: m.AccountID,
			MemberID:  &memberID,
			BatchID:   &batch.ID,
			Category:  batch.Category(),
			Amount:    amounts[i],
			Note:      batch.Reference,
		})
	}
	return inputs, nil
}

func (s *settlementService) Discard(ctx context.Context, actor policy.Actor, batchID uuid.UUID) (batch *model.Batch, err error) {
	defer func() {
		s.outcome.report(ctx, actor, policy.BatchDiscard, batchID.String(), err, "batch discarded")
	}()

	if err := s.policy.Check(actor, policy.BatchDiscard, policy.State{}); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.batchRepo.FindByID(txCtx, batchID)
		if err != nil {
			return lookupErr(err, apperror.CodeBatchNotFound, "batch %s", batchID)
		}
		if current.Status != model.BatchStatusPaid {
			return apperror.Conflict(apperror.CodeNotSettled, "batch %s is not settled", current.Reference)
		}

		var reversed []model.LedgerEntry
		if current.TotalAmount > 0 {
			reversed, err = s.ledger.Reverse(txCtx, actor, batchID)
			if err != nil {
				return err
			}
		}

		rows, err := s.batchRepo.TransitionStatus(txCtx, batchID, current.Version, model.BatchStatusPaid, model.BatchStatusUnpaid, nil, "")
		if err != nil {
			return fmt.Errorf("failed to mark batch unpaid: %w", err)
		}
		if rows == 0 {
			return apperror.Conflict(apperror.CodeNotSettled, "batch %s is not settled", current.Reference)
		}

		return writeAudit(txCtx, s.auditRepo, actor, model.ActionDiscardBatch, batchID.String(), current.Reference, map[string]interface{}{
			"reversed_entries": len(reversed),
		})
	})
	if err != nil {
		return nil, apperror.Persistence(apperror.CodePartialApplyFailure, "batch discard rolled back", err)
	}

	return s.GetBatch(ctx, batchID)
}

func (s *settlementService) GetBatch(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	batch, err := s.batchRepo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, apperror.CodeBatchNotFound, "batch %s", id)
	}
	return batch, nil
}

func (s *settlementService) ListBatches(ctx context.Context, status string, page, limit int) ([]model.Batch, int64, error) {
	if status != "" && status != model.BatchStatusPaid && status != model.BatchStatusUnpaid {
		return nil, 0, apperror.Validation("unknown batch status %q", status)
	}
	page, limit = normalizePage(page, limit)
	batches, total, err := s.batchRepo.List(ctx, status, page, limit)
	if err != nil {
		return nil, 0, apperror.Persistence(apperror.CodePersistenceFailure, "failed to list batches", err)
	}
	return batches, total, nil
}

// PreviewSplit recomputes the split after one share is edited, without writing.
func (s *settlementService) PreviewSplit(ctx context.Context, batchID uuid.UUID, req PreviewSplitRequest) ([]int64, error) {
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	current, err := s.resolveSplit(batch, req.Split)
	if err != nil {
		return nil, err
	}
	return wage.Redistribute(current, req.EditedIndex, req.NewValue)
}
