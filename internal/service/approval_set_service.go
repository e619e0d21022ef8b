package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"opsboard/internal/apperror"
	"opsboard/internal/feed"
	"opsboard/internal/model"
	"opsboard/internal/policy"
	"opsboard/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type ResetApprovalSetRequest struct {
	RowKeys []string `json:"row_keys" binding:"required"`
}

type SaveApprovalSetRequest struct {
	RowKeys []string `json:"row_keys" binding:"required"`
	Flags   []bool   `json:"flags" binding:"required"`
}

// ApprovalTopic is the feed topic carrying snapshots of one approval set.
func ApprovalTopic(orgID, period string) string {
	return "approvals:" + orgID + ":" + period
}

// --- Interface ---

type ApprovalSetService interface {
	Get(ctx context.Context, orgID, period string) (*model.ApprovalSet, error)
	// Reset replaces the row set wholesale with every flag cleared.
	Reset(ctx context.Context, actor policy.Actor, orgID, period string, rowKeys []string) (*model.ApprovalSet, error)
	// Save writes the full flag set; the last write wins.
	Save(ctx context.Context, actor policy.Actor, orgID, period string, rowKeys []string, flags []bool) (*model.ApprovalSet, error)
}

type approvalSetService struct {
	repo      repository.ApprovalSetRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	publisher feed.Publisher
	policy    *policy.Table
	clock     Clock
	log       *zap.Logger
}

func NewApprovalSetService(
	repo repository.ApprovalSetRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	publisher feed.Publisher,
	deps Deps,
) ApprovalSetService {
	deps = deps.withDefaults()
	return &approvalSetService{
		repo:      repo,
		auditRepo: auditRepo,
		txManager: txManager,
		publisher: publisher,
		policy:    deps.Policy,
		clock:     deps.Clock,
		log:       deps.Log,
	}
}

// --- Implementation ---

func validateKey(orgID, period string) error {
	if orgID == "" {
		return apperror.Validation("organization id is required")
	}
	if _, err := time.Parse(time.DateOnly, period); err != nil {
		return apperror.Validation("invalid period %q, expected YYYY-MM-DD", period)
	}
	return nil
}

func validateRowKeys(rowKeys []string) error {
	seen := make(map[string]bool, len(rowKeys))
	for i, k := range rowKeys {
		if k == "" {
			return apperror.Validation("row key %d is empty", i)
		}
		if seen[k] {
			return apperror.Validation("row key %q listed twice", k)
		}
		seen[k] = true
	}
	return nil
}

func (s *approvalSetService) Get(ctx context.Context, orgID, period string) (*model.ApprovalSet, error) {
	if err := validateKey(orgID, period); err != nil {
		return nil, err
	}
	set, err := s.repo.FindByKey(ctx, orgID, period)
	if err != nil {
		return nil, lookupErr(err, apperror.CodeApprovalSetNotFound, "approval set %s/%s", orgID, period)
	}
	return set, nil
}

func (s *approvalSetService) Reset(ctx context.Context, actor policy.Actor, orgID, period string, rowKeys []string) (*model.ApprovalSet, error) {
	if err := s.policy.Check(actor, policy.ApprovalWrite, policy.State{}); err != nil {
		return nil, err
	}
	if err := validateKey(orgID, period); err != nil {
		return nil, err
	}
	if err := validateRowKeys(rowKeys); err != nil {
		return nil, err
	}

	set, err := s.write(ctx, actor, orgID, period, model.ActionResetApprovalSet, func(set *model.ApprovalSet, exists bool) error {
		set.RowKeys = slices.Clone(rowKeys)
		set.Flags = make([]bool, len(rowKeys))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("approval set reset", zap.String("org", orgID), zap.String("period", period), zap.Int("rows", len(rowKeys)))
	return set, nil
}

func (s *approvalSetService) Save(ctx context.Context, actor policy.Actor, orgID, period string, rowKeys []string, flags []bool) (*model.ApprovalSet, error) {
	if err := s.policy.Check(actor, policy.ApprovalWrite, policy.State{}); err != nil {
		return nil, err
	}
	if err := validateKey(orgID, period); err != nil {
		return nil, err
	}
	if len(rowKeys) != len(flags) {
		return nil, apperror.Validation("%d flags for %d rows", len(flags), len(rowKeys))
	}
	if err := validateRowKeys(rowKeys); err != nil {
		return nil, err
	}

	return s.write(ctx, actor, orgID, period, model.ActionSaveApprovalSet, func(set *model.ApprovalSet, exists bool) error {
		if exists && !slices.Equal(set.RowKeys, rowKeys) {
			return apperror.Conflict(apperror.CodeRowSetChanged,
				"row set of %s/%s changed, reload before saving", orgID, period)
		}
		set.RowKeys = slices.Clone(rowKeys)
		set.Flags = slices.Clone(flags)
		return nil
	})
}

// write loads (or starts) the set under lock, lets mutate change it, bumps the
// version and publishes the stored snapshot once committed.
func (s *approvalSetService) write(
	ctx context.Context,
	actor policy.Actor,
	orgID, period, auditAction string,
	mutate func(set *model.ApprovalSet, exists bool) error,
) (*model.ApprovalSet, error) {
	var saved *model.ApprovalSet
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		set, err := s.repo.FindByKeyForUpdate(txCtx, orgID, period)
		exists := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load approval set: %w", err)
		}
		if !exists {
			set = &model.ApprovalSet{OrganizationID: orgID, Period: period}
		}

		if err := mutate(set, exists); err != nil {
			return err
		}
		set.Version++
		set.UpdatedBy = actor.ID
		set.UpdatedAt = s.clock.Now()

		if exists {
			err = s.repo.Save(txCtx, set)
		} else {
			set.CreatedAt = set.UpdatedAt
			err = s.repo.Create(txCtx, set)
		}
		if err != nil {
			return fmt.Errorf("failed to store approval set: %w", err)
		}

		approved := 0
		for _, f := range set.Flags {
			if f {
				approved++
			}
		}
		saved = set
		return writeAudit(txCtx, s.auditRepo, actor, auditAction, set.ID.String(), orgID+"/"+period, map[string]interface{}{
			"version":  set.Version,
			"rows":     len(set.RowKeys),
			"approved": approved,
		})
	})
	if err != nil {
		return nil, apperror.Persistence(apperror.CodePersistenceFailure, "approval set not saved", err)
	}

	if s.publisher != nil {
		if err := feed.Publish(ctx, s.publisher, ApprovalTopic(orgID, period), saved); err != nil {
			s.log.Warn("failed to publish approval set", zap.String("org", orgID), zap.String("period", period), zap.Error(err))
		}
	}
	return saved, nil
}
