package service

import (
	"context"
	"fmt"
	"time"

	"opsboard/internal/apperror"
	"opsboard/internal/model"
	"opsboard/internal/notify"
	"opsboard/internal/policy"
	"opsboard/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultReversalWindow is how long after payment a voucher may be unsettled.
const DefaultReversalWindow = 96 * time.Hour

// --- DTOs ---

type CreateVoucherRequest struct {
	VehicleRef  string `json:"vehicle_ref" binding:"required" validate:"required"`
	Description string `json:"description"`
	Amount      int64  `json:"amount" binding:"required,gt=0" validate:"gt=0"`
}

type EditVoucherRequest struct {
	VehicleRef  *string `json:"vehicle_ref"`
	Description *string `json:"description"`
	Amount      *int64  `json:"amount"`
}

type SettleVoucherRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
}

type BulkSettleRequest struct {
	IDs              []string `json:"ids" binding:"required,min=1"`
	PaymentReference string   `json:"payment_reference" binding:"required"`
}

// VoucherView is a voucher plus the actions the caller may take on it.
type VoucherView struct {
	model.Voucher
	Actions []policy.Action `json:"actions"`
}

// --- Interface ---

type VoucherService interface {
	Create(ctx context.Context, actor policy.Actor, req CreateVoucherRequest) (*model.Voucher, error)
	Get(ctx context.Context, actor policy.Actor, id uuid.UUID) (*VoucherView, error)
	List(ctx context.Context, filter repository.VoucherFilter, page, limit int) ([]model.Voucher, int64, error)
	Edit(ctx context.Context, actor policy.Actor, id uuid.UUID, req EditVoucherRequest) (*model.Voucher, error)
	Delete(ctx context.Context, actor policy.Actor, id uuid.UUID) error

	Verify(ctx context.Context, actor policy.Actor, id uuid.UUID) (*model.Voucher, error)
	Unverify(ctx context.Context, actor policy.Actor, id uuid.UUID) (*model.Voucher, error)
	Settle(ctx context.Context, actor policy.Actor, id uuid.UUID, paymentReference string) (*model.Voucher, error)
	Unsettle(ctx context.Context, actor policy.Actor, id uuid.UUID) (*model.Voucher, error)
	// BulkSettle settles every voucher or none of them.
	BulkSettle(ctx context.Context, actor policy.Actor, ids []uuid.UUID, paymentReference string) ([]model.Voucher, error)
}

type voucherService struct {
	repo           repository.VoucherRepository
	auditRepo      repository.AuditRepository
	txManager      repository.TransactionManager
	policy         *policy.Table
	clock          Clock
	log            *zap.Logger
	sink           notify.Sink
	outcome        outcome
	reversalWindow time.Duration
}

func NewVoucherService(
	repo repository.VoucherRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	reversalWindow time.Duration,
	deps Deps,
) VoucherService {
	deps = deps.withDefaults()
	if reversalWindow <= 0 {
		reversalWindow = DefaultReversalWindow
	}
	return &voucherService{
		repo:           repo,
		auditRepo:      auditRepo,
		txManager:      txManager,
		policy:         deps.Policy,
		clock:          deps.Clock,
		log:            deps.Log,
		sink:           deps.Sink,
		outcome:        deps.outcome(),
		reversalWindow: reversalWindow,
	}
}

// transition describes one move of the (verified, paid) state machine.
type transition struct {
	action      policy.Action
	auditAction string
	message     string
	// guard rejects the move from the voucher's current state.
	guard func(v *model.Voucher, now time.Time) error
	// fields are the columns written by the move.
	fields func(v *model.Voucher, actor policy.Actor, now time.Time) map[string]interface{}
}

func stateOf(v *model.Voucher) policy.State {
	return policy.State{Verified: v.Verified, Paid: v.Paid}
}

// --- Implementation ---

func (s *voucherService) Create(ctx context.Context, actor policy.Actor, req CreateVoucherRequest) (*model.Voucher, error) {
	if err := s.policy.Check(actor, policy.VoucherCreate, policy.State{}); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, apperror.Validation("invalid voucher: %v", err)
	}

	voucher := model.Voucher{
		VehicleRef:  req.VehicleRef,
		Description: req.Description,
		Amount:      req.Amount,
		Version:     1,
		CreatedBy:   actor.ID,
	}
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, &voucher); err != nil {
			return fmt.Errorf("failed to create voucher: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionCreateVoucher, voucher.ID.String(), voucher.VehicleRef, map[string]interface{}{
			"amount": voucher.Amount,
		})
	})
	if err != nil {
		return nil, apperror.Persistence(apperror.CodePersistenceFailure, "voucher not created", err)
	}
	return &voucher, nil
}

func (s *voucherService) Get(ctx context.Context, actor policy.Actor, id uuid.UUID) (*VoucherView, error) {
	voucher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, apperror.CodeVoucherNotFound, "voucher %s", id)
	}
	return &VoucherView{
		Voucher: *voucher,
		Actions: s.policy.Permitted(actor.Role, stateOf(voucher), policy.VoucherActions...),
	}, nil
}

func (s *voucherService) List(ctx context.Context, filter repository.VoucherFilter, page, limit int) ([]model.Voucher, int64, error) {
	page, limit = normalizePage(page, limit)
	vouchers, total, err := s.repo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, apperror.Persistence(apperror.CodePersistenceFailure, "failed to list vouchers", err)
	}
	return vouchers, total, nil
}

func (s *voucherService) Edit(ctx context.Context, actor policy.Actor, id uuid.UUID, req EditVoucherRequest) (*model.Voucher, error) {
	if req.Amount != nil && *req.Amount <= 0 {
		return nil, apperror.Validation("amount must be positive")
	}
	if req.VehicleRef != nil && *req.VehicleRef == "" {
		return nil, apperror.Validation("vehicle_ref must not be empty")
	}

	return s.run(ctx, actor, id, transition{
		action:      policy.VoucherEdit,
		auditAction: model.ActionEditVoucher,
		message:     "voucher edited",
		guard:       func(*model.Voucher, time.Time) error { return nil },
		fields: func(*model.Voucher, policy.Actor, time.Time) map[string]interface{} {
			fields := map[string]interface{}{}
			if req.VehicleRef != nil {
				fields["vehicle_ref"] = *req.VehicleRef
			}
			if req.Description != nil {
				fields["description"] = *req.Description
			}
			if req.Amount != nil {
				fields["amount"] = *req.Amount
			}
			return fields
		},
	})
}

func (s *voucherService) Delete(ctx context.Context, actor policy.Actor, id uuid.UUID) (err error) {
	defer func() {
		s.outcome.report(ctx, actor, policy.VoucherDelete, id.String(), err, "voucher deleted")
	}()

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		voucher, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return lookupErr(err, apperror.CodeVoucherNotFound, "voucher %s", id)
		}
		if err := s.policy.Check(actor, policy.VoucherDelete, stateOf(voucher)); err != nil {
			return err
		}

		rows, err := s.repo.DeleteGuarded(txCtx, id, voucher.Version)
		if err != nil {
			return fmt.Errorf("failed to delete voucher: %w", err)
		}
		if rows == 0 {
			return apperror.Conflict(apperror.CodeConcurrentUpdate, "voucher %s changed while deleting", id)
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionDeleteVoucher, id.String(), voucher.VehicleRef, map[string]interface{}{
			"verified": voucher.Verified,
			"paid":     voucher.Paid,
		})
	})
	return apperror.Persistence(apperror.CodePersistenceFailure, "voucher not deleted", err)
}

func (s *voucherService) Verify(ctx context.Context, actor policy.Actor, id uuid.UUID) (*model.Voucher, error) {
	return s.run(ctx, actor, id, transition{
		action:      policy.VoucherVerify,
		auditAction: model.ActionVerifyVoucher,
		message:     "voucher verified",
		guard: func(v *model.Voucher, _ time.Time) error {
			if v.Verified {
				return apperror.Conflict(apperror.CodeAlreadyVerified, "voucher %s is already verified", v.ID)
			}
			return nil
		},
		fields: func(_ *model.Voucher, actor policy.Actor, now time.Time) map[string]interface{} {
			return map[string]interface{}{"verified": true, "verified_at": now, "verified_by": actor.ID}
		},
	})
}

func (s *voucherService) Unverify(ctx context.Context, actor policy.Actor, id uuid.UUID) (*model.Voucher, error) {
	voucher, err := s.run(ctx, actor, id, transition{
		action:      policy.VoucherUnverify,
		auditAction: model.ActionUnverifyVoucher,
		message:     "voucher unverified",
		guard: func(v *model.Voucher, _ time.Time) error {
			if !v.Verified {
				return apperror.Conflict(apperror.CodeNotVerified, "voucher %s is not verified", v.ID)
			}
			return nil
		},
		fields: func(*model.Voucher, policy.Actor, time.Time) map[string]interface{} {
			return map[string]interface{}{"verified": false, "verified_at": nil, "verified_by": ""}
		},
	})
	if err != nil {
		return nil, err
	}

	// A paid voucher left unverified is allowed but needs a human to look at it.
	if voucher.Paid {
		s.log.Warn("paid voucher was unverified",
			zap.String("voucher_id", voucher.ID.String()), zap.String("actor", actor.ID))
		if notifyErr := s.sink.Notify(ctx, notify.Notification{
			Actor:     actor.ID,
			Operation: string(policy.VoucherUnverify),
			EntityID:  voucher.ID.String(),
			OK:        true,
			Code:      "paid_unverified",
			Message:   "voucher is paid but no longer verified",
			At:        s.clock.Now(),
		}); notifyErr != nil {
			s.log.Warn("failed to deliver notification", zap.Error(notifyErr))
		}
	}
	return voucher, nil
}

func (s *voucherService) settleTransition(paymentReference string) transition {
	return transition{
		action:      policy.VoucherSettle,
		auditAction: model.ActionSettleVoucher,
		message:     "voucher settled",
		guard: func(v *model.Voucher, _ time.Time) error {
			if v.Paid {
				return apperror.Conflict(apperror.CodeAlreadyPaid, "voucher %s is already paid", v.ID)
			}
			return nil
		},
		fields: func(_ *model.Voucher, actor policy.Actor, now time.Time) map[string]interface{} {
			return map[string]interface{}{
				"paid":              true,
				"paid_at":           now,
				"paid_by":           actor.ID,
				"payment_reference": paymentReference,
			}
		},
	}
}

func (s *voucherService) Settle(ctx context.Context, actor policy.Actor, id uuid.UUID, paymentReference string) (*model.Voucher, error) {
	if paymentReference == "" {
		return nil, apperror.Validation("payment reference is required")
	}
	return s.run(ctx, actor, id, s.settleTransition(paymentReference))
}

func (s *voucherService) Unsettle(ctx context.Context, actor policy.Actor, id uuid.UUID) (*model.Voucher, error) {
	return s.run(ctx, actor, id, transition{
		action:      policy.VoucherUnsettle,
		auditAction: model.ActionUnsettleVoucher,
		message:     "voucher unsettled",
		guard: func(v *model.Voucher, now time.Time) error {
			if !v.Paid || v.PaidAt == nil {
				return apperror.Conflict(apperror.CodeNotPaid, "voucher %s is not paid", v.ID)
			}
			if elapsed := now.Sub(*v.PaidAt); elapsed > s.reversalWindow {
				return apperror.Conflict(apperror.CodeReversalWindowExpired,
					"voucher %s was paid %s ago, reversal window is %s", v.ID, elapsed.Round(time.Minute), s.reversalWindow)
			}
			return nil
		},
		fields: func(*model.Voucher, policy.Actor, time.Time) map[string]interface{} {
			return map[string]interface{}{"paid": false, "paid_at": nil, "paid_by": "", "payment_reference": ""}
		},
	})
}

func (s *voucherService) BulkSettle(ctx context.Context, actor policy.Actor, ids []uuid.UUID, paymentReference string) (settled []model.Voucher, err error) {
	defer func() {
		s.outcome.report(ctx, actor, policy.VoucherSettle, fmt.Sprintf("%d vouchers", len(ids)), err, "vouchers settled")
	}()

	if len(ids) == 0 {
		return nil, apperror.Validation("at least one voucher is required")
	}
	if paymentReference == "" {
		return nil, apperror.Validation("payment reference is required")
	}
	if err := s.policy.Check(actor, policy.VoucherSettle, policy.State{}); err != nil {
		return nil, err
	}

	t := s.settleTransition(paymentReference)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		settled = make([]model.Voucher, 0, len(ids))
		for _, id := range ids {
			voucher, err := s.apply(txCtx, actor, id, t)
			if err != nil {
				return err
			}
			settled = append(settled, *voucher)
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Persistence(apperror.CodePersistenceFailure, "bulk settlement rolled back", err)
	}
	return settled, nil
}

// run applies t to one voucher in its own transaction and reports the outcome.
func (s *voucherService) run(ctx context.Context, actor policy.Actor, id uuid.UUID, t transition) (voucher *model.Voucher, err error) {
	defer func() {
		s.outcome.report(ctx, actor, t.action, id.String(), err, t.message)
	}()

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		voucher, err = s.apply(txCtx, actor, id, t)
		return err
	})
	if err != nil {
		return nil, apperror.Persistence(apperror.CodePersistenceFailure, "voucher transition rolled back", err)
	}
	return voucher, nil
}

// apply checks role before state, then writes with a version predicate so a
// concurrent change to the same voucher turns into a conflict.
func (s *voucherService) apply(ctx context.Context, actor policy.Actor, id uuid.UUID, t transition) (*model.Voucher, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, apperror.CodeVoucherNotFound, "voucher %s", id)
	}
	if err := s.policy.Check(actor, t.action, stateOf(current)); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := t.guard(current, now); err != nil {
		return nil, err
	}

	fields := t.fields(current, actor, now)
	if len(fields) == 0 {
		return current, nil
	}
	rows, err := s.repo.UpdateGuarded(ctx, id, current.Version, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to update voucher: %w", err)
	}
	if rows == 0 {
		return nil, apperror.Conflict(apperror.CodeConcurrentUpdate, "voucher %s was modified concurrently", id)
	}

	if err := writeAudit(ctx, s.auditRepo, actor, t.auditAction, id.String(), current.VehicleRef, map[string]interface{}{
		"from": stateOf(current),
	}); err != nil {
		return nil, err
	}

	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload voucher: %w", err)
	}
	return updated, nil
}
