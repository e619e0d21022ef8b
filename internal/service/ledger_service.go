package service

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"opsboard/internal/apperror"
	"opsboard/internal/model"
	"opsboard/internal/policy"
	"opsboard/internal/repository"
	"opsboard/internal/wage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// --- DTOs ---

// EntryInput is one signed amount to apply to an account.
type EntryInput struct {
	AccountID       uuid.UUID
	MemberID        *uuid.UUID
	BatchID         *uuid.UUID
	Category        string
	Amount          int64
	ReversesEntryID *uuid.UUID
	Note            string
}

type CreateAccountRequest struct {
	Name    string   `json:"name" binding:"required" validate:"required"`
	Kind    string   `json:"kind" binding:"required,oneof=individual linked_pair" validate:"required,oneof=individual linked_pair"`
	Members []string `json:"members" binding:"required,min=1,max=2,dive,required" validate:"required,min=1,max=2,dive,required"`
}

type AdjustRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	MemberID  string `json:"member_id"`
	Amount    int64  `json:"amount" binding:"required"`
	Note      string `json:"note" binding:"required"`
}

// BalanceCheck compares the stored balance with the live sum of entries.
type BalanceCheck struct {
	AccountID uuid.UUID `json:"account_id"`
	Stored    int64     `json:"stored"`
	Live      int64     `json:"live"`
	InSync    bool      `json:"in_sync"`
}

// --- Interface ---

type LedgerService interface {
	// Apply commits every entry as one unit or none of them.
	Apply(ctx context.Context, actor policy.Actor, entries []EntryInput) ([]model.LedgerEntry, error)
	// CurrentBalance is the live sum of the account's entries.
	CurrentBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
	// Reverse applies one opposite entry for every open entry of the batch.
	Reverse(ctx context.Context, actor policy.Actor, batchID uuid.UUID) ([]model.LedgerEntry, error)
	Adjust(ctx context.Context, actor policy.Actor, req AdjustRequest) (*model.LedgerEntry, error)

	CreateAccount(ctx context.Context, actor policy.Actor, req CreateAccountRequest) (*model.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error)
	ListAccounts(ctx context.Context, kind string, page, limit int) ([]model.Account, int64, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, page, limit int) ([]model.LedgerEntry, int64, error)
	ResolveMembers(ctx context.Context, memberIDs []uuid.UUID) ([]model.AccountMember, error)
	VerifyBalance(ctx context.Context, accountID uuid.UUID) (*BalanceCheck, error)
}

type ledgerService struct {
	accountRepo repository.AccountRepository
	ledgerRepo  repository.LedgerRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	policy      *policy.Table
	clock       Clock
	log         *zap.Logger
	outcome     outcome
}

func NewLedgerService(
	accountRepo repository.AccountRepository,
	ledgerRepo repository.LedgerRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	deps Deps,
) LedgerService {
	deps = deps.withDefaults()
	return &ledgerService{
		accountRepo: accountRepo,
		ledgerRepo:  ledgerRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		policy:      deps.Policy,
		clock:       deps.Clock,
		log:         deps.Log,
		outcome:     deps.outcome(),
	}
}

// --- Implementation ---

func validateEntries(entries []EntryInput) error {
	if len(entries) == 0 {
		return apperror.Validation("at least one entry is required")
	}
	for i, e := range entries {
		if e.AccountID == uuid.Nil {
			return apperror.Validation("entry %d: account id is required", i)
		}
		if !model.ValidCategory(e.Category) {
			return apperror.Validation("entry %d: unknown category %q", i, e.Category)
		}
		if e.Amount == 0 {
			return apperror.Validation("entry %d: amount must not be zero", i)
		}
	}
	return nil
}

func sortedAccountIDs(entries []EntryInput) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.AccountID)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return slices.Compact(ids)
}

func (s *ledgerService) Apply(ctx context.Context, actor policy.Actor, entries []EntryInput) ([]model.LedgerEntry, error) {
	if err := validateEntries(entries); err != nil {
		return nil, err
	}

	var created []model.LedgerEntry
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		created, err = s.applyInTx(txCtx, actor, entries, model.ActionLedgerApply, "")
		return err
	})
	if err != nil {
		return nil, apperror.Persistence(apperror.CodePartialApplyFailure, "ledger apply rolled back", err)
	}
	return created, nil
}

// applyInTx locks the touched accounts in id order, writes the entries and then the
// new balances with a version predicate.
func (s *ledgerService) applyInTx(ctx context.Context, actor policy.Actor, entries []EntryInput, auditAction, entityID string) ([]model.LedgerEntry, error) {
	ids := sortedAccountIDs(entries)
	accounts := make(map[uuid.UUID]*model.Account, len(ids))
	for _, id := range ids {
		account, err := s.accountRepo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return nil, lookupErr(err, apperror.CodeAccountNotFound, "account %s", id)
		}
		accounts[id] = account
	}

	if err := s.checkMembers(ctx, entries); err != nil {
		return nil, err
	}

	created := make([]model.LedgerEntry, 0, len(entries))
	for _, in := range entries {
		account := accounts[in.AccountID]
		balance, ok := wage.Add(account.Balance, in.Amount)
		if !ok {
			return nil, apperror.Validation("entry of %d overflows the balance of account %s", in.Amount, in.AccountID)
		}
		account.Balance = balance

		entry := model.LedgerEntry{
			AccountID:       in.AccountID,
			MemberID:        in.MemberID,
			BatchID:         in.BatchID,
			Category:        in.Category,
			Amount:          in.Amount,
			BalanceAfter:    account.Balance,
			ReversesEntryID: in.ReversesEntryID,
			CreatedBy:       actor.ID,
			Note:            in.Note,
			CreatedAt:       s.clock.Now(),
		}
		if entry.IsCredit() {
			lifetime, ok := wage.Add(account.LifetimeCredited, in.Amount)
			if !ok {
				return nil, apperror.Validation("entry of %d overflows the lifetime credit of account %s", in.Amount, in.AccountID)
			}
			account.LifetimeCredited = lifetime
		}
		if err := s.ledgerRepo.Create(ctx, &entry); err != nil {
			return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
		}
		created = append(created, entry)
	}

	for _, id := range ids {
		account := accounts[id]
		rows, err := s.accountRepo.UpdateBalance(ctx, id, account.Version, account.Balance, account.LifetimeCredited)
		if err != nil {
			return nil, fmt.Errorf("failed to update balance of account %s: %w", id, err)
		}
		if rows == 0 {
			return nil, apperror.Wrap(apperror.KindPersistence, apperror.CodePartialApplyFailure,
				fmt.Sprintf("account %s was modified concurrently", id), nil)
		}
		account.Version++
	}

	balances := make(map[string]int64, len(accounts))
	for id, a := range accounts {
		balances[id.String()] = a.Balance
	}
	if err := writeAudit(ctx, s.auditRepo, actor, auditAction, entityID, "", map[string]interface{}{
		"entries":  len(created),
		"balances": balances,
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// checkMembers makes sure a member named on an entry belongs to the entry's account.
func (s *ledgerService) checkMembers(ctx context.Context, entries []EntryInput) error {
	var memberIDs []uuid.UUID
	for _, e := range entries {
		if e.MemberID != nil {
			memberIDs = append(memberIDs, *e.MemberID)
		}
	}
	if len(memberIDs) == 0 {
		return nil
	}

	members, err := s.accountRepo.FindMembers(ctx, memberIDs)
	if err != nil {
		return fmt.Errorf("failed to load members: %w", err)
	}
	owner := make(map[uuid.UUID]uuid.UUID, len(members))
	for _, m := range members {
		owner[m.ID] = m.AccountID
	}

	for i, e := range entries {
		if e.MemberID == nil {
			continue
		}
		accountID, ok := owner[*e.MemberID]
		if !ok {
			return apperror.NotFound(apperror.CodeMemberNotFound, "member %s", *e.MemberID)
		}
		if accountID != e.AccountID {
			return apperror.Validation("entry %d: member %s does not belong to account %s", i, *e.MemberID, e.AccountID)
		}
	}
	return nil
}

func (s *ledgerService) CurrentBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	if _, err := s.accountRepo.FindByID(ctx, accountID); err != nil {
		return 0, lookupErr(err, apperror.CodeAccountNotFound, "account %s", accountID)
	}
	sum, err := s.ledgerRepo.SumByAccount(ctx, accountID)
	if err != nil {
		return 0, apperror.Persistence(apperror.CodePersistenceFailure, "failed to sum ledger entries", err)
	}
	return sum, nil
}

func (s *ledgerService) Reverse(ctx context.Context, actor policy.Actor, batchID uuid.UUID) ([]model.LedgerEntry, error) {
	var created []model.LedgerEntry
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		open, err := s.ledgerRepo.ListOpenByBatch(txCtx, batchID)
		if err != nil {
			return fmt.Errorf("failed to load batch entries: %w", err)
		}
		if len(open) == 0 {
			return apperror.Conflict(apperror.CodeNothingToReverse, "batch %s has no entries left to reverse", batchID)
		}

		all, err := s.ledgerRepo.ListByBatch(txCtx, batchID)
		if err != nil {
			return fmt.Errorf("failed to load batch entries: %w", err)
		}
		if err := checkReversalBound(open, all); err != nil {
			return err
		}

		inputs := make([]EntryInput, 0, len(open))
		for _, original := range open {
			inputs = append(inputs, EntryInput{
				AccountID:       original.AccountID,
				MemberID:        original.MemberID,
				BatchID:         original.BatchID,
				Category:        model.CategoryWageReversal,
				Amount:          -original.Amount,
				ReversesEntryID: &original.ID,
				Note:            "reversal of " + original.ID.String(),
			})
		}

		created, err = s.applyInTx(txCtx, actor, inputs, model.ActionLedgerReverse, batchID.String())
		return err
	})
	if err != nil {
		return nil, apperror.Persistence(apperror.CodePartialApplyFailure, "ledger reversal rolled back", err)
	}
	return created, nil
}

// checkReversalBound rejects a reversal that would take more from an account than
// the batch has net credited to it.
func checkReversalBound(open, all []model.LedgerEntry) error {
	credited := make(map[uuid.UUID]int64)
	for _, e := range all {
		credited[e.AccountID] += e.Amount
	}
	decrement := make(map[uuid.UUID]int64)
	for _, e := range open {
		decrement[e.AccountID] += e.Amount
	}
	for accountID, d := range decrement {
		if d > credited[accountID] {
			return apperror.Conflict(apperror.CodeReversalExceedsCredit,
				"reversal of %d exceeds the %d the batch credited to account %s", d, credited[accountID], accountID)
		}
	}
	return nil
}

func (s *ledgerService) Adjust(ctx context.Context, actor policy.Actor, req AdjustRequest) (entry *model.LedgerEntry, err error) {
	defer func() {
		s.outcome.report(ctx, actor, policy.LedgerAdjust, req.AccountID, err, "ledger adjusted")
	}()

	if err := s.policy.Check(actor, policy.LedgerAdjust, policy.State{}); err != nil {
		return nil, err
	}
	accountID, err := parseID(req.AccountID, "account_id")
	if err != nil {
		return nil, err
	}
	in := EntryInput{AccountID: accountID, Category: model.CategoryAdjustment, Amount: req.Amount, Note: req.Note}
	if req.MemberID != "" {
		memberID, err := parseID(req.MemberID, "member_id")
		if err != nil {
			return nil, err
		}
		in.MemberID = &memberID
	}

	created, err := s.Apply(ctx, actor, []EntryInput{in})
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

func (s *ledgerService) CreateAccount(ctx context.Context, actor policy.Actor, req CreateAccountRequest) (*model.Account, error) {
	if err := s.policy.Check(actor, policy.AccountCreate, policy.State{}); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, apperror.Validation("invalid account: %v", err)
	}

	wantMembers := 1
	if req.Kind == model.AccountKindLinkedPair {
		wantMembers = 2
	}
	if len(req.Members) != wantMembers {
		return nil, apperror.Validation("%s account needs %d member(s), got %d", req.Kind, wantMembers, len(req.Members))
	}

	account := model.Account{Name: req.Name, Kind: req.Kind, Version: 1}
	for i, name := range req.Members {
		account.Members = append(account.Members, model.AccountMember{DisplayName: name, Position: i})
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.accountRepo.Create(txCtx, &account); err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionCreateAccount, account.ID.String(), account.Name, map[string]interface{}{
			"kind":    account.Kind,
			"members": req.Members,
		})
	})
	if err != nil {
		return nil, apperror.Persistence(apperror.CodePersistenceFailure, "account not created", err)
	}

	s.log.Info("account created", zap.String("account_id", account.ID.String()), zap.String("kind", account.Kind))
	return &account, nil
}

func (s *ledgerService) GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, apperror.CodeAccountNotFound, "account %s", id)
	}
	return account, nil
}

func (s *ledgerService) ListAccounts(ctx context.Context, kind string, page, limit int) ([]model.Account, int64, error) {
	page, limit = normalizePage(page, limit)
	accounts, total, err := s.accountRepo.List(ctx, kind, page, limit)
	if err != nil {
		return nil, 0, apperror.Persistence(apperror.CodePersistenceFailure, "failed to list accounts", err)
	}
	return accounts, total, nil
}

func (s *ledgerService) ListEntries(ctx context.Context, accountID uuid.UUID, page, limit int) ([]model.LedgerEntry, int64, error) {
	if _, err := s.accountRepo.FindByID(ctx, accountID); err != nil {
		return nil, 0, lookupErr(err, apperror.CodeAccountNotFound, "account %s", accountID)
	}
	page, limit = normalizePage(page, limit)
	entries, total, err := s.ledgerRepo.ListByAccount(ctx, accountID, page, limit)
	if err != nil {
		return nil, 0, apperror.Persistence(apperror.CodePersistenceFailure, "failed to list entries", err)
	}
	return entries, total, nil
}

// ResolveMembers returns the members in the order asked for. A linked pair's two
// members both resolve, each carrying the shared account id.
func (s *ledgerService) ResolveMembers(ctx context.Context, memberIDs []uuid.UUID) ([]model.AccountMember, error) {
	members, err := s.accountRepo.FindMembers(ctx, memberIDs)
	if err != nil {
		return nil, apperror.Persistence(apperror.CodePersistenceFailure, "failed to load members", err)
	}
	byID := make(map[uuid.UUID]model.AccountMember, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	out := make([]model.AccountMember, 0, len(memberIDs))
	for _, id := range memberIDs {
		m, ok := byID[id]
		if !ok {
			return nil, apperror.NotFound(apperror.CodeMemberNotFound, "member %s", id)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *ledgerService) VerifyBalance(ctx context.Context, accountID uuid.UUID) (*BalanceCheck, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, lookupErr(err, apperror.CodeAccountNotFound, "account %s", accountID)
	}
	live, err := s.ledgerRepo.SumByAccount(ctx, accountID)
	if err != nil {
		return nil, apperror.Persistence(apperror.CodePersistenceFailure, "failed to sum ledger entries", err)
	}

	check := &BalanceCheck{AccountID: accountID, Stored: account.Balance, Live: live, InSync: account.Balance == live}
	if !check.InSync {
		s.log.Error("account balance drifted from ledger",
			zap.String("account_id", accountID.String()), zap.Int64("stored", account.Balance), zap.Int64("live", live))
	}
	return check, nil
}
