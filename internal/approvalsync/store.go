package approvalsync

import (
	"context"

	"opsboard/internal/model"
	"opsboard/internal/policy"
)

// Saver is the write side of the approval set service.
type Saver interface {
	Save(ctx context.Context, actor policy.Actor, orgID, period string, rowKeys []string, flags []bool) (*model.ApprovalSet, error)
}

// ServiceStore binds a Saver to one actor and one approval set.
type ServiceStore struct {
	Saver  Saver
	Actor  policy.Actor
	OrgID  string
	Period string
}

func (s ServiceStore) Save(ctx context.Context, rowKeys []string, flags []bool) (*model.ApprovalSet, error) {
	return s.Saver.Save(ctx, s.Actor, s.OrgID, s.Period, rowKeys, flags)
}
