package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"opsboard/internal/apperror"
	"opsboard/internal/model"
	"opsboard/internal/notify"
	"opsboard/internal/policy"
	"opsboard/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPage  = 1
	defaultLimit = 20
)

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = defaultPage
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return page, limit
}

// lookupErr turns a missing row into a NotFound error and anything else into a
// persistence failure.
func lookupErr(err error, code apperror.Code, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(code, format, args...)
	}
	return apperror.Persistence(apperror.CodePersistenceFailure, fmt.Sprintf("failed to load "+format, args...), err)
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid %s: %q", field, raw)
	}
	return id, nil
}

// writeAudit records an audit row in the transaction carried by ctx.
func writeAudit(ctx context.Context, repo repository.AuditRepository, actor policy.Actor, action, entityID, entityName string, details map[string]interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}
	entry := model.AuditLog{
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := repo.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// outcome reports the result of an operation to the actor and the log. Rejections
// log at warn with their code, store failures at error.
type outcome struct {
	log   *zap.Logger
	sink  notify.Sink
	clock Clock
}

func (o outcome) report(ctx context.Context, actor policy.Actor, op policy.Action, entityID string, err error, okMessage string) {
	n := notify.Notification{
		Actor:     actor.ID,
		Operation: string(op),
		EntityID:  entityID,
		OK:        err == nil,
		Message:   okMessage,
		At:        o.clock.Now(),
	}

	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.String("entity_id", entityID),
		zap.String("actor", actor.ID),
	}
	switch {
	case err == nil:
		o.log.Info(okMessage, fields...)
	case apperror.KindOf(err) == apperror.KindPersistence:
		n.Code = string(apperror.CodeOf(err))
		n.Message = err.Error()
		o.log.Error("operation failed", append(fields, zap.Error(err))...)
	default:
		n.Code = string(apperror.CodeOf(err))
		n.Message = err.Error()
		o.log.Warn("operation rejected", append(fields, zap.String("code", n.Code), zap.Error(err))...)
	}

	if notifyErr := o.sink.Notify(ctx, n); notifyErr != nil {
		o.log.Warn("failed to deliver notification", zap.Error(notifyErr))
	}
}
