package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/teleshop/bot/internal/repositories"
)

// ErrAuditInvalidInput rejects audit records missing actor or action.
var ErrAuditInvalidInput = errors.New("audit record invalid")

// AuditLogServiceDeps wires the collaborators for NewAuditLogService.
type AuditLogServiceDeps struct {
	AuditLogs repositories.AuditLogRepository
	Clock     func() time.Time
	IDGen     func() string
}

type auditLogService struct {
	auditLogs repositories.AuditLogRepository
	clock     func() time.Time
	idGen     func() string
}

// NewAuditLogService validates dependencies and returns the audit trail service.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.AuditLogs == nil {
		return nil, errors.New("audit log service requires audit log repository")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &auditLogService{
		auditLogs: deps.AuditLogs,
		clock:     func() time.Time { return clock().UTC() },
		idGen:     idGen,
	}, nil
}

var _ AuditLogService = (*auditLogService)(nil)

func (s *auditLogService) Record(ctx context.Context, cmd AuditRecordCommand) error {
	actor := strings.TrimSpace(cmd.ActorID)
	action := strings.TrimSpace(cmd.Action)
	if actor == "" || action == "" {
		return fmt.Errorf("%w: actor and action are required", ErrAuditInvalidInput)
	}

	return s.auditLogs.Append(ctx, repositories.AuditLogEntry{
		ID:        "audit_" + s.idGen(),
		ActorID:   actor,
		Action:    action,
		TargetRef: strings.TrimSpace(cmd.TargetRef),
		Details:   cmd.Details,
		CreatedAt: s.clock(),
	})
}
