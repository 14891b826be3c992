package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/teleshop/bot/internal/domain"
	pfirestore "github.com/teleshop/bot/internal/platform/firestore"
	"github.com/teleshop/bot/internal/repositories"
)

const auditLogCollection = "auditLogs"

// AuditLogRepository appends immutable audit entries for admin actions.
type AuditLogRepository struct {
	coll *pfirestore.Collection[repositories.AuditLogEntry]
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	return &AuditLogRepository{coll: pfirestore.NewCollection[repositories.AuditLogEntry](provider, auditLogCollection)}, nil
}

// Append writes the entry; entries are never updated or deleted.
func (r *AuditLogRepository) Append(ctx context.Context, entry repositories.AuditLogEntry) error {
	if r == nil || r.coll == nil {
		return errors.New("audit log repository not initialised")
	}
	doc, err := r.coll.Doc(ctx, entry.ID)
	if err != nil {
		return err
	}
	if _, err := doc.Create(ctx, entry); err != nil {
		return pfirestore.WrapError("auditLogs.append", err)
	}
	return nil
}

// List returns a page of audit entries, newest first.
func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[repositories.AuditLogEntry], error) {
	if r == nil || r.coll == nil {
		return domain.CursorPage[repositories.AuditLogEntry]{}, errors.New("audit log repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}

	docs, err := r.coll.Query(ctx, func(q firestore.Query) firestore.Query {
		if actor := strings.TrimSpace(filter.ActorID); actor != "" {
			q = q.Where("actorId", "==", actor)
		}
		if target := strings.TrimSpace(filter.TargetRef); target != "" {
			q = q.Where("targetRef", "==", target)
		}
		if action := strings.TrimSpace(filter.Action); action != "" {
			q = q.Where("action", "==", action)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<", filter.DateRange.To.UTC())
		}
		return q.OrderBy("createdAt", firestore.Desc).Limit(pageSize)
	})
	if err != nil {
		return domain.CursorPage[repositories.AuditLogEntry]{}, err
	}

	page := domain.CursorPage[repositories.AuditLogEntry]{Items: make([]repositories.AuditLogEntry, 0, len(docs))}
	for _, doc := range docs {
		entry := doc.Data
		entry.ID = doc.ID
		page.Items = append(page.Items, entry)
	}
	return page, nil
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)
