package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/repositories"
)

// Order service errors.
var (
	ErrOrderInvalidInput      = errors.New("order input invalid")
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderInvalidTransition = errors.New("invalid order status transition")
	ErrOrderCancelNotAllowed  = errors.New("order cancellation not allowed")
	ErrOrderUnavailable       = errors.New("order storage unavailable")
)

// defaultArchiveDelay is how long a completed order stays in the active
// collection before the deferred archival fires.
const defaultArchiveDelay = 24 * time.Hour

// orderStateTransitions is the public transition table. Terminal statuses
// have no entry: completed, cancelled, rejected and refunded reject every
// requested transition. Refunded is reachable only through MarkRefunded.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled, domain.OrderStatusRejected},
	domain.OrderStatusProcessing: {domain.OrderStatusCompleted, domain.OrderStatusReady, domain.OrderStatusCancelled},
	domain.OrderStatusReady:      {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered:  {domain.OrderStatusCompleted},
}

func transitionAllowed(from, to domain.OrderStatus) bool {
	for _, next := range orderStateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderServiceDeps wires the collaborators for NewOrderService.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Events       EventPublisher
	Notifier     NotificationDispatcher
	Audit        AuditLogService
	Scheduler    DeferredScheduler
	ArchiveDelay time.Duration
	Clock        func() time.Time
	Logger       Logger
}

type orderService struct {
	orders       repositories.OrderRepository
	events       EventPublisher
	notifier     NotificationDispatcher
	audit        AuditLogService
	scheduler    DeferredScheduler
	archiveDelay time.Duration
	clock        func() time.Time
	logger       Logger
}

// NewOrderService validates dependencies and returns the order status service.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service requires order repository")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	delay := deps.ArchiveDelay
	if delay <= 0 {
		delay = defaultArchiveDelay
	}

	return &orderService{
		orders:       deps.Orders,
		events:       deps.Events,
		notifier:     deps.Notifier,
		audit:        deps.Audit,
		scheduler:    deps.Scheduler,
		archiveDelay: delay,
		clock:        func() time.Time { return clock().UTC() },
		logger:       logger,
	}, nil
}

var _ OrderService = (*orderService)(nil)

func (s *orderService) Get(ctx context.Context, orderID string) (Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID: strings.TrimSpace(cmd.UserID),
		Status: cmd.Status,
		Pagination: domain.Pagination{
			PageSize:  cmd.PageSize,
			PageToken: cmd.PageToken,
		},
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// UpdateStatus applies one step of the state machine. Requesting the current
// status is a no-op; anything outside the transition table fails with
// ErrOrderInvalidTransition and leaves the order untouched.
func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if order.Status == cmd.Target {
		return order, nil
	}
	if !transitionAllowed(order.Status, cmd.Target) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, cmd.Target)
	}

	return s.applyTransition(ctx, order, cmd.Target, cmd.Note, cmd.ActorID, cmd.ActorAdmin)
}

// Cancel is the user-facing shortcut into the cancelled state. Users may only
// cancel while the order is still pending; admins may cancel from any
// non-terminal state.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if order.Terminal() {
		return Order{}, fmt.Errorf("%w: order is %s", ErrOrderCancelNotAllowed, order.Status)
	}
	if !cmd.ActorAdmin {
		if order.UserID != cmd.ActorID {
			return Order{}, fmt.Errorf("%w: not the order owner", ErrOrderCancelNotAllowed)
		}
		if order.Status != domain.OrderStatusPending {
			return Order{}, fmt.Errorf("%w: order already %s", ErrOrderCancelNotAllowed, order.Status)
		}
	}

	note := strings.TrimSpace(cmd.Reason)
	if note == "" {
		note = "cancelled"
	}
	return s.applyTransition(ctx, order, domain.OrderStatusCancelled, note, cmd.ActorID, cmd.ActorAdmin)
}

// MarkRefunded moves the order to refunded. It bypasses the public transition
// table because refunds close out orders the table already treats as terminal.
// Only the payment refund path calls it.
func (s *orderService) MarkRefunded(ctx context.Context, cmd MarkRefundedCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if order.Status == domain.OrderStatusRefunded {
		return order, nil
	}

	note := strings.TrimSpace(cmd.Note)
	if note == "" {
		note = "payment refunded"
	}
	return s.applyTransition(ctx, order, domain.OrderStatusRefunded, note, cmd.ActorID, true)
}

// applyTransition writes the new status with its timeline entry, then fans
// out the notification, the event and the archival bookkeeping. The write is
// the single source of truth; everything after it is best-effort.
func (s *orderService) applyTransition(ctx context.Context, order Order, target domain.OrderStatus, note, actorID string, actorAdmin bool) (Order, error) {
	previous := order.Status
	now := s.clock()
	entry := domain.TimelineEntry{
		Status:    target,
		Timestamp: now,
		Note:      strings.TrimSpace(note),
		ActorID:   actorID,
	}

	order.Status = target
	order.Timeline = append(order.Timeline, entry)
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "order.status_changed", map[string]any{
		"orderId":  order.ID,
		"previous": string(previous),
		"current":  string(target),
		"actorId":  actorID,
	})
	if actorAdmin {
		s.recordAudit(ctx, actorID, "order.status."+string(target), order.ID, map[string]any{
			"previous": string(previous),
		})
	}

	s.publishTransition(ctx, order, previous, actorID)
	if s.notifier != nil {
		s.notifier.OrderStatusChanged(ctx, order, entry)
	}
	s.manageArchival(order, target)

	return order, nil
}

func (s *orderService) publishTransition(ctx context.Context, order Order, previous domain.OrderStatus, actorID string) {
	if s.events == nil {
		return
	}
	eventType := OrderEventStatusChanged
	switch order.Status {
	case domain.OrderStatusCancelled:
		eventType = OrderEventCancelled
	case domain.OrderStatusRefunded:
		eventType = OrderEventRefunded
	}
	event := OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: previous,
		CurrentStatus:  order.Status,
		ActorID:        actorID,
		OccurredAt:     s.clock(),
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    eventType,
			"error":   err.Error(),
		})
	}
}

// manageArchival schedules the deferred archive sweep when an order
// completes, and cancels a pending one when a later transition reverses the
// completion (a refund, in practice).
func (s *orderService) manageArchival(order Order, target domain.OrderStatus) {
	if s.scheduler == nil {
		return
	}
	key := "order.archive:" + order.ID
	if target == domain.OrderStatusCompleted {
		orderID := order.ID
		s.scheduler.Schedule(key, s.archiveDelay, func(ctx context.Context) {
			s.archive(ctx, orderID)
		})
		return
	}
	s.scheduler.Cancel(key)
}

// archive flags a completed order so listings and sweeps skip it. The order
// document itself stays put; archival is a marker, not a move.
func (s *orderService) archive(ctx context.Context, orderID string) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		s.logger(ctx, "order.archive_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return
	}
	if order.Status != domain.OrderStatusCompleted {
		return
	}
	now := s.clock()
	if order.Metadata == nil {
		order.Metadata = map[string]any{}
	}
	order.Metadata["archived"] = true
	order.Metadata["archivedAt"] = now
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order); err != nil {
		s.logger(ctx, "order.archive_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return
	}
	s.logger(ctx, "order.archived", map[string]any{"orderId": orderID})
}

func (s *orderService) recordAudit(ctx context.Context, actorID, action, targetRef string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, AuditRecordCommand{
		ActorID:   actorID,
		Action:    action,
		TargetRef: targetRef,
		Details:   details,
	}); err != nil {
		s.logger(ctx, "order.audit_failed", map[string]any{
			"action": action,
			"error":  err.Error(),
		})
	}
}

func (s *orderService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}
