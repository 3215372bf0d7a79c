package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

func newOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:outbox_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return conn
}

func TestServiceEmitWritesEnvelope(t *testing.T) {
	conn := newOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "ORD-1",
		Actor:         &ActorRef{UserID: uuid.New(), Role: "customer"},
		Data:          map[string]string{"order_id": "ORD-1"},
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, "ORD-1", rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, CurrentVersion, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.JSONEq(t, `{"order_id":"ORD-1"}`, string(envelope.Data))
}

func TestServiceEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{AggregateID: "x"})
	require.Error(t, err)
}

func TestServiceEmitValidatesEvent(t *testing.T) {
	conn := newOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     "order_teleported",
		AggregateType: enums.AggregateOrder,
		AggregateID:   "ORD-1",
		Data:          map[string]string{"order_id": "ORD-1"},
	})
	require.Error(t, err)

	err = svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventVendorSettled,
		AggregateType: enums.AggregateSettlement,
		Data:          map[string]string{"settlement_id": "STL-1"},
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestServiceEmitUsesEnvelopeIDAsRowID(t *testing.T) {
	conn := newOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)
	require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventVendorSettled,
		AggregateType: enums.AggregateSettlement,
		AggregateID:   "STL-1",
		Data:          map[string]string{"settlement_id": "STL-1"},
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	env, err := OpenEnvelope(row.Payload)
	require.NoError(t, err)
	require.Equal(t, row.ID.String(), env.EventID)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := newOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	for _, id := range []string{"ORD-1", "ORD-2"} {
		require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   id,
			Data:          map[string]string{"order_id": id},
		}))
	}

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkTerminalTx(conn, rows[1].ID, errors.New("bad payload"), 3))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestDLQRequeueRestoresAttemptBudget(t *testing.T) {
	conn := newOutboxDB(t)
	repo := NewRepository(conn)
	dlq := NewDLQRepository(conn)
	svc := NewService(repo, nil)
	require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventStoreOrderRefunded,
		AggregateType: enums.AggregateStoreOrder,
		AggregateID:   uuid.NewString(),
		Data:          map[string]string{"reason": "damaged"},
	}))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]

	long := strings.Repeat("x", maxErrorLen+10)
	require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
	}))
	require.NoError(t, repo.MarkTerminalTx(conn, row.ID, errors.New("broker down"), 3))

	listed, err := dlq.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Len(t, *listed[0].ErrorMessage, maxErrorLen)

	require.NoError(t, dlq.Requeue(context.Background(), row.ID))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Zero(t, rows[0].AttemptCount)

	require.ErrorIs(t, dlq.Requeue(context.Background(), row.ID), ErrNotDeadLettered)
}
