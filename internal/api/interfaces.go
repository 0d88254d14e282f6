package api

import (
	"context"

	"booking-saga/internal/eventlog"
	"booking-saga/internal/saga"
)

type Coordinator interface {
	Start(ctx context.Context, req saga.StartRequest) (sagaID string, err error)
	GetSaga(ctx context.Context, sagaID string) (*saga.Instance, error)
	GetAllSagas(ctx context.Context) ([]*saga.Instance, error)
	GetEvents(ctx context.Context, sagaID string) ([]eventlog.Record, error)
	RecoverStuckNotifications(ctx context.Context, sagaID string) error
	RecoverStuckPayment(ctx context.Context, sagaID string) error
}
