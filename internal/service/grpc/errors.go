package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

// statusCode сопоставляет доменную ошибку с gRPC кодом.
func statusCode(err error) codes.Code {
	if pe, ok := domain.AsPaymentError(err); ok {
		if errors.Is(pe.Kind, domain.ErrGatewayError) {
			return codes.Unavailable
		}
		return codes.InvalidArgument
	}

	switch {
	case domain.IsNotFound(err):
		return codes.NotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return codes.PermissionDenied
	case errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyPaid):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrRatingInvalid):
		return codes.InvalidArgument
	case domain.IsVersionConflict(err):
		return codes.Aborted
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// toStatus превращает ошибку сервиса в gRPC статус.
// Внутренние ошибки логируются, клиент получает только код.
func toStatus(logger *log.Entry, method string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := statusCode(err)
	if code == codes.Internal {
		logger.WithError(err).WithField("method", method).Error("request failed")
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
