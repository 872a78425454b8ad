package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

const (
	// IdempotencyKeyHeader — metadata с ключом идемпотентности.
	IdempotencyKeyHeader  = "idempotency-key"
	defaultIdempotencyTTL = 24 * time.Hour
)

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// withIdempotency выполняет handler не более одного раза на ключ.
// Без ключа или без хранилища запрос не дедуплицируется.
func (s *OrderService) withIdempotency(
	ctx context.Context,
	method string,
	userID string,
	req *structpb.Struct,
	handler func(context.Context) (*structpb.Struct, error),
) (*structpb.Struct, error) {
	idemKey := readIdempotencyKey(ctx)
	if s.idemRepo == nil || idemKey == "" {
		return handler(ctx)
	}

	// Ключ действует в пределах пользователя.
	reqHash, err := buildIdempotencyRequestHash(FullMethod(method)+"#"+userID, req)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to build idempotency request hash")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	record, err := s.idemRepo.CreateProcessing(ctx, idemKey, reqHash, s.clock().UTC().Add(s.idempotencyTTL))
	if err != nil {
		return s.replayIdempotency(err, record)
	}

	resp, runErr := handler(ctx)
	// Исход фиксируется даже если клиент уже отключился.
	storeCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		s.cacheIdempotencyFailure(storeCtx, idemKey, runErr)
		return resp, runErr
	}

	if cacheErr := s.cacheIdempotencySuccess(storeCtx, idemKey, resp); cacheErr != nil {
		s.logger.WithError(cacheErr).WithField("idempotency_key", idemKey).Warn("failed to store idempotent success response")
	}

	return resp, nil
}

func (s *OrderService) replayIdempotency(createErr error, record domain.IdempotencyRecord) (*structpb.Struct, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone:
			if len(record.ResponseBody) == 0 {
				return nil, status.Error(codes.Internal, "idempotency cache is empty")
			}
			resp := new(structpb.Struct)
			if err := protojson.Unmarshal(record.ResponseBody, resp); err != nil {
				s.logger.WithError(err).WithField("idempotency_key", record.Key).Warn("failed to decode cached idempotency response")
				return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
			}
			return resp, nil
		case domain.IdempotencyStatusProcessing:
			return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
		case domain.IdempotencyStatusFailed:
			return nil, decodeIdempotencyFailure(record)
		default:
			return nil, status.Error(codes.Internal, "unknown idempotency record status")
		}
	default:
		s.logger.WithError(createErr).Warn("failed to create idempotency record")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}
}

func (s *OrderService) cacheIdempotencySuccess(ctx context.Context, key string, resp proto.Message) error {
	if resp == nil {
		return s.idemRepo.MarkDone(ctx, key, nil, int(codes.OK))
	}

	data, err := protojson.Marshal(resp)
	if err != nil {
		return err
	}
	return s.idemRepo.MarkDone(ctx, key, data, int(codes.OK))
}

func (s *OrderService) cacheIdempotencyFailure(ctx context.Context, key string, runErr error) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}

	payload, err := json.Marshal(idempotencyErrorPayload{
		Code:    int32(code), //nolint:gosec // codes.Code is a bounded enum value.
		Message: st.Message(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotency failure payload")
		payload = nil
	}

	if err := s.idemRepo.MarkFailed(ctx, key, payload, int(code)); err != nil {
		s.logger.WithFields(log.Fields{
			"idempotency_key": key,
			"code":            code.String(),
		}).WithError(err).Warn("failed to store idempotency failure response")
	}
}

func decodeIdempotencyFailure(record domain.IdempotencyRecord) error {
	if len(record.ResponseBody) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(record.ResponseBody, &payload); err == nil {
			if code, ok := grpcCode(int(payload.Code)); ok {
				if code == codes.OK {
					code = codes.Internal
				}
				if payload.Message == "" {
					payload.Message = "previous request with the same idempotency key failed"
				}
				return status.Error(code, payload.Message)
			}
		}
	}

	if record.Code > 0 {
		if code, ok := grpcCode(record.Code); ok {
			return status.Error(code, "previous request with the same idempotency key failed")
		}
	}

	return status.Error(codes.Internal, "previous request with the same idempotency key failed")
}

func grpcCode(value int) (codes.Code, bool) {
	if value < int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true
}

// readIdempotencyKey возвращает пустую строку, если ключ не передан.
func readIdempotencyKey(ctx context.Context) string {
	if key := metadataValue(ctx, IdempotencyKeyHeader); key != "" {
		return key
	}
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		if values := md.Get(IdempotencyKeyHeader); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

func buildIdempotencyRequestHash(scope string, req proto.Message) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", err
	}

	payload := make([]byte, 0, len(scope)+1+len(data))
	payload = append(payload, scope...)
	payload = append(payload, ':')
	payload = append(payload, data...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
