// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
	"gorm.io/gorm"
)

// ErrorDomain tags ErrorInfo details produced by Map.
const ErrorDomain = "buildermatch"

// Map converts domain/infra errors into gRPC status errors.
// Errors that already carry a status pass through unchanged.
// A RetryError keeps its cause's code and gains an ErrorInfo naming the retry method.
func Map(err error) error {
	if err == nil {
		return nil
	}
	var retry *RetryError
	if errors.As(err, &retry) {
		st := status.Convert(Map(retry.Err))
		return withDetail(st.Code(), st.Message()+"; retry with "+retry.Method, &errdetails.ErrorInfo{
			Reason:   retry.Reason,
			Domain:   ErrorDomain,
			Metadata: map[string]string{"retry_method": retry.Method},
		})
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var field *FieldError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())

	case errors.Is(err, ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())

	case errors.Is(err, ErrDuplicateSwipe), errors.Is(err, ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, ErrRateLimited):
		return withDetail(codes.ResourceExhausted, err.Error(), &errdetails.QuotaFailure{
			Violations: []*errdetails.QuotaFailure_Violation{{
				Subject:     "super_connect",
				Description: err.Error(),
			}},
		})

	case errors.As(err, &field):
		return withDetail(codes.InvalidArgument, err.Error(), &errdetails.BadRequest{
			FieldViolations: []*errdetails.BadRequest_FieldViolation{{
				Field:       field.Field,
				Description: field.Reason,
			}},
		})

	case errors.Is(err, ErrEmptyContent):
		return withDetail(codes.InvalidArgument, err.Error(), &errdetails.BadRequest{
			FieldViolations: []*errdetails.BadRequest_FieldViolation{{
				Field:       "content",
				Description: "must not be empty",
			}},
		})

	case errors.Is(err, ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	case errors.Is(err, ErrUnavailable):
		return status.Error(codes.Unavailable, "backend unavailable")

	default:
		// fallback → bubble up error message for debugging
		return status.Error(codes.Internal, err.Error())
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in the transport layer for undecodable input.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}

func withDetail(code codes.Code, msg string, d protoadapt.MessageV1) error {
	st := status.New(code, msg)
	if withD, err := st.WithDetails(d); err == nil {
		st = withD
	}
	return st.Err()
}
