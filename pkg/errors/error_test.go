package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (suite *ErrorTestSuite) TestNewf() {
	err := Newf(ErrCodeInvalidInput, "frame has %d rows", 0)
	suite.Equal(ErrCodeInvalidInput, err.Code)
	suite.Equal("frame has 0 rows", err.Message)
	suite.Nil(err.Cause)
	suite.Equal("[100] frame has 0 rows", err.Error())
}

func (suite *ErrorTestSuite) TestWrapKeepsCause() {
	cause := errors.New("disk full")
	err := Wrapf(ErrCodePageWriteFailed, cause, "page %d", 3)
	suite.Equal("[202] page 3: disk full", err.Error())
	suite.True(Is(err, cause))
	suite.Equal(cause, err.Unwrap())
}

func (suite *ErrorTestSuite) TestGetCodeUsesOutermost() {
	inner := New(ErrCodeDataNotFound, "missing")
	err := Wrap(ErrCodeStageFailed, "stage failed", inner)
	suite.Equal(ErrCodeStageFailed, GetCode(err))
	suite.True(HasCode(fmt.Errorf("ctx: %w", err), ErrCodeStageFailed))
}

func (suite *ErrorTestSuite) TestGetCodeForPlainErrors() {
	suite.Equal(ErrCodeUnknown, GetCode(errors.New("plain")))
	suite.Equal(ErrCodeCancellationRequested, GetCode(context.Canceled))
	suite.Equal(ErrCodeCancellationRequested, GetCode(fmt.Errorf("read page: %w", context.DeadlineExceeded)))
}

func (suite *ErrorTestSuite) TestIsCancellation() {
	suite.False(IsCancellation(nil))
	suite.False(IsCancellation(errors.New("plain")))
	suite.True(IsCancellation(New(ErrCodeCancellationRequested, "stop")))
	suite.True(IsCancellation(Wrap(ErrCodeStageFailed, "stage", context.Canceled)))
}

func (suite *ErrorTestSuite) TestKind() {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "cancelled", err: context.Canceled, want: "cancelled"},
		{name: "schema", err: New(ErrCodeSchemaViolation, "x"), want: "schema_violation"},
		{name: "missing column", err: New(ErrCodeMissingColumn, "x"), want: "schema_violation"},
		{name: "not found", err: New(ErrCodeDataNotFound, "x"), want: "data_not_found"},
		{name: "invalid", err: New(ErrCodeInvalidInput, "x"), want: "invalid_input"},
		{name: "optimization", err: New(ErrCodeTrialTimeout, "x"), want: "optimization_failure"},
		{name: "other", err: errors.New("boom"), want: "internal_error"},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.Equal(tc.want, Kind(tc.err))
		})
	}
}

func (suite *ErrorTestSuite) TestAs() {
	err := fmt.Errorf("outer: %w", New(ErrCodeInvalidWindow, "bad window"))

	var target *Error
	suite.True(As(err, &target))
	suite.Equal(ErrCodeInvalidWindow, target.Code)
}
