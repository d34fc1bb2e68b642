package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorsTestSuite struct {
	suite.Suite
}

func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}

func (s *ErrorsTestSuite) TestHasCodeThroughWrapping() {
	base := New(CodeNotFound, "entity not found")
	wrapped := Wrap(base, CodeInternal, "resolve entity")

	s.True(HasCode(wrapped, CodeInternal))
	s.True(HasCode(wrapped, CodeNotFound))
	s.False(HasCode(wrapped, CodeConflict))
}

func (s *ErrorsTestSuite) TestHasCodeThroughFmtErrorf() {
	err := fmt.Errorf("outer: %w", New(CodeConflict, "still has children"))

	s.True(HasCode(err, CodeConflict))
}

func (s *ErrorsTestSuite) TestWrapNil() {
	s.Nil(Wrap(nil, CodeInternal, "noop"))
}

func (s *ErrorsTestSuite) TestCodeOfPlainError() {
	s.Equal(CodeInternal, CodeOf(errors.New("boom")))
}

func (s *ErrorsTestSuite) TestMessageOfHidesInternals() {
	s.Equal("internal error", MessageOf(errors.New("pq: connection refused")))
	s.Equal("entity not found", MessageOf(New(CodeNotFound, "entity not found")))
}

func (s *ErrorsTestSuite) TestToHTTPStatus() {
	s.Equal(http.StatusBadRequest, ToHTTPStatus(CodeBadRequest))
	s.Equal(http.StatusBadRequest, ToHTTPStatus(CodeValidation))
	s.Equal(http.StatusNotFound, ToHTTPStatus(CodeNotFound))
	s.Equal(http.StatusConflict, ToHTTPStatus(CodeConflict))
	s.Equal(http.StatusInternalServerError, ToHTTPStatus(CodeInternal))
}
