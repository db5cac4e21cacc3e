package errors

import (
	"fmt"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		err    *StackError
		status int
		code   string
		msg    string
	}{
		{"MethodNotAllowed", MethodNotAllowed(), http.StatusBadRequest, CodeMethodNotAllowed, "Method not allowed"},
		{"InvalidJSON", InvalidJSON(fmt.Errorf("unexpected EOF")), http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON body"},
		{"Validation", Validation("At least one message is required"), http.StatusBadRequest, CodeValidation, "At least one message is required"},
		{"ValidationDefault", Validation(""), http.StatusBadRequest, CodeValidation, "Invalid request"},
		{"Configuration", Configuration(), http.StatusInternalServerError, CodeConfiguration, "API key is not configured"},
		{"RateLimited", RateLimited(), http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded. Please try again later."},
		{"PaymentRequired", PaymentRequired(), http.StatusPaymentRequired, CodePaymentRequired, "Payment required. Please add credits to continue."},
		{"Upstream", UpstreamUnavailable(fmt.Errorf("dial tcp")), http.StatusInternalServerError, CodeUpstreamUnavailable, "AI service temporarily unavailable"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.status, c.err.Status())
			assert.Equal(t, c.code, c.err.Code())
			assert.Equal(t, c.msg, c.err.Msg())
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := UpstreamUnavailable(cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Stack(), "connection refused")
	assert.Equal(t, MsgServiceUnavailable, err.Msg())
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	se := RateLimited()
	wrapped := pkgerrors.Wrap(se, "calling gateway")
	assert.Same(t, se, From(wrapped))

	other := From(fmt.Errorf("boom"))
	assert.Equal(t, CodeInternal, other.Code())
	assert.True(t, pkgerrors.Is(RateLimited(), RateLimited()))
}
