package reminder

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFailureRules_Classify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, Delivered},
		{"blocked", &DeliveryError{Code: 403, Description: "Forbidden: bot was blocked by the user"}, Permanent},
		{"deactivated", &DeliveryError{Code: 403, Description: "Forbidden: user is deactivated"}, Permanent},
		{"never started", &DeliveryError{Code: 403, Description: "Forbidden: bot can't initiate conversation with a user"}, Permanent},
		{"chat not found", &DeliveryError{Code: 400, Description: "Bad Request: chat not found"}, Permanent},
		{"case insensitive", &DeliveryError{Code: 400, Description: "Bad Request: CHAT NOT FOUND"}, Permanent},
		{"wrapped", fmt.Errorf("send: %w", &DeliveryError{Code: 403, Description: "bot was blocked by the user"}), Permanent},
		{"rate limited", &DeliveryError{Code: 429, Description: "Too Many Requests: retry after 5"}, Transient},
		{"code mismatch", &DeliveryError{Code: 400, Description: "bot was blocked by the user"}, Transient},
		{"other 403", &DeliveryError{Code: 403, Description: "Forbidden: bot is not a member of the channel chat"}, Transient},
		{"server error", &DeliveryError{Code: 502, Description: "Bad Gateway"}, Transient},
		{"timeout", context.DeadlineExceeded, Transient},
		{"plain", errors.New("connection reset"), Transient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultFailureRules.Classify(tt.err))
		})
	}
}

func TestParseFailureRules(t *testing.T) {
	rules, err := ParseFailureRules("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFailureRules, rules)

	rules, err = ParseFailureRules(" 403:bot was blocked by the user ; 400 : chat not found;410:")
	require.NoError(t, err)
	assert.Equal(t, FailureRules{
		{Code: 403, Contains: "bot was blocked by the user"},
		{Code: 400, Contains: "chat not found"},
		{Code: 410, Contains: ""},
	}, rules)
	assert.Equal(t, Permanent, rules.Classify(&DeliveryError{Code: 410, Description: "anything"}))
	assert.Equal(t, Transient, rules.Classify(&DeliveryError{Code: 403, Description: "user is deactivated"}))

	for _, bad := range []string{"403", "abc:blocked", "-1:x", ";;"} {
		_, err := ParseFailureRules(bad)
		assert.Error(t, err, bad)
	}
}

func TestDeliveryError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &DeliveryError{Code: 500, Description: "Internal", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "500")
}
