package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		contains []string
	}{
		{
			name:     "type and message",
			err:      AuthError("token rejected"),
			contains: []string{"authentication", "token rejected"},
		},
		{
			name:     "includes cause",
			err:      UpstreamError("lookup failed", fmt.Errorf("connection refused")),
			contains: []string{"upstream", "lookup failed", "connection refused"},
		},
		{
			name:     "includes context",
			err:      ValidationError("missing input").WithContext("param", "search"),
			contains: []string{"validation", "param=search"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				assert.Contains(t, msg, want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := StorageError("put failed", cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.Nil(t, AuthError("no cause").Unwrap())
}

func TestIsType(t *testing.T) {
	assert.True(t, IsType(RateLimitError("token endpoint"), ErrTypeRateLimit))
	assert.False(t, IsType(RateLimitError("token endpoint"), ErrTypeAuth))
	assert.False(t, IsType(fmt.Errorf("plain"), ErrTypeAuth))
	assert.False(t, IsType(nil, ErrTypeAuth))
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrTypeCredential, GetType(CredentialError("secret missing", nil)))
	assert.Equal(t, ErrTypeInternal, GetType(fmt.Errorf("plain")))
	assert.Equal(t, ErrorType(""), GetType(nil))
}

func TestRetryAfterHint(t *testing.T) {
	err := RateLimitError("oauth").WithRetryAfter(7 * time.Second)

	hint, ok := RetryAfterHint(err)
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, hint)

	_, ok = RetryAfterHint(RateLimitError("oauth"))
	assert.False(t, ok)

	_, ok = RetryAfterHint(fmt.Errorf("plain"))
	assert.False(t, ok)
}
