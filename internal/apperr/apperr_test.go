package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("disk I/O error")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", cause, KindInternal},
		{"direct", NotFound("document %q", "abc"), KindNotFound},
		{"wrapped", fmt.Errorf("ingest: %w", Persistence(cause, "commit failed")), KindPersistenceFailure},
		{"too large", TooLarge(10, 5), KindTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMessageOf_HidesCause(t *testing.T) {
	err := Persistence(errors.New("pq: relation \"sections\" does not exist"), "could not store document")
	assert.Equal(t, "could not store document", MessageOf(err))
	assert.Equal(t, "internal error", MessageOf(errors.New("boom")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Persistence(nil, "rolled back")))
	assert.False(t, IsRetryable(InvalidInput("empty file")))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestErrorsIs_ByKind(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFound("section %q", "1.2"))
	assert.ErrorIs(t, err, NotFound(""))
	assert.NotErrorIs(t, err, InvalidInput(""))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("zip: not a valid zip file")
	err := InvalidInputWrap(cause, "unreadable document")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "invalid_input")
}
