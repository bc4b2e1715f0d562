package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"type":"call.session_started"}`)
	sig := Sign("secret", body)

	require.NoError(t, VerifySignature("secret", sig, body))
}

func TestVerifySignature_Tampered(t *testing.T) {
	body := []byte(`{"type":"call.session_started"}`)
	sig := Sign("secret", body)

	err := VerifySignature("secret", sig, []byte(`{"type":"call.session_ended"}`))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{}`)
	sig := Sign("other", body)

	err := VerifySignature("secret", sig, body)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignature_Missing(t *testing.T) {
	err := VerifySignature("secret", "", []byte(`{}`))
	assert.ErrorIs(t, err, ErrMissingSignature)
}
