package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureTokenIsStablePerSession(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := &Session{ID: "abc"}

	first, err := m.EnsureToken(sess)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := m.EnsureToken(sess)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestVerifyRequestAcceptsHeaderToken(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := &Session{ID: "abc"}
	token, err := m.EnsureToken(sess)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(CSRFHeader, token)
	assert.NoError(t, m.VerifyRequest(req, sess))
}

func TestVerifyRequestRejectsMissingAndMismatched(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := &Session{ID: "abc"}
	_, err := m.EnsureToken(sess)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.ErrorIs(t, m.VerifyRequest(req, sess), ErrCSRFTokenMissing)

	req.Header.Set(CSRFHeader, "forged")
	assert.ErrorIs(t, m.VerifyRequest(req, sess), ErrCSRFTokenMismatch)

	assert.ErrorIs(t, m.VerifyRequest(req, nil), ErrCSRFTokenMissing)
}
