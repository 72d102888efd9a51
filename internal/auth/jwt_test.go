package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	utils "github.com/fathima-sithara/tinytalk/internal/utils"
)

func TestLogin_WrongPINIsUnauthorized(t *testing.T) {
	a, err := New("1234", []byte("secret"), time.Hour)
	require.NoError(t, err)

	_, err = a.Login("9999")
	assert.ErrorIs(t, err, utils.ErrUnauthorized)
	assert.Equal(t, 401, utils.StatusFor(err))

	tok, err := a.Login("1234")
	require.NoError(t, err)
	assert.NoError(t, a.Verify(tok))
}

func TestNew_DefaultsPIN(t *testing.T) {
	a, err := New("", nil, 0)
	require.NoError(t, err)
	assert.True(t, a.CheckPIN(DefaultPIN))
	assert.False(t, a.CheckPIN(""))
	assert.Len(t, a.secret, 32)
}

func TestVerify_Rejections(t *testing.T) {
	a, err := New("1234", []byte("secret"), time.Hour)
	require.NoError(t, err)
	tok, err := a.Issue()
	require.NoError(t, err)

	other, err := New("1234", []byte("another"), time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, other.Verify(tok), utils.ErrUnauthorized)

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.ErrorIs(t, a.Verify(tok), utils.ErrUnauthorized)

	assert.ErrorIs(t, a.Verify(""), utils.ErrUnauthorized)
	assert.ErrorIs(t, a.Verify("not.a.token"), utils.ErrUnauthorized)
}
