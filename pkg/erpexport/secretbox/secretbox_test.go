package secretbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := New([]byte("process-master-secret"))
	require.NoError(t, err)

	plaintext := []byte(`{"export_path": "/srv/erp/in", "ack_path": "/srv/erp/out"}`)
	ad := []byte("conn-1234")

	envelope, err := box.Seal(plaintext, ad)
	require.NoError(t, err)
	assert.Equal(t, Version1, envelope[0])
	assert.NotContains(t, string(envelope), "/srv/erp/in")

	opened, err := box.Open(envelope, ad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealProducesFreshNonces(t *testing.T) {
	box, err := New([]byte("secret"))
	require.NoError(t, err)

	a, err := box.Seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := box.Seal([]byte("same"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two seals of the same plaintext must differ")
}

func TestOpenRejectsWrongAssociatedData(t *testing.T) {
	box, err := New([]byte("secret"))
	require.NoError(t, err)

	envelope, err := box.Seal([]byte("config"), []byte("conn-a"))
	require.NoError(t, err)

	_, err = box.Open(envelope, []byte("conn-b"))
	assert.Error(t, err)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	box, err := New([]byte("secret"))
	require.NoError(t, err)

	envelope, err := box.Seal([]byte("config"), nil)
	require.NoError(t, err)
	envelope[len(envelope)-1] ^= 0x01

	_, err = box.Open(envelope, nil)
	assert.Error(t, err)
}

func TestOpenRejectsUnknownVersion(t *testing.T) {
	box, err := New([]byte("secret"))
	require.NoError(t, err)

	envelope, err := box.Seal([]byte("config"), nil)
	require.NoError(t, err)
	envelope[0] = 9

	_, err = box.Open(envelope, nil)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestOpenRejectsShortEnvelope(t *testing.T) {
	box, err := New([]byte("secret"))
	require.NoError(t, err)

	_, err = box.Open([]byte{Version1, 1, 2}, nil)
	assert.Error(t, err)
}

func TestDifferentSecretsCannotOpen(t *testing.T) {
	boxA, err := New([]byte("secret-a"))
	require.NoError(t, err)
	boxB, err := New([]byte("secret-b"))
	require.NoError(t, err)

	envelope, err := boxA.Seal([]byte("config"), nil)
	require.NoError(t, err)

	_, err = boxB.Open(envelope, nil)
	assert.Error(t, err)
}

func TestNewRejectsEmptySecret(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
