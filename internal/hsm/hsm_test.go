package hsm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

func TestSoftwareProviderGenerateSignVerify(t *testing.T) {
	p := NewSoftwareProvider()
	ctx := context.Background()

	require.NoError(t, p.GenerateIdentityKey(ctx, "alice"))

	edPub, dilPub, err := p.PublicKeys(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, edPub)
	require.NotEmpty(t, dilPub)

	sig, err := p.SignHybrid(ctx, "alice", []byte("transcript"))
	require.NoError(t, err)
	require.NotNil(t, sig)
	require.True(t, crypto.VerifyHybrid(edPub, dilPub, []byte("transcript"), sig))

	require.NoError(t, p.HealthCheck(ctx))
}

func TestSoftwareProviderUnknownKeyRejected(t *testing.T) {
	p := NewSoftwareProvider()
	ctx := context.Background()

	_, _, err := p.PublicKeys(ctx, "nobody")
	require.Error(t, err)

	_, err = p.SignHybrid(ctx, "nobody", []byte("x"))
	require.Error(t, err)
}

func TestSoftwareProviderDeleteKeyIsIdempotent(t *testing.T) {
	p := NewSoftwareProvider()
	ctx := context.Background()
	require.NoError(t, p.GenerateIdentityKey(ctx, "bob"))

	require.NoError(t, p.DeleteKey(ctx, "bob"))
	require.NoError(t, p.DeleteKey(ctx, "bob"))

	_, _, err := p.PublicKeys(ctx, "bob")
	require.Error(t, err)
}
