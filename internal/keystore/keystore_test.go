package keystore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHierarchyDerivationIsDeterministicAndDistinctPerDevice(t *testing.T) {
	mik, err := GenerateMasterIdentityKey()
	require.NoError(t, err)

	dmk1, err := DeriveDeviceMasterKey(mik, "device-1")
	require.NoError(t, err)
	dmk2, err := DeriveDeviceMasterKey(mik, "device-2")
	require.NoError(t, err)
	dmk1Again, err := DeriveDeviceMasterKey(mik, "device-1")
	require.NoError(t, err)

	require.NotEqual(t, dmk1.bytes, dmk2.bytes)
	require.Equal(t, dmk1.bytes, dmk1Again.bytes)

	stk, err := DeriveStorageKey(dmk1, "session-cache")
	require.NoError(t, err)
	require.NotEqual(t, [32]byte{}, stk.Bytes())
}

func TestSealOpenMIKRoundTrip(t *testing.T) {
	mik, err := GenerateMasterIdentityKey()
	require.NoError(t, err)
	passphrase := []byte("correct horse battery staple")

	blob, err := SealMIK(passphrase, mik)
	require.NoError(t, err)
	require.Equal(t, BlobVersion, blob[0])

	recovered, err := OpenMIK(passphrase, blob)
	require.NoError(t, err)
	require.Equal(t, mik.Bytes(), recovered.Bytes())
}

func TestOpenMIKRejectsWrongPassphrase(t *testing.T) {
	mik, err := GenerateMasterIdentityKey()
	require.NoError(t, err)
	blob, err := SealMIK([]byte("right passphrase"), mik)
	require.NoError(t, err)

	_, err = OpenMIK([]byte("wrong passphrase"), blob)
	require.Error(t, err)
}

func TestOpenMIKRejectsUnknownVersion(t *testing.T) {
	mik, err := GenerateMasterIdentityKey()
	require.NoError(t, err)
	blob, err := SealMIK([]byte("pw"), mik)
	require.NoError(t, err)

	blob[0] = 0x99
	_, err = OpenMIK([]byte("pw"), blob)
	require.Error(t, err)
}

func TestMemoryKVEncryptsAtRestAndBindsID(t *testing.T) {
	mik, err := GenerateMasterIdentityKey()
	require.NoError(t, err)
	dmk, err := DeriveDeviceMasterKey(mik, "device-1")
	require.NoError(t, err)
	stk, err := DeriveStorageKey(dmk, "kv")
	require.NoError(t, err)

	kv := NewMemoryKV(stk)
	require.NoError(t, kv.Write("entry-a", []byte("secret value")))

	got, ok, err := kv.Read("entry-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "secret value", string(got))

	_, ok, err = kv.Read("entry-b")
	require.NoError(t, err)
	require.False(t, ok)

	require.True(t, kv.Delete("entry-a"))
	_, ok, err = kv.Read("entry-a")
	require.NoError(t, err)
	require.False(t, ok)
}
