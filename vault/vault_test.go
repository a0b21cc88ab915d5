package vault

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveMasterIsDeterministic(t *testing.T) {
	salt := []byte("per-user-salt")
	m1, err := DeriveMaster([]byte("hunter2"), salt)
	require.NoError(t, err)
	m2, err := DeriveMaster([]byte("hunter2"), salt)
	require.NoError(t, err)

	var b1, b2 []byte
	m1.Borrow(func(b []byte) { b1 = append([]byte{}, b...) })
	m2.Borrow(func(b []byte) { b2 = append([]byte{}, b...) })
	require.Equal(t, b1, b2)
}

func TestStoreAndUnlockSeedRoundTrip(t *testing.T) {
	salt := []byte("per-user-salt")
	master, err := DeriveMaster([]byte("correct horse"), salt)
	require.NoError(t, err)

	seed := NewSecretBuffer([]byte("sixty-four bytes of seed material, padded out for the test xx"))
	path := filepath.Join(t.TempDir(), "seed.enc")

	require.NoError(t, StoreSeed(path, seed, master))

	unlocked, err := UnlockSeed(path, master)
	require.NoError(t, err)

	var got []byte
	unlocked.Borrow(func(b []byte) { got = append([]byte{}, b...) })

	var want []byte
	seed.Borrow(func(b []byte) { want = append([]byte{}, b...) })
	require.Equal(t, want, got)
}

func TestUnlockSeedWrongPasswordFailsAuth(t *testing.T) {
	salt := []byte("per-user-salt")
	master, err := DeriveMaster([]byte("correct horse"), salt)
	require.NoError(t, err)
	wrong, err := DeriveMaster([]byte("incorrect horse"), salt)
	require.NoError(t, err)

	seed := NewSecretBuffer([]byte("seed bytes"))
	path := filepath.Join(t.TempDir(), "seed.enc")
	require.NoError(t, StoreSeed(path, seed, master))

	_, err = UnlockSeed(path, wrong)
	require.ErrorIs(t, err, ErrAuthFailure)
}

func TestStoreSeedRejectsEmptySeed(t *testing.T) {
	master, err := DeriveMaster([]byte("pw"), []byte("salt"))
	require.NoError(t, err)
	empty := NewSecretBuffer(nil)

	err = StoreSeed(filepath.Join(t.TempDir(), "seed.enc"), empty, master)
	require.ErrorIs(t, err, ErrEmptySeed)
}

func TestWithSubKeyIsDeterministicPerPurpose(t *testing.T) {
	seed := NewSecretBuffer([]byte("seed material for subkey derivation"))

	var identity1, identity2, ecdh []byte
	require.NoError(t, WithSubKey(seed, "identity", func(sb *SecretBuffer) error {
		sb.Borrow(func(b []byte) { identity1 = append([]byte{}, b...) })
		return nil
	}))
	require.NoError(t, WithSubKey(seed, "identity", func(sb *SecretBuffer) error {
		sb.Borrow(func(b []byte) { identity2 = append([]byte{}, b...) })
		return nil
	}))
	require.NoError(t, WithSubKey(seed, "ecdh", func(sb *SecretBuffer) error {
		sb.Borrow(func(b []byte) { ecdh = append([]byte{}, b...) })
		return nil
	}))

	require.Equal(t, identity1, identity2)
	require.NotEqual(t, identity1, ecdh)
}

func TestWithSubKeyWipesAfterReturn(t *testing.T) {
	seed := NewSecretBuffer([]byte("seed material"))
	var captured *SecretBuffer

	require.NoError(t, WithSubKey(seed, "storage", func(sb *SecretBuffer) error {
		captured = sb
		return nil
	}))

	var afterReturn []byte
	captured.Borrow(func(b []byte) { afterReturn = b })
	require.Nil(t, afterReturn)
}

func TestWithSubKeyWipesEvenOnPanic(t *testing.T) {
	seed := NewSecretBuffer([]byte("seed material"))
	var captured *SecretBuffer

	func() {
		defer func() { recover() }()
		WithSubKey(seed, "storage", func(sb *SecretBuffer) error {
			captured = sb
			panic("boom")
		})
	}()

	var afterPanic []byte
	captured.Borrow(func(b []byte) { afterPanic = b })
	require.Nil(t, afterPanic)
}

func TestSecretBufferBorrowAfterWipeSeesNil(t *testing.T) {
	sb := NewSecretBuffer([]byte("secret"))
	sb.Wipe()

	var got []byte
	touched := false
	sb.Borrow(func(b []byte) {
		touched = true
		got = b
	})
	require.True(t, touched)
	require.Nil(t, got)
}
