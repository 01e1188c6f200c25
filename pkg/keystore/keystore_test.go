package keystore_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/earnout-labs/dealvault/pkg/keystore"
	"github.com/earnout-labs/dealvault/pkg/sui"
)

func TestStore(t *testing.T) {
	stores := map[string]func(t *testing.T) *keystore.Store{
		"MemStore": func(t *testing.T) *keystore.Store {
			return keystore.NewMemory()
		},
		"FsStore": func(t *testing.T) *keystore.Store {
			s, err := keystore.NewFs(t.TempDir())
			require.NoError(t, err)
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			t.Run("generate and load", func(t *testing.T) {
				s := newStore(t)
				kp, err := s.Generate("backend")
				require.NoError(t, err)

				loaded, err := s.Load("backend")
				require.NoError(t, err)
				require.Equal(t, kp.Address(), loaded.Address())

				_, err = s.Generate("backend")
				require.ErrorIs(t, err, keystore.ErrKeyExists)
			})

			t.Run("import", func(t *testing.T) {
				s := newStore(t)
				src, err := sui.GenerateKeypair()
				require.NoError(t, err)

				kp, err := s.Import("imported", src.Encode())
				require.NoError(t, err)
				require.Equal(t, src.Address(), kp.Address())
			})

			t.Run("names", func(t *testing.T) {
				s := newStore(t)
				for _, n := range []string{"b", "a", "default"} {
					_, err := s.Generate(n)
					require.NoError(t, err)
				}
				names, err := s.Names()
				require.NoError(t, err)
				require.Equal(t, []string{"a", "b", "default"}, names)
			})

			t.Run("missing and delete", func(t *testing.T) {
				s := newStore(t)
				_, err := s.Load("nope")
				require.ErrorIs(t, err, keystore.ErrKeyNotFound)

				_, err = s.Generate("gone")
				require.NoError(t, err)
				require.NoError(t, s.Delete("gone"))
				has, err := s.Has("gone")
				require.NoError(t, err)
				require.False(t, has)
				require.ErrorIs(t, s.Delete("gone"), keystore.ErrKeyNotFound)
			})

			t.Run("load or generate is stable", func(t *testing.T) {
				s := newStore(t)
				a, err := s.LoadOrGenerate(keystore.DefaultKey)
				require.NoError(t, err)
				b, err := s.LoadOrGenerate(keystore.DefaultKey)
				require.NoError(t, err)
				require.Equal(t, a.Address(), b.Address())
			})

			t.Run("rejects path names", func(t *testing.T) {
				s := newStore(t)
				_, err := s.Generate("../escape")
				require.Error(t, err)
			})
		})
	}
}

func TestLoadRejectsMismatchedAddress(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := keystore.New(fs, "/keys")
	require.NoError(t, err)
	kp, err := sui.GenerateKeypair()
	require.NoError(t, err)

	body := `{"scheme":"ed25519","privateKey":"` + kp.Encode() + `","address":"0x01"}`
	require.NoError(t, afero.WriteFile(fs, "/keys/bad.key.json", []byte(body), 0600))

	_, err = s.Load("bad")
	require.ErrorContains(t, err, "does not match")
}
