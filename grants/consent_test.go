package grants_test

import (
	"testing"
	"time"

	"github.com/idpkit/idpkit/grants"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestConsentStore(t *testing.T) {
	f := setupStoreFixture(t)
	consents := grants.NewConsentStore(f.store, f.serializer, zerolog.Nop())

	t.Run("store and load", func(t *testing.T) {
		require.NoError(t, consents.Store(&grants.ConsentRecord{
			SubjectID:    "user-1",
			ClientID:     "client-1",
			Scopes:       []string{"openid", "api1"},
			CreationTime: f.now,
		}))

		record, err := consents.Load("user-1", "client-1")
		require.NoError(t, err)
		require.True(t, record.CoversScopes([]string{"openid"}))
		require.True(t, record.CoversScopes([]string{"openid", "api1"}))
		require.False(t, record.CoversScopes([]string{"openid", "api2"}))
	})

	t.Run("storing again replaces the record", func(t *testing.T) {
		require.NoError(t, consents.Store(&grants.ConsentRecord{
			SubjectID:    "user-1",
			ClientID:     "client-1",
			Scopes:       []string{"openid"},
			CreationTime: f.now,
		}))

		record, err := consents.Load("user-1", "client-1")
		require.NoError(t, err)
		require.Equal(t, []string{"openid"}, record.Scopes)
	})

	t.Run("absent consent is not found", func(t *testing.T) {
		_, err := consents.Load("user-1", "other-client")
		require.ErrorIs(t, err, grants.ErrNotFound)
	})

	t.Run("remove withdraws consent", func(t *testing.T) {
		require.NoError(t, consents.Remove("user-1", "client-1"))
		_, err := consents.Load("user-1", "client-1")
		require.ErrorIs(t, err, grants.ErrNotFound)
	})

	t.Run("expired consent is not found", func(t *testing.T) {
		require.NoError(t, consents.Store(&grants.ConsentRecord{
			SubjectID:    "user-2",
			ClientID:     "client-1",
			Scopes:       []string{"openid"},
			CreationTime: f.now,
			Expiration:   f.now.Add(time.Hour),
		}))

		f.advance(2 * time.Hour)
		_, err := consents.Load("user-2", "client-1")
		require.ErrorIs(t, err, grants.ErrNotFound)
	})
}
