package localidp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/attendhq/go-session-coordinator/identity"
	interrors "github.com/attendhq/go-session-coordinator/internal/errors"
	"github.com/attendhq/go-session-coordinator/provider"
	"github.com/attendhq/go-session-coordinator/provider/localidp"
)

const (
	testEmail    = "jane.doe@example.com"
	testPassword = "Password123"
)

func TestSignInEmitsSignedIn(t *testing.T) {
	idp := localidp.New()
	_, err := idp.Register("user-1", testEmail, testPassword)
	require.NoError(t, err)

	var events []provider.EventType
	idp.OnSessionChange(func(event provider.EventType, _ *identity.RawSession) {
		events = append(events, event)
	})

	require.NoError(t, idp.SignIn(context.Background(), testEmail, testPassword))
	require.Equal(t, []provider.EventType{provider.EventSignedIn}, events)

	session, err := idp.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, "user-1", session.Subject)
	require.Equal(t, testEmail, session.Email)
}

func TestSignInRejectsBadPassword(t *testing.T) {
	idp := localidp.New()
	_, err := idp.Register("user-1", testEmail, testPassword)
	require.NoError(t, err)

	require.Error(t, idp.SignIn(context.Background(), testEmail, "wrong"))
	require.Error(t, idp.SignIn(context.Background(), "nobody@example.com", testPassword))

	session, err := idp.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestRefreshExtendsSession(t *testing.T) {
	now := time.Now()
	idp := localidp.New(
		localidp.WithSessionTTL(time.Minute),
		localidp.WithNowTime(func() time.Time { return now }),
	)
	_, err := idp.Register("user-1", testEmail, testPassword)
	require.NoError(t, err)
	require.NoError(t, idp.SignIn(context.Background(), testEmail, testPassword))

	var events []provider.EventType
	idp.OnSessionChange(func(event provider.EventType, _ *identity.RawSession) {
		events = append(events, event)
	})

	now = now.Add(30 * time.Second)
	require.NoError(t, idp.Refresh(context.Background()))
	require.Equal(t, []provider.EventType{provider.EventTokenRefreshed}, events)

	session, err := idp.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Minute), session.ExpiresAt)
}

func TestExpiredSessionIsRefreshError(t *testing.T) {
	now := time.Now()
	idp := localidp.New(
		localidp.WithSessionTTL(time.Minute),
		localidp.WithNowTime(func() time.Time { return now }),
	)
	_, err := idp.Register("user-1", testEmail, testPassword)
	require.NoError(t, err)
	require.NoError(t, idp.SignIn(context.Background(), testEmail, testPassword))

	now = now.Add(2 * time.Minute)
	_, err = idp.CurrentSession(context.Background())
	require.ErrorIs(t, err, interrors.ErrRefreshToken)
}

func TestRefreshWithoutSession(t *testing.T) {
	idp := localidp.New()
	require.ErrorIs(t, idp.Refresh(context.Background()), interrors.ErrRefreshToken)
}

func TestSignOutEmitsOnce(t *testing.T) {
	idp := localidp.New()
	_, err := idp.Register("user-1", testEmail, testPassword)
	require.NoError(t, err)
	require.NoError(t, idp.SignIn(context.Background(), testEmail, testPassword))

	var signedOut int
	idp.OnSessionChange(func(event provider.EventType, session *identity.RawSession) {
		if event == provider.EventSignedOut {
			require.Nil(t, session)
			signedOut++
		}
	})

	require.NoError(t, idp.SignOut(context.Background()))
	require.NoError(t, idp.SignOut(context.Background()), "sign-out is idempotent")
	require.Equal(t, 1, signedOut)
}

func TestUnsubscribeDetachesListener(t *testing.T) {
	idp := localidp.New()
	_, err := idp.Register("user-1", testEmail, testPassword)
	require.NoError(t, err)

	var calls int
	unsubscribe := idp.OnSessionChange(func(provider.EventType, *identity.RawSession) { calls++ })
	unsubscribe()

	require.NoError(t, idp.SignIn(context.Background(), testEmail, testPassword))
	require.Zero(t, calls)
}
