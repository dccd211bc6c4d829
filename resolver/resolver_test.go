package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/attendhq/go-session-coordinator/identity"
	interrors "github.com/attendhq/go-session-coordinator/internal/errors"
	"github.com/attendhq/go-session-coordinator/profiles"
	"github.com/attendhq/go-session-coordinator/profiles/repofake"
	"github.com/attendhq/go-session-coordinator/provider/providerfake"
	"github.com/attendhq/go-session-coordinator/resolver"
)

const (
	testSubject = "user-1"
	testEmail   = "jane.doe@example.com"
)

type testFixture struct {
	idp      *providerfake.FakeIdentityProvider
	store    *repofake.FakeProfileStore
	resolver *resolver.Resolver
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	idp := providerfake.NewFakeIdentityProvider()
	store := repofake.NewFakeProfileStore()

	res, err := resolver.New(idp, resolver.Stores{
		Primary:   store,
		Secondary: store,
	})
	require.NoError(t, err)

	return &testFixture{idp: idp, store: store, resolver: res}
}

func (f *testFixture) signIn(t *testing.T) identity.RawSession {
	t.Helper()
	raw := identity.RawSession{Subject: testSubject, Email: testEmail}
	f.idp.SetSession(&raw)
	return raw
}

func TestResolveByID(t *testing.T) {
	f := setupTestFixture(t)
	raw := f.signIn(t)

	f.store.Upsert(&profiles.Profile{
		SubjectID:  testSubject,
		Email:      testEmail,
		FullName:   "Jane Doe",
		Role:       identity.RoleManager,
		Department: "Engineering",
	})

	id, err := f.resolver.Resolve(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, testSubject, id.ID)
	require.Equal(t, "Jane Doe", id.DisplayName)
	require.Equal(t, identity.RoleManager, id.Role)
	require.Equal(t, "Engineering", id.Department)
}

func TestResolveMergesSecondaryStore(t *testing.T) {
	f := setupTestFixture(t)
	raw := f.signIn(t)

	f.store.Upsert(&profiles.Profile{
		SubjectID: testSubject,
		Email:     testEmail,
		FullName:  "Jane Doe",
	})
	f.store.UpsertRicher(testSubject, &profiles.Profile{
		Department: "Engineering",
		Extra:      map[string]string{"badge": "B-42"},
	})

	id, err := f.resolver.Resolve(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "Engineering", id.Department)
	require.Equal(t, "B-42", id.Extra["badge"])
}

func TestResolveFallsBackToEmail(t *testing.T) {
	f := setupTestFixture(t)
	raw := f.signIn(t)

	// Profile only reachable by email: simulate a store whose id index is
	// stale but whose email index finds the record.
	f.store.Upsert(&profiles.Profile{
		SubjectID:  testSubject,
		Email:      testEmail,
		FullName:   "Jane Doe",
		Department: "Engineering",
	})
	f.store.FailByID(interrors.ErrTransientLookup)

	id, err := f.resolver.Resolve(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", id.DisplayName, "enrichment must come from the email lookup, not the minimal fallback")
	require.Equal(t, "Engineering", id.Department)
}

func TestResolveDegradesToMinimalIdentity(t *testing.T) {
	f := setupTestFixture(t)
	raw := f.signIn(t)

	f.store.FailByID(interrors.ErrTransientLookup)
	f.store.FailByEmail(interrors.ErrTransientLookup)

	id, err := f.resolver.Resolve(context.Background(), raw)
	require.NoError(t, err, "a session that exists must always resolve")
	require.Equal(t, testSubject, id.ID)
	require.Equal(t, "jane.doe", id.DisplayName)
	require.Equal(t, identity.RoleEmployee, id.Role)
	require.Empty(t, id.Department)
}

func TestResolveMismatchedSubject(t *testing.T) {
	f := setupTestFixture(t)
	raw := f.signIn(t)

	// Another user signs in before the original resolution runs.
	f.idp.SetSession(&identity.RawSession{Subject: "user-2"})

	_, err := f.resolver.Resolve(context.Background(), raw)
	require.ErrorIs(t, err, interrors.ErrIdentityMismatch)
}

func TestResolveNoCurrentSession(t *testing.T) {
	f := setupTestFixture(t)
	raw := f.signIn(t)
	f.idp.SetSession(nil)

	_, err := f.resolver.Resolve(context.Background(), raw)
	require.ErrorIs(t, err, interrors.ErrIdentityMismatch)
}

func TestResolveRefreshErrorShortCircuits(t *testing.T) {
	f := setupTestFixture(t)
	raw := f.signIn(t)

	f.store.FailByID(interrors.ErrRefreshToken)

	_, err := f.resolver.Resolve(context.Background(), raw)
	require.ErrorIs(t, err, interrors.ErrRefreshToken, "credential failures must not degrade to a minimal identity")
}

func TestResolveRefreshErrorFromProvider(t *testing.T) {
	f := setupTestFixture(t)
	raw := f.signIn(t)

	f.idp.FailCurrentSession(interrors.ErrRefreshToken)

	_, err := f.resolver.Resolve(context.Background(), raw)
	require.ErrorIs(t, err, interrors.ErrRefreshToken)
}
