package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ushadow/orchestrator/models"
)

const testSecret = "cluster-test-secret"

func TestCreateAndValidateToken(t *testing.T) {
	issuer := NewIssuer(testSecret)

	token, err := issuer.CreateToken(models.RoleWorker, 2, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, models.RoleWorker, token.Role)
	assert.Equal(t, 2, token.MaxUses)
	assert.Zero(t, token.Uses)

	first, err := issuer.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Uses, "validation consumes a use")
	assert.Equal(t, models.RoleWorker, first.Role)

	second, err := issuer.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Uses)

	_, err = issuer.ValidateToken(token.Token)
	assert.ErrorIs(t, err, ErrTokenExhausted)
}

func TestCreateTokenDefaults(t *testing.T) {
	issuer := NewIssuer(testSecret)

	token, err := issuer.CreateToken(models.RoleStandby, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, token.MaxUses)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), token.ExpiresAt, time.Minute)
}

func TestCreateTokenRejectsInvalidRole(t *testing.T) {
	issuer := NewIssuer(testSecret)

	_, err := issuer.CreateToken("admin", 1, 1)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestValidateTokenRejectsForgery(t *testing.T) {
	issuer := NewIssuer(testSecret)

	_, err := issuer.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Signed with a different secret.
	claims := JoinClaims{
		Role: models.RoleWorker,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "forged",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = issuer.ValidateToken(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenExpired(t *testing.T) {
	issuer := NewIssuer(testSecret)

	// Issue directly with a past expiry so no sleeping is needed.
	claims := JoinClaims{
		Role: models.RoleWorker,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "expired",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = issuer.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRevokedToken(t *testing.T) {
	issuer := NewIssuer(testSecret)

	token, err := issuer.CreateToken(models.RoleWorker, 5, 1)
	require.NoError(t, err)

	claims := &JoinClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token.Token, claims)
	require.NoError(t, err)

	require.NoError(t, issuer.Revoke(claims.ID))
	_, err = issuer.ValidateToken(token.Token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

type fakeRosterClient struct {
	nodes    []models.Node
	fetchErr error
	removed  []string
}

func (f *fakeRosterClient) FetchNodes(ctx context.Context) ([]models.Node, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.nodes, nil
}

func (f *fakeRosterClient) RemoveNode(ctx context.Context, hostname string) error {
	f.removed = append(f.removed, hostname)
	return nil
}

func fleetNodes() []models.Node {
	return []models.Node{
		{Hostname: "leader-1", Role: models.RoleLeader, Status: models.NodeOnline},
		{Hostname: "worker-1", Role: models.RoleWorker, Status: models.NodeOnline},
		{Hostname: "worker-2", Role: models.RoleWorker, Status: models.NodeOffline},
	}
}

func TestRosterRelaysLiveness(t *testing.T) {
	client := &fakeRosterClient{nodes: fleetNodes()}
	roster := NewRoster(client, time.Minute)

	require.NoError(t, roster.Refresh(context.Background()))
	nodes, fetchedAt := roster.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, models.NodeOffline, nodes[2].Status, "status relayed as observed")
	assert.False(t, fetchedAt.IsZero())
}

func TestRosterKeepsSnapshotOnFetchFailure(t *testing.T) {
	client := &fakeRosterClient{nodes: fleetNodes()}
	roster := NewRoster(client, time.Minute)
	require.NoError(t, roster.Refresh(context.Background()))

	client.fetchErr = errors.New("roster unreachable")
	assert.Error(t, roster.Refresh(context.Background()))

	nodes, _ := roster.Nodes()
	assert.Len(t, nodes, 3, "previous snapshot survives a failed fetch")
}

type tickingRosterClient struct {
	fetches chan struct{}
}

func (f *tickingRosterClient) FetchNodes(ctx context.Context) ([]models.Node, error) {
	select {
	case f.fetches <- struct{}{}:
	default:
	}
	return fleetNodes(), nil
}

func (f *tickingRosterClient) RemoveNode(ctx context.Context, hostname string) error {
	return nil
}

func waitFetch(t *testing.T, fetches <-chan struct{}) {
	t.Helper()
	select {
	case <-fetches:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a roster fetch")
	}
}

func TestRosterRestartsAfterStop(t *testing.T) {
	client := &tickingRosterClient{fetches: make(chan struct{}, 16)}
	roster := NewRoster(client, 10*time.Millisecond)
	ctx := context.Background()

	roster.Start(ctx)
	waitFetch(t, client.fetches) // immediate refresh
	waitFetch(t, client.fetches) // first tick
	roster.Stop()

	// Let the old poller exit, then discard anything it queued.
	time.Sleep(50 * time.Millisecond)
	for len(client.fetches) > 0 {
		<-client.fetches
	}

	roster.Start(ctx)
	waitFetch(t, client.fetches)
	// Ticks must resume after a restart, not just the immediate refresh.
	waitFetch(t, client.fetches)
	roster.Stop()
}

func TestRemoveNode(t *testing.T) {
	client := &fakeRosterClient{nodes: fleetNodes()}
	roster := NewRoster(client, time.Minute)
	require.NoError(t, roster.Refresh(context.Background()))

	require.NoError(t, roster.RemoveNode(context.Background(), "worker-2"))
	assert.Equal(t, []string{"worker-2"}, client.removed)

	nodes, _ := roster.Nodes()
	assert.Len(t, nodes, 2)
}

func TestRemoveNodeProtectsLeader(t *testing.T) {
	client := &fakeRosterClient{nodes: fleetNodes()}
	roster := NewRoster(client, time.Minute)
	require.NoError(t, roster.Refresh(context.Background()))

	err := roster.RemoveNode(context.Background(), "leader-1")
	assert.ErrorIs(t, err, ErrLeaderProtected)
	assert.Empty(t, client.removed)

	err = roster.RemoveNode(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownNode)
}
