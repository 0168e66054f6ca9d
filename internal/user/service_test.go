package user

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/MikeMC777/storefront/internal/auth"
)

type memRepo struct {
	mu    sync.Mutex
	byID  map[string]*User
	email map[string]string
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]*User{}, email: map[string]string{}}
}

func (m *memRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.email[u.Email]; ok {
		return ErrAlreadyExist
	}
	u.CreatedAt = time.Now().UTC()
	cp := *u
	m.byID[u.ID] = &cp
	m.email[u.Email] = u.ID
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	id, ok := m.email[strings.ToLower(email)]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetByID(context.Background(), id)
}

func startDirectory(t *testing.T, iss *auth.Issuer) *DirectoryClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterDirectoryServer(srv, NewService(newMemRepo(), iss))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := DialDirectory("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDirectoryRoundTrip(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour)
	c := startDirectory(t, iss)
	ctx := context.Background()

	u, err := c.CreateUser(ctx, "Ada", "Ada@Example.com", "s3cret", "")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, RoleUser, u.Role)

	_, err = c.CreateUser(ctx, "Ada", "ada@example.com", "x", "")
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	ok, err := c.ValidateUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.ValidateUser(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := c.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)
	_, err = c.GetUser(ctx, "nope")
	assert.Equal(t, codes.NotFound, status.Code(err))

	sess, err := c.Authenticate(ctx, "ada@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)
	claims, err := iss.Parse(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	_, err = c.Authenticate(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateUserValidatesInput(t *testing.T) {
	c := startDirectory(t, auth.NewIssuer("secret", time.Hour))
	_, err := c.CreateUser(context.Background(), "", "x@y.z", "pw", "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = c.CreateUser(context.Background(), "X", "x@y.z", "pw", "root")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestEnsureAdminIsRepeatable(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, auth.NewIssuer("secret", time.Hour))
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "admin@shop.com", "pw"))
	require.NoError(t, svc.EnsureAdmin(ctx, "admin@shop.com", "other"))

	u, err := repo.GetByEmail(ctx, "admin@shop.com")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, u.Role)
	assert.True(t, CheckPassword(u.PasswordHash, "pw"))
}
