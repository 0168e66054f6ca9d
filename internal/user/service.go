package user

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// TokenIssuer is satisfied by *auth.Issuer.
type TokenIssuer interface {
	Issue(userID, role string) (string, error)
}

type Service struct {
	repo   Repository
	tokens TokenIssuer
}

func NewService(repo Repository, tokens TokenIssuer) *Service {
	return &Service{repo: repo, tokens: tokens}
}

func str(in *structpb.Struct, key string) string {
	return strings.TrimSpace(in.GetFields()[key].GetStringValue())
}

// CreateUser
func (s *Service) CreateUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name, email, pw, role := str(in, "name"), strings.ToLower(str(in, "email")), str(in, "password"), str(in, "role")
	if name == "" || email == "" || pw == "" {
		return nil, status.Error(codes.InvalidArgument, "name, email and password are required")
	}
	switch role {
	case "":
		role = RoleUser
	case RoleUser, RoleAdmin:
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown role %q", role)
	}
	hash, err := HashPassword(pw)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "hash error: %v", err)
	}
	u := &User{ID: uuid.NewString(), Name: name, Email: email, PasswordHash: hash, Role: role}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrAlreadyExist) {
			return nil, status.Error(codes.AlreadyExists, "user exists (email)")
		}
		return nil, status.Errorf(codes.Internal, "create error: %v", err)
	}
	log.Printf("[user] created id=%s role=%s", u.ID, u.Role)
	return userToStruct(u)
}

// GetUser
func (s *Service) GetUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := str(in, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, status.Error(codes.NotFound, "user not found")
		}
		return nil, status.Errorf(codes.Internal, "get error: %v", err)
	}
	return userToStruct(u)
}

// ValidateUser reports whether the id belongs to an existing user.
func (s *Service) ValidateUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := str(in, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	_, err := s.repo.GetByID(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, status.Errorf(codes.Internal, "validate error: %v", err)
	}
	return structpb.NewStruct(map[string]any{"ok": err == nil})
}

// Authenticate checks the password and returns a signed token on success.
func (s *Service) Authenticate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	email, pw := strings.ToLower(str(in, "email")), str(in, "password")
	if email == "" || pw == "" {
		return nil, status.Error(codes.InvalidArgument, "email and password are required")
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return structpb.NewStruct(map[string]any{"ok": false})
		}
		return nil, status.Errorf(codes.Internal, "auth error: %v", err)
	}
	if !CheckPassword(u.PasswordHash, pw) {
		return structpb.NewStruct(map[string]any{"ok": false})
	}
	tok, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "token error: %v", err)
	}
	return structpb.NewStruct(map[string]any{"ok": true, "user_id": u.ID, "role": u.Role, "token": tok})
}

// EnsureAdmin creates the admin account unless the email is already taken.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	in, err := structpb.NewStruct(map[string]any{"name": "Administrator", "email": email, "password": password, "role": RoleAdmin})
	if err != nil {
		return err
	}
	if _, err := s.CreateUser(ctx, in); err != nil && status.Code(err) != codes.AlreadyExists {
		return err
	}
	return nil
}
