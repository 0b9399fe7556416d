package services

import (
	"fmt"
	"log/slog"
	"strings"

	"bananachat/auth"
	"bananachat/contract"
	"bananachat/domain"
	"bananachat/errors"
	"bananachat/repositories"

	"github.com/samber/lo"
)

type IIdentityService interface {
	Register(username, email, displayName, password string) (Token, error)
	Login(username, password string) (Token, error)
	Find(username string) (domain.Identity, error)
	Directory() ([]domain.Identity, error)
	Search(query string) ([]domain.Identity, error)
	OnlineCount() int
}

// IdentityService is the account surface: registration, login, and the
// user directory with live online flags merged in from the registry.
type IdentityService struct {
	users    repositories.IUserRepository
	presence contract.IPresence
	tokens   *auth.TokenIssuer
	log      *slog.Logger
}

type Token string

func NewIdentityService(users repositories.IUserRepository, presence contract.IPresence, tokens *auth.TokenIssuer, log *slog.Logger) *IdentityService {
	return &IdentityService{users: users, presence: presence, tokens: tokens, log: log}
}

func (s *IdentityService) Register(username, email, displayName, password string) (Token, error) {
	valReq := auth.RegisterRequest{
		Username:    username,
		Email:       email,
		DisplayName: displayName,
		Password:    password,
	}

	// Check business rules before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}

	// Hashing happens here so the repository never sees a plain password.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	record, err := s.users.Create(username, email, displayName, hashedPassword)
	if err != nil {
		return "", err // Propagates ErrUserAlreadyExists if the name is taken
	}
	s.log.Info("User registered", "username", username)

	token, err := s.tokens.Generate(username, record.Roles)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}

func (s *IdentityService) Login(username, password string) (Token, error) {
	user, err := s.users.Get(username)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return "", errors.ErrInvalidCredentials
	}
	if !user.Active {
		return "", errors.ErrUserDeactivated
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.Username, user.Roles)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}

func (s *IdentityService) Find(username string) (domain.Identity, error) {
	user, err := s.users.Get(username)
	if err != nil {
		return domain.Identity{}, err
	}
	return s.withPresence(user.Identity()), nil
}

// Directory lists every active identity, sorted by the repository,
// with the online flag reflecting the live registry.
func (s *IdentityService) Directory() ([]domain.Identity, error) {
	records, err := s.users.All()
	if err != nil {
		return nil, err
	}
	active := lo.Filter(records, func(r repositories.UserRecord, _ int) bool { return r.Active })
	return lo.Map(active, func(r repositories.UserRecord, _ int) domain.Identity {
		return s.withPresence(r.Identity())
	}), nil
}

func (s *IdentityService) Search(query string) ([]domain.Identity, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", errors.ErrInvalidArgument)
	}
	records, err := s.users.Search(query)
	if err != nil {
		return nil, err
	}
	active := lo.Filter(records, func(r repositories.UserRecord, _ int) bool { return r.Active })
	return lo.Map(active, func(r repositories.UserRecord, _ int) domain.Identity {
		return s.withPresence(r.Identity())
	}), nil
}

func (s *IdentityService) OnlineCount() int {
	return s.presence.Count()
}

func (s *IdentityService) withPresence(id domain.Identity) domain.Identity {
	id.Online = s.presence.IsOnline(id.Username)
	return id
}
