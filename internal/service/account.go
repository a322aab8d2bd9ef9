package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/qrauth/qr-link-server/internal/errors"
	"github.com/qrauth/qr-link-server/internal/model"
	"github.com/qrauth/qr-link-server/internal/repository"
	"github.com/qrauth/qr-link-server/internal/util"
)

type LoginResult struct {
	AccessToken string              `json:"access_token"`
	TokenType   string              `json:"token_type"`
	User        model.PublicProfile `json:"user"`
}

type AccountService struct {
	accountRepo   repository.AccountRepository
	signingSecret string
	tokenTTL      time.Duration
}

func NewAccountService(
	accountRepo repository.AccountRepository,
	signingSecret string,
	tokenTTL time.Duration,
) *AccountService {
	return &AccountService{
		accountRepo:   accountRepo,
		signingSecret: signingSecret,
		tokenTTL:      tokenTTL,
	}
}

func (s *AccountService) Register(ctx context.Context, username, email, password string) (*model.Account, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" {
		return nil, apperrors.MissingRequired("username")
	}
	if password == "" {
		return nil, apperrors.MissingRequired("password")
	}
	if !util.IsValidEmail(email) {
		return nil, apperrors.ValidationError("Invalid email address")
	}

	exists, err := s.accountRepo.ExistsByIdentity(ctx, username, email)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if exists {
		return nil, apperrors.DuplicateIdentity()
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.accountRepo.Create(ctx, model.CreateAccountParams{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("accountId", account.ID).
		Str("username", account.Username).
		Msg("account registered")

	return account, nil
}

// Authenticate verifies the password and issues a login token. Unknown
// username, wrong password and disabled account are indistinguishable to the
// caller.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (*LoginResult, error) {
	account, err := s.accountRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if account == nil || !util.CheckPasswordHash(password, account.PasswordHash) || !account.IsActive {
		log.Warn().Str("username", username).Msg("login rejected")
		return nil, apperrors.InvalidCredentials()
	}

	token := s.IssueToken(account, s.tokenTTL)

	log.Info().Str("accountId", account.ID).Msg("login succeeded")

	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		User:        account.Public(),
	}, nil
}

// IssueToken signs a bearer credential asserting the account identity and
// expiry.
func (s *AccountService) IssueToken(account *model.Account, ttl time.Duration) string {
	now := time.Now()
	return util.SignToken(s.signingSecret, util.TokenClaims{
		Subject:   account.ID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
}

// VerifyToken validates a bearer token and resolves the account it asserts.
// A token for a deleted or deactivated account is treated as invalid.
func (s *AccountService) VerifyToken(ctx context.Context, token string) (*model.Account, error) {
	claims, err := util.VerifyToken(s.signingSecret, token)
	if err != nil {
		return nil, err
	}

	account, err := s.accountRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if account == nil || !account.IsActive {
		return nil, apperrors.TokenInvalid()
	}

	return account, nil
}
