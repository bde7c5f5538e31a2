package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	config "github.com/postmux/postmux/configs"
	"github.com/postmux/postmux/internal/platform"
	"github.com/postmux/postmux/internal/repository"
	"github.com/postmux/postmux/pkg/utils"
)

var ErrNoLinkedAccount = errors.New("no linked account for platform")

// CredentialSource resolves the stored credential for a (user, platform)
// pair into a decrypted, per-call value. Tokens never live in package
// state; every publish pass resolves its own.
type CredentialSource interface {
	Lookup(ctx context.Context, userID int64, platformTag string) (platform.Credential, error)
}

type credentialService struct {
	cfg config.Config
	sa  repository.SocialAccountRepository
}

func NewCredentialService(cfg config.Config, sa repository.SocialAccountRepository) CredentialSource {
	return &credentialService{cfg: cfg, sa: sa}
}

func (s *credentialService) Lookup(ctx context.Context, userID int64, platformTag string) (platform.Credential, error) {
	account, err := s.sa.GetByUserAndPlatform(ctx, userID, platformTag)
	if err != nil {
		return platform.Credential{}, err
	}
	if account == nil {
		return platform.Credential{}, fmt.Errorf("%w: %s", ErrNoLinkedAccount, platformTag)
	}

	accessToken, err := utils.Decrypt(account.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		slog.Info(err.Error())
		return platform.Credential{}, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	return platform.Credential{
		AccountID:   account.AccountID,
		AccessToken: accessToken,
	}, nil
}
