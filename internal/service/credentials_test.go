package service

import (
	"context"
	"errors"
	"testing"

	config "github.com/postmux/postmux/configs"
	"github.com/postmux/postmux/internal/models"
	"github.com/postmux/postmux/pkg/utils"
)

type socialAccountRepoStub struct {
	accounts map[string]*models.SocialAccount
}

func (s *socialAccountRepoStub) GetByUserAndPlatform(_ context.Context, _ int64, platform string) (*models.SocialAccount, error) {
	return s.accounts[platform], nil
}

func (s *socialAccountRepoStub) ListByUserID(_ context.Context, _ int64) ([]*models.SocialAccount, error) {
	return nil, nil
}

func TestCredentialLookup(t *testing.T) {
	secretKey := "0123456789abcdef0123456789abcdef"

	encrypted, err := utils.Encrypt([]byte("provider-token"), []byte(secretKey))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	repo := &socialAccountRepoStub{accounts: map[string]*models.SocialAccount{
		"tiktok": {UserID: 7, Platform: "tiktok", AccountID: "open-id-1", AccessToken: encrypted},
	}}
	creds := NewCredentialService(config.Config{SecretKey: secretKey}, repo)

	cred, err := creds.Lookup(context.Background(), 7, "tiktok")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if cred.AccountID != "open-id-1" {
		t.Errorf("AccountID = %q, want open-id-1", cred.AccountID)
	}
	if cred.AccessToken != "provider-token" {
		t.Errorf("AccessToken = %q, want decrypted token", cred.AccessToken)
	}
}

func TestCredentialLookupNoAccount(t *testing.T) {
	creds := NewCredentialService(config.Config{SecretKey: "0123456789abcdef0123456789abcdef"}, &socialAccountRepoStub{})

	_, err := creds.Lookup(context.Background(), 7, "instagram")
	if !errors.Is(err, ErrNoLinkedAccount) {
		t.Errorf("Lookup() error = %v, want ErrNoLinkedAccount", err)
	}
}
