// Package twofa manages TOTP second factors for custodial accounts. The
// secret lives encrypted on the account row and is only decrypted for the
// duration of a verification.
package twofa

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
	"github.com/custody-service/custody_service/pkg/crypto"
)

type Service struct {
	db            *sql.DB
	logger        *zap.Logger
	issuer        string
	encryptionKey string
}

type Setup struct {
	Secret    string `json:"secret"`
	QRCodeURL string `json:"qr_code_url"`
}

func NewService(db *sql.DB, logger *zap.Logger, issuer, encryptionKey string) *Service {
	return &Service{
		db:            db,
		logger:        logger,
		issuer:        issuer,
		encryptionKey: encryptionKey,
	}
}

// GenerateSecret creates a new TOTP secret for an account. The secret is
// stored encrypted but 2FA stays disabled until VerifyAndEnable succeeds.
func (s *Service) GenerateSecret(ctx context.Context, accountID uuid.UUID, email string) (*Setup, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx,
		"SELECT two_fa_enabled FROM accounts WHERE id = $1 AND deleted_at IS NULL",
		accountID).Scan(&enabled)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("account")
		}
		return nil, fmt.Errorf("failed to check 2FA state: %w", err)
	}
	if enabled {
		return nil, fmt.Errorf("2FA is already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: email,
		SecretSize:  32,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encryptedSecret, err := crypto.Encrypt(key.Secret(), s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE accounts SET two_fa_secret_encrypted = $2, updated_at = NOW() WHERE id = $1",
		accountID, encryptedSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to store 2FA secret: %w", err)
	}

	return &Setup{Secret: key.Secret(), QRCodeURL: key.URL()}, nil
}

// VerifyAndEnable checks a TOTP code against the stored secret and turns
// 2FA on.
func (s *Service) VerifyAndEnable(ctx context.Context, accountID uuid.UUID, code string) error {
	secret, enabled, err := s.loadSecret(ctx, accountID)
	if err != nil {
		return err
	}
	if enabled {
		return fmt.Errorf("2FA is already enabled")
	}

	if !totp.Validate(code, secret) {
		return domainerrors.ErrTwoFAInvalid
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE accounts SET two_fa_enabled = TRUE, updated_at = NOW() WHERE id = $1",
		accountID)
	if err != nil {
		return fmt.Errorf("failed to enable 2FA: %w", err)
	}

	s.logger.Info("2FA enabled", zap.String("account_id", accountID.String()))
	return nil
}

// Verify checks a TOTP code for an account with 2FA enabled. Callers gate
// withdrawals and OTC orders on this.
func (s *Service) Verify(ctx context.Context, accountID uuid.UUID, code string) error {
	secret, enabled, err := s.loadSecret(ctx, accountID)
	if err != nil {
		return err
	}
	if !enabled {
		return fmt.Errorf("2FA is not enabled")
	}

	if !totp.Validate(code, secret) {
		return domainerrors.ErrTwoFAInvalid
	}

	return nil
}

// Disable turns 2FA off after a final code verification
func (s *Service) Disable(ctx context.Context, accountID uuid.UUID, code string) error {
	if err := s.Verify(ctx, accountID, code); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET two_fa_enabled = FALSE, two_fa_secret_encrypted = NULL, updated_at = NOW() WHERE id = $1",
		accountID)
	if err != nil {
		return fmt.Errorf("failed to disable 2FA: %w", err)
	}

	s.logger.Info("2FA disabled", zap.String("account_id", accountID.String()))
	return nil
}

func (s *Service) loadSecret(ctx context.Context, accountID uuid.UUID) (string, bool, error) {
	var encryptedSecret sql.NullString
	var enabled bool
	err := s.db.QueryRowContext(ctx,
		"SELECT two_fa_secret_encrypted, two_fa_enabled FROM accounts WHERE id = $1 AND deleted_at IS NULL",
		accountID).Scan(&encryptedSecret, &enabled)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, domainerrors.NotFoundError("account")
		}
		return "", false, fmt.Errorf("failed to load 2FA secret: %w", err)
	}
	if !encryptedSecret.Valid || encryptedSecret.String == "" {
		return "", false, fmt.Errorf("2FA not set up for this account")
	}

	secret, err := crypto.Decrypt(encryptedSecret.String, s.encryptionKey)
	if err != nil {
		return "", false, fmt.Errorf("failed to decrypt 2FA secret: %w", err)
	}

	return secret, enabled, nil
}
