package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	"github.com/starstake/stakeboard/internal/crypto"
	"github.com/starstake/stakeboard/internal/domain"
)

const (
	// defaultSignatureSkew bounds how old or future-dated a signed
	// update may be. Within the window a replay writes the same data.
	defaultSignatureSkew = 5 * time.Minute

	maxNicknameLen  = 64
	maxAvatarURLLen = 512
)

// ProfileUpdate is a signed profile write request. Signature covers the
// canonical message built from Wallet and IssuedAt.
type ProfileUpdate struct {
	Wallet    string `json:"wallet"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
	Referrer  string `json:"referrer"`
	IssuedAt  int64  `json:"issued_at"`
	Signature string `json:"signature"`
}

// ProfileService stores wallet vanity data behind a personal_sign check,
// so only the key holder can rename their own wallet.
type ProfileService struct {
	profiles domain.ProfileStore
	audit    domain.AuditStore
	logger   *slog.Logger

	maxSkew time.Duration
	now     func() time.Time
}

// NewProfileService creates a ProfileService.
func NewProfileService(profiles domain.ProfileStore, audit domain.AuditStore, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{
		profiles: profiles,
		audit:    audit,
		logger:   logger,
		maxSkew:  defaultSignatureSkew,
		now:      time.Now,
	}
}

// Get returns the stored profile. Unknown wallets get an empty profile
// so the dashboard renders defaults instead of erroring.
func (s *ProfileService) Get(ctx context.Context, wallet string) (domain.UserProfile, error) {
	wallet = strings.ToLower(wallet)
	if !common.IsHexAddress(wallet) {
		return domain.UserProfile{}, domain.Validationf("wallet", "not a hex address")
	}

	profile, err := s.profiles.Get(ctx, wallet)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.UserProfile{Wallet: wallet}, nil
	}
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("profile_service: get %q: %w", wallet, err)
	}
	return profile, nil
}

// Update validates the signature and writes the profile. The referrer
// field is write-once; later writes keep the original.
func (s *ProfileService) Update(ctx context.Context, req ProfileUpdate) (domain.UserProfile, error) {
	wallet := strings.ToLower(req.Wallet)
	referrer := strings.ToLower(req.Referrer)

	if err := validateProfileUpdate(wallet, referrer, req); err != nil {
		return domain.UserProfile{}, err
	}

	issued := time.Unix(req.IssuedAt, 0)
	if d := s.now().UTC().Sub(issued); d > s.maxSkew || d < -s.maxSkew {
		return domain.UserProfile{}, domain.Validationf("issued_at", "signature outside the %s window", s.maxSkew)
	}

	msg := crypto.ProfileUpdateMessage(wallet, req.IssuedAt)
	if err := crypto.VerifyPersonalSignature(wallet, msg, req.Signature); err != nil {
		return domain.UserProfile{}, fmt.Errorf("profile_service: verify signature for %q: %w",
			wallet, errors.Join(domain.ErrUnauthorized, err))
	}

	profile := domain.UserProfile{
		Wallet:    wallet,
		Nickname:  strings.TrimSpace(req.Nickname),
		AvatarURL: req.AvatarURL,
		Referrer:  referrer,
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return domain.UserProfile{}, fmt.Errorf("profile_service: upsert %q: %w", wallet, err)
	}

	// Re-read so the caller sees the stored referrer and timestamps.
	stored, err := s.profiles.Get(ctx, wallet)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("profile_service: get after upsert %q: %w", wallet, err)
	}

	// Audit log.
	if auditErr := s.audit.Log(ctx, "profile_updated", map[string]any{
		"wallet":   wallet,
		"nickname": stored.Nickname,
		"referrer": stored.Referrer,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "profile_service: audit log failed",
			slog.String("wallet", wallet),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "profile_service: profile updated",
		slog.String("wallet", wallet),
	)

	return stored, nil
}

func validateProfileUpdate(wallet, referrer string, req ProfileUpdate) error {
	if !common.IsHexAddress(wallet) {
		return domain.Validationf("wallet", "not a hex address")
	}
	if utf8.RuneCountInString(req.Nickname) > maxNicknameLen {
		return domain.Validationf("nickname", "longer than %d characters", maxNicknameLen)
	}
	if req.AvatarURL != "" {
		if len(req.AvatarURL) > maxAvatarURLLen {
			return domain.Validationf("avatar_url", "longer than %d bytes", maxAvatarURLLen)
		}
		u, err := url.Parse(req.AvatarURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return domain.Validationf("avatar_url", "must be an http(s) URL")
		}
	}
	if referrer != "" {
		if !common.IsHexAddress(referrer) {
			return domain.Validationf("referrer", "not a hex address")
		}
		if referrer == wallet {
			return domain.Validationf("referrer", "cannot self-refer")
		}
	}
	if req.Signature == "" {
		return domain.Validationf("signature", "required")
	}
	return nil
}
