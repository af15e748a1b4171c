package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.pilab.hu/authz/domain"
	applog "go.pilab.hu/authz/log"
)

// TwoFactorService issues short-lived confirmation codes for resource owners
// with two-factor authentication enabled. Codes live in an in-process TTL
// cache and are valid for a single confirmation.
type TwoFactorService struct {
	codes    *ttlcache.Cache[string, string]
	notifier Notifier
	logger   applog.Logger
}

// NewTwoFactorService creates a TwoFactorService. Call Close when done to stop
// the cache's eviction goroutine.
func NewTwoFactorService(notifier Notifier, codeTTL time.Duration, logger applog.Logger) *TwoFactorService {
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](codeTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()
	return &TwoFactorService{
		codes:    c,
		notifier: notifier,
		logger:   logger,
	}
}

// Begin generates and delivers a confirmation code for the owner. A new call
// replaces any code still pending for the same owner.
func (s *TwoFactorService) Begin(ctx context.Context, owner *domain.ResourceOwner) error {
	code, err := generateNumericCode(6)
	if err != nil {
		return err
	}
	s.codes.Set(owner.ID, code, ttlcache.DefaultTTL)
	if err := s.notifier.SendCode(ctx, owner, code); err != nil {
		s.codes.Delete(owner.ID)
		return err
	}
	s.logger.Info(ctx, "two-factor code sent", map[string]any{
		"owner_id": owner.ID,
		"method":   owner.TwoFactorMethod,
	})
	return nil
}

// Verify checks the presented code against the pending one. A correct code is
// consumed so it cannot confirm twice.
func (s *TwoFactorService) Verify(ownerID, code string) bool {
	item := s.codes.Get(ownerID)
	if item == nil || item.Value() != code {
		return false
	}
	s.codes.Delete(ownerID)
	return true
}

func (s *TwoFactorService) Close() {
	s.codes.Stop()
}

func generateNumericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
