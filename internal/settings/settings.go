// Package settings resolves shop-cut configuration with an explicit freshness
// contract: global settings are read through a cache for at most TTL, and
// every write through this package invalidates the written key.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bengkelpos/backend/internal/cache"
	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/store"
)

var ErrInvalidSetting = errors.New("invalid setting")

var hundred = decimal.NewFromInt(100)

type Service struct {
	globals   store.GlobalSettingStore
	mechanics store.MechanicSettingStore
	cache     cache.SettingsCache
	ttl       time.Duration
}

func New(globals store.GlobalSettingStore, mechanics store.MechanicSettingStore, settingsCache cache.SettingsCache, ttl time.Duration) *Service {
	if settingsCache == nil {
		settingsCache = cache.NoopSettingsCache{}
	}
	return &Service{
		globals:   globals,
		mechanics: mechanics,
		cache:     settingsCache,
		ttl:       ttl,
	}
}

// Get returns the global setting value and whether it exists.
func (s *Service) Get(ctx context.Context, key string) (string, bool, error) {
	entry, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Printf("[settings] WARN: cache read failed for %s: %v", key, err)
	}
	if err == nil && hit && entry != nil {
		return entry.Value, entry.Found, nil
	}

	fresh := &cache.SettingEntry{}
	setting, err := s.globals.GetSetting(ctx, key)
	switch {
	case err == nil:
		fresh.Value = setting.Value
		fresh.Found = true
	case errors.Is(err, store.ErrNotFound):
	default:
		return "", false, err
	}

	if err := s.cache.Set(ctx, key, fresh, s.ttl); err != nil {
		log.Printf("[settings] WARN: cache write failed for %s: %v", key, err)
	}
	return fresh.Value, fresh.Found, nil
}

func (s *Service) Set(ctx context.Context, key string, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case domain.SettingDefaultShopCut:
		pct, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be numeric", ErrInvalidSetting, key)
		}
		if err := validatePercentage(pct); err != nil {
			return err
		}
	case domain.SettingEnableCustomMechanic:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%w: %s must be true or false", ErrInvalidSetting, key)
		}
	default:
		return fmt.Errorf("%w: unknown key %s", ErrInvalidSetting, key)
	}

	if err := s.globals.SetSetting(ctx, key, value); err != nil {
		return err
	}
	return s.Invalidate(ctx, key)
}

// Invalidate drops cached values. With no keys every known key is dropped.
func (s *Service) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		keys = []string{domain.SettingDefaultShopCut, domain.SettingEnableCustomMechanic}
	}
	return s.cache.Delete(ctx, keys...)
}

func (s *Service) DefaultShopCut(ctx context.Context) (decimal.Decimal, error) {
	fallback := decimal.NewFromInt(domain.DefaultShopCutPercentageValue)
	value, found, err := s.Get(ctx, domain.SettingDefaultShopCut)
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return fallback, nil
	}
	pct, err := decimal.NewFromString(value)
	if err != nil {
		log.Printf("[settings] WARN: %s=%q is not numeric, using %s", domain.SettingDefaultShopCut, value, fallback)
		return fallback, nil
	}
	return pct, nil
}

// CustomMechanicSettingsEnabled treats an absent key as enabled.
func (s *Service) CustomMechanicSettingsEnabled(ctx context.Context) (bool, error) {
	value, found, err := s.Get(ctx, domain.SettingEnableCustomMechanic)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("[settings] WARN: %s=%q is not a bool, treating as enabled", domain.SettingEnableCustomMechanic, value)
		return true, nil
	}
	return enabled, nil
}

// ShopCutPercentage resolves the active mechanic override, then the global
// default, then 50.
func (s *Service) ShopCutPercentage(ctx context.Context, mechanicID string) (decimal.Decimal, error) {
	enabled, err := s.CustomMechanicSettingsEnabled(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if enabled {
		setting, err := s.mechanics.GetMechanicSetting(ctx, mechanicID)
		switch {
		case err == nil:
			return setting.ShopCutPercentage, nil
		case errors.Is(err, store.ErrNotFound):
		default:
			return decimal.Zero, err
		}
	}
	return s.DefaultShopCut(ctx)
}

func (s *Service) Snapshot(ctx context.Context) (domain.SettingsResponse, error) {
	pct, err := s.DefaultShopCut(ctx)
	if err != nil {
		return domain.SettingsResponse{}, err
	}
	enabled, err := s.CustomMechanicSettingsEnabled(ctx)
	if err != nil {
		return domain.SettingsResponse{}, err
	}
	return domain.SettingsResponse{
		DefaultShopCutPercentage:     pct,
		EnableCustomMechanicSettings: enabled,
	}, nil
}

func (s *Service) Update(ctx context.Context, req domain.SettingsUpdateRequest) (domain.SettingsResponse, error) {
	if req.DefaultShopCutPercentage == nil && req.EnableCustomMechanicSettings == nil {
		return domain.SettingsResponse{}, fmt.Errorf("%w: nothing to update", ErrInvalidSetting)
	}
	if req.DefaultShopCutPercentage != nil {
		if err := s.Set(ctx, domain.SettingDefaultShopCut, req.DefaultShopCutPercentage.String()); err != nil {
			return domain.SettingsResponse{}, err
		}
	}
	if req.EnableCustomMechanicSettings != nil {
		if err := s.Set(ctx, domain.SettingEnableCustomMechanic, strconv.FormatBool(*req.EnableCustomMechanicSettings)); err != nil {
			return domain.SettingsResponse{}, err
		}
	}
	return s.Snapshot(ctx)
}

func (s *Service) UpsertMechanicSetting(ctx context.Context, mechanicID string, shopCut decimal.Decimal) (*domain.MechanicSetting, error) {
	if strings.TrimSpace(mechanicID) == "" {
		return nil, fmt.Errorf("%w: mechanic id is required", ErrInvalidSetting)
	}
	if err := validatePercentage(shopCut); err != nil {
		return nil, err
	}
	return s.mechanics.UpsertMechanicSetting(ctx, mechanicID, shopCut)
}

func (s *Service) DeactivateMechanicSetting(ctx context.Context, mechanicID string) error {
	return s.mechanics.DeactivateMechanicSetting(ctx, mechanicID)
}

func (s *Service) ListMechanicSettings(ctx context.Context) ([]domain.MechanicSetting, error) {
	return s.mechanics.ListMechanicSettings(ctx)
}

func validatePercentage(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("%w: shop cut percentage must be between 0 and 100", ErrInvalidSetting)
	}
	return nil
}
