package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starstake/stakeboard/internal/domain"
)

// packagesKey holds the whole catalogue as one JSON blob. The catalogue is
// a handful of rows and always read together.
const packagesKey = "packages:catalog"

// PackageCache implements domain.PackageCache.
type PackageCache struct {
	rdb *redis.Client
}

// NewPackageCache creates a PackageCache backed by the given Client.
func NewPackageCache(c *Client) *PackageCache {
	return &PackageCache{rdb: c.Underlying()}
}

// SetAll replaces the cached catalogue.
func (pc *PackageCache) SetAll(ctx context.Context, packages []domain.Package, ttl time.Duration) error {
	data, err := json.Marshal(packages)
	if err != nil {
		return fmt.Errorf("redis: marshal packages: %w", err)
	}
	if err := pc.rdb.Set(ctx, packagesKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set packages: %w", err)
	}
	return nil
}

// GetAll returns the cached catalogue.
// It returns domain.ErrNotFound when no catalogue is cached.
func (pc *PackageCache) GetAll(ctx context.Context) ([]domain.Package, error) {
	data, err := pc.rdb.Get(ctx, packagesKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get packages: %w", err)
	}

	var packages []domain.Package
	if err := json.Unmarshal(data, &packages); err != nil {
		return nil, fmt.Errorf("redis: unmarshal packages: %w", err)
	}
	return packages, nil
}

// Get returns one package by id from the cached catalogue.
func (pc *PackageCache) Get(ctx context.Context, id uint64) (domain.Package, error) {
	packages, err := pc.GetAll(ctx)
	if err != nil {
		return domain.Package{}, err
	}
	for _, pkg := range packages {
		if pkg.ID == id {
			return pkg, nil
		}
	}
	return domain.Package{}, domain.ErrNotFound
}

// Compile-time interface check.
var _ domain.PackageCache = (*PackageCache)(nil)
