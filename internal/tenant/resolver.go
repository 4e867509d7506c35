package tenant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

var (
	ErrNoMetadata    = errors.New("tenant: event has no routing metadata")
	ErrUnknownTenant = errors.New("tenant: no tenant for routing id")
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, c *Credential) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*Credential, error) {
	var c Credential
	if err := r.db.WithContext(ctx).
		Where("phone_number_id = ?", phoneNumberID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// Resolver maps a gateway routing id to its tenant. Hits are cached for ttl;
// misses are not, so a freshly provisioned tenant is picked up immediately.
type Resolver struct {
	repo  *Repo
	cache *cache.Cache
}

func NewResolver(repo *Repo, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{repo: repo, cache: cache.New(ttl, 2*ttl)}
}

func (r *Resolver) Resolve(ctx context.Context, routingID string) (*Credential, error) {
	routingID = strings.TrimSpace(routingID)
	if routingID == "" {
		return nil, ErrNoMetadata
	}
	if v, ok := r.cache.Get(routingID); ok {
		c := *v.(*Credential)
		return &c, nil
	}

	c, err := r.repo.GetByPhoneNumberID(ctx, routingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownTenant
		}
		return nil, err
	}
	r.cache.SetDefault(routingID, c)

	out := *c
	return &out, nil
}

// Invalidate drops a cached entry, e.g. after settings change.
func (r *Resolver) Invalidate(routingID string) {
	r.cache.Delete(routingID)
}
