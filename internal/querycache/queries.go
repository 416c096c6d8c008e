package querycache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ayush/tipfinity/internal/api"
	"github.com/ayush/tipfinity/internal/models"
)

// HealthMaxAge is how long a health result is served before it is refetched.
const HealthMaxAge = 30 * time.Second

// Backend is the slice of the remote data client the cache layer drives.
type Backend interface {
	Health(ctx context.Context) (api.Envelope[models.Health], error)
	CreateCreator(ctx context.Context, in models.CreateCreatorInput) (api.Envelope[models.Created], error)
	ListCreators(ctx context.Context) (api.Envelope[[]models.Creator], error)
	GetCreator(ctx context.Context, id int64) (api.Envelope[models.Creator], error)
	UpdateCreator(ctx context.Context, id int64, in models.UpdateCreatorInput) (api.Envelope[models.Updated], error)
	DeleteCreator(ctx context.Context, id int64) (api.Envelope[models.Deleted], error)
	UsernameAvailable(ctx context.Context, username string) (api.Envelope[models.Availability], error)
	LinkWallet(ctx context.Context, in models.WalletLinkRequest) (api.Envelope[models.WalletLinkResult], error)
	CreateTip(ctx context.Context, in models.CreateTipInput) (api.Envelope[models.Created], error)
	TipsForCreator(ctx context.Context, creatorID int64) (api.Envelope[[]models.Tip], error)
	RecentTips(ctx context.Context) (api.Envelope[[]models.Tip], error)
	ForwardWebhook(ctx context.Context, ev api.WebhookEvent) (api.Envelope[json.RawMessage], error)
}

// Queries is the typed read/write surface pages use. Every read goes through
// the cache; every write declares its invalidations.
type Queries struct {
	backend Backend
	cache   *Cache
}

func NewQueries(backend Backend, cache *Cache) *Queries {
	return &Queries{backend: backend, cache: cache}
}

func (q *Queries) Cache() *Cache { return q.cache }

func unwrap[T any](op string, call func() (api.Envelope[T], error)) (T, error) {
	env, err := call()
	if err != nil {
		var zero T
		return zero, err
	}
	return env.Unwrap(op)
}

func (q *Queries) Health(ctx context.Context) (models.Health, error) {
	q.cache.Expire(HealthKey(), HealthMaxAge)
	return Read(ctx, q.cache, HealthKey(), func(ctx context.Context) (models.Health, error) {
		return unwrap("health", func() (api.Envelope[models.Health], error) { return q.backend.Health(ctx) })
	})
}

func (q *Queries) Creators(ctx context.Context) ([]models.Creator, error) {
	return Read(ctx, q.cache, CreatorsKey(), func(ctx context.Context) ([]models.Creator, error) {
		return unwrap("list creators", func() (api.Envelope[[]models.Creator], error) { return q.backend.ListCreators(ctx) })
	})
}

func (q *Queries) Creator(ctx context.Context, id int64) (models.Creator, error) {
	if id <= 0 {
		return models.Creator{}, api.Invalid("id", "must be positive")
	}
	return Read(ctx, q.cache, CreatorKey(id), func(ctx context.Context) (models.Creator, error) {
		return unwrap("get creator", func() (api.Envelope[models.Creator], error) { return q.backend.GetCreator(ctx, id) })
	})
}

// UsernameAvailable is advisory; uniqueness is enforced by the backend.
func (q *Queries) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, api.Invalid("username", "is required")
	}
	a, err := Read(ctx, q.cache, UsernameKey(username), func(ctx context.Context) (models.Availability, error) {
		return unwrap("username availability", func() (api.Envelope[models.Availability], error) {
			return q.backend.UsernameAvailable(ctx, username)
		})
	})
	return a.Available, err
}

func (q *Queries) TipsForCreator(ctx context.Context, creatorID int64) ([]models.Tip, error) {
	if creatorID <= 0 {
		return nil, api.Invalid("creator_id", "must be positive")
	}
	return Read(ctx, q.cache, TipsForCreatorKey(creatorID), func(ctx context.Context) ([]models.Tip, error) {
		return unwrap("tips for creator", func() (api.Envelope[[]models.Tip], error) {
			return q.backend.TipsForCreator(ctx, creatorID)
		})
	})
}

// TipTotal is derived from the creator's tip list.
func (q *Queries) TipTotal(ctx context.Context, creatorID int64) (models.TipTotal, error) {
	return Read(ctx, q.cache, TipTotalKey(creatorID), func(ctx context.Context) (models.TipTotal, error) {
		tips, err := q.TipsForCreator(ctx, creatorID)
		if err != nil {
			return models.TipTotal{}, err
		}
		return models.SumTips(creatorID, tips), nil
	})
}

func (q *Queries) RecentTips(ctx context.Context) ([]models.Tip, error) {
	return Read(ctx, q.cache, RecentTipsKey(), func(ctx context.Context) ([]models.Tip, error) {
		return unwrap("recent tips", func() (api.Envelope[[]models.Tip], error) { return q.backend.RecentTips(ctx) })
	})
}

func (q *Queries) CreateCreator(ctx context.Context, in models.CreateCreatorInput) (models.Created, error) {
	if in.Username == "" {
		return models.Created{}, api.Invalid("username", "is required")
	}
	return Mutate(ctx, q.cache, MutationCreateCreator, 0, func(ctx context.Context) (models.Created, error) {
		return unwrap("create creator", func() (api.Envelope[models.Created], error) { return q.backend.CreateCreator(ctx, in) })
	})
}

func (q *Queries) UpdateCreator(ctx context.Context, id int64, in models.UpdateCreatorInput) (models.Updated, error) {
	return Mutate(ctx, q.cache, MutationUpdateCreator, id, func(ctx context.Context) (models.Updated, error) {
		return unwrap("update creator", func() (api.Envelope[models.Updated], error) { return q.backend.UpdateCreator(ctx, id, in) })
	})
}

func (q *Queries) DeleteCreator(ctx context.Context, id int64) (models.Deleted, error) {
	return Mutate(ctx, q.cache, MutationDeleteCreator, id, func(ctx context.Context) (models.Deleted, error) {
		return unwrap("delete creator", func() (api.Envelope[models.Deleted], error) { return q.backend.DeleteCreator(ctx, id) })
	})
}

// LinkWallet submits a signed challenge. A verified=false answer is returned
// as a ProtocolError and, like any failed mutation, invalidates nothing.
func (q *Queries) LinkWallet(ctx context.Context, in models.WalletLinkRequest) (models.WalletLinkResult, error) {
	return Mutate(ctx, q.cache, MutationLinkWallet, in.CreatorID, func(ctx context.Context) (models.WalletLinkResult, error) {
		res, err := unwrap("link wallet", func() (api.Envelope[models.WalletLinkResult], error) { return q.backend.LinkWallet(ctx, in) })
		if err != nil {
			return res, err
		}
		if !res.Verified {
			return res, &api.ProtocolError{Message: "wallet signature was not verified"}
		}
		return res, nil
	})
}

func (q *Queries) CreateTip(ctx context.Context, in models.CreateTipInput) (models.Created, error) {
	if err := api.ValidateTip(in); err != nil {
		return models.Created{}, err
	}
	return Mutate(ctx, q.cache, MutationCreateTip, in.CreatorID, func(ctx context.Context) (models.Created, error) {
		return unwrap("create tip", func() (api.Envelope[models.Created], error) { return q.backend.CreateTip(ctx, in) })
	})
}

// ForwardWebhook relays a validated provider event. A tip.created event is a
// create-tip mutation; the other variants change no cached query.
func (q *Queries) ForwardWebhook(ctx context.Context, ev api.WebhookEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	call := func(ctx context.Context) (json.RawMessage, error) {
		return unwrap("tip webhook", func() (api.Envelope[json.RawMessage], error) { return q.backend.ForwardWebhook(ctx, ev) })
	}
	if created, ok := ev.(api.TipCreated); ok {
		_, err := Mutate(ctx, q.cache, MutationCreateTip, created.Tip.CreatorID, call)
		return err
	}
	_, err := call(ctx)
	return err
}
