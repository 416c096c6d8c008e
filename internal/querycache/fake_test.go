package querycache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ayush/tipfinity/internal/api"
	"github.com/ayush/tipfinity/internal/models"
)

// fakeBackend is an in-memory backend. Hooks, when set, run before the
// matching call and may block or fail it.
type fakeBackend struct {
	mu       sync.Mutex
	creators map[int64]models.Creator
	tips     []models.Tip
	nextID   int64

	healthCalls atomic.Int32
	getCalls    atomic.Int32
	tipCalls    atomic.Int32
	listCalls   atomic.Int32

	onGet    func(ctx context.Context, id int64) error
	onTips   func()
	onUpdate func() error
	verified bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{creators: make(map[int64]models.Creator), verified: true}
}

func success[T any](v T) api.Envelope[T] { return api.Envelope[T]{Success: true, Data: &v} }

func (f *fakeBackend) Health(context.Context) (api.Envelope[models.Health], error) {
	f.healthCalls.Add(1)
	return success(models.Health{Status: "ok", DB: 1}), nil
}

func (f *fakeBackend) CreateCreator(_ context.Context, in models.CreateCreatorInput) (api.Envelope[models.Created], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.creators[f.nextID] = models.Creator{ID: f.nextID, Username: in.Username, DisplayName: in.DisplayName, Email: in.Email}
	return success(models.Created{ID: f.nextID}), nil
}

func (f *fakeBackend) ListCreators(context.Context) (api.Envelope[[]models.Creator], error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Creator, 0, len(f.creators))
	for _, c := range f.creators {
		out = append(out, c)
	}
	return success(out), nil
}

func (f *fakeBackend) GetCreator(ctx context.Context, id int64) (api.Envelope[models.Creator], error) {
	f.getCalls.Add(1)
	f.mu.Lock()
	c, found := f.creators[id]
	hook := f.onGet
	f.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, id); err != nil {
			return api.Envelope[models.Creator]{}, err
		}
	}
	if !found {
		return api.Envelope[models.Creator]{}, &api.RemoteError{Op: "get creator", Status: 404, Message: "creator not found"}
	}
	return success(c), nil
}

func (f *fakeBackend) UpdateCreator(_ context.Context, id int64, in models.UpdateCreatorInput) (api.Envelope[models.Updated], error) {
	if f.onUpdate != nil {
		if err := f.onUpdate(); err != nil {
			return api.Envelope[models.Updated]{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.creators[id]
	f.creators[id] = *in.Apply(&c)
	return success(models.Updated{Updated: true}), nil
}

func (f *fakeBackend) DeleteCreator(_ context.Context, id int64) (api.Envelope[models.Deleted], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creators, id)
	return success(models.Deleted{Deleted: true}), nil
}

func (f *fakeBackend) UsernameAvailable(_ context.Context, username string) (api.Envelope[models.Availability], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.creators {
		if c.Username == username {
			return success(models.Availability{Available: false}), nil
		}
	}
	return success(models.Availability{Available: true}), nil
}

func (f *fakeBackend) LinkWallet(_ context.Context, in models.WalletLinkRequest) (api.Envelope[models.WalletLinkResult], error) {
	if !f.verified {
		return success(models.WalletLinkResult{Verified: false}), nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.creators[in.CreatorID]
	c.WalletAddress = models.StringPtr(in.PublicKey)
	f.creators[in.CreatorID] = c
	return success(models.WalletLinkResult{Verified: true, WalletAddress: in.PublicKey}), nil
}

func (f *fakeBackend) CreateTip(_ context.Context, in models.CreateTipInput) (api.Envelope[models.Created], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.tips) + 1)
	f.tips = append(f.tips, models.Tip{
		ID:                   id,
		CreatorID:            in.CreatorID,
		TipperWallet:         in.TipperWallet,
		TipAmount:            in.TipAmount,
		TransactionSignature: in.TransactionSignature,
	})
	return success(models.Created{ID: id}), nil
}

func (f *fakeBackend) TipsForCreator(_ context.Context, creatorID int64) (api.Envelope[[]models.Tip], error) {
	f.tipCalls.Add(1)
	if f.onTips != nil {
		f.onTips()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Tip
	for _, t := range f.tips {
		if t.CreatorID == creatorID {
			out = append(out, t)
		}
	}
	return success(out), nil
}

func (f *fakeBackend) RecentTips(context.Context) (api.Envelope[[]models.Tip], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return success(append([]models.Tip(nil), f.tips...)), nil
}

func (f *fakeBackend) ForwardWebhook(ctx context.Context, ev api.WebhookEvent) (api.Envelope[json.RawMessage], error) {
	if created, isCreate := ev.(api.TipCreated); isCreate {
		if _, err := f.CreateTip(ctx, created.Tip); err != nil {
			return api.Envelope[json.RawMessage]{}, err
		}
	}
	return api.Envelope[json.RawMessage]{Success: true}, nil
}

func (f *fakeBackend) seed(c models.Creator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[c.ID] = c
	if c.ID > f.nextID {
		f.nextID = c.ID
	}
}
