// Package app builds the companion's components and owns their lifetime.
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/ayush/tipfinity/internal/api"
	"github.com/ayush/tipfinity/internal/config"
	"github.com/ayush/tipfinity/internal/media"
	"github.com/ayush/tipfinity/internal/models"
	"github.com/ayush/tipfinity/internal/onboarding"
	"github.com/ayush/tipfinity/internal/pricing"
	"github.com/ayush/tipfinity/internal/querycache"
	"github.com/ayush/tipfinity/internal/session"
	"github.com/ayush/tipfinity/internal/wallet"
	"github.com/ayush/tipfinity/internal/walletlink"
)

// App is the explicit application context handed to the HTTP layer.
type App struct {
	Logger   *slog.Logger
	Queries  *querycache.Queries
	Sessions *session.Store
	Wallets  *wallet.Connector
	Linker   *walletlink.Linker
	Signup   *onboarding.Machine
	Prices   *pricing.Client
	Avatars  media.Uploader // nil when object storage is not configured
	Keypair  wallet.Signer
	Platform string

	walletUp  atomic.Bool
	closeFunc []func()
}

// Deps are the externally built pieces New needs. Tests pass fakes here.
type Deps struct {
	Backend  querycache.Backend
	Slot     session.Slot
	Policy   session.DisconnectPolicy
	Avatars  media.Uploader
	Prices   *pricing.Client
	Keypair  wallet.Signer
	Platform string
	Logger   *slog.Logger
}

// New wires the components together and hydrates the session.
func New(ctx context.Context, d Deps) (*App, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Logger:   logger,
		Queries:  querycache.NewQueries(d.Backend, querycache.New(logger.With("component", "querycache"))),
		Sessions: session.NewStore(d.Slot, d.Policy, logger.With("component", "session")),
		Wallets:  wallet.NewConnector(),
		Avatars:  d.Avatars,
		Prices:   d.Prices,
		Keypair:  d.Keypair,
		Platform: d.Platform,
	}
	a.closeFunc = append(a.closeFunc, a.Sessions.Close)

	a.Linker = walletlink.NewLinker(a.Queries, a.Sessions, a.Wallets, d.Platform, logger.With("component", "walletlink"))
	a.Signup = onboarding.NewMachine(signupEnv{a}, a.completeSignup, logger.With("component", "onboarding"))

	// Observers run under the connector lock, so the signup gate reads
	// walletUp instead of asking the connector.
	a.Wallets.Observe(func(ctx context.Context, st wallet.Status) {
		a.walletUp.Store(st.Connected)
		if !st.Connected {
			cleared, err := a.Sessions.WalletDisconnected(ctx)
			if err != nil {
				logger.Error("apply wallet disconnect", "error", err)
			} else if cleared {
				logger.Info("session cleared on wallet disconnect")
			}
		}
		a.Signup.WalletChanged()
	})

	changes, stop := a.Sessions.Subscribe()
	a.closeFunc = append(a.closeFunc, stop)
	go func() {
		for range changes {
			a.Signup.WalletChanged()
		}
	}()

	if err := a.Sessions.Hydrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("hydrate session: %w", err)
	}
	return a, nil
}

// Close tears components down in reverse construction order.
func (a *App) Close() {
	for i := len(a.closeFunc) - 1; i >= 0; i-- {
		a.closeFunc[i]()
	}
	a.closeFunc = nil
}

// OnClose registers teardown for resources built outside New.
func (a *App) OnClose(f func()) {
	a.closeFunc = append(a.closeFunc, f)
}

// ConnectWallet connects the configured local keypair.
func (a *App) ConnectWallet(ctx context.Context) (wallet.Status, error) {
	if a.Keypair == nil {
		return wallet.Status{}, api.Invalid("wallet", "no local wallet configured")
	}
	a.Wallets.Connect(ctx, a.Keypair)
	return a.Wallets.Status(), nil
}

func (a *App) DisconnectWallet(ctx context.Context) wallet.Status {
	a.Wallets.Disconnect(ctx)
	return a.Wallets.Status()
}

type signupEnv struct{ a *App }

func (e signupEnv) WalletConnected() bool { return e.a.walletUp.Load() }

func (e signupEnv) HasSession() bool { return e.a.Sessions.IsAuthenticated() }

// completeSignup registers the creator (or updates the session creator's
// profile), stores the result as the session, then links a connected wallet.
func (a *App) completeSignup(ctx context.Context, p onboarding.Profile) error {
	var image *string
	if p.Avatar != nil && a.Avatars != nil {
		ref, err := a.Avatars.Upload(ctx, p.Username, p.Avatar)
		if err != nil {
			return err
		}
		image = &ref
	}

	id, err := a.registerOrUpdate(ctx, p, image)
	if err != nil {
		if image != nil {
			if rerr := a.Avatars.Remove(context.WithoutCancel(ctx), *image); rerr != nil {
				a.Logger.Warn("remove orphaned avatar", "ref", *image, "error", rerr)
			}
		}
		return err
	}

	c, err := a.Queries.Creator(ctx, id)
	if err != nil {
		return err
	}
	if err := a.Sessions.SetCreator(ctx, &c); err != nil {
		return err
	}
	a.linkConnectedWallet(ctx, &c)
	return nil
}

// linkConnectedWallet proves ownership of a wallet connected during signup.
// A failed link leaves the creator registered; the link can be retried.
func (a *App) linkConnectedWallet(ctx context.Context, c *models.Creator) {
	if c.HasWallet() {
		return
	}
	if _, ok := a.Wallets.Signer(); !ok {
		return
	}
	if _, err := a.Linker.Link(ctx); err != nil {
		a.Logger.Warn("link wallet after signup", "creator_id", c.ID, "error", err)
	}
}

func (a *App) registerOrUpdate(ctx context.Context, p onboarding.Profile, image *string) (int64, error) {
	if cur := a.Sessions.Current(); cur != nil {
		in := models.UpdateCreatorInput{ProfileImage: image}
		if p.Email != "" {
			in.Email = models.StringPtr(p.Email)
		}
		if _, err := a.Queries.UpdateCreator(ctx, cur.ID, in); err != nil {
			return 0, err
		}
		return cur.ID, nil
	}

	in := models.CreateCreatorInput{
		Username:     p.Username,
		DisplayName:  p.Username,
		Email:        p.Email,
		ProfileImage: image,
	}
	created, err := a.Queries.CreateCreator(ctx, in)
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

// FromConfig builds every external dependency named by cfg, then the App.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	var closers []func()
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	d := Deps{
		Backend:  api.NewClient(cfg.APIBaseURL, httpClient),
		Prices:   pricing.NewClient(cfg.PriceAPIURL, httpClient, cfg.PriceTTL),
		Platform: cfg.Platform,
		Logger:   logger,
	}

	policy, err := session.ParsePolicy(cfg.DisconnectMode)
	if err != nil {
		return fail(err)
	}
	d.Policy = policy

	switch cfg.SessionBackend {
	case "redis":
		rdb, err := session.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { closeRedis(rdb, logger) })
		d.Slot = session.NewRedisSlot(rdb, cfg.SessionPrefix)
	default:
		path := cfg.SessionFile
		if path == "" {
			if path, err = session.DefaultFilePath(); err != nil {
				return fail(err)
			}
		}
		d.Slot = session.NewFileSlot(path)
	}

	if cfg.MinioEnabled() {
		store, err := media.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey,
			cfg.MinioBucket, cfg.MinioPublicURL, cfg.MinioUseSSL)
		if err != nil {
			return fail(err)
		}
		d.Avatars = store
	} else {
		logger.Info("object storage not configured; avatars will not be uploaded")
	}

	kp, err := loadKeypair(cfg.WalletKeystore, cfg.WalletPassphrase, logger)
	if err != nil {
		return fail(err)
	}
	d.Keypair = kp

	a, err := New(ctx, d)
	if err != nil {
		return fail(err)
	}
	for _, c := range closers {
		a.OnClose(c)
	}
	return a, nil
}

// loadKeypair opens the keystore, creating it on first use. Without a
// keystore path an ephemeral keypair is generated.
func loadKeypair(path, passphrase string, logger *slog.Logger) (*wallet.Keypair, error) {
	if strings.TrimSpace(path) == "" {
		logger.Warn("WALLET_KEYSTORE not set; using an ephemeral wallet")
		return wallet.Generate(rand.Reader)
	}
	kp, err := wallet.LoadKeystore(path, passphrase)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	kp, err = wallet.Generate(rand.Reader)
	if err != nil {
		return nil, err
	}
	if err := wallet.SaveKeystore(path, kp, passphrase); err != nil {
		return nil, err
	}
	logger.Info("created wallet keystore", "path", path, "address", kp.PublicKey())
	return kp, nil
}

func closeRedis(rdb *redis.Client, logger *slog.Logger) {
	if err := rdb.Close(); err != nil {
		logger.Warn("close redis", "error", err)
	}
}

// NewLogger builds the process logger at the named level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
