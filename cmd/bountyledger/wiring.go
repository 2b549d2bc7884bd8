package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/jask/bountyledger/internal/ledger"
	"github.com/jask/bountyledger/internal/remote"
	"github.com/jask/bountyledger/internal/remote/fixture"
	"github.com/jask/bountyledger/internal/remote/github"
	"github.com/jask/bountyledger/internal/secrets"
)

func (a *app) openLedger(ctx context.Context) (*ledger.Ledger, error) {
	switch a.cfg.Ledger.Backend {
	case "sqlite":
		b, err := ledger.OpenSQLite(ctx, a.cfg.Ledger.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open ledger %s: %w", a.cfg.Ledger.DBPath, err)
		}
		return ledger.New(b), nil
	default:
		b, err := ledger.OpenFile(a.cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("open ledger %s: %w", a.cfg.Ledger.Path, err)
		}
		return ledger.New(b), nil
	}
}

func (a *app) mergeStrategy() (remote.MergeStrategy, error) {
	return remote.ParseMergeStrategy(a.cfg.Remote.MergeStrategy)
}

func (a *app) newHost() (remote.Host, error) {
	if a.env.host != nil {
		return a.env.host(), nil
	}
	rc := a.cfg.Remote
	switch rc.Kind {
	case "fixture":
		if rc.FixturePath == "" {
			return nil, fmt.Errorf("remote.fixture_path is required for the fixture host")
		}
		h, err := fixture.Load(rc.FixturePath)
		if err != nil {
			return nil, err
		}
		a.log.Info("using fixture host; merges are not persisted", zap.String("path", rc.FixturePath))
		return h, nil
	default:
		return github.New(github.Options{
			Owner:             rc.Owner,
			Repo:              rc.Repo,
			BaseURL:           rc.BaseURL,
			Token:             a.resolveToken(),
			RequestsPerSecond: rc.RequestsPerSecond,
			BountyLabelPrefix: rc.BountyLabelPrefix,
			BlockingLabel:     rc.BlockingLabel,
			MaxRetries:        rc.MaxRetries,
			Logger:            a.log,
		})
	}
}

// resolveToken prefers the env var, then the secrets store, then config.
func (a *app) resolveToken() string {
	rc := a.cfg.Remote
	if env := strings.TrimSpace(rc.TokenEnv); env != "" {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	if store, err := a.secrets(); err == nil {
		if tok, err := store.Get(a.tokenHost()); err == nil {
			return tok
		}
	}
	if rc.Token == "" {
		a.log.Warn("no remote token configured; requests are unauthenticated")
	}
	return strings.TrimSpace(rc.Token)
}

// tokenHost names the remote in the secrets store.
func (a *app) tokenHost() string {
	if a.cfg.Remote.BaseURL == "" {
		return "github.com"
	}
	u, err := url.Parse(a.cfg.Remote.BaseURL)
	if err != nil || u.Host == "" {
		return a.cfg.Remote.BaseURL
	}
	return u.Host
}

func (a *app) secrets() (*secrets.Store, error) {
	dirFn := secrets.DefaultDir
	if a.env.secretsDir != nil {
		dirFn = a.env.secretsDir
	}
	dir, err := dirFn()
	if err != nil {
		return nil, err
	}
	return secrets.Open(dir)
}
