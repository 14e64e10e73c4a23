package server

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/pawls/internal/auth"
	"github.com/hashicorp-forge/pawls/internal/config"
	"github.com/hashicorp-forge/pawls/pkg/allocation"
	"github.com/hashicorp-forge/pawls/pkg/annotations"
	"github.com/hashicorp-forge/pawls/pkg/assign"
	"github.com/hashicorp-forge/pawls/pkg/blob"
	"github.com/hashicorp-forge/pawls/pkg/documents"
	"github.com/hashicorp-forge/pawls/pkg/keylock"
	"github.com/hashicorp-forge/pawls/pkg/status"
)

// Options adjusts New.
type Options struct {
	// Fs replaces the OS filesystem, for tests.
	Fs afero.Fs

	// Locker replaces the locker chosen from the configuration.
	Locker keylock.Locker

	// SkipUsers does not load the password file.
	SkipUsers bool
}

// New builds a Server from cfg. The returned close function releases
// external connections.
func New(cfg *config.Config, logger hclog.Logger, opts Options) (*Server, func(), error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	closeFn := func() {}

	locker := opts.Locker
	if locker == nil && cfg.Redis != nil {
		rl, err := keylock.NewRedisLocker(cfg.Redis.URL, keylock.RedisConfig{
			Prefix:  cfg.Redis.Prefix,
			TTL:     config.Duration(cfg.Redis.LockTTL),
			MaxWait: config.Duration(cfg.Redis.MaxWait),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to redis: %w", err)
		}
		locker = rl
		closeFn = func() {
			if err := rl.Close(); err != nil {
				logger.Warn("error closing redis client", "error", err)
			}
		}
	}
	if locker == nil {
		locker = keylock.NewKeyedMutex()
	}

	b := blob.New(opts.Fs)

	var validator documents.Validator
	if cfg.Ingest != nil && cfg.Ingest.ValidatePDF {
		validator = documents.NewPDFValidator()
	}

	docs, err := documents.NewStore(documents.Config{
		Root:      cfg.DataDir,
		Blob:      b,
		Locker:    locker,
		Validator: validator,
		Logger:    logger,
	})
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("error creating document store: %w", err)
	}

	st, err := status.NewStore(status.Config{
		Dir:    filepath.Join(cfg.DataDir, status.DirName),
		Blob:   b,
		Locker: locker,
		Logger: logger,
	})
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("error creating status store: %w", err)
	}

	repo, err := annotations.NewRepository(annotations.Config{
		Root:   cfg.DataDir,
		Blob:   b,
		Status: st,
		Locker: locker,
		Logger: logger,
	})
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("error creating annotation repository: %w", err)
	}

	var users *auth.Htpasswd
	if !opts.SkipUsers && cfg.Server != nil && cfg.Server.PasswordFile != "" {
		users, err = auth.LoadHtpasswd(cfg.Server.PasswordFile)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		logger.Info("loaded password file", "users", users.Len())
	}

	return &Server{
		Config:      cfg,
		Blob:        b,
		Documents:   docs,
		Status:      st,
		Annotations: repo,
		Assign:      assign.NewService(docs, st, logger),
		Allocation:  allocation.NewView(st, docs, logger),
		Users:       users,
		Logger:      logger,
	}, closeFn, nil
}
