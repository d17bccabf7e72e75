// Package main is the catalystd entrypoint: a single content server process
// wiring storage, the deploy Orchestrator, the HTTP API, and the background
// synchronizer together from environment configuration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshland/catalyst/pkg/accesscontrol"
	"github.com/meshland/catalyst/pkg/api"
	"github.com/meshland/catalyst/pkg/apierr"
	"github.com/meshland/catalyst/pkg/blacklist"
	"github.com/meshland/catalyst/pkg/cluster"
	"github.com/meshland/catalyst/pkg/config"
	"github.com/meshland/catalyst/pkg/dao"
	"github.com/meshland/catalyst/pkg/deploy"
	"github.com/meshland/catalyst/pkg/entity"
	"github.com/meshland/catalyst/pkg/events"
	"github.com/meshland/catalyst/pkg/failure"
	"github.com/meshland/catalyst/pkg/history"
	"github.com/meshland/catalyst/pkg/log"
	"github.com/meshland/catalyst/pkg/pointer"
	"github.com/meshland/catalyst/pkg/storage"
	"github.com/meshland/catalyst/pkg/sync"
	"github.com/meshland/catalyst/pkg/validation"
)

// Version is set via ldflags during build.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "catalystd",
	Short:   "catalystd serves a federated content-addressed entity repository",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the content server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.StorageRootFolder)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	pointers := pointer.NewManager(store)
	historyMgr := history.NewManager(store, cfg.ImmutableTimeDelay)
	failures := failure.NewRegistry(store)
	broker := events.NewBroker()
	access := accesscontrol.NewOwnerMapChecker()

	env := validation.Env{
		Now:                  time.Now,
		TTLBackwards:         cfg.RequestTTLBackwards,
		TTLForwards:          cfg.RequestTTLForwards,
		MaxUploadSizePerType: maxUploadSizePerType(cfg.MaxUploadSizePerType),
		AllowLegacyEntities:  cfg.AllowLegacyEntities,
	}
	calls := validation.ExternalCalls{
		IsContentStoredAlready: func(ctx context.Context, hash string) (bool, error) {
			return store.Exists(ctx, storage.CategoryContents, hash)
		},
		FetchOverlapping: func(ctx context.Context, typ entity.Type, ptrs []string) ([]*entity.Entity, error) {
			return fetchOverlapping(ctx, store, pointers, typ, ptrs)
		},
		FetchOverlappingAudit: func(ctx context.Context, entityID string) (*entity.AuditInfo, error) {
			return fetchAudit(ctx, store, entityID)
		},
		AccessCheck: func(ctx context.Context, typ entity.Type, ptr, ethAddress string) []string {
			reasons, err := access.CheckAccess(ctx, string(typ), ptr, ethAddress)
			if err != nil {
				return []string{err.Error()}
			}
			return reasons
		},
	}

	orchestrator := deploy.New(
		store, pointers, historyMgr, failures, serverName(cfg), env, calls,
		deploy.WithEventBroker(broker),
		deploy.WithVersion(Version),
	)

	var service deploy.Service = blacklist.New(orchestrator)

	daoClient, err := buildDAOClient(cfg)
	if err != nil {
		return fmt.Errorf("build DAO client: %w", err)
	}
	pool := cluster.NewPool(daoClient, &http.Client{Timeout: 30 * time.Second})
	if err := pool.Refresh(context.Background()); err != nil {
		log.Logger.Warn().Err(err).Msg("catalystd: initial peer refresh failed, will retry on next sync tick")
	}

	synchronizer := sync.New(pool, service, failures, store, cfg.SyncInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	synchronizer.Start(ctx)

	srv := api.New(service)
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info().Str("addr", addr).Msg("catalystd: listening")
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info().Msg("catalystd: shutting down")
	case err := <-errCh:
		log.Logger.Error().Err(err).Msg("catalystd: server error")
	}

	synchronizer.Stop()
	cancel()
	if err := store.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}

// serverName derives this node's identity for history events and audit
// records from DAO_ADDRESS, falling back to the local hostname.
func serverName(cfg *config.Config) string {
	if cfg.DAOAddress != "" {
		return cfg.DAOAddress
	}
	host, err := os.Hostname()
	if err != nil {
		return "catalystd"
	}
	return host
}

// maxUploadSizePerType converts the config's string-keyed megabyte map
// into the entity.Type-keyed megabyte map validation.Env expects.
func maxUploadSizePerType(raw map[string]int) map[entity.Type]int64 {
	out := make(map[entity.Type]int64, len(raw))
	for typ, mb := range raw {
		out[entity.Type(typ)] = int64(mb)
	}
	return out
}

// fetchOverlapping resolves the entities currently active at ptrs, the way
// deploy.Orchestrator.GetEntities does internally, for the LEGACY_ENTITY
// predicate to compare the incoming deployment against.
func fetchOverlapping(ctx context.Context, store storage.Store, pointers *pointer.Manager, typ entity.Type, ptrs []string) ([]*entity.Entity, error) {
	seen := make(map[string]bool)
	out := make([]*entity.Entity, 0, len(ptrs))
	for _, p := range ptrs {
		id, found, err := pointers.ActiveEntity(ctx, typ, p)
		if err != nil {
			return nil, err
		}
		if !found || seen[id] {
			continue
		}
		seen[id] = true
		raw, err := store.Get(ctx, storage.CategoryContents, id)
		if err != nil {
			continue // deleted/unknown entities are skipped, not an error
		}
		e, err := entity.Parse(raw)
		if err != nil {
			continue
		}
		e.ID = id
		out = append(out, e)
	}
	return out, nil
}

// fetchAudit returns the persisted AuditInfo for entityID, or nil if none
// exists, matching the LEGACY_ENTITY predicate's "no prior deployment"
// expectations rather than surfacing a NotFound error.
func fetchAudit(ctx context.Context, store storage.Store, entityID string) (*entity.AuditInfo, error) {
	data, err := store.Get(ctx, storage.CategoryProofs, entityID)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, nil
		}
		return nil, apierr.Wrap(err)
	}
	var audit entity.AuditInfo
	if err := json.Unmarshal(data, &audit); err != nil {
		return nil, apierr.Wrap(err)
	}
	return &audit, nil
}

// buildDAOClient picks a dao.Client implementation from config: a
// contract-backed client when DCL_API_URL is set; otherwise a static
// client whose only peer is DAO_ADDRESS, or which has no peers at all when
// DAO_ADDRESS is empty.
func buildDAOClient(cfg *config.Config) (dao.Client, error) {
	if cfg.DCLAPIURL != "" {
		return dao.NewContractClient(cfg.DCLAPIURL, &http.Client{Timeout: 10 * time.Second}), nil
	}
	if cfg.DAOAddress == "" {
		return dao.NewStaticClient(nil), nil
	}
	return dao.NewStaticClient([]dao.PeerInfo{{Name: cfg.DAOAddress, BaseURL: cfg.DAOAddress}}), nil
}
