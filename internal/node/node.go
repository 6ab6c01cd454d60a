// Package node assembles the stake core (storage, block index, tx index,
// checkpoints and the hybrid selector) into a reusable node that can be
// embedded in any binary.
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-stake/config"
	"github.com/Klingon-tech/klingnet-stake/internal/chain"
	"github.com/Klingon-tech/klingnet-stake/internal/checkpoint"
	"github.com/Klingon-tech/klingnet-stake/internal/consensus"
	klog "github.com/Klingon-tech/klingnet-stake/internal/log"
	"github.com/Klingon-tech/klingnet-stake/internal/metrics"
	"github.com/Klingon-tech/klingnet-stake/internal/miner"
	"github.com/Klingon-tech/klingnet-stake/internal/storage"
	"github.com/Klingon-tech/klingnet-stake/internal/txindex"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
)

// Key prefixes partitioning the node database.
var (
	prefixChain   = []byte("c/")
	prefixTxIndex = []byte("x/")
)

// Node is a fully-initialized stake core.
type Node struct {
	cfg    *config.Config
	params *config.ConsensusParams
	logger zerolog.Logger

	// Core
	db          storage.DB
	index       *chain.Index
	store       *chain.Store
	txs         *txindex.Index
	checkpoints *checkpoint.Store
	selector    *consensus.Selector
	acceptor    *Acceptor
	metrics     *metrics.Consensus

	// Metrics endpoint
	metricsSrv *http.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, parameters, storage, index, consensus) but does NOT start the
// metrics endpoint. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, expandHome(cfg.Log.File)); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.Node

	// ── 2. Consensus parameters ─────────────────────────────────────
	if cfg.ParamsFile != "" {
		cfg.ParamsFile = expandHome(cfg.ParamsFile)
	}
	params, err := config.LoadParams(cfg)
	if err != nil {
		return nil, fmt.Errorf("load consensus params: %w", err)
	}
	logger.Info().
		Str("network", string(params.Network)).
		Int64("target_spacing", params.TargetSpacing).
		Bool("params_override", cfg.ParamsFile != "").
		Msg("Starting Klingnet stake core")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.InMemory {
		logger.Info().Msg("Using in-memory database")
	} else {
		logger.Info().Str("path", cfg.IndexDir()).Msg("Database opened")
	}

	// ── 4. Block index ──────────────────────────────────────────────
	index := chain.NewIndex()
	store := chain.NewStore(storage.NewPrefixDB(db, prefixChain))
	done := klog.Benchmark("load block index")
	loaded, err := store.Load(index)
	done()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load block index: %w", err)
	}

	// ── 5. Consensus ────────────────────────────────────────────────
	m := metrics.NewConsensus()
	txs := txindex.New(storage.NewPrefixDB(db, prefixTxIndex), index)
	checkpoints := checkpoint.ForParams(params)
	selector, err := consensus.NewSelector(params, index, txs, checkpoints, consensus.WithMetrics(m))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create selector: %w", err)
	}
	acceptor := NewAcceptor(selector, index, store, txs, m)
	acceptor.SetWorkers(cfg.Workers)

	// ── 6. Genesis ──────────────────────────────────────────────────
	if loaded == 0 {
		if _, err := acceptor.ProcessBlock(chain.GenesisBlock(params)); err != nil {
			db.Close()
			return nil, fmt.Errorf("init from genesis: %w", err)
		}
		logger.Info().Msg("Block index initialized from genesis")
	} else {
		tip := index.Tip()
		m.SetTipHeight(tip.Height)
		logger.Info().
			Int("records", loaded).
			Uint64("height", tip.Height).
			Str("tip", tip.Hash.String()[:16]+"...").
			Msg("Block index resumed from database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:         cfg,
		params:      params,
		logger:      logger,
		db:          db,
		index:       index,
		store:       store,
		txs:         txs,
		checkpoints: checkpoints,
		selector:    selector,
		acceptor:    acceptor,
		metrics:     m,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

func openDB(cfg *config.Config) (storage.DB, error) {
	if cfg.InMemory {
		return storage.NewMemory(), nil
	}
	dir := cfg.IndexDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating index dir: %w", err)
	}
	db, err := storage.NewBadger(dir)
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", dir, err)
	}
	return db, nil
}

// Start launches the metrics endpoint when configured.
func (n *Node) Start() error {
	if n.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		n.metricsSrv = &http.Server{
			Addr:              n.cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				n.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		n.logger.Info().Str("addr", n.cfg.MetricsAddr).Msg("Metrics server started")
	}

	tip := n.index.Tip()
	n.logger.Info().
		Uint64("height", tip.Height).
		Str("tip", tip.Hash.String()[:16]+"...").
		Msg("Node started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.cancel()
	if n.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := n.metricsSrv.Shutdown(ctx); err != nil {
			n.logger.Warn().Err(err).Msg("Metrics server shutdown")
		}
		cancel()
	}
	n.wg.Wait()

	if n.db != nil {
		n.db.Close()
	}
	n.logger.Info().Msg("Goodbye!")
}

// Acceptor returns the node's block acceptor.
func (n *Node) Acceptor() *Acceptor {
	return n.acceptor
}

// Params returns the node's consensus parameters.
func (n *Node) Params() *config.ConsensusParams {
	return n.params
}

// Height returns the current best-chain height.
func (n *Node) Height() uint64 {
	return n.index.Tip().Height
}

// Generate mines count work blocks on the tip and commits them. Block
// times advance by the target spacing from the tip.
func (n *Node) Generate(ctx context.Context, count int, script tx.Script) error {
	m := miner.New(n.index, n.selector, script, n.cfg.Workers)
	for i := 0; i < count; i++ {
		tip := n.index.Tip()
		blk, err := m.ProduceBlockAt(ctx, tip.Time+n.params.TargetSpacing)
		if err != nil {
			return fmt.Errorf("produce block %d: %w", tip.Height+1, err)
		}
		if _, err := n.acceptor.ProcessBlock(blk); err != nil {
			return fmt.Errorf("process own block %d: %w", tip.Height+1, err)
		}
	}
	return nil
}

// Verify checks the best chain against the hardened checkpoints.
func (n *Node) Verify() error {
	defer klog.Benchmark("verify checkpoints")()
	return n.checkpoints.VerifyChain(n.index, n.index.Tip())
}

// Status summarizes the node's view of the chain.
type Status struct {
	Network        config.NetworkType
	Tip            *chain.BlockRecord
	LastCheckpoint *chain.BlockRecord // nil when none is on the best chain
	Progress       float64
	Next           consensus.Template
}

// Status reports the tip, the last checkpoint on the best chain, the
// estimated verification progress and the next block template.
func (n *Node) Status() Status {
	tip := n.index.Tip()
	return Status{
		Network:        n.params.Network,
		Tip:            tip,
		LastCheckpoint: n.checkpoints.LastCheckpointIn(n.index),
		Progress:       n.checkpoints.VerificationProgress(n.selector.Now(), tip),
		Next:           n.acceptor.Template(tip),
	}
}
