// Package ledger provides the augmentation sources consulted when a message
// mentions wallets, tokens or other on-chain topics.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// chainReader is the subset of ethclient.Client the source reads.
type chainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// EVMSource reports chain head and an optional watched balance over JSON-RPC.
type EVMSource struct {
	chain  chainReader
	watch  *common.Address
	label  string
	logger *slog.Logger
}

type EVMConfig struct {
	RPCURL       string
	WatchAddress string
	Logger       *slog.Logger
}

// NewEVMSource dials the RPC endpoint.
func NewEVMSource(ctx context.Context, cfg EVMConfig) (*EVMSource, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("ledger rpc url is not configured")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	src, err := newEVMSource(client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	return src, nil
}

func newEVMSource(chain chainReader, cfg EVMConfig) (*EVMSource, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	src := &EVMSource{chain: chain, label: hostOf(cfg.RPCURL), logger: cfg.Logger}
	if addr := strings.TrimSpace(cfg.WatchAddress); addr != "" {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid watch address %q", addr)
		}
		a := common.HexToAddress(addr)
		src.watch = &a
	}
	return src, nil
}

func (s *EVMSource) Name() string { return "evm(" + s.label + ")" }

// Fetch returns the latest block number and, when configured, the watched
// address balance in ether.
func (s *EVMSource) Fetch(ctx context.Context, _ string) (string, error) {
	head, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch block number: %w", err)
	}
	out := fmt.Sprintf("latest block %d", head)
	if s.watch == nil {
		return out, nil
	}

	wei, err := s.chain.BalanceAt(ctx, *s.watch, nil)
	if err != nil {
		return "", fmt.Errorf("fetch balance: %w", err)
	}
	s.logger.Debug("ledger snapshot", "block", head, "address", s.watch.Hex())
	return fmt.Sprintf("%s; %s balance %s ETH", out, s.watch.Hex(), FormatEther(wei)), nil
}

func (s *EVMSource) Close() error {
	s.chain.Close()
	return nil
}

var weiPerEther = big.NewInt(1_000_000_000_000_000_000)

// FormatEther renders a wei amount as ether with at most six decimals.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	s := new(big.Rat).SetFrac(wei, weiPerEther).FloatString(6)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func hostOf(raw string) string {
	s := raw
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?"); i >= 0 {
		s = s[:i]
	}
	return s
}
