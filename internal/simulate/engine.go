// Package simulate runs a configured hotswap scenario against an in-memory
// ledger: accounts are funded, pairs deployed and every step is executed
// through the registry and its controllers.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"hotswap/internal/amount"
	"hotswap/internal/asset"
	"hotswap/internal/config"
	"hotswap/internal/controller"
	"hotswap/internal/events"
	"hotswap/internal/model"
	"hotswap/internal/pairing"
	"hotswap/internal/pricing"
	"hotswap/internal/registry"
)

// Address derives a stable address from a label.
func Address(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label)))
}

// AccountAddress is the address of a named scenario account.
func AccountAddress(name string) common.Address {
	return Address("account:" + strings.ToLower(name))
}

// TokenAddress is the address of a named scenario token.
func TokenAddress(name string) common.Address {
	return Address("token:" + strings.ToLower(name))
}

type token struct {
	name     string
	addr     common.Address
	kind     model.Kind
	decimals uint8
}

type pairRef struct {
	ctrl *controller.Controller
	reg  *registry.Registry
}

// Engine holds the live state of one scenario run.
type Engine struct {
	chainID   uint64
	admin     string
	logger    *zap.Logger
	book      *asset.Book
	table     *pairing.Table
	deps      controller.Deps
	regCfg    registry.Config
	deployFee *uint256.Int

	registries []*registry.Registry
	tokens     map[string]token
	accounts   map[string]common.Address
	pairs      map[string]pairRef
}

// New funds the scenario accounts and deploys the registry administered by
// cfg.Admin.
func New(cfg config.SimulateConfig, emitter events.Emitter, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	buy, err := pricing.ParseModel(cfg.BuyModel)
	if err != nil {
		return nil, fmt.Errorf("buy-model: %w", err)
	}
	sell, err := pricing.ParseModel(cfg.SellModel)
	if err != nil {
		return nil, fmt.Errorf("sell-model: %w", err)
	}
	deployFee := new(uint256.Int)
	if cfg.DeployFee != "" {
		if deployFee, err = amount.Parse(cfg.DeployFee, 18); err != nil {
			return nil, fmt.Errorf("deploy-fee: %w", err)
		}
	}

	e := &Engine{
		chainID:   cfg.ChainID,
		logger:    logger,
		book:      asset.NewBook(),
		table:     pairing.NewTable(),
		deployFee: deployFee,
		tokens:    make(map[string]token, len(cfg.Tokens)+1),
		accounts:  make(map[string]common.Address, len(cfg.Accounts)+1),
		pairs:     make(map[string]pairRef),
	}
	e.tokens[config.NativeToken] = token{name: config.NativeToken, addr: asset.Native, kind: model.KindFFT, decimals: 18}
	for _, t := range cfg.Tokens {
		kind, err := model.ParseKind(t.Kind)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Name, err)
		}
		tok := token{name: t.Name, addr: TokenAddress(t.Name), kind: kind, decimals: t.Decimals}
		if kind == model.KindFFT {
			e.book.RegisterToken(tok.addr, tok.decimals)
		}
		e.tokens[t.Name] = tok
	}

	admin := cfg.Admin
	if admin == "" {
		admin = "admin"
	}
	e.admin = admin
	e.accounts[strings.ToLower(admin)] = AccountAddress(admin)
	for _, acct := range cfg.Accounts {
		addr := AccountAddress(acct.Name)
		e.accounts[strings.ToLower(acct.Name)] = addr
		if err := e.fund(addr, acct.Balances); err != nil {
			return nil, fmt.Errorf("account %s: %w", acct.Name, err)
		}
	}

	e.deps = controller.Deps{Ledger: e.book, Metadata: e.book, Emitter: emitter, Logger: logger}
	e.regCfg = registry.Config{
		DeploymentFee: deployFee,
		Controller:    controller.Config{FeeBps: cfg.FeeBps, BuyModel: buy, SellModel: sell},
	}
	reg, err := registry.New(e.table, e.deps, e.accounts[strings.ToLower(admin)], e.regCfg)
	if err != nil {
		return nil, err
	}
	e.registries = append(e.registries, reg)
	logger.Info("registry deployed", zap.String("registry", reg.Address().Hex()), zap.String("admin", admin))
	return e, nil
}

func (e *Engine) fund(addr common.Address, balances map[string]string) error {
	// Sorted so the ledger sees mints in a stable order.
	names := make([]string, 0, len(balances))
	for name := range balances {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tok, err := e.token(name)
		if err != nil {
			return err
		}
		if tok.kind == model.KindNFT {
			count, err := strconv.ParseUint(strings.TrimSpace(balances[name]), 10, 64)
			if err != nil {
				return fmt.Errorf("nft balance %s: %w", name, err)
			}
			e.book.MintNFT(tok.addr, addr, count)
			continue
		}
		v, err := amount.Parse(balances[name], tok.decimals)
		if err != nil {
			return err
		}
		e.book.Mint(tok.addr, addr, v)
	}
	return nil
}

// Registry is the registry pairs are currently deployed through.
func (e *Engine) Registry() *registry.Registry { return e.registries[len(e.registries)-1] }

// Ledger exposes the in-memory balances.
func (e *Engine) Ledger() *asset.Book { return e.book }

// Controller returns the live controller of a pair alias.
func (e *Engine) Controller(pair string) (*controller.Controller, error) {
	ref, err := e.pair(pair)
	if err != nil {
		return nil, err
	}
	return ref.ctrl, nil
}

// Account returns the address of a named account.
func (e *Engine) Account(name string) (common.Address, error) {
	addr, ok := e.accounts[strings.ToLower(name)]
	if !ok {
		return common.Address{}, fmt.Errorf("unknown account %q", name)
	}
	return addr, nil
}

// Balance returns the holding of a named account in a named token, in
// smallest units or NFT count.
func (e *Engine) Balance(account, tokenName string) (*uint256.Int, error) {
	addr, err := e.Account(account)
	if err != nil {
		return nil, err
	}
	tok, err := e.token(tokenName)
	if err != nil {
		return nil, err
	}
	if tok.kind == model.KindNFT {
		return uint256.NewInt(e.book.NFTBalance(tok.addr, addr)), nil
	}
	return e.book.Balance(tok.addr, addr), nil
}

// Snapshots captures every registry deployed during the run.
func (e *Engine) Snapshots() []model.Snapshot {
	out := make([]model.Snapshot, 0, len(e.registries))
	for _, reg := range e.registries {
		out = append(out, reg.Snapshot(e.chainID))
	}
	return out
}

// Verify checks the pairing invariant across the whole table.
func (e *Engine) Verify() error {
	for _, reg := range e.registries {
		if err := reg.Verify(); err != nil {
			return err
		}
	}
	return e.table.CheckAll()
}

func (e *Engine) token(name string) (token, error) {
	tok, ok := e.tokens[strings.ToLower(name)]
	if !ok {
		return token{}, fmt.Errorf("unknown token %q", name)
	}
	return tok, nil
}

func (e *Engine) pair(alias string) (pairRef, error) {
	ref, ok := e.pairs[alias]
	if !ok {
		return pairRef{}, fmt.Errorf("unknown pair %q", alias)
	}
	return ref, nil
}

// Run executes every step in order. A step with ExpectError must fail with
// that error; any other failure stops the run.
func (e *Engine) Run(ctx context.Context, steps []config.Step) ([]Result, error) {
	results := make([]Result, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		detail, err := e.Step(ctx, step)
		res := Result{Index: i, Op: step.Op, Detail: detail}
		if step.ExpectError != "" {
			want, ok := ErrorByName(step.ExpectError)
			if !ok {
				return results, fmt.Errorf("step %d: unknown expect-error %q", i, step.ExpectError)
			}
			if err == nil {
				return results, fmt.Errorf("step %d (%s): expected %s, got success", i, step.Op, step.ExpectError)
			}
			if !errors.Is(err, want) {
				return results, fmt.Errorf("step %d (%s): expected %s: %w", i, step.Op, step.ExpectError, err)
			}
			res.Err = err.Error()
			e.logger.Info("step failed as expected", zap.Int("step", i), zap.String("op", step.Op), zap.Error(err))
		} else if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		} else {
			e.logger.Info("step", zap.Int("step", i), zap.String("op", step.Op), zap.String("detail", detail))
		}
		results = append(results, res)
	}
	return results, e.Verify()
}

// Result records the outcome of one step.
type Result struct {
	Index  int    `json:"index"`
	Op     string `json:"op"`
	Detail string `json:"detail,omitempty"`
	Err    string `json:"error,omitempty"`
}
