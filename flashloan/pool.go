package flashloan

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/tokentwister/flashpool/events"
)

var basisPoints = big.NewInt(10_000)

// completionCacheSize bounds the recent-loan audit cache.
const completionCacheSize = 1024

// Pool issues uncollateralized single-call loans against its own ledger
// balance. A loan transfers principal to the receiver, runs the
// receiver's callback synchronously, then pulls principal plus fee back
// through the receiver's allowance. If any step fails the ledger is
// reverted to its pre-loan snapshot, so callers observe either total
// success or a no-op.
type Pool struct {
	mu       sync.Mutex
	address  common.Address
	ledger   Ledger
	log      *events.Log
	fees     map[common.Address]uint16
	inFlight bool
	seq      uint64

	completions *lru.Cache
	logger      *zap.Logger

	metrics struct {
		loanCount    prometheus.Counter
		loanVolume   prometheus.Counter
		feesAccrued  prometheus.Counter
		latency      prometheus.Histogram
		activeLoans  prometheus.Gauge
		successRate  prometheus.Gauge
		totalCount   prometheus.Counter
		errors       prometheus.CounterVec
	}
}

// NewPool creates a pool settling against ledger and emitting FlashLoan
// events into log. The pool address is the ledger account that holds
// its lendable liquidity.
func NewPool(address common.Address, ledger Ledger, log *events.Log, logger *zap.Logger) (*Pool, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if log == nil {
		return nil, fmt.Errorf("event log cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := lru.New(completionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion cache: %w", err)
	}

	p := &Pool{
		address:     address,
		ledger:      ledger,
		log:         log,
		fees:        make(map[common.Address]uint16),
		completions: cache,
		logger:      logger,
	}

	p.metrics.loanCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashpool_loans_total",
		Help: "Total number of flash loans completed",
	})
	p.metrics.loanVolume = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashpool_volume_units",
		Help: "Total principal lent, in smallest token units",
	})
	p.metrics.feesAccrued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashpool_fees_units",
		Help: "Total fees collected, in smallest token units",
	})
	p.metrics.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flashpool_loan_latency_seconds",
		Help:    "Latency of flash loan execution",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12),
	})
	p.metrics.activeLoans = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flashpool_active_loans",
		Help: "Number of loans currently in flight",
	})
	p.metrics.successRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flashpool_success_rate",
		Help: "Fraction of loan attempts that completed",
	})
	p.metrics.totalCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashpool_attempts_total",
		Help: "Total number of flash loan attempts",
	})
	p.metrics.errors = *prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashpool_errors_total",
		Help: "Number of failed loans by error type",
	}, []string{"error_type"})

	return p, nil
}

// Address returns the ledger account holding the pool's liquidity.
func (p *Pool) Address() common.Address {
	return p.address
}

// RegisterToken makes a token flash lendable at the configured fee
// schedule. Re-registering overwrites the fee.
func (p *Pool) RegisterToken(cfg TokenConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fees[cfg.Token] = cfg.FeeBps
	p.logger.Info("registered lendable token",
		zap.String("token", cfg.Token.Hex()),
		zap.Uint16("fee_bps", cfg.FeeBps))
}

// MaxFlashLoan returns the pool's current lendable liquidity for token,
// or zero for tokens it does not support. Pure read.
func (p *Pool) MaxFlashLoan(token common.Address) *big.Int {
	p.mu.Lock()
	_, supported := p.fees[token]
	p.mu.Unlock()
	if !supported {
		return new(big.Int)
	}
	return p.ledger.BalanceOf(p.address, token)
}

// FlashFee returns the fee owed on a loan of amount. Deterministic and
// monotonically non-decreasing in amount.
func (p *Pool) FlashFee(token common.Address, amount *big.Int) (*big.Int, error) {
	p.mu.Lock()
	feeBps, supported := p.fees[token]
	p.mu.Unlock()
	if !supported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, token.Hex())
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(feeBps)))
	return fee.Quo(fee, basisPoints), nil
}

// Quote derives the full terms for a prospective loan without executing
// it. Borrowers use this as a preflight before committing.
func (p *Pool) Quote(token common.Address, amount *big.Int) (*LoanTerms, error) {
	fee, err := p.FlashFee(token, amount)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(p.MaxFlashLoan(token)) > 0 {
		return nil, fmt.Errorf("%w: requested %s", ErrExceedsMaxLoan, amount.String())
	}
	principal := new(big.Int).Set(amount)
	return &LoanTerms{
		Principal:    principal,
		Fee:          fee,
		RepaymentDue: new(big.Int).Add(principal, fee),
	}, nil
}

// Completion looks up a recently completed loan by its record ID.
func (p *Pool) Completion(id uint64) (*CompletionRecord, bool) {
	v, ok := p.completions.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*CompletionRecord), true
}

// FlashLoan lends amount of token to receiver for the duration of the
// call. The receiver's OnFlashLoan callback runs synchronously between
// the outbound transfer and the repayment pull; there is no suspension
// point where another party can observe partial state. At most one loan
// is in flight per pool at a time, regardless of token; concurrent and
// nested attempts fail immediately with ErrReentrantCall. Loans must
// not interleave because the ledger journal is a single sequence: a
// revert would unwind another loan's committed entries.
func (p *Pool) FlashLoan(ctx context.Context, receiver Receiver, token common.Address, amount *big.Int, data []byte) (*CompletionRecord, error) {
	start := time.Now()
	defer func() {
		p.metrics.latency.Observe(time.Since(start).Seconds())
	}()
	p.metrics.totalCount.Inc()
	defer p.updateSuccessRate()

	if receiver == nil {
		p.metrics.errors.WithLabelValues("nil_receiver").Inc()
		return nil, fmt.Errorf("receiver cannot be nil")
	}
	if amount == nil || amount.Sign() < 0 {
		p.metrics.errors.WithLabelValues("invalid_amount").Inc()
		return nil, ErrInvalidAmount
	}

	fee, err := p.FlashFee(token, amount)
	if err != nil {
		p.metrics.errors.WithLabelValues("unsupported_token").Inc()
		return nil, err
	}
	if amount.Cmp(p.MaxFlashLoan(token)) > 0 {
		p.metrics.errors.WithLabelValues("exceeds_max").Inc()
		return nil, fmt.Errorf("%w: requested %s, lendable %s",
			ErrExceedsMaxLoan, amount.String(), p.MaxFlashLoan(token).String())
	}

	if err := p.acquire(); err != nil {
		p.metrics.errors.WithLabelValues("reentrant").Inc()
		return nil, err
	}
	defer p.release()

	p.metrics.activeLoans.Inc()
	defer p.metrics.activeLoans.Dec()

	borrower := receiver.Address()
	snapshot := p.ledger.Snapshot()
	balanceBefore := p.ledger.BalanceOf(p.address, token)
	repaymentDue := new(big.Int).Add(amount, fee)

	fail := func(label string, err error) (*CompletionRecord, error) {
		p.ledger.RevertToSnapshot(snapshot)
		p.metrics.errors.WithLabelValues(label).Inc()
		p.logger.Warn("flash loan unwound",
			zap.String("token", token.Hex()),
			zap.String("borrower", borrower.Hex()),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return nil, err
	}

	if err := p.ledger.Transfer(p.address, borrower, token, amount); err != nil {
		return fail("disbursement", fmt.Errorf("failed to disburse principal: %w", err))
	}

	if err := receiver.OnFlashLoan(ctx, p.address, borrower, token, amount, fee, data); err != nil {
		return fail("callback", fmt.Errorf("receiver callback failed: %w", err))
	}

	if allowed := p.ledger.Allowance(borrower, p.address, token); allowed.Cmp(repaymentDue) < 0 {
		return fail("repayment", fmt.Errorf("%w: authorized %s of %s due",
			ErrRepaymentShortfall, allowed.String(), repaymentDue.String()))
	}
	if err := p.ledger.TransferFrom(p.address, borrower, p.address, token, repaymentDue); err != nil {
		return fail("repayment", fmt.Errorf("%w: %v", ErrRepaymentShortfall, err))
	}

	// Defense against a ledger that reports success without moving value.
	expected := new(big.Int).Add(balanceBefore, fee)
	if p.ledger.BalanceOf(p.address, token).Cmp(expected) < 0 {
		return fail("invariant", ErrInvariantViolation)
	}

	p.mu.Lock()
	p.seq++
	record := &CompletionRecord{
		ID:        p.seq,
		Recipient: borrower,
		Token:     token,
		Amount:    new(big.Int).Set(amount),
		Fee:       fee,
	}
	p.mu.Unlock()

	p.log.Append(events.FlashLoanEvent{
		Recipient: record.Recipient,
		Token:     record.Token,
		Amount:    new(big.Int).Set(record.Amount),
		Fee:       new(big.Int).Set(record.Fee),
	})
	p.completions.Add(record.ID, record)

	p.metrics.loanCount.Inc()
	// 18-decimal amounts overflow uint64, so go through big.Float.
	volume, _ := new(big.Float).SetInt(amount).Float64()
	p.metrics.loanVolume.Add(volume)
	collected, _ := new(big.Float).SetInt(fee).Float64()
	p.metrics.feesAccrued.Add(collected)

	p.logger.Info("flash loan completed",
		zap.Uint64("id", record.ID),
		zap.String("token", token.Hex()),
		zap.String("borrower", borrower.Hex()),
		zap.String("amount", amount.String()),
		zap.String("fee", fee.String()))

	return record, nil
}

// acquire sets the pool-wide in-flight flag, rejecting concurrent and
// nested loans.
func (p *Pool) acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight {
		return fmt.Errorf("%w: another loan is in flight", ErrReentrantCall)
	}
	p.inFlight = true
	return nil
}

// release clears the in-flight flag on every exit path.
func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
}

// updateSuccessRate recomputes the success-rate gauge from the attempt
// and completion counters.
func (p *Pool) updateSuccessRate() {
	var completed, attempted float64

	ch := make(chan prometheus.Metric, 1)
	p.metrics.loanCount.Collect(ch)
	if metric := <-ch; metric != nil {
		m := &dto.Metric{}
		if err := metric.Write(m); err == nil && m.Counter != nil {
			completed = *m.Counter.Value
		}
	}

	p.metrics.totalCount.Collect(ch)
	if metric := <-ch; metric != nil {
		m := &dto.Metric{}
		if err := metric.Write(m); err == nil && m.Counter != nil {
			attempted = *m.Counter.Value
		}
	}

	if attempted > 0 {
		p.metrics.successRate.Set(completed / attempted)
	}
}
