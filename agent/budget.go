// Package agent implements the headless payment client: a fetch pipeline
// that consumes 402 responses, signs authorizations with a held wallet,
// enforces a spending policy, caches receipts per resource, and retries
// facilitator errors with backoff (§4.3).
package agent

import (
	"math/big"
	"sync"

	x402 "github.com/x402rail/facilitator"
)

// SpendingPolicy bounds what the agent is willing to pay, per §3.
type SpendingPolicy struct {
	// MaxPerRequest is a human-readable amount, e.g. "1.00". Empty means unbounded.
	MaxPerRequest string
	// MaxTotal is a human-readable cumulative lifetime cap. Empty means unbounded.
	MaxTotal string
	// AllowedDomains, if non-empty, restricts spend to listed domains.
	AllowedDomains []string
}

// PaymentRecord is one entry of the budget's spend history (§3).
type PaymentRecord struct {
	ContentID string
	Amount    string // smallest unit
	Domain    string
	Timestamp int64
}

// CheckResult is the outcome of a pre-flight spend check.
type CheckResult struct {
	Allowed bool
	Reason  string
}

// Budget tracks cumulative spend against a SpendingPolicy and fires a
// warning callback once when cumulative spend crosses 80% of MaxTotal
// (§4.3, and §9's open question, resolved here as fire-once-on-transition).
type Budget struct {
	mu      sync.Mutex
	policy  SpendingPolicy
	spent   *big.Int
	history []PaymentRecord

	maxPerRequest *big.Int
	maxTotal      *big.Int

	warningFired bool
	onWarning    func(spent, max *big.Int)
}

// NewBudget builds a Budget from a policy, converting human-readable
// caps to smallest units via x402.ParsePrice.
func NewBudget(policy SpendingPolicy, onWarning func(spent, max *big.Int)) (*Budget, error) {
	b := &Budget{
		policy:    policy,
		spent:     big.NewInt(0),
		onWarning: onWarning,
	}
	if policy.MaxPerRequest != "" {
		v, err := x402.ParsePrice(policy.MaxPerRequest)
		if err != nil {
			return nil, err
		}
		amount, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, errParseAmount(v)
		}
		b.maxPerRequest = amount
	}
	if policy.MaxTotal != "" {
		v, err := x402.ParsePrice(policy.MaxTotal)
		if err != nil {
			return nil, err
		}
		amount, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, errParseAmount(v)
		}
		b.maxTotal = amount
	}
	return b, nil
}

func errParseAmount(v string) error {
	return x402.NewBudgetError(x402.CodeBudgetExceeded, "invalid amount: "+v, nil)
}

// CheckSpend reports whether amountSmallest may be spent against domain,
// in the order given by §4.3: domain allow-list, per-request cap, total cap.
func (b *Budget) CheckSpend(amountSmallest *big.Int, domain string) CheckResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.policy.AllowedDomains) > 0 && domain != "" {
		allowed := false
		for _, d := range b.policy.AllowedDomains {
			if d == domain {
				allowed = true
				break
			}
		}
		if !allowed {
			return CheckResult{Allowed: false, Reason: "domain not allowed: " + domain}
		}
	}

	if b.maxPerRequest != nil && amountSmallest.Cmp(b.maxPerRequest) > 0 {
		return CheckResult{Allowed: false, Reason: "exceeds per-request limit"}
	}

	if b.maxTotal != nil {
		projected := new(big.Int).Add(b.spent, amountSmallest)
		if projected.Cmp(b.maxTotal) > 0 {
			return CheckResult{Allowed: false, Reason: "exceeds total budget"}
		}
	}

	return CheckResult{Allowed: true}
}

// AssertSpend calls CheckSpend and maps a rejection to the typed budget
// error codes from §7 / §4.3's "assertSpend" contract: domain violations
// map to DOMAIN_NOT_ALLOWED, per-request overages to PER_REQUEST_LIMIT,
// everything else to BUDGET_EXCEEDED.
func (b *Budget) AssertSpend(amountSmallest *big.Int, domain string) *x402.Error {
	b.mu.Lock()
	allowList := append([]string(nil), b.policy.AllowedDomains...)
	maxPerRequest := b.maxPerRequest
	b.mu.Unlock()

	if len(allowList) > 0 && domain != "" {
		allowed := false
		for _, d := range allowList {
			if d == domain {
				allowed = true
				break
			}
		}
		if !allowed {
			return x402.NewBudgetError(x402.CodeDomainNotAllowed, "domain not allowed: "+domain, nil)
		}
	}

	if maxPerRequest != nil && amountSmallest.Cmp(maxPerRequest) > 0 {
		return x402.NewBudgetError(x402.CodePerRequestLimit, "exceeds per-request limit", nil)
	}

	result := b.CheckSpend(amountSmallest, domain)
	if !result.Allowed {
		return x402.NewBudgetError(x402.CodeBudgetExceeded, result.Reason, nil)
	}
	return nil
}

// RecordSpend accumulates amountSmallest, appends a history entry, and
// fires the 80%-of-MaxTotal warning callback once per crossing.
func (b *Budget) RecordSpend(amountSmallest *big.Int, contentID, domain string, timestamp int64) {
	b.mu.Lock()
	b.spent.Add(b.spent, amountSmallest)
	b.history = append(b.history, PaymentRecord{
		ContentID: contentID,
		Amount:    amountSmallest.String(),
		Domain:    domain,
		Timestamp: timestamp,
	})

	crossedNow := false
	if b.maxTotal != nil && b.maxTotal.Sign() > 0 {
		threshold := new(big.Int).Div(new(big.Int).Mul(b.maxTotal, big.NewInt(80)), big.NewInt(100))
		if b.spent.Cmp(threshold) >= 0 && !b.warningFired {
			b.warningFired = true
			crossedNow = true
		}
	}
	spentCopy := new(big.Int).Set(b.spent)
	maxCopy := b.maxTotal
	cb := b.onWarning
	b.mu.Unlock()

	if crossedNow && cb != nil {
		cb(spentCopy, maxCopy)
	}
}

// TotalSpent returns cumulative smallest-unit spend.
func (b *Budget) TotalSpent() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.spent)
}

// Remaining returns MaxTotal minus cumulative spend, or nil if MaxTotal is
// unset (unbounded budgets have no remaining figure to report).
func (b *Budget) Remaining() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxTotal == nil {
		return nil
	}
	return new(big.Int).Sub(b.maxTotal, b.spent)
}

// History returns a copy of the recorded spend history.
func (b *Budget) History() []PaymentRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PaymentRecord, len(b.history))
	copy(out, b.history)
	return out
}
