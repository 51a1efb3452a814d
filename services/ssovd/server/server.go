// Package server exposes a vault engine over HTTP. Operation endpoints trust
// the caller field in the request body and must only be reachable by local
// operators.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ssov/core/types"
	"ssov/core/units"
	"ssov/native/optiontoken"
	"ssov/native/pricing"
	"ssov/native/ssov"
)

const (
	serviceName  = "ssovd"
	maxBodyBytes = 1 << 20
)

var errBadRequest = errors.New("ssovd: malformed request")

// Config captures the dependencies required to construct the server.
type Config struct {
	Vault     *Vault
	RateLimit RateLimit
	Logger    *slog.Logger
}

// Server serves the vault API.
type Server struct {
	vault    *Vault
	engine   *ssov.Engine
	decimals uint8
	limiter  *RateLimiter
	logger   *slog.Logger
	router   http.Handler
}

// New builds the router for cfg.Vault.
func New(cfg Config) (*Server, error) {
	if cfg.Vault == nil || cfg.Vault.Engine == nil {
		return nil, errors.New("ssovd: vault required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		vault:    cfg.Vault,
		engine:   cfg.Vault.Engine,
		decimals: cfg.Vault.Decimals,
		limiter:  NewRateLimiter(cfg.RateLimit),
		logger:   logger,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware)

		api.Get("/epochs/current", s.getCurrentEpoch)
		api.Get("/epochs/{epoch}", s.getEpoch)
		api.Get("/epochs/{epoch}/strikes/{index}", s.getStrike)
		api.Get("/epochs/{epoch}/positions/{address}", s.getPositions)
		api.Get("/balances/{address}", s.getBalances)
		api.Get("/fees/purchase", s.quotePurchase)
		api.Get("/events", s.recentEvents)
		api.Get("/rewards", s.getRewards)
		api.Get("/allowances/{epoch}/{index}/{owner}/{spender}", s.getAllowance)

		api.Post("/strikes", s.setStrikes)
		api.Post("/bootstrap", s.bootstrap)
		api.Post("/deposit", s.deposit)
		api.Post("/purchase", s.purchase)
		api.Post("/compound", s.compound)
		api.Post("/expire", s.expire)
		api.Post("/settle", s.settle)
		api.Post("/withdraw", s.withdraw)
		api.Post("/transfer", s.transfer)
		api.Post("/approve", s.approve)
		api.Post("/transfer-from", s.transferFrom)
		api.Post("/pause", s.pause)
		api.Post("/unpause", s.unpause)
		api.Post("/emergency-withdraw", s.emergencyWithdraw)
		api.Post("/addresses", s.setAddresses)
		api.Post("/oracle/price", s.setPrice)
	})
	return r
}

// ---- views ----

type epochView struct {
	Number             uint64   `json:"number"`
	Start              uint64   `json:"start"`
	End                uint64   `json:"end"`
	Strikes            []string `json:"strikes"`
	Bootstrapped       bool     `json:"bootstrapped"`
	Expired            bool     `json:"expired"`
	SettlementPrice    string   `json:"settlementPrice"`
	TotalDeposits      string   `json:"totalDeposits"`
	StakedPrincipal    string   `json:"stakedPrincipal"`
	CompoundedPrimary  string   `json:"compoundedPrimary"`
	SecondaryRewards   string   `json:"secondaryRewards"`
	CollateralAtExpiry string   `json:"collateralAtExpiry"`
	SecondaryAtExpiry  string   `json:"secondaryAtExpiry"`
	// ValueUSD is frozen at the settlement price once the epoch expires.
	ValueUSD            string `json:"valueUsd,omitempty"`
	PrimaryReceivable   string `json:"primaryReceivable"`
	SecondaryReceivable string `json:"secondaryReceivable"`
}

type rewardsView struct {
	Primary             string `json:"primary"`
	Secondary           string `json:"secondary"`
	PrimaryReceivable   string `json:"primaryReceivable"`
	SecondaryReceivable string `json:"secondaryReceivable"`
}

type accumulatorView struct {
	TotalCompoundedPrimary string `json:"totalCompoundedPrimary"`
	TotalSecondaryRewards  string `json:"totalSecondaryRewards"`
	TotalPurchaseFees      string `json:"totalPurchaseFees"`
	TotalSettlementFees    string `json:"totalSettlementFees"`
	RoundingDust           string `json:"roundingDust"`
	CompoundCount          uint64 `json:"compoundCount"`
}

type vaultView struct {
	Vault        string          `json:"vault"`
	Collateral   string          `json:"collateral"`
	Current      uint64          `json:"current"`
	Paused       bool            `json:"paused"`
	Epoch        *epochView      `json:"epoch,omitempty"`
	Pending      []string        `json:"pendingStrikes"`
	Accumulators accumulatorView `json:"accumulators"`
	Rewards      *rewardsView    `json:"rewards,omitempty"`
}

type strikeView struct {
	Epoch               uint64 `json:"epoch"`
	Index               int    `json:"index"`
	Strike              string `json:"strike"`
	Deposits            string `json:"deposits"`
	Available           string `json:"available"`
	CallsPurchased      string `json:"callsPurchased"`
	Premium             string `json:"premium"`
	PurchaseFees        string `json:"purchaseFees"`
	CollateralShare     string `json:"collateralShare"`
	SecondaryShare      string `json:"secondaryShare"`
	SettlementReserve   string `json:"settlementReserve"`
	SettlementPaid      string `json:"settlementPaid"`
	SettlementFees      string `json:"settlementFees"`
	WithdrawPool        string `json:"withdrawPool"`
	CollateralWithdrawn string `json:"collateralWithdrawn"`
	SecondaryWithdrawn  string `json:"secondaryWithdrawn"`
}

type positionView struct {
	Index          int    `json:"index"`
	Strike         string `json:"strike"`
	Deposits       string `json:"deposits"`
	CallsPurchased string `json:"callsPurchased"`
	Premium        string `json:"premium"`
	Withdrawn      bool   `json:"withdrawn"`
	DepositShares  string `json:"depositShares"`
	CallRights     string `json:"callRights"`
}

func (s *Server) amount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return units.FormatUnits(v, s.decimals)
}

func price(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return units.FormatUnits(v, ssov.PriceDecimals)
}

func prices(list []*uint256.Int) []string {
	out := make([]string, len(list))
	for i, v := range list {
		out[i] = price(v)
	}
	return out
}

func (s *Server) epochView(ep *ssov.Epoch) (*epochView, error) {
	var valueUSD string
	value, err := s.engine.EpochValueUSD(ep.Number)
	switch {
	case err == nil:
		valueUSD = price(value)
	case errors.Is(err, pricing.ErrPriceUnavailable), errors.Is(err, pricing.ErrPriceStale):
		// The running epoch has no value until the oracle serves a price.
	default:
		return nil, err
	}
	return &epochView{
		Number:              ep.Number,
		Start:               ep.Start,
		End:                 ep.End,
		Strikes:             prices(ep.Strikes),
		Bootstrapped:        ep.Bootstrapped,
		Expired:             ep.Expired,
		SettlementPrice:     price(ep.SettlementPrice),
		TotalDeposits:       s.amount(ep.TotalDeposits),
		StakedPrincipal:     s.amount(ep.StakedPrincipal),
		CompoundedPrimary:   s.amount(ep.CompoundedPrimary),
		SecondaryRewards:    s.amount(ep.SecondaryRewards),
		CollateralAtExpiry:  s.amount(ep.CollateralAtExpiry),
		SecondaryAtExpiry:   s.amount(ep.SecondaryAtExpiry),
		ValueUSD:            valueUSD,
		PrimaryReceivable:   s.amount(ep.PrimaryReceivable),
		SecondaryReceivable: s.amount(ep.SecondaryReceivable),
	}, nil
}

func (s *Server) rewardsView() (*rewardsView, error) {
	if !s.vault.Yield {
		return nil, nil
	}
	pending, err := s.engine.PendingRewards()
	if err != nil {
		return nil, err
	}
	return &rewardsView{
		Primary:             s.amount(pending.Primary),
		Secondary:           s.amount(pending.Secondary),
		PrimaryReceivable:   s.amount(pending.PrimaryReceivable),
		SecondaryReceivable: s.amount(pending.SecondaryReceivable),
	}, nil
}

func (s *Server) getCurrentEpoch(w http.ResponseWriter, r *http.Request) {
	current, err := s.engine.CurrentEpoch()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	paused, err := s.engine.IsPaused()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pending, err := s.engine.PendingStrikes()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	acc, err := s.engine.Accumulators()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view := vaultView{
		Vault:      s.engine.Params().Name,
		Collateral: s.engine.CollateralAsset(),
		Current:    current,
		Paused:     paused,
		Pending:    prices(pending),
		Accumulators: accumulatorView{
			TotalCompoundedPrimary: s.amount(acc.TotalCompoundedPrimary),
			TotalSecondaryRewards:  s.amount(acc.TotalSecondaryRewards),
			TotalPurchaseFees:      s.amount(acc.TotalPurchaseFees),
			TotalSettlementFees:    s.amount(acc.TotalSettlementFees),
			RoundingDust:           s.amount(acc.RoundingDust),
			CompoundCount:          acc.CompoundCount,
		},
	}
	if current > 0 {
		ep, err := s.engine.Epoch(current)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if view.Epoch, err = s.epochView(ep); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if view.Rewards, err = s.rewardsView(); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getEpoch(w http.ResponseWriter, r *http.Request) {
	n, err := pathUint(r, "epoch")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ep, err := s.engine.Epoch(n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.epochView(ep)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getRewards(w http.ResponseWriter, r *http.Request) {
	view, err := s.rewardsView()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if view == nil {
		s.fail(w, r, fmt.Errorf("%w: yield is not enabled", ssov.ErrInvalidState))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getAllowance(w http.ResponseWriter, r *http.Request) {
	n, err := pathUint(r, "epoch")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	index, err := pathUint(r, "index")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	owner, err := parseAddress(chi.URLParam(r, "owner"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	spender, err := parseAddress(chi.URLParam(r, "spender"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.engine.TokenID(n, int(index), optiontoken.ClassCallRight)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	allowance, err := s.engine.CallRightsAllowance(id, owner, spender)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":     id.String(),
		"owner":     owner.Hex(),
		"spender":   spender.Hex(),
		"allowance": s.amount(allowance),
	})
}

func (s *Server) getStrike(w http.ResponseWriter, r *http.Request) {
	n, err := pathUint(r, "epoch")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	index, err := pathUint(r, "index")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	strikes, err := s.engine.EpochStrikes(n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if index >= uint64(len(strikes)) {
		s.fail(w, r, fmt.Errorf("%w: %d", ssov.ErrInvalidStrikeIndex, index))
		return
	}
	strike := strikes[index]
	st, err := s.engine.StrikeState(n, strike)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	available, err := st.Available()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, strikeView{
		Epoch:               n,
		Index:               int(index),
		Strike:              price(strike),
		Deposits:            s.amount(st.Deposits),
		Available:           s.amount(available),
		CallsPurchased:      s.amount(st.CallsPurchased),
		Premium:             s.amount(st.Premium),
		PurchaseFees:        s.amount(st.PurchaseFees),
		CollateralShare:     s.amount(st.CollateralShare),
		SecondaryShare:      s.amount(st.SecondaryShare),
		SettlementReserve:   s.amount(st.SettlementReserve),
		SettlementPaid:      s.amount(st.SettlementPaid),
		SettlementFees:      s.amount(st.SettlementFees),
		WithdrawPool:        s.amount(st.WithdrawPool),
		CollateralWithdrawn: s.amount(st.CollateralWithdrawn),
		SecondaryWithdrawn:  s.amount(st.SecondaryWithdrawn),
	})
}

func (s *Server) getPositions(w http.ResponseWriter, r *http.Request) {
	n, err := pathUint(r, "epoch")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	holder, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	strikes, err := s.engine.EpochStrikes(n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]positionView, 0, len(strikes))
	for i, strike := range strikes {
		pos, err := s.engine.Position(n, ssov.UserStrikeHash(holder, strike))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		shares, err := s.engine.TokenBalance(optiontoken.ID{Epoch: n, Strike: strike, Class: optiontoken.ClassDepositShare}, holder)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		calls, err := s.engine.TokenBalance(optiontoken.ID{Epoch: n, Strike: strike, Class: optiontoken.ClassCallRight}, holder)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out = append(out, positionView{
			Index:          i,
			Strike:         price(strike),
			Deposits:       s.amount(pos.Deposits),
			CallsPurchased: s.amount(pos.CallsPurchased),
			Premium:        s.amount(pos.Premium),
			Withdrawn:      pos.Withdrawn,
			DepositShares:  s.amount(shares),
			CallRights:     s.amount(calls),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"epoch": n, "address": holder.Hex(), "positions": out})
}

func (s *Server) getBalances(w http.ResponseWriter, r *http.Request) {
	holder, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	balances := make(map[string]string, len(s.vault.Assets))
	for _, asset := range s.vault.Assets {
		bal, err := s.engine.AssetBalance(holder, asset)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		balances[asset] = s.amount(bal)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"address": holder.Hex(), "balances": balances})
}

func (s *Server) quotePurchase(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	strike, err := parsePrice(q.Get("strike"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := s.parseAmount(q.Get("amount"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	spot, err := s.vault.Oracle.GetUsdPrice(s.engine.Params().Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	fee, err := s.engine.CalculatePurchaseFees(spot, strike, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var expiry int64
	if current, err := s.engine.CurrentEpoch(); err == nil && current > 0 {
		if times, err := s.engine.EpochTimes(current); err == nil {
			expiry = int64(times.End)
		}
	}
	premium, err := s.engine.CalculatePremium(strike, amount, expiry)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"spot":    price(spot),
		"premium": s.amount(premium),
		"fee":     s.amount(fee),
	})
}

type eventView struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) recentEvents(w http.ResponseWriter, r *http.Request) {
	list, total := s.vault.Events.Snapshot()
	out := make([]eventView, 0, len(list))
	for _, evt := range list {
		view := eventView{Type: evt.EventType(), Attributes: map[string]string{}}
		if typed, ok := evt.(interface{ Event() *types.Event }); ok && typed.Event() != nil {
			view.Attributes = typed.Event().Attributes
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"total": total, "events": out})
}

// ---- operations ----

type callerRequest struct {
	Caller string `json:"caller"`
}

type strikesRequest struct {
	Caller  string   `json:"caller"`
	Strikes []string `json:"strikes"`
}

type depositRequest struct {
	Caller      string   `json:"caller"`
	StrikeIndex *int     `json:"strikeIndex,omitempty"`
	Amount      string   `json:"amount,omitempty"`
	Indices     []int    `json:"strikeIndices,omitempty"`
	Amounts     []string `json:"amounts,omitempty"`
	Beneficiary string   `json:"beneficiary,omitempty"`
}

type purchaseRequest struct {
	Caller      string `json:"caller"`
	StrikeIndex int    `json:"strikeIndex"`
	Amount      string `json:"amount"`
	Beneficiary string `json:"beneficiary,omitempty"`
}

type expireRequest struct {
	Caller string `json:"caller"`
	Price  string `json:"price,omitempty"`
}

type settleRequest struct {
	Caller      string `json:"caller"`
	Epoch       uint64 `json:"epoch"`
	StrikeIndex int    `json:"strikeIndex"`
	Amount      string `json:"amount"`
}

type withdrawRequest struct {
	Caller      string `json:"caller"`
	Epoch       uint64 `json:"epoch"`
	StrikeIndex int    `json:"strikeIndex"`
}

type transferRequest struct {
	Caller      string `json:"caller"`
	To          string `json:"to"`
	Epoch       uint64 `json:"epoch"`
	StrikeIndex int    `json:"strikeIndex"`
	Amount      string `json:"amount"`
}

type approveRequest struct {
	Caller      string `json:"caller"`
	Spender     string `json:"spender"`
	Epoch       uint64 `json:"epoch"`
	StrikeIndex int    `json:"strikeIndex"`
	Amount      string `json:"amount"`
}

type transferFromRequest struct {
	Caller      string `json:"caller"`
	Owner       string `json:"owner"`
	To          string `json:"to"`
	Epoch       uint64 `json:"epoch"`
	StrikeIndex int    `json:"strikeIndex"`
	Amount      string `json:"amount"`
}

type addressEntry struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type addressesRequest struct {
	Caller  string         `json:"caller"`
	Entries []addressEntry `json:"entries"`
}

type priceRequest struct {
	Asset string `json:"asset"`
	Price string `json:"price"`
}

func (s *Server) setStrikes(w http.ResponseWriter, r *http.Request) {
	var req strikesRequest
	caller, ok := s.decodeCaller(w, r, &req, func() string { return req.Caller })
	if !ok {
		return
	}
	list := make([]*uint256.Int, len(req.Strikes))
	for i, raw := range req.Strikes {
		v, err := parsePrice(raw)
		if err != nil {
			s.fail(w, r, fmt.Errorf("strikes[%d]: %w", i, err))
			return
		}
		list[i] = v
	}
	if err := s.engine.SetStrikes(caller, list); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"strikes": prices(list)})
}

func (s *Server) bootstrap(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	caller, ok := s.decodeCaller(w, r, &req, func() string { return req.Caller })
	if !ok {
		return
	}
	n, err := s.engine.Bootstrap(caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ep, err := s.engine.Epoch(n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.epochView(ep)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	caller, ok := s.decodeCaller(w, r, &req, func() string { return req.Caller })
	if !ok {
		return
	}
	indices := req.Indices
	rawAmounts := req.Amounts
	if req.StrikeIndex != nil {
		indices = append([]int{*req.StrikeIndex}, indices...)
		rawAmounts = append([]string{req.Amount}, rawAmounts...)
	}
	amounts := make([]*uint256.Int, len(rawAmounts))
	for i, raw := range rawAmounts {
		v, err := s.parseAmount(raw)
		if err != nil {
			s.fail(w, r, fmt.Errorf("amounts[%d]: %w", i, err))
			return
		}
		amounts[i] = v
	}
	beneficiary, err := optionalAddress(req.Beneficiary)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	epoch, err := s.engine.DepositMultiple(caller, indices, amounts, beneficiary)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"epoch": epoch})
}

func (s *Server) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	caller, ok := s.decodeCaller(w, r, &req, func() string { return req.Caller })
	if !ok {
		return
	}
	amount, err := s.parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	beneficiary, err := optionalAddress(req.Beneficiary)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	receipt, err := s.engine.Purchase(caller, req.StrikeIndex, amount, beneficiary)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"epoch":   receipt.Epoch,
		"strike":  price(receipt.Strike),
		"amount":  s.amount(receipt.Amount),
		"spot":    price(receipt.Spot),
		"premium": s.amount(receipt.Premium),
		"fee":     s.amount(receipt.Fee),
	})
}

func (s *Server) compound(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	caller, ok := s.decodeCaller(w, r, &req, func() string { return req.Caller })
	if !ok {
		return
	}
	res, err := s.engine.Compound(caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"epoch":          res.Epoch,
		"primary":        s.amount(res.Primary),
		"secondary":      s.amount(res.Secondary),
		"priorPrimary":   s.amount(res.PriorPrimary),
		"priorSecondary": s.amount(res.PriorSecondary),
		"staked":         s.amount(res.Staked),
	})
}

func (s *Server) expire(w http.ResponseWriter, r *http.Request) {
	var req expireRequest
	caller, ok := s.decodeCaller(w, r, &req, func() string { return req.Caller })
	if !ok {
		return
	}
	var err error
	if strings.TrimSpace(req.Price) != "" {
		var p *uint256.Int
		if p, err = parsePrice(req.Price); err != nil {
			s.fail(w, r, err)
			return
		}
		err = s.engine.ExpireEpochWithPrice(caller, p)
	} else {
		err = s.engine.ExpireEpoch(caller)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	current, err := s.engine.CurrentEpoch()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ep, err := s.engine.Epoch(current)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.epochView(ep)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	caller, ok := s.decodeCaller(w, r, &req, func() string { return req.Caller })
	if !ok {
		return
	}
	amount, err := s.parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.engine.Settle(caller, req.StrikeIndex, amount, req.Epoch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"epoch":  res.Epoch,
		"strike": price(res.Strike),
		"amount": s.amount(res.Amount),
		"pnl":    s.amount(res.PnL),
		"fee":    s.amount(res.Fee),
		"payout": s.amount(res.Payout),
	})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	caller, ok := s.decodeCaller(w, r, &req, func() string { return req.Caller })
	if !ok {
		return
	}
	res, err := s.engine.Withdraw(caller, req.Epoch, req.StrikeIndex)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"epoch":      res.Epoch,
		"strike":     price(res.Strike),
		"deposit":    s.amount(res.Deposit),
		"collateral": s.amount(res.Collateral),
		"secondary":  s.amount(res.Secondary),
	})
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	caller, ok := s.decodeCaller(w, r, &req, func() string { return req.Caller })
	if !ok {
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := s.parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.engine.TokenID(req.Epoch, req.StrikeIndex, optiontoken.ClassCallRight)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.TransferCallRights(caller, to, id, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": id.String(), "amount": s.amount(amount)})
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	caller, ok := s.decodeCaller(w, r, &req, func() string { return req.Caller })
	if !ok {
		return
	}
	spender, err := parseAddress(req.Spender)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := s.parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.engine.TokenID(req.Epoch, req.StrikeIndex, optiontoken.ClassCallRight)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.ApproveCallRights(caller, spender, id, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": id.String(), "spender": spender.Hex(), "allowance": s.amount(amount)})
}

func (s *Server) transferFrom(w http.ResponseWriter, r *http.Request) {
	var req transferFromRequest
	caller, ok := s.decodeCaller(w, r, &req, func() string { return req.Caller })
	if !ok {
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := s.parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.engine.TokenID(req.Epoch, req.StrikeIndex, optiontoken.ClassCallRight)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.TransferCallRightsFrom(caller, owner, to, id, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": id.String(), "owner": owner.Hex(), "amount": s.amount(amount)})
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.simple(w, r, s.engine.Pause, "paused")
}

func (s *Server) unpause(w http.ResponseWriter, r *http.Request) {
	s.simple(w, r, s.engine.Unpause, "unpaused")
}

func (s *Server) emergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	s.simple(w, r, s.engine.EmergencyWithdraw, "withdrawn")
}

func (s *Server) simple(w http.ResponseWriter, r *http.Request, op func(common.Address) error, status string) {
	var req callerRequest
	caller, ok := s.decodeCaller(w, r, &req, func() string { return req.Caller })
	if !ok {
		return
	}
	if err := op(caller); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) setAddresses(w http.ResponseWriter, r *http.Request) {
	var req addressesRequest
	caller, ok := s.decodeCaller(w, r, &req, func() string { return req.Caller })
	if !ok {
		return
	}
	names := make([]string, len(req.Entries))
	addrs := make([]common.Address, len(req.Entries))
	for i, entry := range req.Entries {
		addr, err := parseAddress(entry.Address)
		if err != nil {
			s.fail(w, r, fmt.Errorf("entries[%d]: %w", i, err))
			return
		}
		names[i] = entry.Name
		addrs[i] = addr
	}
	if err := s.engine.SetAddresses(caller, names, addrs); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": len(names)})
}

func (s *Server) setPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset := strings.ToUpper(strings.TrimSpace(req.Asset))
	if asset == "" {
		asset = s.engine.Params().Asset
	}
	p, err := parsePrice(req.Price)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.vault.Oracle.SetPrice(asset, p); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", ssov.ErrInvalidInput, err))
		return
	}
	s.logger.Info("ssovd: oracle price updated", slog.String("asset", asset), slog.String("price", price(p)))
	writeJSON(w, http.StatusOK, map[string]string{"asset": asset, "price": price(p)})
}

// ---- request helpers ----

func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w: %v", ssov.ErrInvalidInput, errBadRequest, err)
	}
	return nil
}

// decodeCaller decodes the body into dst and parses the caller it carries.
func (s *Server) decodeCaller(w http.ResponseWriter, r *http.Request, dst interface{}, caller func() string) (common.Address, bool) {
	if err := decode(r, dst); err != nil {
		s.fail(w, r, err)
		return common.Address{}, false
	}
	addr, err := parseAddress(caller())
	if err != nil {
		s.fail(w, r, fmt.Errorf("caller: %w", err))
		return common.Address{}, false
	}
	return addr, true
}

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", ssov.ErrInvalidInput, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func optionalAddress(raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, nil
	}
	return parseAddress(raw)
}

func (s *Server) parseAmount(raw string) (*uint256.Int, error) {
	v, err := units.ParseUnits(raw, s.decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %v", ssov.ErrInvalidInput, err)
	}
	return v, nil
}

func parsePrice(raw string) (*uint256.Int, error) {
	v, err := units.ParseUnits(raw, ssov.PriceDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: price: %v", ssov.ErrInvalidInput, err)
	}
	return v, nil
}

func pathUint(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an unsigned integer", ssov.ErrInvalidInput, name)
	}
	return v, nil
}
