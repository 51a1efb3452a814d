package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"ssov/core/units"
)

const priceDecimals = 8

type command struct {
	summary string
	run     func(args []string, stdout, stderr io.Writer) int
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"status":             {"Show the current epoch, pause flag and accumulators", runStatusCommand},
		"epoch":              {"Show an epoch record: epoch <n>", runEpochCommand},
		"strike":             {"Show a strike aggregate: strike <epoch> <index>", runStrikeCommand},
		"positions":          {"Show an account's positions: positions <epoch> <address>", runPositionsCommand},
		"balances":           {"Show an account's vault asset balances: balances <address>", runBalancesCommand},
		"events":             {"Show events recorded since the daemon started", runEventsCommand},
		"rewards":            {"Show yield owed to the vault and to expired epochs", runRewardsCommand},
		"allowance":          {"Show a call-rights allowance: allowance <epoch> <index> <owner> <spender>", runAllowanceCommand},
		"quote":              {"Quote premium and purchase fee for --strike and --amount", runQuoteCommand},
		"set-strikes":        {"Stage the next epoch's strikes (owner)", runSetStrikesCommand},
		"bootstrap":          {"Open the next epoch (owner)", callerOnly("/v1/bootstrap")},
		"deposit":            {"Deposit collateral into one or more strikes", runDepositCommand},
		"purchase":           {"Buy calls at a strike", runPurchaseCommand},
		"compound":           {"Harvest and restake yield", callerOnly("/v1/compound")},
		"expire":             {"Expire the running epoch, optionally at --price (owner)", runExpireCommand},
		"settle":             {"Exercise in-the-money calls", runSettleCommand},
		"withdraw":           {"Withdraw an expired position", runWithdrawCommand},
		"transfer":           {"Transfer call rights to another account", runTransferCommand},
		"approve":            {"Allow a spender to move your call rights", runApproveCommand},
		"transfer-from":      {"Move call rights under an allowance", runTransferFromCommand},
		"pause":              {"Pause the vault (governance)", callerOnly("/v1/pause")},
		"unpause":            {"Unpause the vault (governance)", callerOnly("/v1/unpause")},
		"emergency-withdraw": {"Sweep vault funds while paused (governance)", callerOnly("/v1/emergency-withdraw")},
		"set-address":        {"Update an address book entry (owner)", runSetAddressCommand},
		"set-price":          {"Push an oracle price", runSetPriceCommand},
	}
}

func usage() string {
	buf := &bytes.Buffer{}
	fmt.Fprintln(buf, "Usage: ssov-cli [--rpc URL] <command> [flags]")
	fmt.Fprintln(buf, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(buf, "  %-20s %s\n", name, commands[name].summary)
	}
	return buf.String()
}

// callerFlags are shared by every state-changing command.
type callerFlags struct {
	from     string
	keyPath  string
	decimals uint
}

func (c *callerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.from, "from", strings.TrimSpace(os.Getenv("SSOV_CALLER")), "caller address (defaults to SSOV_CALLER)")
	fs.StringVar(&c.keyPath, "key", "", "path to an ECDSA key file; the caller is its address")
	fs.UintVar(&c.decimals, "decimals", 18, "collateral decimals used to validate amounts")
}

func (c *callerFlags) caller() (string, error) {
	if c.keyPath != "" {
		key, err := ethcrypto.LoadECDSA(c.keyPath)
		if err != nil {
			return "", fmt.Errorf("load key %s: %w", c.keyPath, err)
		}
		return ethcrypto.PubkeyToAddress(key.PublicKey).Hex(), nil
	}
	return normalizeAddress(c.from, "caller")
}

func (c *callerFlags) amount(raw string) (string, error) {
	if c.decimals > 255 {
		return "", fmt.Errorf("decimals %d out of range", c.decimals)
	}
	return normalizeDecimal(raw, uint8(c.decimals), "amount")
}

func normalizeAddress(raw, what string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%s address required", what)
	}
	if !common.IsHexAddress(trimmed) {
		return "", fmt.Errorf("invalid %s address %q", what, raw)
	}
	return common.HexToAddress(trimmed).Hex(), nil
}

func normalizeDecimal(raw string, decimals uint8, what string) (string, error) {
	v, err := units.ParseUnits(raw, decimals)
	if err != nil {
		return "", fmt.Errorf("invalid %s %q: %w", what, raw, err)
	}
	return units.FormatUnits(v, decimals), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func execute(stdout, stderr io.Writer, method, path string, body interface{}) int {
	result, err := callAPI(method, path, body)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printJSONResult(stdout, result)
	return 0
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

// ---- reads ----

func runStatusCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("status", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return execute(stdout, stderr, "GET", "/v1/epochs/current", nil)
}

func runEventsCommand(args []string, stdout, stderr io.Writer) int {
	if _, ok := positional("events", args, stderr); !ok {
		return 1
	}
	return execute(stdout, stderr, "GET", "/v1/events", nil)
}

func runRewardsCommand(args []string, stdout, stderr io.Writer) int {
	if _, ok := positional("rewards", args, stderr); !ok {
		return 1
	}
	return execute(stdout, stderr, "GET", "/v1/rewards", nil)
}

func runAllowanceCommand(args []string, stdout, stderr io.Writer) int {
	vals, ok := positional("allowance", args, stderr, "epoch", "index", "owner", "spender")
	if !ok {
		return 1
	}
	n, err := parseEpoch(vals[0])
	if err != nil {
		return fail(stderr, err)
	}
	idx, err := strconv.Atoi(vals[1])
	if err != nil || idx < 0 {
		return fail(stderr, fmt.Errorf("invalid strike index %q", vals[1]))
	}
	owner, err := normalizeAddress(vals[2], "owner")
	if err != nil {
		return fail(stderr, err)
	}
	spender, err := normalizeAddress(vals[3], "spender")
	if err != nil {
		return fail(stderr, err)
	}
	return execute(stdout, stderr, "GET", fmt.Sprintf("/v1/allowances/%d/%d/%s/%s", n, idx, owner, spender), nil)
}

func positional(name string, args []string, stderr io.Writer, want ...string) ([]string, bool) {
	fs := newFlagSet(name, stderr)
	if err := fs.Parse(args); err != nil {
		return nil, false
	}
	if fs.NArg() != len(want) {
		if len(want) == 0 {
			fmt.Fprintf(stderr, "Usage: ssov-cli %s\n", name)
		} else {
			fmt.Fprintf(stderr, "Usage: ssov-cli %s <%s>\n", name, strings.Join(want, "> <"))
		}
		return nil, false
	}
	return fs.Args(), true
}

func parseEpoch(raw string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid epoch %q", raw)
	}
	return n, nil
}

func runEpochCommand(args []string, stdout, stderr io.Writer) int {
	vals, ok := positional("epoch", args, stderr, "epoch")
	if !ok {
		return 1
	}
	n, err := parseEpoch(vals[0])
	if err != nil {
		return fail(stderr, err)
	}
	return execute(stdout, stderr, "GET", fmt.Sprintf("/v1/epochs/%d", n), nil)
}

func runStrikeCommand(args []string, stdout, stderr io.Writer) int {
	vals, ok := positional("strike", args, stderr, "epoch", "index")
	if !ok {
		return 1
	}
	n, err := parseEpoch(vals[0])
	if err != nil {
		return fail(stderr, err)
	}
	idx, err := strconv.Atoi(vals[1])
	if err != nil || idx < 0 {
		return fail(stderr, fmt.Errorf("invalid strike index %q", vals[1]))
	}
	return execute(stdout, stderr, "GET", fmt.Sprintf("/v1/epochs/%d/strikes/%d", n, idx), nil)
}

func runPositionsCommand(args []string, stdout, stderr io.Writer) int {
	vals, ok := positional("positions", args, stderr, "epoch", "address")
	if !ok {
		return 1
	}
	n, err := parseEpoch(vals[0])
	if err != nil {
		return fail(stderr, err)
	}
	addr, err := normalizeAddress(vals[1], "account")
	if err != nil {
		return fail(stderr, err)
	}
	return execute(stdout, stderr, "GET", fmt.Sprintf("/v1/epochs/%d/positions/%s", n, addr), nil)
}

func runBalancesCommand(args []string, stdout, stderr io.Writer) int {
	vals, ok := positional("balances", args, stderr, "address")
	if !ok {
		return 1
	}
	addr, err := normalizeAddress(vals[0], "account")
	if err != nil {
		return fail(stderr, err)
	}
	return execute(stdout, stderr, "GET", "/v1/balances/"+addr, nil)
}

func runQuoteCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("quote", stderr)
	var strike, amount string
	var decimals uint
	fs.StringVar(&strike, "strike", "", "strike price in USD")
	fs.StringVar(&amount, "amount", "", "number of calls")
	fs.UintVar(&decimals, "decimals", 18, "collateral decimals used to validate amounts")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	s, err := normalizeDecimal(strike, priceDecimals, "strike")
	if err != nil {
		return fail(stderr, err)
	}
	if decimals > 255 {
		return fail(stderr, fmt.Errorf("decimals %d out of range", decimals))
	}
	a, err := normalizeDecimal(amount, uint8(decimals), "amount")
	if err != nil {
		return fail(stderr, err)
	}
	q := url.Values{}
	q.Set("strike", s)
	q.Set("amount", a)
	return execute(stdout, stderr, "GET", "/v1/fees/purchase?"+q.Encode(), nil)
}

// ---- operations ----

func callerOnly(path string) func(args []string, stdout, stderr io.Writer) int {
	name := strings.TrimPrefix(path, "/v1/")
	return func(args []string, stdout, stderr io.Writer) int {
		fs := newFlagSet(name, stderr)
		var cf callerFlags
		cf.register(fs)
		if err := fs.Parse(args); err != nil {
			return 1
		}
		caller, err := cf.caller()
		if err != nil {
			return fail(stderr, err)
		}
		return execute(stdout, stderr, "POST", path, map[string]interface{}{"caller": caller})
	}
}

func runSetStrikesCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("set-strikes", stderr)
	var cf callerFlags
	cf.register(fs)
	var list string
	fs.StringVar(&list, "strikes", "", "comma-separated strike prices in USD")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	caller, err := cf.caller()
	if err != nil {
		return fail(stderr, err)
	}
	raw := splitList(list)
	if len(raw) == 0 {
		return fail(stderr, fmt.Errorf("--strikes required"))
	}
	strikes := make([]string, len(raw))
	for i, s := range raw {
		if strikes[i], err = normalizeDecimal(s, priceDecimals, "strike"); err != nil {
			return fail(stderr, err)
		}
	}
	return execute(stdout, stderr, "POST", "/v1/strikes", map[string]interface{}{"caller": caller, "strikes": strikes})
}

func runDepositCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("deposit", stderr)
	var cf callerFlags
	cf.register(fs)
	var strikes, amounts, beneficiary string
	fs.StringVar(&strikes, "strike", "", "strike index, or comma-separated indices")
	fs.StringVar(&amounts, "amount", "", "amount, or comma-separated amounts matching --strike")
	fs.StringVar(&beneficiary, "beneficiary", "", "account credited with the deposit (defaults to the caller)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	caller, err := cf.caller()
	if err != nil {
		return fail(stderr, err)
	}
	idxRaw, amtRaw := splitList(strikes), splitList(amounts)
	if len(idxRaw) == 0 || len(idxRaw) != len(amtRaw) {
		return fail(stderr, fmt.Errorf("--strike and --amount must list the same number of entries"))
	}
	indices := make([]int, len(idxRaw))
	values := make([]string, len(amtRaw))
	for i := range idxRaw {
		if indices[i], err = strconv.Atoi(idxRaw[i]); err != nil || indices[i] < 0 {
			return fail(stderr, fmt.Errorf("invalid strike index %q", idxRaw[i]))
		}
		if values[i], err = cf.amount(amtRaw[i]); err != nil {
			return fail(stderr, err)
		}
	}
	body := map[string]interface{}{"caller": caller, "strikeIndices": indices, "amounts": values}
	if beneficiary != "" {
		b, err := normalizeAddress(beneficiary, "beneficiary")
		if err != nil {
			return fail(stderr, err)
		}
		body["beneficiary"] = b
	}
	return execute(stdout, stderr, "POST", "/v1/deposit", body)
}

func runPurchaseCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("purchase", stderr)
	var cf callerFlags
	cf.register(fs)
	var strike int
	var amount, beneficiary string
	fs.IntVar(&strike, "strike", -1, "strike index")
	fs.StringVar(&amount, "amount", "", "number of calls")
	fs.StringVar(&beneficiary, "beneficiary", "", "account receiving the call rights (defaults to the caller)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	caller, err := cf.caller()
	if err != nil {
		return fail(stderr, err)
	}
	if strike < 0 {
		return fail(stderr, fmt.Errorf("--strike required"))
	}
	a, err := cf.amount(amount)
	if err != nil {
		return fail(stderr, err)
	}
	body := map[string]interface{}{"caller": caller, "strikeIndex": strike, "amount": a}
	if beneficiary != "" {
		b, err := normalizeAddress(beneficiary, "beneficiary")
		if err != nil {
			return fail(stderr, err)
		}
		body["beneficiary"] = b
	}
	return execute(stdout, stderr, "POST", "/v1/purchase", body)
}

func runExpireCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("expire", stderr)
	var cf callerFlags
	cf.register(fs)
	var price string
	fs.StringVar(&price, "price", "", "settlement price in USD (owner only; defaults to the oracle)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	caller, err := cf.caller()
	if err != nil {
		return fail(stderr, err)
	}
	body := map[string]interface{}{"caller": caller}
	if price != "" {
		p, err := normalizeDecimal(price, priceDecimals, "price")
		if err != nil {
			return fail(stderr, err)
		}
		body["price"] = p
	}
	return execute(stdout, stderr, "POST", "/v1/expire", body)
}

func runSettleCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("settle", stderr)
	var cf callerFlags
	cf.register(fs)
	var epoch uint64
	var strike int
	var amount string
	fs.Uint64Var(&epoch, "epoch", 0, "epoch of the calls")
	fs.IntVar(&strike, "strike", -1, "strike index")
	fs.StringVar(&amount, "amount", "", "number of calls to exercise")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	caller, err := cf.caller()
	if err != nil {
		return fail(stderr, err)
	}
	if epoch == 0 || strike < 0 {
		return fail(stderr, fmt.Errorf("--epoch and --strike required"))
	}
	a, err := cf.amount(amount)
	if err != nil {
		return fail(stderr, err)
	}
	return execute(stdout, stderr, "POST", "/v1/settle", map[string]interface{}{
		"caller": caller, "epoch": epoch, "strikeIndex": strike, "amount": a,
	})
}

func runWithdrawCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("withdraw", stderr)
	var cf callerFlags
	cf.register(fs)
	var epoch uint64
	var strike int
	fs.Uint64Var(&epoch, "epoch", 0, "epoch of the deposit")
	fs.IntVar(&strike, "strike", -1, "strike index")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	caller, err := cf.caller()
	if err != nil {
		return fail(stderr, err)
	}
	if epoch == 0 || strike < 0 {
		return fail(stderr, fmt.Errorf("--epoch and --strike required"))
	}
	return execute(stdout, stderr, "POST", "/v1/withdraw", map[string]interface{}{
		"caller": caller, "epoch": epoch, "strikeIndex": strike,
	})
}

func runTransferCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("transfer", stderr)
	var cf callerFlags
	cf.register(fs)
	var epoch uint64
	var strike int
	var to, amount string
	fs.Uint64Var(&epoch, "epoch", 0, "epoch of the calls")
	fs.IntVar(&strike, "strike", -1, "strike index")
	fs.StringVar(&to, "to", "", "recipient address")
	fs.StringVar(&amount, "amount", "", "number of call rights")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	caller, err := cf.caller()
	if err != nil {
		return fail(stderr, err)
	}
	recipient, err := normalizeAddress(to, "recipient")
	if err != nil {
		return fail(stderr, err)
	}
	if epoch == 0 || strike < 0 {
		return fail(stderr, fmt.Errorf("--epoch and --strike required"))
	}
	a, err := cf.amount(amount)
	if err != nil {
		return fail(stderr, err)
	}
	return execute(stdout, stderr, "POST", "/v1/transfer", map[string]interface{}{
		"caller": caller, "to": recipient, "epoch": epoch, "strikeIndex": strike, "amount": a,
	})
}

func runApproveCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("approve", stderr)
	var cf callerFlags
	cf.register(fs)
	var epoch uint64
	var strike int
	var spender, amount string
	fs.Uint64Var(&epoch, "epoch", 0, "epoch of the calls")
	fs.IntVar(&strike, "strike", -1, "strike index")
	fs.StringVar(&spender, "spender", "", "address allowed to move the calls")
	fs.StringVar(&amount, "amount", "", "allowance; 0 revokes")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	caller, err := cf.caller()
	if err != nil {
		return fail(stderr, err)
	}
	who, err := normalizeAddress(spender, "spender")
	if err != nil {
		return fail(stderr, err)
	}
	if epoch == 0 || strike < 0 {
		return fail(stderr, fmt.Errorf("--epoch and --strike required"))
	}
	a, err := cf.amount(amount)
	if err != nil {
		return fail(stderr, err)
	}
	return execute(stdout, stderr, "POST", "/v1/approve", map[string]interface{}{
		"caller": caller, "spender": who, "epoch": epoch, "strikeIndex": strike, "amount": a,
	})
}

func runTransferFromCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("transfer-from", stderr)
	var cf callerFlags
	cf.register(fs)
	var epoch uint64
	var strike int
	var owner, to, amount string
	fs.Uint64Var(&epoch, "epoch", 0, "epoch of the calls")
	fs.IntVar(&strike, "strike", -1, "strike index")
	fs.StringVar(&owner, "owner", "", "holder of the calls")
	fs.StringVar(&to, "to", "", "recipient address")
	fs.StringVar(&amount, "amount", "", "number of call rights")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	caller, err := cf.caller()
	if err != nil {
		return fail(stderr, err)
	}
	holder, err := normalizeAddress(owner, "owner")
	if err != nil {
		return fail(stderr, err)
	}
	recipient, err := normalizeAddress(to, "recipient")
	if err != nil {
		return fail(stderr, err)
	}
	if epoch == 0 || strike < 0 {
		return fail(stderr, fmt.Errorf("--epoch and --strike required"))
	}
	a, err := cf.amount(amount)
	if err != nil {
		return fail(stderr, err)
	}
	return execute(stdout, stderr, "POST", "/v1/transfer-from", map[string]interface{}{
		"caller": caller, "owner": holder, "to": recipient, "epoch": epoch, "strikeIndex": strike, "amount": a,
	})
}

func runSetAddressCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("set-address", stderr)
	var cf callerFlags
	cf.register(fs)
	var name, address string
	fs.StringVar(&name, "name", "", "Owner, Governance or FeeDistributor")
	fs.StringVar(&address, "address", "", "new address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	caller, err := cf.caller()
	if err != nil {
		return fail(stderr, err)
	}
	if strings.TrimSpace(name) == "" {
		return fail(stderr, fmt.Errorf("--name required"))
	}
	addr, err := normalizeAddress(address, name)
	if err != nil {
		return fail(stderr, err)
	}
	return execute(stdout, stderr, "POST", "/v1/addresses", map[string]interface{}{
		"caller":  caller,
		"entries": []map[string]string{{"name": strings.TrimSpace(name), "address": addr}},
	})
}

func runSetPriceCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("set-price", stderr)
	var asset, price string
	fs.StringVar(&asset, "asset", "", "asset symbol (defaults to the vault asset)")
	fs.StringVar(&price, "price", "", "USD price")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	p, err := normalizeDecimal(price, priceDecimals, "price")
	if err != nil {
		return fail(stderr, err)
	}
	return execute(stdout, stderr, "POST", "/v1/oracle/price", map[string]string{"asset": asset, "price": p})
}
