package route

import (
	"context"
	"sort"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/utils"
)

// DefaultDeadlineWindow is added to the current time to form router deadlines, in seconds.
const DefaultDeadlineWindow = 300

type pairKey struct {
	in, out common.Address
}

type limitKey struct {
	operator, token common.Address
}

// Registry stores swap paths per directed token pair and per-operator token limits,
// and executes swaps through the external exchange. It does no authorization of its own.
type Registry struct {
	exchange       types.Exchange
	clock          types.Clock
	sink           types.EventSink
	deadlineWindow int64
	routes         map[pairKey][]byte
	limits         map[limitKey]sdkmath.Int
	logger         zerolog.Logger
}

// NewRegistry returns an empty registry. A nil sink drops swap events.
func NewRegistry(exchange types.Exchange, clock types.Clock, sink types.EventSink) *Registry {
	if sink == nil {
		sink = types.NopSink{}
	}
	return &Registry{
		exchange:       exchange,
		clock:          clock,
		sink:           sink,
		deadlineWindow: DefaultDeadlineWindow,
		routes:         make(map[pairKey][]byte),
		limits:         make(map[limitKey]sdkmath.Int),
		logger:         logger.GetForComponent("route_registry"),
	}
}

// SetRoute decodes the path, keys it by its first and last token and stores an exact copy.
func (r *Registry) SetRoute(encoded []byte) (Path, error) {
	p, err := DecodePath(encoded)
	if err != nil {
		return Path{}, err
	}
	if p.TokenIn() == p.TokenOut() {
		return Path{}, errors.Wrap(types.ErrMalformedPath, "path starts and ends with the same token")
	}
	stored := make([]byte, len(encoded))
	copy(stored, encoded)
	r.routes[pairKey{p.TokenIn(), p.TokenOut()}] = stored
	r.logger.Info().
		Str("tokenIn", p.TokenIn().Hex()).
		Str("tokenOut", p.TokenOut().Hex()).
		Int("hops", p.Hops()).
		Msg("Swap route set")
	return p, nil
}

// Route returns the stored path bytes for the pair.
func (r *Registry) Route(tokenIn, tokenOut common.Address) ([]byte, bool) {
	path, ok := r.routes[pairKey{tokenIn, tokenOut}]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(path))
	copy(out, path)
	return out, true
}

func (r *Registry) mustRoute(tokenIn, tokenOut common.Address) ([]byte, error) {
	path, ok := r.routes[pairKey{tokenIn, tokenOut}]
	if !ok {
		return nil, errors.Wrapf(types.ErrRouteNotSet, "%s -> %s", tokenIn.Hex(), tokenOut.Hex())
	}
	return path, nil
}

// Routes lists every stored route ordered by token pair.
func (r *Registry) Routes() []types.RouteEntry {
	out := make([]types.RouteEntry, 0, len(r.routes))
	for key, path := range r.routes {
		out = append(out, types.RouteEntry{TokenIn: key.in, TokenOut: key.out, Path: hexutil.Encode(path)})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TokenIn.Cmp(out[j].TokenIn); c != 0 {
			return c < 0
		}
		return out[i].TokenOut.Cmp(out[j].TokenOut) < 0
	})
	return out
}

// SetTokenLimit caps how much of token operator may commit per call. Zero removes the cap.
func (r *Registry) SetTokenLimit(operator, token common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return errors.Wrap(types.ErrInvalidAmount, "token limit must be non-negative")
	}
	key := limitKey{operator, token}
	if amount.IsZero() {
		delete(r.limits, key)
		return nil
	}
	r.limits[key] = amount
	return nil
}

// TokenLimit returns the operator's cap for token, zero when none is set.
func (r *Registry) TokenLimit(operator, token common.Address) sdkmath.Int {
	if limit, ok := r.limits[limitKey{operator, token}]; ok {
		return limit
	}
	return sdkmath.ZeroInt()
}

// CheckLimit fails when operator has a cap for token and amount exceeds it.
func (r *Registry) CheckLimit(operator, token common.Address, amount sdkmath.Int) error {
	limit, ok := r.limits[limitKey{operator, token}]
	if ok && utils.OrZero(amount).GT(limit) {
		return errors.Wrapf(types.ErrTokenLimitExceeded, "%s of %s exceeds limit %s for %s", amount, token.Hex(), limit, operator.Hex())
	}
	return nil
}

func (r *Registry) deadline() int64 {
	return r.clock() + r.deadlineWindow
}

// ExactInput swaps amountIn of tokenIn held by payer into tokenOut, delivered to payer.
func (r *Registry) ExactInput(ctx context.Context, payer, tokenIn, tokenOut common.Address, amountIn, minOut sdkmath.Int) (sdkmath.Int, error) {
	amountIn, minOut = utils.OrZero(amountIn), utils.OrZero(minOut)
	if !amountIn.IsPositive() {
		return sdkmath.ZeroInt(), errors.Wrap(types.ErrInvalidAmount, "exactInput: amountIn must be positive")
	}
	path, err := r.mustRoute(tokenIn, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	amountOut, err := r.exchange.ExactInput(ctx, payer, types.ExactInputParams{
		Path:             path,
		Recipient:        payer,
		Deadline:         r.deadline(),
		AmountIn:         amountIn,
		AmountOutMinimum: minOut,
	})
	if err != nil {
		return sdkmath.ZeroInt(), errors.Wrap(err, "exactInput")
	}
	if amountOut.LT(minOut) {
		return sdkmath.ZeroInt(), errors.Wrapf(types.ErrSlippageExceeded, "exactInput: received %s, minimum %s", amountOut, minOut)
	}
	r.sink.Emit(ctx, types.Swap{TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: amountIn, AmountOut: amountOut})
	r.logger.Info().
		Str("tokenIn", tokenIn.Hex()).
		Str("tokenOut", tokenOut.Hex()).
		Str("amountIn", amountIn.String()).
		Str("amountOut", amountOut.String()).
		Msg("Exact input swap executed")
	return amountOut, nil
}

// ExactOutput buys amountOut of tokenOut for payer spending at most maxIn of tokenIn.
func (r *Registry) ExactOutput(ctx context.Context, payer, tokenIn, tokenOut common.Address, amountOut, maxIn sdkmath.Int) (sdkmath.Int, error) {
	amountOut, maxIn = utils.OrZero(amountOut), utils.OrZero(maxIn)
	if !amountOut.IsPositive() {
		return sdkmath.ZeroInt(), errors.Wrap(types.ErrInvalidAmount, "exactOutput: amountOut must be positive")
	}
	path, err := r.mustRoute(tokenIn, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	reversed, err := ReversePath(path)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	amountIn, err := r.exchange.ExactOutput(ctx, payer, types.ExactOutputParams{
		Path:            reversed,
		Recipient:       payer,
		Deadline:        r.deadline(),
		AmountOut:       amountOut,
		AmountInMaximum: maxIn,
	})
	if err != nil {
		return sdkmath.ZeroInt(), errors.Wrap(err, "exactOutput")
	}
	if amountIn.GT(maxIn) {
		return sdkmath.ZeroInt(), errors.Wrapf(types.ErrSlippageExceeded, "exactOutput: spent %s, maximum %s", amountIn, maxIn)
	}
	r.sink.Emit(ctx, types.Swap{TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: amountIn, AmountOut: amountOut})
	r.logger.Info().
		Str("tokenIn", tokenIn.Hex()).
		Str("tokenOut", tokenOut.Hex()).
		Str("amountIn", amountIn.String()).
		Str("amountOut", amountOut.String()).
		Msg("Exact output swap executed")
	return amountIn, nil
}

// EstimateAmountOut quotes tokenIn -> tokenOut through the stored route. Same token quotes 1:1.
func (r *Registry) EstimateAmountOut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn sdkmath.Int) (sdkmath.Int, error) {
	if tokenIn == tokenOut || amountIn.IsZero() {
		return amountIn, nil
	}
	path, err := r.mustRoute(tokenIn, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return r.exchange.QuoteExactInput(ctx, path, amountIn)
}

// EstimateAmountIn quotes how much tokenIn buys amountOut of tokenOut.
func (r *Registry) EstimateAmountIn(ctx context.Context, tokenIn, tokenOut common.Address, amountOut sdkmath.Int) (sdkmath.Int, error) {
	if tokenIn == tokenOut || amountOut.IsZero() {
		return amountOut, nil
	}
	path, err := r.mustRoute(tokenIn, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	reversed, err := ReversePath(path)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return r.exchange.QuoteExactOutput(ctx, reversed, amountOut)
}

// Snapshot captures the route table and limits; the returned func restores them.
func (r *Registry) Snapshot() func() {
	routes := make(map[pairKey][]byte, len(r.routes))
	for k, v := range r.routes {
		routes[k] = v
	}
	limits := make(map[limitKey]sdkmath.Int, len(r.limits))
	for k, v := range r.limits {
		limits[k] = v
	}
	return func() {
		r.routes = routes
		r.limits = limits
	}
}
