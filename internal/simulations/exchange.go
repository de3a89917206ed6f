package simulations

import (
	"context"
	"fmt"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/clvault/internal/route"
	"github.com/elys-network/clvault/internal/types"
)

const feeTierBase = 1_000_000

// Router returns the exchange facade.
func (c *Chain) Router() *Router {
	return &Router{chain: c}
}

// Router implements types.Exchange. Every hop trades at the oracle price less the hop's fee tier.
type Router struct {
	chain *Chain
}

var _ types.Exchange = (*Router)(nil)

func (r *Router) Address() common.Address {
	return RouterAddress
}

func (r *Router) ExactInput(_ context.Context, caller common.Address, params types.ExactInputParams) (sdkmath.Int, error) {
	c := r.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if params.Deadline < c.st.now {
		return sdkmath.ZeroInt(), ErrDeadlinePassed
	}
	p, err := route.DecodePath(params.Path)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	amountOut, err := c.quoteIn(p, params.AmountIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amountOut.LT(params.AmountOutMinimum) {
		return sdkmath.ZeroInt(), errors.Wrapf(types.ErrSlippageExceeded, "too little received: %s < %s", amountOut, params.AmountOutMinimum)
	}
	if err := c.spend(p.TokenIn(), RouterAddress, caller, RouterAddress, params.AmountIn); err != nil {
		return sdkmath.ZeroInt(), err
	}
	c.payOut(p.TokenOut(), RouterAddress, params.Recipient, amountOut)
	swapLogger.Debug().Str("amountIn", params.AmountIn.String()).Str("amountOut", amountOut.String()).Msg("Paper exact input")
	return amountOut, nil
}

func (r *Router) ExactOutput(_ context.Context, caller common.Address, params types.ExactOutputParams) (sdkmath.Int, error) {
	c := r.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if params.Deadline < c.st.now {
		return sdkmath.ZeroInt(), ErrDeadlinePassed
	}
	p, err := route.DecodePath(params.Path)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	amountIn, err := c.quoteOut(p, params.AmountOut)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amountIn.GT(params.AmountInMaximum) {
		return sdkmath.ZeroInt(), errors.Wrapf(types.ErrSlippageExceeded, "too much requested: %s > %s", amountIn, params.AmountInMaximum)
	}
	// The exact-output path starts at the output token.
	if err := c.spend(p.TokenOut(), RouterAddress, caller, RouterAddress, amountIn); err != nil {
		return sdkmath.ZeroInt(), err
	}
	c.payOut(p.TokenIn(), RouterAddress, params.Recipient, params.AmountOut)
	swapLogger.Debug().Str("amountIn", amountIn.String()).Str("amountOut", params.AmountOut.String()).Msg("Paper exact output")
	return amountIn, nil
}

func (r *Router) QuoteExactInput(_ context.Context, path []byte, amountIn sdkmath.Int) (sdkmath.Int, error) {
	p, err := route.DecodePath(path)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	r.chain.mu.Lock()
	defer r.chain.mu.Unlock()
	return r.chain.quoteIn(p, amountIn)
}

func (r *Router) QuoteExactOutput(_ context.Context, path []byte, amountOut sdkmath.Int) (sdkmath.Int, error) {
	p, err := route.DecodePath(path)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	r.chain.mu.Lock()
	defer r.chain.mu.Unlock()
	return r.chain.quoteOut(p, amountOut)
}

// quoteIn walks a tokenIn-first path forward.
func (c *Chain) quoteIn(p route.Path, amountIn sdkmath.Int) (sdkmath.Int, error) {
	amount := amountIn
	for i, fee := range p.Fees {
		out, err := c.hopOut(p.Tokens[i], p.Tokens[i+1], fee, amount)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		amount = out
	}
	return amount, nil
}

// quoteOut walks a tokenOut-first path, returning the input needed for amountOut.
func (c *Chain) quoteOut(p route.Path, amountOut sdkmath.Int) (sdkmath.Int, error) {
	amount := amountOut
	for i, fee := range p.Fees {
		in, err := c.hopIn(p.Tokens[i+1], p.Tokens[i], fee, amount)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		amount = in
	}
	return amount, nil
}

func (c *Chain) prices(tokenIn, tokenOut common.Address) (TokenInfo, TokenInfo, error) {
	in, ok := c.st.tokens[tokenIn]
	if !ok {
		return TokenInfo{}, TokenInfo{}, fmt.Errorf("%w: %s", ErrUnknownToken, tokenIn.Hex())
	}
	out, ok := c.st.tokens[tokenOut]
	if !ok {
		return TokenInfo{}, TokenInfo{}, fmt.Errorf("%w: %s", ErrUnknownToken, tokenOut.Hex())
	}
	if !in.Price.IsPositive() || !out.Price.IsPositive() {
		return TokenInfo{}, TokenInfo{}, ErrPriceNotSet
	}
	return in, out, nil
}

// hopOut = amountIn * pIn * 10^decOut * (1e6 - fee) / (pOut * 10^decIn * 1e6)
func (c *Chain) hopOut(tokenIn, tokenOut common.Address, fee uint32, amountIn sdkmath.Int) (sdkmath.Int, error) {
	in, out, err := c.prices(tokenIn, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	num := amountIn.Mul(in.Price).Mul(pow10(out.Decimals)).Mul(sdkmath.NewInt(feeTierBase - int64(fee)))
	den := out.Price.Mul(pow10(in.Decimals)).Mul(sdkmath.NewInt(feeTierBase))
	return num.Quo(den), nil
}

// hopIn is the rounded-up inverse of hopOut.
func (c *Chain) hopIn(tokenIn, tokenOut common.Address, fee uint32, amountOut sdkmath.Int) (sdkmath.Int, error) {
	in, out, err := c.prices(tokenIn, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	num := amountOut.Mul(out.Price).Mul(pow10(in.Decimals)).Mul(sdkmath.NewInt(feeTierBase))
	den := in.Price.Mul(pow10(out.Decimals)).Mul(sdkmath.NewInt(feeTierBase - int64(fee)))
	q := num.Quo(den)
	if !num.Mod(den).IsZero() {
		q = q.AddRaw(1)
	}
	return q, nil
}
