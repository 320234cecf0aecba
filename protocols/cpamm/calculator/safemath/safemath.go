// Package safemath provides overflow-checked integer primitives for the fee and curve math.
// Nothing in here wraps or panics: every failure is returned as a pool error and the
// failing call site is logged.
package safemath

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	errorsmod "cosmossdk.io/errors"
	gmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"

	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var logger atomic.Value

func init() {
	SetLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
}

// SetLogger replaces the logger that records overflow sites.
func SetLogger(l Logger) {
	logger.Store(&l)
}

func currentLogger() Logger {
	return *logger.Load().(*Logger)
}

// Rounding selects the direction a division result is rounded in.
type Rounding uint8

const (
	Down Rounding = iota
	Up
)

// overflow builds a MathOverflow error tagged with the caller of the failing primitive.
func overflow(op string) error {
	return failure(poolerr.ErrMathOverflow, op)
}

func castFailed(op string) error {
	return failure(poolerr.ErrTypeCastFailed, op)
}

func failure(kind *errorsmod.Error, op string) error {
	// skip failure, overflow/castFailed and the primitive itself
	_, file, line, ok := runtime.Caller(3)
	site := "unknown"
	if ok {
		site = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	currentLogger().Warn("checked math failure", "op", op, "site", site, "error", kind.Error())
	return errorsmod.Wrapf(kind, "%s at %s", op, site)
}

// --- uint64 ---

func Add(x, y uint64) (uint64, error) {
	z, over := gmath.SafeAdd(x, y)
	if over {
		return 0, overflow("add")
	}
	return z, nil
}

func Sub(x, y uint64) (uint64, error) {
	z, under := gmath.SafeSub(x, y)
	if under {
		return 0, overflow("sub")
	}
	return z, nil
}

func Mul(x, y uint64) (uint64, error) {
	z, over := gmath.SafeMul(x, y)
	if over {
		return 0, overflow("mul")
	}
	return z, nil
}

func Div(x, y uint64) (uint64, error) {
	if y == 0 {
		return 0, overflow("div")
	}
	return x / y, nil
}

func Rem(x, y uint64) (uint64, error) {
	if y == 0 {
		return 0, overflow("rem")
	}
	return x % y, nil
}

// Shl fails when any set bit would be shifted out.
func Shl(x uint64, n uint) (uint64, error) {
	if n >= 64 {
		return 0, overflow("shl")
	}
	z := x << n
	if z>>n != x {
		return 0, overflow("shl")
	}
	return z, nil
}

func Shr(x uint64, n uint) (uint64, error) {
	if n >= 64 {
		return 0, overflow("shr")
	}
	return x >> n, nil
}

// --- 256-bit ---

// Add256 writes x + y into a fresh value.
func Add256(x, y *uint256.Int) (*uint256.Int, error) {
	z, over := new(uint256.Int).AddOverflow(x, y)
	if over {
		return nil, overflow("add256")
	}
	return z, nil
}

func Sub256(x, y *uint256.Int) (*uint256.Int, error) {
	z, under := new(uint256.Int).SubOverflow(x, y)
	if under {
		return nil, overflow("sub256")
	}
	return z, nil
}

func Mul256(x, y *uint256.Int) (*uint256.Int, error) {
	z, over := new(uint256.Int).MulOverflow(x, y)
	if over {
		return nil, overflow("mul256")
	}
	return z, nil
}

func Div256(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, overflow("div256")
	}
	return new(uint256.Int).Div(x, y), nil
}

// Shl256 fails when any set bit would be shifted out.
func Shl256(x *uint256.Int, n uint) (*uint256.Int, error) {
	if n >= 256 || (n > 0 && x.BitLen()+int(n) > 256) {
		if !x.IsZero() {
			return nil, overflow("shl256")
		}
	}
	return new(uint256.Int).Lsh(x, n), nil
}

// --- 128-bit (held in uint256 with a 128-bit ceiling) ---

func boundU128(z *uint256.Int, op string) (*uint256.Int, error) {
	if z.Gt(constants.U128Max) {
		return nil, overflow(op)
	}
	return z, nil
}

func AddU128(x, y *uint256.Int) (*uint256.Int, error) {
	z, over := new(uint256.Int).AddOverflow(x, y)
	if over {
		return nil, overflow("add128")
	}
	return boundU128(z, "add128")
}

func SubU128(x, y *uint256.Int) (*uint256.Int, error) {
	z, under := new(uint256.Int).SubOverflow(x, y)
	if under {
		return nil, overflow("sub128")
	}
	return z, nil
}

func MulU128(x, y *uint256.Int) (*uint256.Int, error) {
	z, over := new(uint256.Int).MulOverflow(x, y)
	if over {
		return nil, overflow("mul128")
	}
	return boundU128(z, "mul128")
}

func DivU128(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, overflow("div128")
	}
	return new(uint256.Int).Div(x, y), nil
}

func ShlU128(x *uint256.Int, n uint) (*uint256.Int, error) {
	if n >= 128 || x.BitLen()+int(n) > 128 {
		if !x.IsZero() {
			return nil, overflow("shl128")
		}
	}
	return new(uint256.Int).Lsh(x, n), nil
}

// --- casts ---

// ToUint64 narrows a wide value, failing instead of truncating.
func ToUint64(x *uint256.Int) (uint64, error) {
	if !x.IsUint64() {
		return 0, castFailed("u64 cast")
	}
	return x.Uint64(), nil
}

// ToU128 checks that x fits in 128 bits.
func ToU128(x *uint256.Int) (*uint256.Int, error) {
	if x.Gt(constants.U128Max) {
		return nil, castFailed("u128 cast")
	}
	return x, nil
}

// ToUint16 narrows a uint64, failing instead of truncating.
func ToUint16(x uint64) (uint16, error) {
	if x > 0xffff {
		return 0, castFailed("u16 cast")
	}
	return uint16(x), nil
}

// --- composite ---

// MulDiv computes x * y / d with a 256-bit intermediate.
func MulDiv(x, y, d *uint256.Int, rounding Rounding) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, overflow("mul_div")
	}
	z, over := new(uint256.Int).MulDivOverflow(x, y, d)
	if over {
		return nil, overflow("mul_div")
	}
	if rounding == Up && !new(uint256.Int).MulMod(x, y, d).IsZero() {
		z, over = z.AddOverflow(z, uint256.NewInt(1))
		if over {
			return nil, overflow("mul_div")
		}
	}
	return z, nil
}

// MulDivU64 is MulDiv over uint64 operands with a narrowing cast on the result.
func MulDivU64(x, y, d uint64, rounding Rounding) (uint64, error) {
	if d == 0 {
		return 0, overflow("mul_div_u64")
	}
	z, err := MulDiv(uint256.NewInt(x), uint256.NewInt(y), uint256.NewInt(d), rounding)
	if err != nil {
		return 0, err
	}
	if !z.IsUint64() {
		return 0, castFailed("mul_div_u64")
	}
	return z.Uint64(), nil
}

// ShlDiv computes (x << offset) / y.
func ShlDiv(x, y *uint256.Int, offset uint, rounding Rounding) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, overflow("shl_div")
	}
	shifted, err := Shl256(x, offset)
	if err != nil {
		return nil, err
	}
	z := new(uint256.Int).Div(shifted, y)
	if rounding == Up && !new(uint256.Int).Mod(shifted, y).IsZero() {
		z.AddUint64(z, 1)
	}
	return z, nil
}
