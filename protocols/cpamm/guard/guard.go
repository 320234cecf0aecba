// Package guard enforces that a batch of instructions swaps at most once against a pool
// while that pool's rate limiter is active.
package guard

import (
	"bytes"
	"crypto/sha256"
	"errors"

	errorsmod "cosmossdk.io/errors"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// DiscriminatorSize is the length of the instruction tag prefixed to instruction data.
const DiscriminatorSize = 8

// poolAccountIndex is the position of the pool account in swap and swap2 instructions.
const poolAccountIndex = 1

var (
	SwapDiscriminator  = discriminator("swap")
	Swap2Discriminator = discriminator("swap2")

	ErrIndexOutOfRange = errors.New("instruction index out of range")
)

func discriminator(name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// Instruction is one entry of an atomic batch as seen through introspection.
type Instruction struct {
	ProgramID types.Pubkey   `json:"programId"`
	Accounts  []types.Pubkey `json:"accounts"`
	Data      []byte         `json:"data"`
}

// IsSwapOn reports whether ix is a swap or swap2 instruction naming pool as its pool account.
func (ix Instruction) IsSwapOn(pool types.Pubkey) bool {
	if len(ix.Data) < DiscriminatorSize || len(ix.Accounts) <= poolAccountIndex {
		return false
	}
	tag := ix.Data[:DiscriminatorSize]
	if !bytes.Equal(tag, SwapDiscriminator[:]) && !bytes.Equal(tag, Swap2Discriminator[:]) {
		return false
	}
	return ix.Accounts[poolAccountIndex] == pool
}

// References reports whether pool appears anywhere in the account list.
func (ix Instruction) References(pool types.Pubkey) bool {
	for _, acc := range ix.Accounts {
		if acc == pool {
			return true
		}
	}
	return false
}

// Introspector exposes the enclosing batch, read-only.
type Introspector interface {
	// CurrentIndex is the top-level position of the instruction being executed.
	CurrentIndex() int
	// InstructionAt returns the top-level instruction at index.
	InstructionAt(index int) (Instruction, error)
	// StackHeight is the invocation depth; 1 for a top-level instruction.
	StackHeight() int
	// ProcessedSiblingInstruction returns already-completed instructions at the current
	// depth, most recent first, and false past the last one.
	ProcessedSiblingInstruction(index int) (Instruction, bool)
}

func fail(reason string) error {
	return errorsmod.Wrap(poolerr.ErrFailToValidateSingleSwapInstruction, reason)
}

// ValidateSingleSwap proves the batch contains no other swap against pool.
func ValidateSingleSwap(programID, pool types.Pubkey, in Introspector) error {
	current := in.CurrentIndex()
	currentIx, err := in.InstructionAt(current)
	if err != nil {
		return errorsmod.Wrapf(poolerr.ErrFailToValidateSingleSwapInstruction, "load current instruction: %v", err)
	}

	if currentIx.ProgramID != programID {
		// Reached through another program: allow one level of indirection only.
		if in.StackHeight() > 2 {
			return fail("nested invocation too deep")
		}
		for i := 0; ; i++ {
			sibling, ok := in.ProcessedSiblingInstruction(i)
			if !ok {
				break
			}
			if sibling.ProgramID == programID && sibling.IsSwapOn(pool) {
				return fail("sibling swap on the same pool")
			}
		}
	}

	for i := 0; i < current; i++ {
		ix, err := in.InstructionAt(i)
		if err != nil {
			return errorsmod.Wrapf(poolerr.ErrFailToValidateSingleSwapInstruction, "load instruction %d: %v", i, err)
		}
		if ix.ProgramID != programID {
			// Any foreign instruction touching the pool may hide a swap.
			if ix.References(pool) {
				return fail("earlier instruction references the pool")
			}
			continue
		}
		if ix.IsSwapOn(pool) {
			return fail("earlier swap on the same pool")
		}
	}
	return nil
}

// --- In-memory batch ---

// Batch is an Introspector over a fully known batch.
type Batch struct {
	Instructions []Instruction `json:"instructions"`
	Current      int           `json:"current"`
	// Height defaults to 1 when zero.
	Height   int           `json:"height,omitempty"`
	Siblings []Instruction `json:"siblings,omitempty"`
}

var _ Introspector = (*Batch)(nil)

// SingleInstruction is the batch of a lone top-level instruction.
func SingleInstruction(ix Instruction) *Batch {
	return &Batch{Instructions: []Instruction{ix}}
}

func (b *Batch) CurrentIndex() int { return b.Current }

func (b *Batch) InstructionAt(index int) (Instruction, error) {
	if index < 0 || index >= len(b.Instructions) {
		return Instruction{}, ErrIndexOutOfRange
	}
	return b.Instructions[index], nil
}

func (b *Batch) StackHeight() int {
	if b.Height == 0 {
		return 1
	}
	return b.Height
}

func (b *Batch) ProcessedSiblingInstruction(index int) (Instruction, bool) {
	if index < 0 || index >= len(b.Siblings) {
		return Instruction{}, false
	}
	return b.Siblings[len(b.Siblings)-1-index], true
}

// SwapInstruction builds the data-bearing instruction a swap2 call carries. Only the
// discriminator and the pool position matter to the guard.
func SwapInstruction(programID, pool, payer types.Pubkey, args []byte) Instruction {
	data := make([]byte, 0, DiscriminatorSize+len(args))
	data = append(data, Swap2Discriminator[:]...)
	data = append(data, args...)
	return Instruction{
		ProgramID: programID,
		Accounts:  []types.Pubkey{payer, pool},
		Data:      data,
	}
}
