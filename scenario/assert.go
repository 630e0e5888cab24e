package scenario

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrAssertionFailed matches every *AssertionError.
var ErrAssertionFailed = errors.New("scenario: assertion failed")

// AssertionError reports an on-chain quantity that did not have the value the
// exploit produces.
type AssertionError struct {
	Step     string
	Quantity string
	Want     *big.Int
	Got      *big.Int
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("scenario: %s: %s = %s, want %s", e.Step, e.Quantity, e.Got, e.Want)
}

func (e *AssertionError) Is(target error) bool {
	return target == ErrAssertionFailed
}

func expectEqual(step, quantity string, want, got *big.Int) error {
	if got == nil || want.Cmp(got) != 0 {
		return &AssertionError{Step: step, Quantity: quantity, Want: new(big.Int).Set(want), Got: got}
	}
	return nil
}
