package borrower

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// The reference payload schema is a single ABI-encoded bool: true asks
// the borrower to deliberately fail its callback. Applications with
// richer strategies encode their own schemas and decode them in a
// custom Strategy instead.
var (
	abiBool, _  = abi.NewType("bool", "", nil)
	payloadArgs = abi.Arguments{{Type: abiBool}}
)

// EncodePayload ABI-encodes the abort flag for FlashBorrow.
func EncodePayload(abort bool) ([]byte, error) {
	packed, err := payloadArgs.Pack(abort)
	if err != nil {
		return nil, fmt.Errorf("failed to pack payload: %w", err)
	}
	return packed, nil
}

// DecodePayload unpacks the abort flag. An empty payload means no abort.
func DecodePayload(data []byte) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	values, err := payloadArgs.Unpack(data)
	if err != nil {
		return false, fmt.Errorf("failed to unpack payload: %w", err)
	}
	abort, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("payload is not a bool")
	}
	return abort, nil
}
