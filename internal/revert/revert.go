// Package revert classifies failure payloads produced by strategies and
// venues into textual reasons, runtime faults, and unknown failures.
package revert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

var (
	// ErrorSelector prefixes Error(string) payloads.
	ErrorSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	// PanicSelector prefixes Panic(uint256) payloads.
	PanicSelector = []byte{0x4e, 0x48, 0x7b, 0x71}

	stringArgs  abi.Arguments
	uint256Args abi.Arguments
)

func init() {
	stringT, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	uintT, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	stringArgs = abi.Arguments{{Type: stringT}}
	uint256Args = abi.Arguments{{Type: uintT}}
}

var panicReasons = map[uint64]string{
	0x00: "generic panic",
	0x01: "assert(false)",
	0x11: "arithmetic underflow or overflow",
	0x12: "division or modulo by zero",
	0x21: "enum overflow",
	0x22: "invalid encoded storage byte array accessed",
	0x31: "out-of-bounds array access; popping on an empty array",
	0x32: "out-of-bounds access of an array or bytesN",
	0x41: "out of memory",
	0x51: "uninitialized function",
}

// Error is a failure that carries a raw revert payload.
type Error struct {
	Data []byte
}

func (e *Error) Error() string {
	kind, reason := Classify(e.Data)
	switch kind {
	case domain.FailureTextual:
		return "execution reverted: " + reason
	case domain.FailureRuntimeFault:
		return "execution reverted: " + reason
	default:
		return "execution reverted"
	}
}

// ErrorData returns the payload hex-encoded, matching rpc.DataError.
func (e *Error) ErrorData() interface{} {
	return hexutil.Encode(e.Data)
}

// Reason builds a revert carrying an Error(string) payload.
func Reason(msg string) *Error {
	return &Error{Data: EncodeReason(msg)}
}

// Panic builds a revert carrying a Panic(uint256) payload.
func Panic(code uint64) *Error {
	return &Error{Data: EncodePanic(code)}
}

// Empty builds a revert with no payload.
func Empty() *Error {
	return &Error{}
}

// EncodeReason ABI-encodes Error(string).
func EncodeReason(msg string) []byte {
	packed, err := stringArgs.Pack(msg)
	if err != nil {
		return nil
	}
	return append(append([]byte{}, ErrorSelector...), packed...)
}

// EncodePanic ABI-encodes Panic(uint256).
func EncodePanic(code uint64) []byte {
	packed, err := uint256Args.Pack(new(big.Int).SetUint64(code))
	if err != nil {
		return nil
	}
	return append(append([]byte{}, PanicSelector...), packed...)
}

// Classify decodes a raw failure payload.
func Classify(data []byte) (domain.FailureKind, string) {
	if len(data) < 4 {
		return domain.FailureUnknown, ""
	}
	switch {
	case bytes.Equal(data[:4], ErrorSelector):
		vals, err := stringArgs.Unpack(data[4:])
		if err != nil || len(vals) != 1 {
			return domain.FailureUnknown, ""
		}
		msg, ok := vals[0].(string)
		if !ok {
			return domain.FailureUnknown, ""
		}
		return domain.FailureTextual, msg
	case bytes.Equal(data[:4], PanicSelector):
		vals, err := uint256Args.Unpack(data[4:])
		if err != nil || len(vals) != 1 {
			return domain.FailureUnknown, ""
		}
		code, ok := vals[0].(*big.Int)
		if !ok {
			return domain.FailureUnknown, ""
		}
		return domain.FailureRuntimeFault, panicMessage(code)
	}
	return domain.FailureUnknown, ""
}

func panicMessage(code *big.Int) string {
	if code.IsUint64() {
		if desc, ok := panicReasons[code.Uint64()]; ok {
			return fmt.Sprintf("panic: %s (0x%x)", desc, code.Uint64())
		}
	}
	return fmt.Sprintf("panic: unknown code (0x%x)", code)
}

// PanicError wraps a value recovered from a panicking strategy.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// ClassifyError maps any failure surfaced by a strategy run or venue call to
// a failure kind and a human-readable reason.
func ClassifyError(err error) (domain.FailureKind, string) {
	if err == nil {
		return domain.FailureNone, ""
	}

	var rev *Error
	if errors.As(err, &rev) {
		return Classify(rev.Data)
	}

	var pe *PanicError
	if errors.As(err, &pe) {
		return domain.FailureRuntimeFault, pe.Error()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FailureTimeout, "deadline exceeded"
	}

	var de rpc.DataError
	if errors.As(err, &de) {
		if data, ok := dataBytes(de.ErrorData()); ok {
			return Classify(data)
		}
	}

	msg := err.Error()
	if msg == "" {
		return domain.FailureUnknown, ""
	}
	return domain.FailureTextual, msg
}

// ClassifyStrategyError is ClassifyError for a whole strategy run. A run
// reports only textual, runtime fault or unknown failures, so a deadline is
// folded into a textual reason.
func ClassifyStrategyError(err error) (domain.FailureKind, string) {
	kind, reason := ClassifyError(err)
	if kind == domain.FailureTimeout {
		return domain.FailureTextual, err.Error()
	}
	return kind, reason
}

func dataBytes(v interface{}) ([]byte, bool) {
	switch d := v.(type) {
	case string:
		b, err := hexutil.Decode(d)
		if err != nil {
			return nil, false
		}
		return b, true
	case []byte:
		return d, true
	}
	return nil, false
}
