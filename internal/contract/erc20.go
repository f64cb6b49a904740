package contract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Standard ERC-20 (EIP-20) function selectors.
//
//	balanceOf(address)                        → 0x70a08231
//	allowance(address,address)                → 0xdd62ed3e
//	decimals()                                → 0x313ce567
//	transferFrom(address,address,uint256)     → 0x23b872dd
var (
	SelBalanceOf    = []byte{0x70, 0xa0, 0x82, 0x31}
	SelAllowance    = []byte{0xdd, 0x62, 0xed, 0x3e}
	SelDecimals     = []byte{0x31, 0x3c, 0xe5, 0x67}
	SelTransferFrom = []byte{0x23, 0xb8, 0x72, 0xdd}
)

// Selector computes the 4-byte function selector for a canonical signature,
// e.g. "principalBalanceOf(address)".
func Selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

// LeftPadAddress ABI-encodes an address as a 32-byte word.
func LeftPadAddress(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

// Pack builds calldata from a selector and 32-byte-word arguments.
func Pack(selector []byte, words ...common.Hash) []byte {
	data := make([]byte, 0, 4+32*len(words))
	data = append(data, selector...)
	for _, w := range words {
		data = append(data, w.Bytes()...)
	}
	return data
}

// BalanceOfData builds calldata for balanceOf(owner). An alternate accessor
// selector (e.g. principalBalanceOf) may be supplied in place of the default.
func BalanceOfData(selector []byte, owner common.Address) []byte {
	return Pack(selector, LeftPadAddress(owner))
}

// AllowanceData builds calldata for allowance(owner, spender).
func AllowanceData(owner, spender common.Address) []byte {
	return Pack(SelAllowance, LeftPadAddress(owner), LeftPadAddress(spender))
}

// TransferFromData builds calldata for transferFrom(from, to, amount).
func TransferFromData(from, to common.Address, amount *big.Int) []byte {
	return Pack(SelTransferFrom, LeftPadAddress(from), LeftPadAddress(to), common.BigToHash(amount))
}
