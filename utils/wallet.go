// utils/wallet.go
package utils

import "regexp"

var walletAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidWalletAddress reports whether s looks like an EVM wallet address.
func ValidWalletAddress(s string) bool {
	return walletAddressPattern.MatchString(s)
}
