package hype

import (
	"regexp"

	"github.com/mr-tron/base58"
)

// Chain tags attached to extracted addresses.
const (
	ChainEthereum = "ethereum"
	ChainSolana   = "solana"
)

var (
	evmAddrRe    = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
	base58AddrRe = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{32,44}`)
)

// extractAddress pulls the first contract address out of a message.
// An EVM-style match always wins over a base58 one; base58 candidates must
// additionally decode to a 32-byte key, which filters out ordinary words
// that happen to fit the alphabet.
func extractAddress(text string) (addr, chain string) {
	if m := evmAddrRe.FindString(text); m != "" {
		return m, ChainEthereum
	}
	for _, cand := range base58AddrRe.FindAllString(text, -1) {
		raw, err := base58.Decode(cand)
		if err != nil || len(raw) != 32 {
			continue
		}
		return cand, ChainSolana
	}
	return "", ""
}
