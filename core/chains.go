package core

import "strconv"

var chainNames = map[uint64]string{
	1:        "Ethereum",
	10:       "Optimism",
	137:      "Polygon",
	8453:     "Base",
	42161:    "Arbitrum",
	11155111: "Sepolia",
	84532:    "Base Sepolia",
	11155420: "OP Sepolia",
	421614:   "Arbitrum Sepolia",
	80002:    "Polygon Amoy",
	295:      "Hedera Mainnet",
	296:      "Hedera Testnet",
}

// ChainName returns a display name, or "Chain N" for unknown chains.
func ChainName(chainID uint64) string {
	if name, ok := chainNames[chainID]; ok {
		return name
	}
	return "Chain " + strconv.FormatUint(chainID, 10)
}
