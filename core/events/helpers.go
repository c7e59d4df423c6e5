package events

import "github.com/holiman/uint256"

func putAmount(attrs map[string]string, key string, amount *uint256.Int) {
	if amount == nil {
		return
	}
	attrs[key] = amount.Dec()
}
