package entity

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultFeedSlot is the slot recorded when an oracle exposes no upstream feed;
// it maps the oracle to itself.
const DefaultFeedSlot = "DEFAULT"

// OracleFeeds maps a feed slot name (e.g. "BASE_FEED_1") to the feed address.
type OracleFeeds map[string]common.Address

// Addresses returns the feed addresses sorted by slot name.
func (f OracleFeeds) Addresses() []common.Address {
	slots := make([]string, 0, len(f))
	for slot := range f {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	out := make([]common.Address, len(slots))
	for i, slot := range slots {
		out[i] = f[slot]
	}
	return out
}

// IsDefault reports whether the entry is the self-referencing fallback.
func (f OracleFeeds) IsDefault() bool {
	_, ok := f[DefaultFeedSlot]
	return ok && len(f) == 1
}

// FeedMap maps each oracle to the feeds discovered behind it. Every oracle
// has at least one entry.
type FeedMap map[common.Address]OracleFeeds

// Set records the resolved feeds for an oracle. An empty feed set is replaced
// by the DEFAULT self-reference.
func (m FeedMap) Set(oracle common.Address, feeds OracleFeeds) {
	if len(feeds) == 0 {
		m[oracle] = OracleFeeds{DefaultFeedSlot: oracle}
		return
	}
	m[oracle] = feeds
}

// UsesAny reports whether any feed behind oracle is in the given set.
func (m FeedMap) UsesAny(oracle common.Address, set ProviderAddressSet) bool {
	for _, addr := range m[oracle] {
		if set.Contains(addr) {
			return true
		}
	}
	return false
}

// MarshalJSON encodes oracle and feed addresses in checksum form.
func (m FeedMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]string, len(m))
	for oracle, feeds := range m {
		entry := make(map[string]string, len(feeds))
		for slot, addr := range feeds {
			entry[slot] = addr.Hex()
		}
		out[oracle.Hex()] = entry
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an aggregator snapshot, rejecting malformed addresses.
func (m *FeedMap) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(FeedMap, len(raw))
	for oracle, feeds := range raw {
		if !common.IsHexAddress(oracle) {
			return fmt.Errorf("invalid oracle address %q", oracle)
		}
		entry := make(OracleFeeds, len(feeds))
		for slot, addr := range feeds {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("oracle %s: invalid %s address %q", oracle, slot, addr)
			}
			entry[slot] = common.HexToAddress(addr)
		}
		out[common.HexToAddress(oracle)] = entry
	}
	*m = out
	return nil
}
