package entity

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ProviderAddressSet is a curated set of feed addresses belonging to one
// price-feed provider. Lookups are case-insensitive since addresses are
// compared in parsed form.
type ProviderAddressSet map[common.Address]struct{}

// NewProviderAddressSet builds a set from parsed addresses.
func NewProviderAddressSet(addrs ...common.Address) ProviderAddressSet {
	s := make(ProviderAddressSet, len(addrs))
	for _, a := range addrs {
		s[a] = struct{}{}
	}
	return s
}

// Contains reports whether addr belongs to the provider.
func (s ProviderAddressSet) Contains(addr common.Address) bool {
	_, ok := s[addr]
	return ok
}

type providerFile struct {
	Addresses []string `json:"addresses"`
}

// MarshalJSON encodes the set as {"addresses": [...]}.
func (s ProviderAddressSet) MarshalJSON() ([]byte, error) {
	out := providerFile{Addresses: make([]string, 0, len(s))}
	for a := range s {
		out.Addresses = append(out.Addresses, a.Hex())
	}
	sort.Strings(out.Addresses)
	return json.Marshal(out)
}

// UnmarshalJSON decodes {"addresses": [...]}, rejecting malformed entries.
func (s *ProviderAddressSet) UnmarshalJSON(data []byte) error {
	var raw providerFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ProviderAddressSet, len(raw.Addresses))
	for i, a := range raw.Addresses {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("provider address %d: invalid address %q", i, a)
		}
		out[common.HexToAddress(a)] = struct{}{}
	}
	*s = out
	return nil
}
