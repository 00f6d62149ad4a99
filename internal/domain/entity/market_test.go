package entity

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testMarketID = common.HexToHash("0xb323495f7e4148be5643a4ea4a8221eef163e4bccfdedc2a6f4696baacbc86cc")
	testOracle   = common.HexToAddress("0x48F7E36EB6B826B2dF4B2E630B62Cd25e89E40e2")
	testLoan     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testColl     = common.HexToAddress("0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0")
	testIRM      = common.HexToAddress("0x870aC11D48B15DB9a138Cf899d20F13F79Ba00BC")
)

func TestNewMarket(t *testing.T) {
	tests := []struct {
		name        string
		id          common.Hash
		lltv        *big.Int
		wantErr     bool
		errContains string
	}{
		{
			name: "valid market",
			id:   testMarketID,
			lltv: big.NewInt(860000000000000000),
		},
		{
			name: "nil lltv allowed",
			id:   testMarketID,
		},
		{
			name:        "zero id",
			id:          common.Hash{},
			lltv:        big.NewInt(1),
			wantErr:     true,
			errContains: "market id must not be zero",
		},
		{
			name:        "negative lltv",
			id:          testMarketID,
			lltv:        big.NewInt(-1),
			wantErr:     true,
			errContains: "lltv must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMarket(tt.id, testOracle, testLoan, testColl, testIRM, tt.lltv)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error = %q, want containing %q", err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.ID != tt.id {
				t.Errorf("ID = %s, want %s", m.ID.Hex(), tt.id.Hex())
			}
			if m.HasState() {
				t.Error("new market should not have state")
			}
		})
	}
}

func TestMarket_MarkUnavailable(t *testing.T) {
	m, err := NewMarket(testMarketID, testOracle, testLoan, testColl, testIRM, big.NewInt(1))
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}
	m.State = &MarketState{TotalSupplyAssets: big.NewInt(5)}

	m.MarkUnavailable(errors.New("execution reverted"))

	if m.HasState() {
		t.Error("state should be cleared")
	}
	if m.LookupError != "execution reverted" {
		t.Errorf("LookupError = %q, want %q", m.LookupError, "execution reverted")
	}

	m.MarkUnavailable(nil)
	if m.LookupError == "" {
		t.Error("LookupError should be set for nil error")
	}
}

func TestMarket_JSONRoundTrip(t *testing.T) {
	m, err := NewMarket(testMarketID, testOracle, testLoan, testColl, testIRM, big.NewInt(860000000000000000))
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}
	m.State = &MarketState{
		TotalSupplyAssets: big.NewInt(1000),
		TotalSupplyShares: big.NewInt(2000),
		TotalBorrowAssets: big.NewInt(300),
		TotalBorrowShares: big.NewInt(600),
		LastUpdate:        big.NewInt(1700000000),
		Fee:               big.NewInt(0),
	}

	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal generic: %v", err)
	}
	if generic["oracle"] != testOracle.Hex() {
		t.Errorf("oracle = %v, want checksum %s", generic["oracle"], testOracle.Hex())
	}
	if generic["id"] != testMarketID.Hex() {
		t.Errorf("id = %v, want %s", generic["id"], testMarketID.Hex())
	}
	state, ok := generic["market"].([]any)
	if !ok || len(state) != 6 {
		t.Fatalf("market = %v, want 6-element array", generic["market"])
	}
	if _, ok := generic["lookupError"]; ok {
		t.Error("lookupError should be omitted when empty")
	}

	var decoded Market
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID != m.ID || decoded.Oracle != m.Oracle || decoded.IRM != m.IRM {
		t.Errorf("decoded = %+v, want %+v", decoded, m)
	}
	if decoded.State == nil || decoded.State.TotalBorrowShares.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("decoded state = %+v", decoded.State)
	}
}

func TestMarket_UnavailableJSON(t *testing.T) {
	m := Market{ID: testMarketID, Oracle: testOracle}
	m.MarkUnavailable(errors.New("boom"))

	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"market":null`) {
		t.Errorf("expected null market in %s", raw)
	}
	if !strings.Contains(string(raw), `"lookupError":"boom"`) {
		t.Errorf("expected lookupError in %s", raw)
	}
}

func TestMarket_UnmarshalJSON_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"short id", `{"id":"0x1234","oracle":"0x48F7E36EB6B826B2dF4B2E630B62Cd25e89E40e2"}`},
		{"missing prefix", `{"id":"b323495f7e4148be5643a4ea4a8221eef163e4bccfdedc2a6f4696baacbc86cc","oracle":"0x48F7E36EB6B826B2dF4B2E630B62Cd25e89E40e2"}`},
		{"bad oracle", `{"id":"0xb323495f7e4148be5643a4ea4a8221eef163e4bccfdedc2a6f4696baacbc86cc","oracle":"0xnothex"}`},
		{"short state", `{"id":"0xb323495f7e4148be5643a4ea4a8221eef163e4bccfdedc2a6f4696baacbc86cc","oracle":"0x48F7E36EB6B826B2dF4B2E630B62Cd25e89E40e2","market":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Market
			if err := json.Unmarshal([]byte(tt.json), &m); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
