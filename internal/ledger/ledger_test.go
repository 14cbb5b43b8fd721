package ledger

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type fakeChain struct {
	head    uint64
	balance *big.Int
	err     error
	asked   common.Address
	closed  bool
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return f.head, f.err }

func (f *fakeChain) BalanceAt(_ context.Context, a common.Address, _ *big.Int) (*big.Int, error) {
	f.asked = a
	return f.balance, nil
}

func (f *fakeChain) Close() { f.closed = true }

const watched = "0x00000000000000000000000000000000000000Aa"

func TestEVMSource_BlockOnly(t *testing.T) {
	src, err := newEVMSource(&fakeChain{head: 19_000_000}, EVMConfig{RPCURL: "https://rpc.example.org/v1"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := src.Fetch(context.Background(), "what is my balance")
	if err != nil {
		t.Fatal(err)
	}
	if got != "latest block 19000000" {
		t.Errorf("unexpected data %q", got)
	}
	if src.Name() != "evm(rpc.example.org)" {
		t.Errorf("unexpected name %q", src.Name())
	}
}

func TestEVMSource_WatchedBalance(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	chain := &fakeChain{head: 7, balance: wei}
	src, err := newEVMSource(chain, EVMConfig{WatchAddress: watched})
	if err != nil {
		t.Fatal(err)
	}
	got, err := src.Fetch(context.Background(), "wallet")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "latest block 7; 0x") || !strings.HasSuffix(got, " balance 1.5 ETH") {
		t.Errorf("unexpected data %q", got)
	}
	if chain.asked != common.HexToAddress(watched) {
		t.Errorf("balance asked for %s", chain.asked.Hex())
	}
	src.Close()
	if !chain.closed {
		t.Error("Close should release the client")
	}
}

func TestEVMSource_Errors(t *testing.T) {
	if _, err := newEVMSource(&fakeChain{}, EVMConfig{WatchAddress: "not-an-address"}); err == nil {
		t.Error("expected invalid address error")
	}
	src, _ := newEVMSource(&fakeChain{err: errors.New("rpc down")}, EVMConfig{})
	if _, err := src.Fetch(context.Background(), "token"); err == nil {
		t.Error("expected fetch error")
	}
	if _, err := NewEVMSource(context.Background(), EVMConfig{}); err == nil {
		t.Error("expected error for missing rpc url")
	}
}

func TestFormatEther(t *testing.T) {
	cases := map[string]string{
		"0":                    "0",
		"1000000000000000000":  "1",
		"1234567890000000000":  "1.234568",
		"42000000000000000000": "42",
		"1000000000000":        "0.000001",
	}
	for in, want := range cases {
		wei, _ := new(big.Int).SetString(in, 10)
		if got := FormatEther(wei); got != want {
			t.Errorf("FormatEther(%s) = %q, want %q", in, got, want)
		}
	}
	if FormatEther(nil) != "0" {
		t.Error("nil should format as 0")
	}
}

func TestStaticSource(t *testing.T) {
	s := NewStaticSource("42 units staked")
	got, err := s.Fetch(context.Background(), "stake")
	if err != nil || got != "42 units staked" {
		t.Fatalf("unexpected %q, %v", got, err)
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("q") {
		case "string":
			w.Write([]byte(`{"data":"slot 250000000"}`))
		case "object":
			w.Write([]byte(`{"data":{"tps":3000}}`))
		case "empty":
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	s := NewHTTPSourceWithClient(HTTPConfig{URL: srv.URL + "/chain"}, srv.Client())
	ctx := context.Background()

	if got, err := s.Fetch(ctx, "string"); err != nil || got != "slot 250000000" {
		t.Errorf("string data: %q, %v", got, err)
	}
	if got, err := s.Fetch(ctx, "object"); err != nil || got != `{"tps":3000}` {
		t.Errorf("object data: %q, %v", got, err)
	}
	if got, err := s.Fetch(ctx, "empty"); err != nil || got != "" {
		t.Errorf("empty data: %q, %v", got, err)
	}
	if _, err := s.Fetch(ctx, "fail"); err == nil {
		t.Error("expected error on 502")
	}
}
