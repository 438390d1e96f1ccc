package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeRPC is a minimal JSON-RPC endpoint with scripted per-method behavior.
type fakeRPC struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func(n int) (result string, errBody string, httpStatus int)
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		calls:    make(map[string]int),
		handlers: make(map[string]func(int) (string, string, int)),
	}
}

func (f *fakeRPC) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRPC) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	n := f.calls[req.Method]
	f.calls[req.Method] = n + 1
	handler := f.handlers[req.Method]
	f.mu.Unlock()

	if handler == nil {
		http.Error(w, "no handler", http.StatusInternalServerError)
		return
	}

	result, errBody, status := handler(n)
	if status != 0 {
		http.Error(w, "unavailable", status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if errBody != "" {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":%s}`, req.ID, errBody)
		return
	}
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, result)
}

func dialFake(t *testing.T, f *fakeRPC) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	client, err := Dial(context.Background(), "test", srv.URL, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(client.Close)

	client.backoff = Backoff{Initial: time.Millisecond, Max: 4 * time.Millisecond, MaxAttempts: 5}
	return client
}

func TestBlockNumberRetriesOn503(t *testing.T) {
	f := newFakeRPC()
	f.handlers["eth_blockNumber"] = func(n int) (string, string, int) {
		if n < 2 {
			return "", "", http.StatusServiceUnavailable
		}
		return `"0x6e"`, "", 0
	}

	client := dialFake(t, f)

	head, err := client.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("block number: %v", err)
	}
	if head != 110 {
		t.Fatalf("head: got %d, want 110", head)
	}
	if got := f.callCount("eth_blockNumber"); got != 3 {
		t.Fatalf("attempts: got %d, want 3", got)
	}
}

func TestBlockReceiptsProbeFallsBackToAlchemy(t *testing.T) {
	f := newFakeRPC()
	f.handlers["eth_getBlockReceipts"] = func(n int) (string, string, int) {
		return "", `{"code":-32601,"message":"the method eth_getBlockReceipts does not exist/is not available"}`, 0
	}
	f.handlers["alchemy_getTransactionReceipts"] = func(n int) (string, string, int) {
		return `{"receipts":[{"transactionHash":"0x00000000000000000000000000000000000000000000000000000000000000aa","from":"0x1111111111111111111111111111111111111111","to":"0x2222222222222222222222222222222222222222","gasUsed":"0x5208","status":"0x1","logs":[]}]}`, "", 0
	}

	client := dialFake(t, f)

	receipts, err := client.BlockReceipts(context.Background(), 42)
	if err != nil {
		t.Fatalf("block receipts: %v", err)
	}
	if len(receipts) != 1 {
		t.Fatalf("receipts: got %d, want 1", len(receipts))
	}
	if receipts[0].GasUsed != 21000 {
		t.Fatalf("gas used: got %d", receipts[0].GasUsed)
	}

	// Second call reuses the probed method.
	if _, err := client.BlockReceipts(context.Background(), 43); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got := f.callCount("eth_getBlockReceipts"); got != 1 {
		t.Fatalf("standard method probed %d times, want 1", got)
	}
	if got := f.callCount("alchemy_getTransactionReceipts"); got != 2 {
		t.Fatalf("alchemy calls: got %d, want 2", got)
	}
}

func TestTxValues(t *testing.T) {
	f := newFakeRPC()
	f.handlers["eth_getBlockByNumber"] = func(n int) (string, string, int) {
		return `{"number":"0x64","transactions":[
			{"hash":"0x00000000000000000000000000000000000000000000000000000000000000aa","value":"0xde0b6b3a7640000"},
			{"hash":"0x00000000000000000000000000000000000000000000000000000000000000bb","value":"0x0"}
		]}`, "", 0
	}

	client := dialFake(t, f)

	values, err := client.TxValues(context.Background(), 100)
	if err != nil {
		t.Fatalf("tx values: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("values: got %d entries", len(values))
	}
	for hash, v := range values {
		if hash[31] == 0xaa && v.String() != "1000000000000000000" {
			t.Fatalf("value mismatch: %s", v)
		}
	}
}

type testRPCError struct {
	code int
	msg  string
}

func (e testRPCError) Error() string  { return e.msg }
func (e testRPCError) ErrorCode() int { return e.code }

func TestTransientClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"http 503", rpc.HTTPError{StatusCode: 503}, true},
		{"http 429", rpc.HTTPError{StatusCode: 429}, true},
		{"http 400", rpc.HTTPError{StatusCode: 400}, false},
		{"method not found", testRPCError{code: -32601, msg: "method not found"}, false},
		{"rate limited", testRPCError{code: -32005, msg: "exceeded"}, true},
		{"app error", testRPCError{code: 3, msg: "execution reverted"}, false},
		{"network", fmt.Errorf("connection reset by peer"), true},
	}

	for _, tc := range cases {
		if got := Transient(tc.err); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	b := DefaultBackoff()
	for attempt := 0; attempt < 10; attempt++ {
		d := b.Delay(attempt)
		if d < b.Initial/2 || d > b.Max {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}
