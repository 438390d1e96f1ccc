package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/Ktl-XV/account-monitor/internal/extract"
	"github.com/Ktl-XV/account-monitor/internal/model"
)

type headResponse struct {
	head uint64
	err  error
}

type fakeHead struct {
	mu        sync.Mutex
	responses []headResponse
}

func (f *fakeHead) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp.head, resp.err
}

type extractCall struct {
	from, to uint64
}

type fakeExtractor struct {
	mu     sync.Mutex
	calls  []extractCall
	events map[uint64][]model.TransferEvent // keyed by range start
	errs   int                              // fail this many leading calls
}

func (f *fakeExtractor) Extract(_ context.Context, fromBlock, toBlock uint64) ([]model.TransferEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, extractCall{from: fromBlock, to: toBlock})
	if f.errs > 0 {
		f.errs--
		return nil, fmt.Errorf("rpc 503")
	}
	return f.events[fromBlock], nil
}

func (f *fakeExtractor) callsSnapshot() []extractCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]extractCall(nil), f.calls...)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (f *fakeNotifier) Send(_ context.Context, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) sentSnapshot() []model.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Notification(nil), f.sent...)
}

func fastChain(filter model.SpamFilterLevel) model.Chain {
	chain := testChain(filter)
	chain.BlockTime = time.Millisecond
	return chain
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached before deadline")
}

func watchedEvent(block uint64, tx byte) model.TransferEvent {
	contract := usdc
	return model.TransferEvent{
		ChainKey:    "ETH",
		BlockNumber: block,
		TxHash:      common.BytesToHash([]byte{tx}),
		Kind:        model.KindERC20,
		From:        outsider,
		To:          watched,
		HasParties:  true,
		Value:       big.NewInt(1),
		Token:       &contract,
	}
}

func TestPipelineRecoversFromOutageInOneBatch(t *testing.T) {
	// Cursor seeds at 99, the head poll fails twice, then the head is 110:
	// the accumulated blocks arrive as a single [100, 110] extraction.
	head := &fakeHead{responses: []headResponse{
		{head: 99},
		{err: fmt.Errorf("503 service unavailable")},
		{err: fmt.Errorf("503 service unavailable")},
		{head: 110},
	}}
	ex := &fakeExtractor{events: map[uint64][]model.TransferEvent{}}
	notifier := &fakeNotifier{}

	m := newTestMatcher(model.SpamFilterNone, testRegistry())
	p := NewPipeline(fastChain(model.SpamFilterNone), head, ex, m, notifier, zap.NewNop(), 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	waitFor(t, func() bool { return len(ex.callsSnapshot()) >= 1 })
	cancel()
	<-done

	calls := ex.callsSnapshot()
	if calls[0].from != 100 || calls[0].to != 110 {
		t.Fatalf("first extraction: got [%d, %d], want [100, 110]", calls[0].from, calls[0].to)
	}
}

func TestPipelineDoesNotAdvancePastFailedRange(t *testing.T) {
	head := &fakeHead{responses: []headResponse{
		{head: 99},
		{head: 105},
	}}
	ex := &fakeExtractor{
		errs: 1,
		events: map[uint64][]model.TransferEvent{
			100: {watchedEvent(100, 0x01)},
		},
	}
	notifier := &fakeNotifier{}

	m := newTestMatcher(model.SpamFilterNone, testRegistry())
	p := NewPipeline(fastChain(model.SpamFilterNone), head, ex, m, notifier, zap.NewNop(), 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	waitFor(t, func() bool { return len(ex.callsSnapshot()) >= 2 })
	cancel()
	<-done

	calls := ex.callsSnapshot()
	if calls[0].from != 100 || calls[0].to != 105 {
		t.Fatalf("first range: [%d, %d]", calls[0].from, calls[0].to)
	}
	// The failed range is retried verbatim, not skipped.
	if calls[1].from != 100 || calls[1].to != 105 {
		t.Fatalf("retried range: got [%d, %d], want [100, 105]", calls[1].from, calls[1].to)
	}
}

func TestPipelineNotificationsOrderedByBlock(t *testing.T) {
	head := &fakeHead{responses: []headResponse{
		{head: 99},
		{head: 105},
	}}
	ex := &fakeExtractor{events: map[uint64][]model.TransferEvent{
		100: {
			watchedEvent(100, 0x01),
			watchedEvent(103, 0x02),
			watchedEvent(105, 0x03),
		},
	}}
	notifier := &fakeNotifier{}

	m := newTestMatcher(model.SpamFilterNone, testRegistry())
	p := NewPipeline(fastChain(model.SpamFilterNone), head, ex, m, notifier, zap.NewNop(), 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	waitFor(t, func() bool { return len(notifier.sentSnapshot()) >= 3 })
	cancel()
	<-done

	sent := notifier.sentSnapshot()
	if len(sent) != 3 {
		t.Fatalf("notifications: got %d, want 3", len(sent))
	}
	wantTx := []byte{0x01, 0x02, 0x03}
	for i, n := range sent {
		if n.TxHash != common.BytesToHash([]byte{wantTx[i]}) {
			t.Fatalf("notification %d out of order: %s", i, n.TxHash.Hex())
		}
	}
}

func TestPipelineClampsEventsRange(t *testing.T) {
	head := &fakeHead{responses: []headResponse{
		{head: 0},
		{head: 500},
	}}
	ex := &fakeExtractor{events: map[uint64][]model.TransferEvent{}}
	notifier := &fakeNotifier{}

	m := newTestMatcher(model.SpamFilterNone, testRegistry())
	p := NewPipeline(fastChain(model.SpamFilterNone), head, ex, m, notifier, zap.NewNop(), DefaultMaxBlockRange, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	waitFor(t, func() bool { return len(ex.callsSnapshot()) >= 1 })
	cancel()
	<-done

	calls := ex.callsSnapshot()
	if calls[0].from != 1 || calls[0].to != 100 {
		t.Fatalf("clamped range: got [%d, %d], want [1, 100]", calls[0].from, calls[0].to)
	}
}

func TestPipelineDebugBlockExtractsOnceAndExits(t *testing.T) {
	block := uint64(19_000_000)
	ex := &fakeExtractor{events: map[uint64][]model.TransferEvent{
		block: {watchedEvent(block, 0x07)},
	}}
	notifier := &fakeNotifier{}

	m := newTestMatcher(model.SpamFilterNone, testRegistry())
	p := NewPipeline(fastChain(model.SpamFilterNone), &fakeHead{responses: []headResponse{{head: block}}}, ex, m, notifier, zap.NewNop(), 0, &block)

	err := p.Run(context.Background())
	if !errors.Is(err, ErrDebugDone) {
		t.Fatalf("debug run: got %v, want ErrDebugDone", err)
	}

	calls := ex.callsSnapshot()
	if len(calls) != 1 || calls[0].from != block || calls[0].to != block {
		t.Fatalf("debug extraction calls: %+v", calls)
	}
	if len(notifier.sentSnapshot()) != 1 {
		t.Fatalf("debug notifications: got %d, want 1", len(notifier.sentSnapshot()))
	}
}

func TestPipelineDebugBlockNoMatchStillExits(t *testing.T) {
	block := uint64(42)
	ex := &fakeExtractor{events: map[uint64][]model.TransferEvent{}}
	notifier := &fakeNotifier{}

	m := newTestMatcher(model.SpamFilterNone, testRegistry())
	p := NewPipeline(fastChain(model.SpamFilterNone), &fakeHead{responses: []headResponse{{head: block}}}, ex, m, notifier, zap.NewNop(), 0, &block)

	if err := p.Run(context.Background()); !errors.Is(err, ErrDebugDone) {
		t.Fatalf("no-match debug run: got %v, want ErrDebugDone", err)
	}
	if len(notifier.sentSnapshot()) != 0 {
		t.Fatalf("expected no notifications")
	}
}

// recordingLogSource captures everything an Events-mode extraction would
// send over the wire.
type recordingLogSource struct {
	mu      sync.Mutex
	queries [][]common.Hash
}

func (r *recordingLogSource) TransferLogs(_ context.Context, _, _ uint64, topic0 []common.Hash) ([]types.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, append([]common.Hash(nil), topic0...))
	return nil, nil
}

func TestPipelineNeverSendsWatchedAddressesToRPC(t *testing.T) {
	source := &recordingLogSource{}
	decoder, err := extract.NewDecoder("ETH", zap.NewNop())
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	ex := extract.NewEventsExtractor(source, decoder)

	head := &fakeHead{responses: []headResponse{
		{head: 99},
		{head: 101},
	}}
	notifier := &fakeNotifier{}
	m := newTestMatcher(model.SpamFilterNone, testRegistry())
	p := NewPipeline(fastChain(model.SpamFilterNone), head, ex, m, notifier, zap.NewNop(), DefaultMaxBlockRange, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	waitFor(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return len(source.queries) >= 1
	})
	cancel()
	<-done

	source.mu.Lock()
	defer source.mu.Unlock()
	for _, topics := range source.queries {
		for _, topic := range topics {
			if bytes.Contains(topic.Bytes(), watched.Bytes()) {
				t.Fatalf("watched address leaked into RPC query: %s", topic.Hex())
			}
		}
	}
}
