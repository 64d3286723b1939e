package znp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/config"
	"github.com/go-zigbee/znp/frame"
	"github.com/go-zigbee/znp/types"
)

// fakePort is a Port driven entirely in-process: pushed frames stand in for
// whatever the UART would have decoded, and written frames are recorded for
// assertions instead of reaching a real coprocessor.
type fakePort struct {
	frames chan frame.General
	closed chan struct{}

	mu        sync.Mutex
	written   []frame.Transport
	closeOnce sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		frames: make(chan frame.General, 16),
		closed: make(chan struct{}),
	}
}

func (p *fakePort) Frames() <-chan frame.General { return p.frames }
func (p *fakePort) Closed() <-chan struct{}       { return p.closed }

func (p *fakePort) Write(t frame.Transport) error {
	p.mu.Lock()
	p.written = append(p.written, t)
	p.mu.Unlock()
	return nil
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) writes() []frame.Transport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]frame.Transport(nil), p.written...)
}

// push simulates the read loop decoding cmd off the wire.
func (p *fakePort) push(cmd commands.Command) {
	p.frames <- frame.General{Header: cmd.Header(), Payload: cmd.Encode()}
}

func testConfig() config.Config {
	return config.Config{
		SREQTimeout: 200 * time.Millisecond,
		ARSPTimeout: 200 * time.Millisecond,
	}
}

func newTestZNP(t *testing.T) (*ZNP, *fakePort) {
	t.Helper()
	port := newFakePort()
	z := New(port, testConfig(), nil)
	t.Cleanup(func() { _ = z.Close() })
	return z, port
}

// TestDispatch_OneShotListenersResolveExactlyOnceInFIFOOrder covers T6: two
// one-shot listeners registered for the same pattern, fed one matching
// frame, must leave exactly one resolved — the first registered.
func TestDispatch_OneShotListenersResolveExactlyOnceInFIFOOrder(t *testing.T) {
	z, port := newTestZNP(t)

	pattern := Match[commands.PingRsp](commands.PingRspPattern{})
	first := z.WaitForResponses(pattern)
	second := z.WaitForResponses(pattern)

	port.push(commands.PingRsp{Capabilities: 0x1234})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rsp, err := first.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, commands.PingRsp{Capabilities: 0x1234}, rsp)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	_, err = second.Wait(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second one-shot listener must still be pending")
}

// TestWaitForResponses_CancelBeforeMatchRemovesListener covers T7: a
// listener whose context is cancelled before any matching frame arrives is
// removed from the dispatch table entirely.
func TestWaitForResponses_CancelBeforeMatchRemovesListener(t *testing.T) {
	z, _ := newTestZNP(t)

	waiter := z.WaitForResponses(Match[commands.PingRsp](commands.PingRspPattern{}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := waiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	z.mu.Lock()
	defer z.mu.Unlock()
	for header, bucket := range z.listeners {
		assert.Empty(t, bucket, "listener table still has a bucket for %s after cancellation", header)
	}
}

// TestClose_ClearsListenersAndCancelsWaiters covers T8: after Close, the
// listener table is empty and every previously pending waiter observes
// cancellation rather than hanging forever.
func TestClose_ClearsListenersAndCancelsWaiters(t *testing.T) {
	port := newFakePort()
	z := New(port, testConfig(), nil)

	waiter := z.WaitForResponses(Match[commands.PingRsp](commands.PingRspPattern{}))

	require.NoError(t, z.Close())

	z.mu.Lock()
	assert.Empty(t, z.listeners)
	z.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := waiter.Wait(ctx)
	assert.Error(t, err)
}

// TestRequest_SerializesConcurrentSREQs covers T11: two goroutines issuing
// Request concurrently never observe the SRSP meant for the other — the
// sreqMu lock keeps exactly one SREQ in flight at a time.
func TestRequest_SerializesConcurrentSREQs(t *testing.T) {
	z, port := newTestZNP(t)

	var wg sync.WaitGroup
	results := make([]commands.Command, 2)
	errs := make([]error, 2)

	start := make(chan struct{})
	wg.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer wg.Done()
			<-start
			rsp, err := z.Request(context.Background(), commands.PingReq{}, Match[commands.PingRsp](commands.PingRspPattern{}))
			results[i] = rsp
			errs[i] = err
		}()
	}
	close(start)

	// Respond to each SREQ as it lands, one at a time: if sreqMu didn't
	// serialize the two callers, both PingReqs could be written before
	// either response is consumed.
	for i := 0; i < 2; i++ {
		require.Eventually(t, func() bool { return len(port.writes()) == i+1 }, time.Second, time.Millisecond)
		port.push(commands.PingRsp{Capabilities: commands.Capabilities(i)})
	}

	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	caps := []commands.Capabilities{
		results[0].(commands.PingRsp).Capabilities,
		results[1].(commands.PingRsp).Capabilities,
	}
	assert.ElementsMatch(t, []commands.Capabilities{0, 1}, caps)
}

// TestRequest_PingRoundTrip is S1: SYS.Ping.Req is written as the exact
// golden bytes FE 00 21 01 20, and its SRSP resolves Request.
func TestRequest_PingRoundTrip(t *testing.T) {
	z, port := newTestZNP(t)

	done := make(chan struct{})
	var rsp commands.Command
	var err error
	go func() {
		rsp, err = z.Request(context.Background(), commands.PingReq{}, Match[commands.PingRsp](commands.PingRspPattern{}))
		close(done)
	}()

	require.Eventually(t, func() bool { return len(port.writes()) == 1 }, time.Second, time.Millisecond)
	encoded, encErr := port.writes()[0].Encode()
	require.NoError(t, encErr)
	assert.Equal(t, []byte{0xFE, 0x00, 0x21, 0x01, 0x20}, encoded)

	port.push(commands.PingRsp{Capabilities: 0})
	<-done
	require.NoError(t, err)
	assert.Equal(t, commands.PingRsp{Capabilities: 0}, rsp)
}

// TestRequest_CommandNotRecognized is S3: the coprocessor answering
// RPCError.CommandNotRecognized in place of the expected SRSP surfaces
// znperrors.ErrCommandNotRecognized rather than timing out.
func TestRequest_CommandNotRecognized(t *testing.T) {
	z, port := newTestZNP(t)

	done := make(chan struct{})
	var err error
	go func() {
		_, err = z.Request(context.Background(), commands.PingReq{}, Match[commands.PingRsp](commands.PingRspPattern{}))
		close(done)
	}()

	require.Eventually(t, func() bool { return len(port.writes()) == 1 }, time.Second, time.Millisecond)
	port.push(commands.CommandNotRecognized{
		ErrorCode:     commands.ErrorCodeInvalidCommandID,
		RequestHeader: commands.PingReq{}.Header(),
	})
	<-done
	require.Error(t, err)
}

// TestRequestCallbackRsp_SameReadSRSPAndAREQ is S4, expressed with a real
// SREQ/AREQ pair: AF.DataRequestExt's SRSP (a StatusRsp) followed
// immediately by its AF.DataConfirm, both pushed before Request's listener
// even has a chance to run, the way a single UART read would deliver them.
func TestRequestCallbackRsp_SameReadSRSPAndAREQ(t *testing.T) {
	z, port := newTestZNP(t)

	req := commands.DataRequestExtReq{
		DstAddrMode: commands.AddrModeNWK,
		DstEndpoint: 1,
		SrcEndpoint: 1,
		ClusterID:   6,
		TSN:         42,
		Data:        []byte{0x01},
	}

	done := make(chan struct{})
	var rsp commands.Command
	var err error
	go func() {
		rsp, err = z.RequestCallbackRsp(context.Background(), req,
			MatchStatusRsp(req.Header().SRSPHeader()),
			Match[commands.DataConfirm](commands.DataConfirmPattern{
				Endpoint: types.Some(req.SrcEndpoint),
				TSN:      types.Some(req.TSN),
			}),
		)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(port.writes()) == 1 }, time.Second, time.Millisecond)

	// commands.StatusRsp decodes through the registry rather than a literal,
	// so the SRSP is pushed as raw (header, payload) bytes the same way a
	// real frame would decode, exactly as onFrame does it.
	srspFrame := frame.General{Header: req.Header().SRSPHeader(), Payload: []byte{byte(commands.StatusSuccess)}}
	confirmFrame := frame.General{Header: commands.DataConfirm{}.Header(), Payload: commands.DataConfirm{
		Endpoint: req.SrcEndpoint, TSN: req.TSN, Status: commands.StatusSuccess,
	}.Encode()}

	port.frames <- srspFrame
	port.frames <- confirmFrame

	<-done
	require.NoError(t, err)
	assert.Equal(t, commands.StatusSuccess, rsp.(commands.DataConfirm).Status)
}
