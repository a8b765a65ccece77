package qmi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CreateService_SendsGetClientIDAndRegistersOnSuccess(t *testing.T) {
	d, _, ft := newTestMuxDevice()

	var gotSvc *Service
	var gotErr error
	d.CreateService(ServiceWDS, func(s *Service, err error) { gotSvc, gotErr = s, err })

	require.Len(t, ft.sent, 1)
	tid := controlTID(ft.sent[0])

	data := buildResultData(t, 0, 0, func(p *Param) {
		require.NoError(t, p.Append(tlvGetClientIDRsp, []byte{ServiceWDS, 7}))
	})
	deliverControlReply(d, tid, data)

	require.NoError(t, gotErr)
	require.NotNil(t, gotSvc)
	assert.Equal(t, uint8(7), gotSvc.ClientID())
	assert.Equal(t, uint8(ServiceWDS), gotSvc.Type())
	assert.Same(t, gotSvc, d.registry[registryKey(ServiceWDS, 7)])
}

func Test_CreateService_PropagatesResultError(t *testing.T) {
	d, _, ft := newTestMuxDevice()

	var gotErr error
	d.CreateService(ServiceWDS, func(s *Service, err error) { gotErr = err })

	tid := controlTID(ft.sent[0])
	data := buildResultData(t, 1, 0x0007, nil)
	deliverControlReply(d, tid, data)

	require.Error(t, gotErr)
	var resErr *ResultError
	require.ErrorAs(t, gotErr, &resErr)
	assert.Equal(t, uint16(0x0007), resErr.Code)
}

func Test_CreateService_TimesOutAndFreesQueuedRequest(t *testing.T) {
	d, sched, _ := newTestMuxDevice()

	var gotErr error
	var called bool
	d.CreateService(ServiceWDS, func(s *Service, err error) { called, gotErr = true, err })

	sched.fireAllTimers()

	require.True(t, called)
	assert.Error(t, gotErr)
	assert.Empty(t, d.queues.awaitingControl)
}

func Test_CreateSharedService_ReusesExistingRegistration(t *testing.T) {
	d, sched, _ := newTestMuxDevice()

	existing := &Service{device: d, typ: ServiceWDS, clientID: 4, refCount: 1}
	d.registry[registryKey(ServiceWDS, 4)] = existing

	var gotSvc *Service
	d.CreateSharedService(ServiceWDS, func(s *Service, err error) {
		require.NoError(t, err)
		gotSvc = s
	})
	sched.flush()

	require.Same(t, existing, gotSvc)
	assert.Equal(t, 2, existing.refCount)
}

func Test_Service_SendEncodesAndRoutesReply(t *testing.T) {
	d, _, ft := newTestMuxDevice()
	svc := &Service{device: d, typ: ServiceWDS, clientID: 5, refCount: 1}
	d.registry[registryKey(ServiceWDS, 5)] = svc

	var gotErr error
	var called bool
	svc.Send(0x20, nil, func(r Result) { called = true; gotErr = r.Err() })

	require.Len(t, ft.sent, 1)
	assert.Equal(t, byte(ServiceWDS), ft.sent[0][4])
	assert.Equal(t, byte(5), ft.sent[0][5])

	tid := serviceTID(ft.sent[0])
	data := buildResultData(t, 0, 0, nil)
	deliverServiceReply(d, ServiceWDS, 5, tid, 0x20, data)

	require.True(t, called)
	assert.NoError(t, gotErr)
}

func Test_Service_CancelRemovesAwaitingRequest(t *testing.T) {
	d, _, ft := newTestMuxDevice()
	svc := &Service{device: d, typ: ServiceWDS, clientID: 5, refCount: 1}
	d.registry[registryKey(ServiceWDS, 5)] = svc

	tid := svc.Send(0x20, nil, func(Result) { t.Fatal("cancelled request must not fire its callback") })
	require.Len(t, ft.sent, 1)

	assert.True(t, svc.Cancel(tid))
	assert.False(t, svc.Cancel(tid), "cancelling twice reports not-found the second time")

	// Delivering a reply for the cancelled tid must be a silent no-op.
	deliverServiceReply(d, ServiceWDS, 5, tid, 0x20, buildResultData(t, 0, 0, nil))
}

func Test_Service_CancelAllRemovesEveryOutstandingRequest(t *testing.T) {
	d, _, _ := newTestMuxDevice()
	svc := &Service{device: d, typ: ServiceWDS, clientID: 5, refCount: 1}
	d.registry[registryKey(ServiceWDS, 5)] = svc

	svc.Send(0x20, nil, func(Result) { t.Fatal("must not fire") })
	svc.Send(0x21, nil, func(Result) { t.Fatal("must not fire") })

	svc.CancelAll()

	assert.Empty(t, d.queues.awaitingService)
	assert.Empty(t, d.queues.pendingWrite)
}

func Test_Service_RegisterAndUnregisterIndication(t *testing.T) {
	d, _, _ := newTestMuxDevice()
	svc := &Service{device: d, typ: ServiceWDS, clientID: 5, refCount: 1}
	d.registry[registryKey(ServiceWDS, 5)] = svc

	var count int
	id := svc.Register(0x30, func(Result) { count++ })

	deliverIndication(d, ServiceWDS, 5, 0x30, nil)
	assert.Equal(t, 1, count)

	svc.Unregister(id)
	deliverIndication(d, ServiceWDS, 5, 0x30, nil)
	assert.Equal(t, 1, count, "unregistered subscription must not fire again")
}

func Test_Service_UnregisterAllRunsDestroyHooks(t *testing.T) {
	d, _, _ := newTestMuxDevice()
	svc := &Service{device: d, typ: ServiceWDS, clientID: 5, refCount: 1}

	var destroyed int
	svc.notifications = append(svc.notifications, &notification{id: 1, destroy: func() { destroyed++ }})
	svc.notifications = append(svc.notifications, &notification{id: 2, destroy: func() { destroyed++ }})

	svc.UnregisterAll()
	assert.Equal(t, 2, destroyed)
	assert.Empty(t, svc.notifications)
}

func Test_Service_Unref_SendsReleaseClientIDOnMux(t *testing.T) {
	d, _, ft := newTestMuxDevice()
	svc := &Service{device: d, typ: ServiceWDS, clientID: 5, refCount: 1}
	d.registry[registryKey(ServiceWDS, 5)] = svc

	svc.Unref()

	require.Len(t, ft.sent, 1)
	_, isRegistered := d.registry[registryKey(ServiceWDS, 5)]
	assert.False(t, isRegistered)
	assert.Equal(t, 1, d.releaseUsers)

	tid := controlTID(ft.sent[0])
	deliverControlReply(d, tid, buildResultData(t, 0, 0, nil))
	assert.Equal(t, 0, d.releaseUsers)
}

func Test_Service_Unref_SharedDecrementsWithoutReleasing(t *testing.T) {
	d, _, ft := newTestMuxDevice()
	svc := &Service{device: d, typ: ServiceWDS, clientID: 5, refCount: 2}
	d.registry[registryKey(ServiceWDS, 5)] = svc

	svc.Unref()

	assert.Empty(t, ft.sent, "refcount above zero must not release the client")
	_, isRegistered := d.registry[registryKey(ServiceWDS, 5)]
	assert.True(t, isRegistered)
}

func Test_Service_Unref_QRTRIsANoopDecrement(t *testing.T) {
	d, _, ft := newTestQRTRDevice(9)
	svc := &Service{device: d, typ: ServiceWDS, clientID: 1, node: 9, port: 100, refCount: 1}
	d.registry[registryKey(ServiceWDS, 1)] = svc

	svc.Unref()

	assert.Empty(t, ft.sent)
	assert.Equal(t, 0, d.releaseUsers)
}
