package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeService struct {
	mu          sync.Mutex
	initCalls   int
	startCalls  int
	stopCalls   int
	initErr     error
	startErr    error
	healthErr   error
	startOrder  *[]string
	name        string
}

func (f *fakeService) Init(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return f.initErr
}

func (f *fakeService) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startOrder != nil {
		*f.startOrder = append(*f.startOrder, f.name)
	}
	return f.startErr
}

func (f *fakeService) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeService) HealthCheck(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthErr
}

func TestStartAllRespectsDependencyOrder(t *testing.T) {
	sup := New(NewRegistry(), nil)
	var order []string

	storageSvc := &fakeService{name: "storage", startOrder: &order}
	trustSvc := &fakeService{name: "trust", startOrder: &order}
	routerSvc := &fakeService{name: "router", startOrder: &order}

	require.NoError(t, sup.Register(Descriptor{Name: "storage", AutoStart: Always}, storageSvc))
	require.NoError(t, sup.Register(Descriptor{Name: "trust", DependsOn: []string{"storage"}, AutoStart: Always}, trustSvc))
	require.NoError(t, sup.Register(Descriptor{Name: "router", DependsOn: []string{"trust"}, AutoStart: Always}, routerSvc))

	require.NoError(t, sup.StartAll(context.Background()))

	require.Equal(t, []string{"storage", "trust", "router"}, order)

	st, ok := sup.State("router")
	require.True(t, ok)
	require.Equal(t, StateRunning, st)
}

func TestStartAllSkipsOnDemandServices(t *testing.T) {
	sup := New(NewRegistry(), nil)
	svc := &fakeService{name: "control"}
	require.NoError(t, sup.Register(Descriptor{Name: "control", AutoStart: OnDemand}, svc))

	require.NoError(t, sup.StartAll(context.Background()))

	st, _ := sup.State("control")
	require.Equal(t, StateRegistered, st)

	require.NoError(t, sup.StartOne(context.Background(), "control"))
	st, _ = sup.State("control")
	require.Equal(t, StateRunning, st)
}

func TestStopAllReversesOrder(t *testing.T) {
	sup := New(NewRegistry(), nil)
	var order []string

	a := &fakeService{name: "a"}
	b := &fakeService{name: "b"}
	require.NoError(t, sup.Register(Descriptor{Name: "a", AutoStart: Always}, a))
	require.NoError(t, sup.Register(Descriptor{Name: "b", DependsOn: []string{"a"}, AutoStart: Always}, b))
	require.NoError(t, sup.StartAll(context.Background()))

	sup.Events().Subscribe(func(ev Event) {
		if ev.Kind == "stop" {
			order = append(order, ev.Service)
		}
	})
	require.NoError(t, sup.StopAll(context.Background()))

	require.Equal(t, []string{"b", "a"}, order)
}

func TestDependencyCycleIsRejected(t *testing.T) {
	sup := New(NewRegistry(), nil)
	require.NoError(t, sup.Register(Descriptor{Name: "a", DependsOn: []string{"b"}, AutoStart: Always}, &fakeService{name: "a"}))
	require.NoError(t, sup.Register(Descriptor{Name: "b", DependsOn: []string{"a"}, AutoStart: Always}, &fakeService{name: "b"}))

	err := sup.StartAll(context.Background())
	require.ErrorIs(t, err, ErrCycleDetected)
}

func TestUnknownDependencyIsRejected(t *testing.T) {
	sup := New(NewRegistry(), nil)
	require.NoError(t, sup.Register(Descriptor{Name: "a", DependsOn: []string{"ghost"}, AutoStart: Always}, &fakeService{name: "a"}))

	err := sup.StartAll(context.Background())
	require.ErrorIs(t, err, ErrUnknownDependency)
}

func TestStartErrorTransitionsToCrashed(t *testing.T) {
	sup := New(NewRegistry(), nil)
	svc := &fakeService{name: "flaky", startErr: errors.New("boom")}
	require.NoError(t, sup.Register(Descriptor{Name: "flaky", AutoStart: OnDemand}, svc))

	err := sup.StartOne(context.Background(), "flaky")
	require.Error(t, err)

	st, _ := sup.State("flaky")
	require.Equal(t, StateCrashed, st)
}

func TestHealthCheckFailuresCrashAndRestartService(t *testing.T) {
	sup := New(NewRegistry(), nil)
	svc := &fakeService{name: "probed"}
	require.NoError(t, sup.Register(Descriptor{
		Name:         "probed",
		AutoStart:    Always,
		HealthPeriod: 5 * time.Millisecond,
		CrashAfter:   2,
	}, svc))
	require.NoError(t, sup.StartAll(context.Background()))

	var crashed bool
	sup.Events().Subscribe(func(ev Event) {
		if ev.Kind == "crashed" && ev.Service == "probed" {
			crashed = true
		}
	})

	svc.mu.Lock()
	svc.healthErr = errors.New("unreachable")
	svc.mu.Unlock()

	require.Eventually(t, func() bool { return crashed }, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		st, _ := sup.State("probed")
		return st == StateRunning
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegistryOneShotRegistration(t *testing.T) {
	reg := NewRegistry()
	reg.Register("router", 42)

	ref, ok := reg.Lookup("router")
	require.True(t, ok)
	require.Equal(t, 42, ref)

	require.Panics(t, func() { reg.Register("router", 7) })
}
