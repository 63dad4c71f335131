package network

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vishvananda/netlink"
)

// MockCommandExecutor is a mock implementation of CommandExecutor.
// Expectations are set on the command name and arguments; the context is
// not part of the match.
type MockCommandExecutor struct {
	mock.Mock
}

func (m *MockCommandExecutor) RunCommand(ctx context.Context, name string, arg ...string) (string, error) {
	var argsSlice []interface{}
	argsSlice = append(argsSlice, name)
	for _, a := range arg {
		argsSlice = append(argsSlice, a)
	}
	args := m.Called(argsSlice...)
	return args.String(0), args.Error(1)
}

// MockNetlinker is a mock implementation of the Netlinker interface.
type MockNetlinker struct {
	mock.Mock
}

func (m *MockNetlinker) LinkByName(name string) (netlink.Link, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(netlink.Link), args.Error(1)
}

func (m *MockNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	args := m.Called(link, family)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]netlink.Addr), args.Error(1)
}

// MockRouteOps is a mock implementation of RouteOps.
type MockRouteOps struct {
	mock.Mock
	Fam Family
}

func (m *MockRouteOps) Family() Family {
	return m.Fam
}

func (m *MockRouteOps) RoutesMatching(ctx context.Context, dest string) ([]Route, error) {
	args := m.Called(dest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Route), args.Error(1)
}

func (m *MockRouteOps) KernelRoute(ctx context.Context, dest string) (Route, error) {
	args := m.Called(dest)
	return args.Get(0).(Route), args.Error(1)
}

func (m *MockRouteOps) InterfaceFor(ctx context.Context, dest string) (string, error) {
	args := m.Called(dest)
	return args.String(0), args.Error(1)
}

func (m *MockRouteOps) FixDefaultRoute(ctx context.Context, dest, iface string) error {
	args := m.Called(dest, iface)
	return args.Error(0)
}

func (m *MockRouteOps) SuppressDuplicateSubnetRoutes(ctx context.Context, ifaceAddr, iface string) error {
	args := m.Called(ifaceAddr, iface)
	return args.Error(0)
}

func (m *MockRouteOps) InjectHostRoute(ctx context.Context, addr, iface string) error {
	args := m.Called(addr, iface)
	return args.Error(0)
}
