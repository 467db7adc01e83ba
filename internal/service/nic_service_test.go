package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetkit/napi/internal/alloc"
	"github.com/fleetkit/napi/internal/audit"
	"github.com/fleetkit/napi/internal/domain"
	"github.com/fleetkit/napi/internal/netreg"
	"github.com/fleetkit/napi/internal/store"
)

func testRegistry(t *testing.T) *netreg.Registry {
	t.Helper()
	reg := netreg.Empty()
	start, err := domain.ParseAddress("10.0.0.10")
	require.NoError(t, err)
	end, err := domain.ParseAddress("10.0.0.12")
	require.NoError(t, err)
	net := &domain.LogicalNetwork{UUID: "net-1", Family: domain.FamilyV4, Subnet: "10.0.0.0/24", StartIP: start, EndIP: end}
	reg.Put(net)
	return reg
}

func newTestService(t *testing.T) *NICService {
	t.Helper()
	return New(store.NewMemory(), alloc.Config{MacOUI: 0x90b8d0, MacRetries: 64}, testRegistry(t), audit.NewStdoutAuditor())
}

func TestNICService_CreateWithNetworkUUID(t *testing.T) {
	svc := newTestService(t)
	actor := domain.Actor{OwnerUUID: "owner-1"}

	nic, err := svc.Create(context.Background(), actor, CreateRequest{
		NetworkUUID:   "net-1",
		BelongsToUUID: "vm-1",
		BelongsToType: domain.BelongsToZone,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x90b8d0), nic.MAC.OUI())
	require.NotNil(t, nic.IPAddress)
}

func TestNICService_CreateUnknownNetworkFails(t *testing.T) {
	svc := newTestService(t)
	actor := domain.Actor{OwnerUUID: "owner-1"}

	_, err := svc.Create(context.Background(), actor, CreateRequest{NetworkUUID: "missing", BelongsToUUID: "vm-1"})
	require.Error(t, err)
	derr, ok := err.(*domain.Error)
	require.True(t, ok)
	assert.Equal(t, domain.ErrInvalidParams, derr.Code)
}

func TestNICService_GetEnforcesOwnership(t *testing.T) {
	svc := newTestService(t)
	owner := domain.Actor{OwnerUUID: "owner-1"}

	nic, err := svc.Create(context.Background(), owner, CreateRequest{
		NetworkUUID:   "net-1",
		BelongsToUUID: "vm-1",
		BelongsToType: domain.BelongsToZone,
		NICParams:     alloc.NICParams{CheckOwner: true},
	})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), domain.Actor{OwnerUUID: "owner-2"}, nic.MAC)
	require.Error(t, err)
	derr, ok := err.(*domain.Error)
	require.True(t, ok)
	assert.Equal(t, domain.ErrForbidden, derr.Code)

	got, err := svc.Get(context.Background(), owner, nic.MAC)
	require.NoError(t, err)
	assert.Equal(t, nic.MAC, got.MAC)

	admin := domain.Actor{IsAdmin: true}
	got, err = svc.Get(context.Background(), admin, nic.MAC)
	require.NoError(t, err)
	assert.Equal(t, nic.MAC, got.MAC)
}

func TestNICService_DeleteFreesIP(t *testing.T) {
	svc := newTestService(t)
	actor := domain.Actor{OwnerUUID: "owner-1"}

	nic, err := svc.Create(context.Background(), actor, CreateRequest{
		NetworkUUID:   "net-1",
		BelongsToUUID: "vm-1",
		BelongsToType: domain.BelongsToZone,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), actor, nic.MAC))

	_, err = svc.Get(context.Background(), actor, nic.MAC)
	require.Error(t, err)
	derr, ok := err.(*domain.Error)
	require.True(t, ok)
	assert.Equal(t, domain.ErrNotFound, derr.Code)
}

func TestNICService_UpdatePreservesMAC(t *testing.T) {
	svc := newTestService(t)
	actor := domain.Actor{OwnerUUID: "owner-1"}

	nic, err := svc.Create(context.Background(), actor, CreateRequest{
		NetworkUUID:   "net-1",
		BelongsToUUID: "vm-1",
		BelongsToType: domain.BelongsToZone,
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), actor, nic.MAC, UpdateRequest{
		NICParams: alloc.NICParams{State: domain.NICStateRunning},
	})
	require.NoError(t, err)
	assert.Equal(t, nic.MAC, updated.MAC)
	assert.Equal(t, domain.NICStateRunning, updated.State)
}
