// Package service orchestrates the allocation engine (internal/alloc) behind
// HTTP-shaped request/response types: resolving network_uuid/network_pool
// references via internal/netreg, enforcing ownership via internal/rbac,
// emitting audit events, and recording provisioning metrics.
package service

import (
	"context"
	"time"

	"github.com/fleetkit/napi/internal/alloc"
	"github.com/fleetkit/napi/internal/audit"
	"github.com/fleetkit/napi/internal/domain"
	"github.com/fleetkit/napi/internal/metrics"
	"github.com/fleetkit/napi/internal/netreg"
	"github.com/fleetkit/napi/internal/rbac"
	"github.com/fleetkit/napi/internal/store"
)

// CreateRequest is the validated, caller-supplied shape of a POST /v1/nics
// body after JSON binding. Exactly one of NetworkUUID, NetworkPool, or IP
// (with NetworkUUID) selects how the address is chosen; MAC is optional.
type CreateRequest struct {
	NetworkUUID string
	NetworkPool string
	IP          string
	MAC         string

	BelongsToUUID string
	BelongsToType domain.BelongsToType

	alloc.NICParams
}

// UpdateRequest mirrors CreateRequest's mutable-field subset for PUT
// /v1/nics/:mac; nil and zero-value string, int and slice fields mean
// "leave unchanged", while the boolean fields of NICParams are always
// applied as given (an omitted flag is written as false).
type UpdateRequest struct {
	NetworkUUID *string
	IP          *string

	alloc.NICParams
}

// NICService is the request-scoped entry point handlers call; it is safe
// for concurrent use across requests (all mutable state lives in the
// per-call RequestContext the allocation engine builds).
type NICService struct {
	Store   store.Store
	Config  alloc.Config
	Networks *netreg.Registry
	Audit   audit.Auditor
}

// New constructs a NICService from its collaborators.
func New(st store.Store, cfg alloc.Config, networks *netreg.Registry, auditor audit.Auditor) *NICService {
	return &NICService{Store: st, Config: cfg, Networks: networks, Audit: auditor}
}

func (s *NICService) newRequestContext(ctx context.Context, actor domain.Actor, belongsTo string, belongsToType domain.BelongsToType) *alloc.RequestContext {
	return &alloc.RequestContext{
		Ctx:           ctx,
		Store:         s.Store,
		Config:        s.Config,
		OwnerUUID:     actor.OwnerUUID,
		BelongsToUUID: belongsTo,
		BelongsToType: belongsToType,
		NetworkLookup: s.Networks.Lookup,
	}
}

// Create provisions a new NIC (and, usually, a bound IP) on behalf of actor.
func (s *NICService) Create(ctx context.Context, actor domain.Actor, req CreateRequest) (*domain.NICRecord, error) {
	start := time.Now()
	rc := s.newRequestContext(ctx, actor, req.BelongsToUUID, req.BelongsToType)

	provisioners, err := s.buildProvisioners(req)
	if err != nil {
		metrics.IncProvisionAttempt("rejected")
		return nil, err
	}

	nicFn, err := s.buildNICSelector(req)
	if err != nil {
		metrics.IncProvisionAttempt("rejected")
		return nil, err
	}

	nic, err := alloc.NICAndIP(rc, alloc.Request{
		Provisioners: provisioners,
		NICFn:        nicFn,
		NICParams:    req.NICParams,
	})
	metrics.ObserveProvisionDuration(time.Since(start).Seconds())
	if err != nil {
		s.recordConflict(err)
		metrics.IncProvisionAttempt(outcomeFor(err))
		return nil, err
	}
	metrics.IncProvisionAttempt("ok")

	s.Audit.Event(ctx, audit.ActionNICProvisioned, actor.OwnerUUID, nic.Key(), map[string]any{
		"belongs_to_uuid": nic.BelongsToUUID,
		"network_uuid":    req.NetworkUUID,
	})
	if nic.IPAddress != nil {
		s.Audit.Event(ctx, audit.ActionIPReserved, actor.OwnerUUID, nic.IPAddress.String(), map[string]any{"mac": nic.MAC.String()})
	}
	return nic, nil
}

// Get loads the current NIC view, enforcing the ownership rule before
// returning it to the caller.
func (s *NICService) Get(ctx context.Context, actor domain.Actor, mac domain.MAC) (*domain.NICRecord, error) {
	rc := s.newRequestContext(ctx, actor, "", "")
	nic, found, err := rc.GetNIC(mac)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NewStopError(domain.ErrNotFound, "nic not found", map[string]string{"mac": mac.String()})
	}
	if !rbac.CanOperateOnNIC(actor, nic) {
		return nil, domain.NewStopError(domain.ErrForbidden, "not authorized to view this nic", nil)
	}
	return nic, nil
}

// Update applies a validated partial update to an existing NIC.
func (s *NICService) Update(ctx context.Context, actor domain.Actor, mac domain.MAC, req UpdateRequest) (*domain.NICRecord, error) {
	start := time.Now()
	rc := s.newRequestContext(ctx, actor, "", "")

	existing, found, err := rc.GetNIC(mac)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NewStopError(domain.ErrNotFound, "nic not found", map[string]string{"mac": mac.String()})
	}
	if !rbac.CanOperateOnNIC(actor, existing) {
		return nil, domain.NewStopError(domain.ErrForbidden, "not authorized to update this nic", nil)
	}
	rc.BelongsToUUID = existing.BelongsToUUID
	rc.BelongsToType = existing.BelongsToType

	params := alloc.UpdateParams{NICParams: mergeNICParams(existing, req.NICParams), Field: "ip"}
	if req.NetworkUUID != nil && req.IP != nil {
		net, ok := s.Networks.Network(*req.NetworkUUID)
		if !ok {
			return nil, domain.NewStopError(domain.ErrInvalidParams, "unknown network_uuid", map[string]string{"field": "network_uuid"})
		}
		addr, err := domain.ParseAddress(*req.IP)
		if err != nil {
			return nil, err
		}
		params.NetworkUUID = req.NetworkUUID
		params.Network = net
		params.IP = &addr
	}

	nic, err := alloc.Update(rc, mac, params)
	metrics.ObserveProvisionDuration(time.Since(start).Seconds())
	if err != nil {
		s.recordConflict(err)
		metrics.IncProvisionAttempt(outcomeFor(err))
		return nil, err
	}
	metrics.IncProvisionAttempt("ok")

	s.Audit.Event(ctx, audit.ActionNICUpdated, actor.OwnerUUID, nic.Key(), nil)
	return nic, nil
}

// Delete removes a NIC and unassigns any IP it still owns.
func (s *NICService) Delete(ctx context.Context, actor domain.Actor, mac domain.MAC) error {
	rc := s.newRequestContext(ctx, actor, "", "")

	existing, found, err := rc.GetNIC(mac)
	if err != nil {
		return err
	}
	if !found {
		return domain.NewStopError(domain.ErrNotFound, "nic not found", map[string]string{"mac": mac.String()})
	}
	if !rbac.CanOperateOnNIC(actor, existing) {
		return domain.NewStopError(domain.ErrForbidden, "not authorized to delete this nic", nil)
	}

	if err := alloc.Delete(rc, mac); err != nil {
		metrics.IncProvisionAttempt(outcomeFor(err))
		return err
	}
	metrics.IncProvisionAttempt("ok")

	s.Audit.Event(ctx, audit.ActionNICDeleted, actor.OwnerUUID, mac.String(), nil)
	if existing.IPAddress != nil {
		s.Audit.Event(ctx, audit.ActionIPReleased, actor.OwnerUUID, existing.IPAddress.String(), nil)
	}
	return nil
}

func mergeNICParams(existing *domain.NICRecord, updates alloc.NICParams) alloc.NICParams {
	merged := alloc.NICParams{
		Primary:                existing.Primary,
		State:                  existing.State,
		Model:                  existing.Model,
		VLANID:                 existing.VLANID,
		NICTag:                 existing.NICTag,
		NICTagsProvided:        existing.NICTagsProvided,
		AllowDHCPSpoofing:      existing.AllowDHCPSpoofing,
		AllowIPSpoofing:        existing.AllowIPSpoofing,
		AllowMACSpoofing:       existing.AllowMACSpoofing,
		AllowRestrictedTraffic: existing.AllowRestrictedTraffic,
		AllowUnfilteredPromisc: existing.AllowUnfilteredPromisc,
		CnUUID:                 existing.CnUUID,
		Underlay:               existing.Underlay,
		CheckOwner:             existing.CheckOwner,
	}
	if updates.State != "" {
		merged.State = updates.State
	}
	if updates.Model != "" {
		merged.Model = updates.Model
	}
	if updates.VLANID != 0 {
		merged.VLANID = updates.VLANID
	}
	if updates.NICTag != "" {
		merged.NICTag = updates.NICTag
	}
	if updates.NICTagsProvided != nil {
		merged.NICTagsProvided = updates.NICTagsProvided
	}
	if updates.CnUUID != "" {
		merged.CnUUID = updates.CnUUID
	}
	merged.Primary = updates.Primary
	merged.AllowDHCPSpoofing = updates.AllowDHCPSpoofing
	merged.AllowIPSpoofing = updates.AllowIPSpoofing
	merged.AllowMACSpoofing = updates.AllowMACSpoofing
	merged.AllowRestrictedTraffic = updates.AllowRestrictedTraffic
	merged.AllowUnfilteredPromisc = updates.AllowUnfilteredPromisc
	merged.Underlay = updates.Underlay
	merged.CheckOwner = updates.CheckOwner
	return merged
}

func (s *NICService) buildProvisioners(req CreateRequest) ([]alloc.Provisioner, error) {
	switch {
	case req.IP != "" && req.NetworkUUID != "":
		net, ok := s.Networks.Network(req.NetworkUUID)
		if !ok {
			return nil, domain.NewStopError(domain.ErrInvalidParams, "unknown network_uuid", map[string]string{"field": "network_uuid"})
		}
		addr, err := domain.ParseAddress(req.IP)
		if err != nil {
			return nil, err
		}
		return []alloc.Provisioner{&alloc.IPProvision{NetworkUUID: req.NetworkUUID, Network: net, IP: addr, Field: "ip"}}, nil

	case req.NetworkUUID != "":
		net, ok := s.Networks.Network(req.NetworkUUID)
		if !ok {
			return nil, domain.NewStopError(domain.ErrInvalidParams, "unknown network_uuid", map[string]string{"field": "network_uuid"})
		}
		return []alloc.Provisioner{&alloc.NetworkProvision{Network: net}}, nil

	case req.NetworkPool != "":
		members, ok := s.Networks.Pool(req.NetworkPool)
		if !ok {
			return nil, domain.NewStopError(domain.ErrInvalidParams, "unknown network_pool", map[string]string{"field": "network_pool"})
		}
		return []alloc.Provisioner{&alloc.NetworkPoolProvision{Field: "network_pool", Networks: members}}, nil

	default:
		// No address requested: a bare NIC (e.g. underlay-only) with no
		// bound IP. The driver tolerates an empty provisioner list.
		return nil, nil
	}
}

func (s *NICService) buildNICSelector(req CreateRequest) (alloc.NICSelector, error) {
	if req.MAC == "" {
		return &alloc.RandomMAC{}, nil
	}
	mac, err := domain.ParseMAC(req.MAC)
	if err != nil {
		return nil, err
	}
	return &alloc.MacSupplied{MAC: mac}, nil
}

// recordConflict maps a store-level conflict surfaced through the
// allocation driver onto the store_conflicts_total metric.
func (s *NICService) recordConflict(err error) {
	ce, ok := err.(*store.ConflictError)
	if !ok {
		return
	}
	switch ce.Kind {
	case store.KindVersionConflict:
		metrics.IncStoreConflict("version")
	case store.KindUniqueConflict:
		metrics.IncStoreConflict("unique")
	}
	metrics.IncProvisionRetry()
}

func outcomeFor(err error) string {
	if derr, ok := err.(*domain.Error); ok && derr.Stop {
		return "conflict"
	}
	return "fatal"
}
