package alloc

import (
	"math/big"
	"math/rand"

	"github.com/fleetkit/napi/internal/domain"
	"github.com/fleetkit/napi/internal/store"
)

// Provisioner selects the next IP candidate for an allocation attempt. All
// three variants share the contract: mutate rc.Batch/rc.IPs, or fail. A
// Provisioner instance is created once per request and reused across retry
// iterations so it can remember its current candidate.
type Provisioner interface {
	Provision(rc *RequestContext) error
}

// IPProvision is used when the caller asked for a specific address on a
// specific network.
type IPProvision struct {
	NetworkUUID string
	Network     *domain.LogicalNetwork
	IP          domain.Address
	Field       string
}

// Provision implements Provisioner.
func (p *IPProvision) Provision(rc *RequestContext) error {
	bucket := store.NetworkBucket(p.NetworkUUID)
	key := p.IP.String()
	if store.IsVersionConflictOn(rc.Err, bucket, key) || store.IsUniqueConflictOn(rc.Err, bucket, key) {
		return domain.NewStopError(domain.ErrIPInUse, "requested ip is not available", map[string]string{"field": p.Field})
	}

	rec, existing, err := rc.getIPRecord(p.NetworkUUID, p.IP)
	if err != nil {
		return err
	}
	if existing && !rec.Provisionable(rc.OwnerUUID) {
		details := map[string]string{"belongs_to_type": string(rec.BelongsToType), "belongs_to_uuid": rec.BelongsToUUID}
		return domain.NewStopError(domain.ErrIPUsedBy, "requested ip is in use", details)
	}

	rc.Batch.Append(assignItem(bucket, rec, existing, rc.BelongsToUUID, rc.BelongsToType, rc.OwnerUUID))
	rc.IPs = append(rc.IPs, Candidate{NetworkUUID: p.NetworkUUID, Network: p.Network, IP: p.IP, Field: p.Field})
	return nil
}

// NetworkProvision is used when the caller supplied only a network: the
// next free address is searched for via nextIPonNetwork.
type NetworkProvision struct {
	Network *domain.LogicalNetwork

	cur    domain.Address
	chosen bool
}

// Provision implements Provisioner.
func (p *NetworkProvision) Provision(rc *RequestContext) error {
	bucket := store.NetworkBucket(p.Network.UUID)

	needNext := !p.chosen
	if p.chosen && (store.IsVersionConflictOn(rc.Err, bucket, p.cur.String()) || store.IsUniqueConflictOn(rc.Err, bucket, p.cur.String())) {
		// The prior iteration conflicted on the current IP's key: another
		// request materialized or claimed it first. Discard the candidate
		// and search again rather than reusing it.
		needNext = true
	}

	if needNext {
		next, rec, existing, err := p.findFreeIP(rc)
		if err != nil {
			return err
		}
		p.cur = next
		p.chosen = true
		rc.Batch.Append(assignItem(bucket, rec, existing, rc.BelongsToUUID, rc.BelongsToType, rc.OwnerUUID))
		rc.IPs = append(rc.IPs, Candidate{NetworkUUID: p.Network.UUID, Network: p.Network, IP: p.cur, Field: "network_uuid"})
		return nil
	}

	rec, existing, err := rc.getIPRecord(p.Network.UUID, p.cur)
	if err != nil {
		return err
	}
	if existing && !rec.Provisionable(rc.OwnerUUID) {
		details := map[string]string{"belongs_to_type": string(rec.BelongsToType), "belongs_to_uuid": rec.BelongsToUUID}
		return domain.NewStopError(domain.ErrIPUsedBy, "chosen ip is in use", details)
	}
	rc.Batch.Append(assignItem(bucket, rec, existing, rc.BelongsToUUID, rc.BelongsToType, rc.OwnerUUID))
	rc.IPs = append(rc.IPs, Candidate{NetworkUUID: p.Network.UUID, Network: p.Network, IP: p.cur, Field: "network_uuid"})
	return nil
}

// findFreeIP performs nextIPonNetwork's scan: a random starting offset,
// then a linear walk skipping any present-and-not-free address, terminating
// with subnet_full after one full wrap. Each retry draws a fresh random
// start rather than advancing one past the previous candidate: the
// candidate that just conflicted is gone from the space either way, and a
// new random start spreads retries across the network instead of walking
// every loser toward the same tail of the range.
func (p *NetworkProvision) findFreeIP(rc *RequestContext) (domain.Address, *domain.IPRecord, bool, error) {
	start, err := randomAddressInRange(p.Network.StartIP, p.Network.EndIP)
	if err != nil {
		return domain.Address{}, nil, false, domain.NewError(domain.ErrTransient, "choosing random start failed", nil)
	}

	cur := start
	for {
		rec, existing, err := rc.getIPRecord(p.Network.UUID, cur)
		if err != nil {
			return domain.Address{}, nil, false, err
		}
		if !existing || rec.Provisionable(rc.OwnerUUID) {
			return cur, rec, existing, nil
		}
		next, _ := domain.NextIPOnNetwork(cur, p.Network.StartIP, p.Network.EndIP)
		if next.Compare(start) == 0 {
			return domain.Address{}, nil, false, domain.NewStopError(domain.ErrSubnetFull, "network has no free addresses", map[string]string{"network_uuid": p.Network.UUID})
		}
		cur = next
	}
}

// NetworkPoolProvision is used when the caller supplied a pool: networks
// are tried in the pool's declared order, falling back to the next member
// when the current one is exhausted.
type NetworkPoolProvision struct {
	Field    string
	Networks []*domain.LogicalNetwork

	idx     int
	started bool
	inner   *NetworkProvision
}

// Provision implements Provisioner.
func (p *NetworkPoolProvision) Provision(rc *RequestContext) error {
	needNextNetwork := !p.started
	if p.started && isSubnetFull(rc.Err, p.Networks[p.idx].UUID) {
		needNextNetwork = true
	}

	if needNextNetwork {
		if p.started {
			p.idx++
		}
		if p.idx >= len(p.Networks) {
			return domain.NewStopError(domain.ErrPoolFull, "network pool is exhausted", map[string]string{"field": p.Field})
		}
		p.started = true
		p.inner = &NetworkProvision{Network: p.Networks[p.idx]}
	}

	err := p.inner.Provision(rc)
	if isSubnetFull(err, p.Networks[p.idx].UUID) {
		// Within a pool, a full member is not terminal: hand subnet_full back
		// as a retryable error so the next iteration moves to the next member.
		derr := err.(*domain.Error)
		return domain.NewError(derr.Code, derr.Message, derr.Details)
	}
	return err
}

func isSubnetFull(err error, networkUUID string) bool {
	derr, ok := err.(*domain.Error)
	return ok && derr.Code == domain.ErrSubnetFull &&
		detailField(derr.Details, "network_uuid") == networkUUID
}

func detailField(details interface{}, field string) string {
	m, ok := details.(map[string]string)
	if !ok {
		return ""
	}
	return m[field]
}

func randomAddressInRange(start, end domain.Address) (domain.Address, error) {
	width := addressSpan(start, end)
	if !width.IsUint64() || width.Sign() == 0 {
		return start, nil
	}
	offset := uint64(rand.Int63n(int64(width.Uint64()) + 1))
	addr, ok := start.Plus(offset)
	if !ok {
		return start, nil
	}
	return addr, nil
}

// addressSpan returns end-start as a big.Int, computed over the raw v6 key
// so it works uniformly for v4 and v6 ranges.
func addressSpan(start, end domain.Address) *big.Int {
	s := new(big.Int).SetBytes(start.V6[:])
	e := new(big.Int).SetBytes(end.V6[:])
	return e.Sub(e, s)
}
