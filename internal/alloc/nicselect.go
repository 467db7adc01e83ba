package alloc

import (
	"fmt"
	"math/rand"

	"github.com/fleetkit/napi/internal/domain"
	"github.com/fleetkit/napi/internal/store"
)

// NICSelector builds the NIC record for this allocation attempt, appending
// its put (and any primary-clearing puts) to rc.Batch.
type NICSelector interface {
	SelectAndBuild(rc *RequestContext, base NICParams) (*domain.NICRecord, error)
}

// NICParams is the validated, caller-supplied set of mutable NIC fields
// used to synthesize a NICRecord, independent of which MAC ends up chosen.
type NICParams struct {
	Primary                bool
	State                  domain.NICState
	Model                  string
	VLANID                 int
	NICTag                 string
	NICTagsProvided        []string
	AllowDHCPSpoofing      bool
	AllowIPSpoofing        bool
	AllowMACSpoofing       bool
	AllowRestrictedTraffic bool
	AllowUnfilteredPromisc bool
	CnUUID                 string
	Underlay               bool
	CheckOwner             bool
}

func buildNIC(rc *RequestContext, mac domain.MAC, base NICParams) *domain.NICRecord {
	n := &domain.NICRecord{
		MAC:                    mac,
		Primary:                base.Primary,
		State:                  base.State,
		BelongsToUUID:          rc.BelongsToUUID,
		BelongsToType:          rc.BelongsToType,
		OwnerUUID:              rc.OwnerUUID,
		CheckOwner:             base.CheckOwner,
		Model:                  base.Model,
		VLANID:                 base.VLANID,
		NICTag:                 base.NICTag,
		NICTagsProvided:        base.NICTagsProvided,
		AllowDHCPSpoofing:      base.AllowDHCPSpoofing,
		AllowIPSpoofing:        base.AllowIPSpoofing,
		AllowMACSpoofing:       base.AllowMACSpoofing,
		AllowRestrictedTraffic: base.AllowRestrictedTraffic,
		AllowUnfilteredPromisc: base.AllowUnfilteredPromisc,
		CnUUID:                 base.CnUUID,
		Underlay:               base.Underlay,
	}
	if len(rc.IPs) > 0 {
		ip := rc.IPs[0]
		n.SetIP(ip.NetworkUUID, &ip.IP)
	}
	return n
}

// primaryClearItems returns conditional puts clearing primary=false on
// every other NIC belonging to the same owner, derived at NIC-batch
// construction time so they share the new NIC's atomic commit.
func primaryClearItems(rc *RequestContext, newMACKey string) ([]domain.BatchItem, error) {
	recs, err := rc.Store.List(rc.Ctx, store.NICBucket, store.ListFilter{})
	if err != nil {
		return nil, domain.NewError(domain.ErrTransient, "listing nics for primary clear failed", nil)
	}
	var items []domain.BatchItem
	for _, rec := range recs {
		var nic domain.NICRecord
		if err := nic.UnmarshalJSON(rec.Value); err != nil {
			continue
		}
		if nic.Key() == newMACKey || nic.OwnerUUID != rc.OwnerUUID || !nic.Primary {
			continue
		}
		nic.Version = rec.Version
		nic.Primary = false
		items = append(items, nic.BatchItem(store.NICBucket, false))
	}
	return items, nil
}

// MacSupplied is used when the request itself carries a MAC.
type MacSupplied struct {
	MAC domain.MAC
}

// SelectAndBuild implements NICSelector.
func (s *MacSupplied) SelectAndBuild(rc *RequestContext, base NICParams) (*domain.NICRecord, error) {
	if store.IsVersionConflictOn(rc.Err, store.NICBucket, s.MAC.Key()) ||
		store.IsUniqueConflictOn(rc.Err, store.NICBucket, s.MAC.Key()) {
		return nil, domain.NewStopError(domain.ErrMACDuplicate, "requested mac is already in use", map[string]string{"field": "mac"})
	}

	_, found, err := rc.getNIC(s.MAC)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, domain.NewStopError(domain.ErrMACDuplicate, "requested mac is already in use", map[string]string{"field": "mac"})
	}

	// Always a unique put: a caller-supplied MAC never reuses an existing
	// record's version, so a collision (including one materialized between
	// the read above and the commit) surfaces as a unique_conflict and is
	// turned into mac_duplicate on the next attempt by the guard above.
	nic := buildNIC(rc, s.MAC, base)
	rc.Batch.Append(nic.BatchItem(store.NICBucket, true))

	if nic.Primary {
		extra, err := primaryClearItems(rc, nic.Key())
		if err != nil {
			return nil, err
		}
		rc.Batch.Append(extra...)
	}
	return nic, nil
}

// RandomMAC generates a MAC within the configured OUI, retrying up to
// Config.MacRetries times within a single iteration.
type RandomMAC struct {
	Requested *domain.MAC // non-nil if the caller supplied one anyway

	cur    domain.MAC
	chosen bool
}

// SelectAndBuild implements NICSelector.
func (s *RandomMAC) SelectAndBuild(rc *RequestContext, base NICParams) (*domain.NICRecord, error) {
	reuse := s.chosen && !store.IsVersionConflictOn(rc.Err, store.NICBucket, s.cur.Key()) &&
		!store.IsUniqueConflictOn(rc.Err, store.NICBucket, s.cur.Key())

	if s.Requested != nil && !s.chosen {
		s.cur = *s.Requested
		s.chosen = true
		reuse = true
	}

	if !reuse {
		mac, err := s.pickFreeMAC(rc)
		if err != nil {
			return nil, err
		}
		s.cur = mac
		s.chosen = true
	}

	nic := buildNIC(rc, s.cur, base)
	rc.Batch.Append(nic.BatchItem(store.NICBucket, true))

	if nic.Primary {
		extra, err := primaryClearItems(rc, nic.Key())
		if err != nil {
			return nil, err
		}
		rc.Batch.Append(extra...)
	}
	return nic, nil
}

func (s *RandomMAC) pickFreeMAC(rc *RequestContext) (domain.MAC, error) {
	retries := rc.Config.MacRetries
	if retries <= 0 {
		retries = DefaultMacRetries
	}
	suffix := uint32(rand.Int31n(1 << 24))
	for attempt := 0; attempt < retries; attempt++ {
		mac := domain.MAC(uint64(rc.Config.MacOUI)<<24 | uint64(suffix))
		_, found, err := rc.getNIC(mac)
		if err != nil {
			return 0, err
		}
		if !found {
			return mac, nil
		}
		suffix++
		if suffix > 0xffffff {
			suffix = uint32(rand.Int31n(1 << 24))
		}
	}
	return 0, domain.NewStopError(domain.ErrNoFreeMAC, "exhausted mac retries", map[string]string{"oui": macOUIString(rc.Config.MacOUI)})
}

func macOUIString(oui uint32) string {
	return fmt.Sprintf("%02x:%02x:%02x", byte(oui>>16), byte(oui>>8), byte(oui))
}
