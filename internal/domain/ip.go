package domain

import "encoding/json"

// BelongsToType enumerates the kind of entity an IP or NIC is bound to.
type BelongsToType string

const (
	BelongsToZone   BelongsToType = "zone"
	BelongsToServer BelongsToType = "server"
	BelongsToOther  BelongsToType = "other"
)

// IPRecord is a single address entry within a network's IP bucket. The
// network bucket holds one IPRecord per address ever touched; addresses
// never provisioned are implicitly free and have no record at all.
type IPRecord struct {
	NetworkUUID string  `json:"network_uuid"`
	Address     Address `json:"-"`

	Reserved      bool          `json:"reserved"`
	Free          bool          `json:"free"`
	BelongsToUUID string        `json:"belongs_to_uuid,omitempty"`
	BelongsToType BelongsToType `json:"belongs_to_type,omitempty"`
	OwnerUUID     string        `json:"owner_uuid,omitempty"`

	Version string `json:"-"`
}

// Key returns the store key for this record within its network's bucket:
// the canonical address string.
func (r *IPRecord) Key() string { return r.Address.String() }

type ipRecordWire struct {
	NetworkUUID   string          `json:"network_uuid"`
	Address       json.RawMessage `json:"address"`
	Reserved      bool            `json:"reserved"`
	Free          bool            `json:"free"`
	BelongsToUUID string          `json:"belongs_to_uuid,omitempty"`
	BelongsToType BelongsToType   `json:"belongs_to_type,omitempty"`
	OwnerUUID     string          `json:"owner_uuid,omitempty"`
}

// MarshalJSON serializes the record in the wire form stored by the
// adapter, rendering the address in its canonical string form.
func (r *IPRecord) MarshalJSON() ([]byte, error) {
	addr, _ := json.Marshal(r.Address.String())
	return json.Marshal(ipRecordWire{
		NetworkUUID:   r.NetworkUUID,
		Address:       addr,
		Reserved:      r.Reserved,
		Free:          r.Free,
		BelongsToUUID: r.BelongsToUUID,
		BelongsToType: r.BelongsToType,
		OwnerUUID:     r.OwnerUUID,
	})
}

// UnmarshalJSON re-coerces legacy {"octets":[...]} addresses on read, per
// the address codec's read-time migration.
func (r *IPRecord) UnmarshalJSON(data []byte) error {
	var w ipRecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	addr, err := ParseAddressJSON(w.Address)
	if err != nil {
		return err
	}
	r.NetworkUUID = w.NetworkUUID
	r.Address = addr
	r.Reserved = w.Reserved
	r.Free = w.Free
	r.BelongsToUUID = w.BelongsToUUID
	r.BelongsToType = w.BelongsToType
	r.OwnerUUID = w.OwnerUUID
	return nil
}

// Provisionable reports whether this record may be handed out by a
// provisioner for the given requesting owner. An address with no record is
// always provisionable; provisionable() only applies to records already
// materialized in the bucket.
func (r *IPRecord) Provisionable(ownerUUID string) bool {
	if r.Reserved {
		return false
	}
	if r.Free {
		return true
	}
	return r.OwnerUUID == "" || r.OwnerUUID == ownerUUID
}

// BatchItem returns the conditional put that binds this record to the given
// owner/NIC, keyed off the record's current version.
func (r *IPRecord) BatchItem(bucket string, belongsTo string, belongsToType BelongsToType, ownerUUID string) BatchItem {
	next := *r
	next.Free = false
	next.BelongsToUUID = belongsTo
	next.BelongsToType = belongsToType
	next.OwnerUUID = ownerUUID
	return BatchItem{
		Op:            OpPut,
		Bucket:        bucket,
		Key:           r.Key(),
		Value:         &next,
		ExpectVersion: r.Version,
	}
}

// UnassignBatchItem clears ownership but keeps the record materialized,
// leaving the address eligible for re-binding without marking it free.
func (r *IPRecord) UnassignBatchItem(bucket string) BatchItem {
	next := *r
	next.BelongsToUUID = ""
	next.BelongsToType = ""
	next.OwnerUUID = ""
	return BatchItem{
		Op:            OpPut,
		Bucket:        bucket,
		Key:           r.Key(),
		Value:         &next,
		ExpectVersion: r.Version,
	}
}

// FreeBatchItem marks the record explicitly free, reclaimable by the
// next-free scan. Freeing an already-free record yields the same item,
// making the operation idempotent at the store layer.
func (r *IPRecord) FreeBatchItem(bucket string) BatchItem {
	next := *r
	next.Free = true
	next.BelongsToUUID = ""
	next.BelongsToType = ""
	next.OwnerUUID = ""
	return BatchItem{
		Op:            OpPut,
		Bucket:        bucket,
		Key:           r.Key(),
		Value:         &next,
		ExpectVersion: r.Version,
	}
}

// NextIPOnNetwork returns the next address in scan order after cur within
// [start, end], wrapping back to start. ok is false only when the family's
// address arithmetic itself overflows (never expected within a valid range).
func NextIPOnNetwork(cur, start, end Address) (Address, bool) {
	next, ok := cur.Plus(1)
	if !ok {
		return start, true
	}
	if next.Compare(end) > 0 {
		return start, true
	}
	return next, true
}
