package audit

// Action constants centralize audit action names to avoid typos.
// NOTE: Do not log PII in details; actor/object are redacted downstream.
const (
    ActionNICProvisioned = "NIC_PROVISIONED"
    ActionNICUpdated     = "NIC_UPDATED"
    ActionNICDeleted     = "NIC_DELETED"
    ActionIPReserved     = "IP_RESERVED"
    ActionIPReleased     = "IP_RELEASED"
)
