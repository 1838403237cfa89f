package capability

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/Michiganman2353/ESTA-Logic/internal/audit"
	"github.com/Michiganman2353/ESTA-Logic/pkg/kerrors"
)

// Manager owns the capability and token tables exclusively. Every
// exported method is safe for concurrent use; reads proceed in parallel
// under an RWMutex, writes are exclusive.
type Manager struct {
	mu sync.RWMutex

	secret []byte // 32 random bytes, never logged or returned

	nextID       uint64
	capabilities map[uint64]*Capability
	revoked      map[uint64]struct{}

	audit *audit.Log
}

// NewManager constructs a Manager with a freshly generated secret.
func NewManager(log *audit.Log) (*Manager, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, kerrors.Internal("failed to generate manager secret", err)
	}
	return &Manager{
		secret:       secret,
		capabilities: make(map[uint64]*Capability),
		revoked:      make(map[uint64]struct{}),
		audit:        log,
	}, nil
}

// Create issues a fresh, non-delegated capability and returns its token.
func (m *Manager) Create(kind ResourceKind, resourceID string, rights RightSet, owner string, validity Validity) Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := newCapabilityID(m.nextID, time.Now().UnixMilli())

	cap := &Capability{
		ID:         id,
		Kind:       kind,
		ResourceID: resourceID,
		Rights:     rights,
		Owner:      owner,
		ParentID:   nil,
		Validity:   validity,
		Revoked:    false,
		CreatedAt:  time.Now().UnixMilli(),
	}
	m.capabilities[id] = cap

	token := mintToken(id, m.secret)

	m.audit.Append(audit.Event{
		Kind: audit.KindCapabilityCreated,
		CapabilityCreated: &audit.CapabilityCreated{
			ID:     id,
			Owner:  owner,
			Rights: rights.Slice(),
		},
	}, "capability_manager")

	return token
}

// Validate parses token, checks revocation/expiry/usage-limit state, and
// verifies requiredRights ⊆ the capability's rights. On success it
// returns an independent Snapshot; on failure it returns the specific
// kerrors.KernelError named by spec and, for every failure except a
// malformed token, emits CapabilityDenied.
func (m *Manager) Validate(token Token, requiredRights RightSet) (Snapshot, error) {
	id, err := parseToken(token)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, revoked := m.revoked[id]; revoked {
		m.denyLocked(id, "revoked")
		return Snapshot{}, kerrors.Revoked()
	}

	cap, ok := m.capabilities[id]
	if !ok {
		m.denyLocked(id, "not found")
		return Snapshot{}, kerrors.NotFound("capability", string(token))
	}

	if expected := mintToken(id, m.secret); expected != token {
		m.denyLocked(id, "token mismatch")
		return Snapshot{}, kerrors.InvalidToken(nil)
	}

	if cap.Revoked {
		m.denyLocked(id, "revoked")
		return Snapshot{}, kerrors.Revoked()
	}

	now := time.Now().UnixMilli()
	if cap.Validity.ExpiresAtMs != nil && now > *cap.Validity.ExpiresAtMs {
		m.denyLocked(id, "expired")
		return Snapshot{}, kerrors.Expired()
	}

	if cap.Validity.MaxUses != nil && cap.Validity.UseCount >= *cap.Validity.MaxUses {
		m.denyLocked(id, "usage limit exceeded")
		return Snapshot{}, kerrors.UsageLimitExceeded()
	}

	missing := cap.Rights.Missing(requiredRights)
	if len(missing) > 0 {
		m.denyLocked(id, "insufficient rights")
		return Snapshot{}, kerrors.InsufficientRights(missing.Slice(), cap.Rights.Slice())
	}

	m.audit.Append(audit.Event{
		Kind: audit.KindCapabilityValidated,
		CapabilityValidated: &audit.CapabilityValidated{
			ID:        id,
			Operation: "validate",
		},
	}, "capability_manager")

	return cap.snapshot(), nil
}

// denyLocked emits CapabilityDenied. Callers must already hold m.mu
// (read or write) before calling it.
func (m *Manager) denyLocked(id uint64, reason string) {
	m.audit.Append(audit.Event{
		Kind: audit.KindCapabilityDenied,
		CapabilityDenied: &audit.CapabilityDenied{
			ID:     id,
			Reason: reason,
		},
	}, "capability_manager")
}

// RecordUsage atomically increments the capability's use count. Callers
// are expected to invoke it after a successful Validate.
func (m *Manager) RecordUsage(token Token) error {
	id, err := parseToken(token)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cap, ok := m.capabilities[id]
	if !ok {
		return kerrors.NotFound("capability", string(token))
	}
	cap.Validity.UseCount++
	return nil
}

// Delegate mints a child capability whose rights are a subset of the
// parent's (monotonic attenuation) and whose ParentID is the parent's id.
func (m *Manager) Delegate(parentToken Token, newOwner string, requestedRights RightSet, validity Validity) (Token, error) {
	parentSnap, err := m.Validate(parentToken, NewRightSet(RightDelegate))
	if err != nil {
		return "", err
	}

	parentRights := NewRightSet()
	for _, r := range parentSnap.Rights {
		parentRights[Right(r)] = struct{}{}
	}
	if !requestedRights.Subset(parentRights) {
		missing := requestedRights.Missing(parentRights)
		return "", kerrors.InsufficientRights(missing.Slice(), parentSnap.Rights)
	}

	m.mu.Lock()
	m.nextID++
	id := newCapabilityID(m.nextID, time.Now().UnixMilli())
	parentID := parentSnap.ID

	child := &Capability{
		ID:         id,
		Kind:       parentSnap.Kind,
		ResourceID: parentSnap.ResourceID,
		Rights:     requestedRights,
		Owner:      newOwner,
		ParentID:   &parentID,
		Validity:   validity,
		Revoked:    false,
		CreatedAt:  time.Now().UnixMilli(),
	}
	m.capabilities[id] = child
	token := mintToken(id, m.secret)
	m.mu.Unlock()

	m.audit.Append(audit.Event{
		Kind: audit.KindCapabilityDelegated,
		CapabilityDelegated: &audit.CapabilityDelegated{
			Parent:   parentID,
			NewID:    id,
			NewOwner: newOwner,
		},
	}, "capability_manager")

	return token, nil
}

// Revoke marks token's capability and every direct child (single-level
// sweep) as revoked, returning the number of capabilities revoked.
// Revocation is irreversible.
func (m *Manager) Revoke(token Token) (int, error) {
	id, err := parseToken(token)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if _, ok := m.capabilities[id]; !ok {
		m.mu.Unlock()
		return 0, kerrors.NotFound("capability", string(token))
	}

	count := 0
	for capID, cap := range m.capabilities {
		if capID == id || (cap.ParentID != nil && *cap.ParentID == id) {
			if !cap.Revoked {
				cap.Revoked = true
				m.revoked[capID] = struct{}{}
				count++
			}
		}
	}
	m.mu.Unlock()

	m.audit.Append(audit.Event{
		Kind: audit.KindCapabilityRevoked,
		CapabilityRevoked: &audit.CapabilityRevoked{
			ID:           id,
			CascadeCount: count,
		},
	}, "capability_manager")

	return count, nil
}

// List returns a snapshot of every non-revoked capability owned by owner.
func (m *Manager) List(owner string) []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Snapshot
	for _, cap := range m.capabilities {
		if cap.Owner == owner && !cap.Revoked {
			out = append(out, cap.snapshot())
		}
	}
	return out
}

// Stats is a read-only rollup used by the kernel's status() operation.
type Stats struct {
	TotalIssued int
	TotalRevoked int
	Owners       int
}

// Stats returns a read-only snapshot of issuance counters. It never
// mutates state.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owners := make(map[string]struct{})
	for _, cap := range m.capabilities {
		owners[cap.Owner] = struct{}{}
	}
	return Stats{
		TotalIssued:  len(m.capabilities),
		TotalRevoked: len(m.revoked),
		Owners:       len(owners),
	}
}
