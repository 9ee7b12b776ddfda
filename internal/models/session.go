package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionKind discriminates the context payload stored behind a handle.
// One physical store multiplexes all portal session types; the kind tag is
// what keeps them from bleeding into each other.
type SessionKind string

const (
	SessionKindDriver   SessionKind = "DRIVER"
	SessionKindOperator SessionKind = "OPERATOR"
	SessionKindPartner  SessionKind = "PARTNER"
)

// Valid reports whether the kind belongs to the closed set.
func (k SessionKind) Valid() bool {
	switch k {
	case SessionKindDriver, SessionKindOperator, SessionKindPartner:
		return true
	}
	return false
}

// Session is an opaque server-held context blob referenced by an
// unguessable handle. A session is valid iff it exists and now < ExpiresAt.
type Session struct {
	Handle         string          `db:"handle" json:"handle"`
	Kind           SessionKind     `db:"kind" json:"kind"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	ExpiresAt      time.Time       `db:"expires_at" json:"expires_at"`
	LastUsedAt     time.Time       `db:"last_used_at" json:"last_used_at"`
	OwnerNetworkID *string         `db:"owner_network_id" json:"owner_network_id,omitempty"`
	OwnerUserID    *string         `db:"owner_user_id" json:"owner_user_id,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// DriverContext is the payload shape for DRIVER sessions.
type DriverContext struct {
	DriverID         string  `json:"driver_id"`
	NetworkID        string  `json:"network_id"`
	PartnerCompanyID *string `json:"partner_company_id,omitempty"`
}

// OperatorContext is the payload shape for OPERATOR sessions. Location
// fields are denormalised so the operator portal renders without a lookup.
type OperatorContext struct {
	NetworkID    string  `json:"network_id"`
	LocationID   string  `json:"location_id"`
	LocationName string  `json:"location_name"`
	LocationCode string  `json:"location_code"`
	WashMode     string  `json:"wash_mode"`
	OperatorID   *string `json:"operator_id,omitempty"`
	OperatorName *string `json:"operator_name,omitempty"`
}

// PartnerContext is the payload shape for PARTNER sessions.
type PartnerContext struct {
	PartnerID   string `json:"partner_id"`
	NetworkID   string `json:"network_id"`
	PartnerName string `json:"partner_name"`
}

// DriverContext decodes the payload, failing closed on a kind mismatch.
func (s *Session) DriverContext() (*DriverContext, error) {
	if s.Kind != SessionKindDriver {
		return nil, fmt.Errorf("session kind %s is not %s", s.Kind, SessionKindDriver)
	}
	var ctx DriverContext
	if err := json.Unmarshal(s.Payload, &ctx); err != nil {
		return nil, fmt.Errorf("decode driver context: %w", err)
	}
	return &ctx, nil
}

// OperatorContext decodes the payload, failing closed on a kind mismatch.
func (s *Session) OperatorContext() (*OperatorContext, error) {
	if s.Kind != SessionKindOperator {
		return nil, fmt.Errorf("session kind %s is not %s", s.Kind, SessionKindOperator)
	}
	var ctx OperatorContext
	if err := json.Unmarshal(s.Payload, &ctx); err != nil {
		return nil, fmt.Errorf("decode operator context: %w", err)
	}
	return &ctx, nil
}

// PartnerContext decodes the payload, failing closed on a kind mismatch.
func (s *Session) PartnerContext() (*PartnerContext, error) {
	if s.Kind != SessionKindPartner {
		return nil, fmt.Errorf("session kind %s is not %s", s.Kind, SessionKindPartner)
	}
	var ctx PartnerContext
	if err := json.Unmarshal(s.Payload, &ctx); err != nil {
		return nil, fmt.Errorf("decode partner context: %w", err)
	}
	return &ctx, nil
}

// MergePayload shallow-merges partial over the stored payload and returns
// the re-encoded document. Nested objects are replaced, not merged.
func MergePayload(stored, partial json.RawMessage) (json.RawMessage, error) {
	base := map[string]interface{}{}
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &base); err != nil {
			return nil, fmt.Errorf("decode stored payload: %w", err)
		}
	}

	overlay := map[string]interface{}{}
	if len(partial) > 0 {
		if err := json.Unmarshal(partial, &overlay); err != nil {
			return nil, fmt.Errorf("decode partial payload: %w", err)
		}
	}

	for key, value := range overlay {
		base[key] = value
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("encode merged payload: %w", err)
	}
	return merged, nil
}

// SessionOwner carries optional denormalised owner hints enabling bulk
// revocation when an upstream entity is deactivated.
type SessionOwner struct {
	NetworkID *string
	UserID    *string
}
