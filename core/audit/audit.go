// Package audit defines the append-only audit records of the pricing core:
// settings change-log entries and frozen step-by-step calculation runs.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"shop-pricing/core/catalog"
	"shop-pricing/core/determinism"
)

// LogEntry records one changed settings field. Entries are written only when
// the old and new values differ, and are never updated or deleted.
type LogEntry struct {
	ID               string             `json:"id"`
	TenantID         string             `json:"tenantId"`
	CatalogVersionID string             `json:"catalogVersionId"`
	ChangeType       catalog.ChangeType `json:"changeType"`
	FieldName        string             `json:"fieldName"`
	OldValue         string             `json:"oldValue"`
	NewValue         string             `json:"newValue"`
	Reason           string             `json:"reason,omitempty"`
	UpdatedAt        time.Time          `json:"updatedAt"`
	UpdatedBy        string             `json:"updatedBy"`
}

// EntriesFromChanges turns a catalog diff into log entries for one version
func EntriesFromChanges(tenantID, versionID, reason, actor string, at time.Time, changes []catalog.FieldChange) []LogEntry {
	entries := make([]LogEntry, 0, len(changes))
	for _, ch := range changes {
		entries = append(entries, LogEntry{
			TenantID:         tenantID,
			CatalogVersionID: versionID,
			ChangeType:       ch.Type,
			FieldName:        ch.Field,
			OldValue:         ch.OldValue,
			NewValue:         ch.NewValue,
			Reason:           reason,
			UpdatedAt:        at,
			UpdatedBy:        actor,
		})
	}
	return entries
}

// Stage names one step of a price calculation
type Stage string

const (
	StageBasePricing       Stage = "base_pricing"
	StageUrgencyMultiplier Stage = "urgency_multiplier"
	StageDiscountRules     Stage = "discount_rules"
	StageFinalPrice        Stage = "final_price"
)

// StageOrder is the fixed order steps are produced and stored in
var StageOrder = []Stage{StageBasePricing, StageUrgencyMultiplier, StageDiscountRules, StageFinalPrice}

// RLData is opaque reinforcement-learning metadata proposed by an external
// policy. The core stores and replays it; it never reads the payload.
type RLData struct {
	Namespace string          `json:"namespace"`
	Payload   json.RawMessage `json:"payload"`
}

// Step is one frozen stage of a calculation. Data is stage-specific JSON
// tagged by Schema so generic viewers can render it without understanding it.
type Step struct {
	Sequence    int             `json:"sequence"`
	Stage       Stage           `json:"stage"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Schema      string          `json:"schema"`
	Data        json.RawMessage `json:"data"`
	RLData      *RLData         `json:"rlData,omitempty"`
}

// Run is a stored calculation: its steps plus the provenance needed to find it.
type Run struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenantId"`
	ActorID          string    `json:"actorId"`
	CatalogVersionID string    `json:"catalogVersionId,omitempty"`
	Steps            []Step    `json:"steps"`
	ContentHash      string    `json:"contentHash"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ValidateSteps checks the fixed stage order and that RL metadata, when
// present, sits on the final step and is well-formed JSON.
func ValidateSteps(steps []Step) error {
	if len(steps) != len(StageOrder) {
		return fmt.Errorf("expected %d steps, got %d", len(StageOrder), len(steps))
	}
	for i, step := range steps {
		if step.Stage != StageOrder[i] {
			return fmt.Errorf("step %d: expected stage %s, got %s", i, StageOrder[i], step.Stage)
		}
		if step.Sequence != i+1 {
			return fmt.Errorf("step %d: expected sequence %d, got %d", i, i+1, step.Sequence)
		}
		if !json.Valid(step.Data) {
			return fmt.Errorf("step %s: data is not valid JSON", step.Stage)
		}
		if step.RLData == nil {
			continue
		}
		if step.Stage != StageFinalPrice {
			return fmt.Errorf("step %s: rl metadata is only allowed on %s", step.Stage, StageFinalPrice)
		}
		if step.RLData.Namespace == "" {
			return fmt.Errorf("rl metadata namespace is required")
		}
		if len(step.RLData.Payload) > 0 && !json.Valid(step.RLData.Payload) {
			return fmt.Errorf("rl metadata payload is not valid JSON")
		}
	}
	return nil
}

// HashSteps computes the content hash a run is stored under.
// JSON payloads are compacted first so formatting does not change the hash.
func HashSteps(steps []Step) (determinism.ContentHash, error) {
	normalized := make([]Step, len(steps))
	for i, step := range steps {
		normalized[i] = step
		normalized[i].Data = compact(step.Data)
		if step.RLData != nil {
			rl := *step.RLData
			rl.Payload = compact(rl.Payload)
			normalized[i].RLData = &rl
		}
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return determinism.ContentHash{}, err
	}
	return determinism.ComputeHash(data), nil
}

// Verify recomputes the run's hash and compares it with the stored one
func (r *Run) Verify() error {
	hash, err := HashSteps(r.Steps)
	if err != nil {
		return err
	}
	if hash.Hex() != r.ContentHash {
		return fmt.Errorf("run %s: content hash mismatch", r.ID)
	}
	return nil
}

// CloneSteps deep-copies steps so stored runs cannot be mutated through
// slices handed to callers.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, step := range steps {
		out[i] = step
		out[i].Data = append(json.RawMessage(nil), step.Data...)
		if step.RLData != nil {
			rl := *step.RLData
			rl.Payload = append(json.RawMessage(nil), rl.Payload...)
			out[i].RLData = &rl
		}
	}
	return out
}

func compact(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
