package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/huaxi/researchdb/internal/domain/dictionary"
	"github.com/huaxi/researchdb/internal/domain/patient"
)

// ConditionUpdate is a partial edit of a ConditionItem. Nil fields are left
// alone. Value is applied only when SetValue is true; a nil Value then
// clears it.
type ConditionUpdate struct {
	FieldKey *string
	Operator *patient.Operator
	Value    any
	SetValue bool
}

// UnmarshalJSON distinguishes an absent "value" from an explicit null.
func (u *ConditionUpdate) UnmarshalJSON(data []byte) error {
	var raw struct {
		FieldKey *string          `json:"fieldKey"`
		Operator *patient.Operator `json:"operator"`
		Value    json.RawMessage   `json:"value"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	u.FieldKey = raw.FieldKey
	u.Operator = raw.Operator
	u.Value, u.SetValue = nil, false

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	if _, ok := keys["value"]; !ok {
		return nil
	}
	u.SetValue = true
	if len(raw.Value) == 0 || string(raw.Value) == "null" {
		return nil
	}
	vdec := json.NewDecoder(bytes.NewReader(raw.Value))
	vdec.UseNumber()
	return vdec.Decode(&u.Value)
}

// ConditionState is a copy of a ConditionModel's observable state.
type ConditionState struct {
	Conditions []patient.ConditionItem `json:"conditions"`
	Logic      patient.Logic           `json:"logic"`
	Results
}

// ConditionModel is the structured condition builder: an ordered list of
// predicates over the field dictionary plus the results of the last search.
type ConditionModel struct {
	mu         sync.Mutex
	fields     []dictionary.SearchField
	byKey      map[string]dictionary.SearchField
	conditions []patient.ConditionItem
	logic      patient.Logic
	results    resultSet

	fetcher patient.Fetcher
	logger  zerolog.Logger
}

func NewConditionModel(fields []dictionary.SearchField, fetcher patient.Fetcher, pageSize int, logger zerolog.Logger) (*ConditionModel, error) {
	if len(fields) == 0 {
		return nil, errors.New("condition model needs at least one search field")
	}
	byKey := make(map[string]dictionary.SearchField, len(fields))
	for _, f := range fields {
		byKey[f.Key] = f
	}
	return &ConditionModel{
		fields:  fields,
		byKey:   byKey,
		logic:   patient.LogicAnd,
		results: newResultSet(pageSize),
		fetcher: fetcher,
		logger:  logger.With().Str("model", "condition_search").Logger(),
	}, nil
}

// Fields returns the field dictionary the model was built with.
func (m *ConditionModel) Fields() []dictionary.SearchField {
	return append([]dictionary.SearchField(nil), m.fields...)
}

// AddCondition appends an empty condition on the first dictionary field.
func (m *ConditionModel) AddCondition() patient.ConditionItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := patient.ConditionItem{
		ID:       uuid.NewString(),
		FieldKey: m.fields[0].Key,
		Operator: patient.OpEq,
	}
	m.conditions = append(m.conditions, item)
	return item
}

// RemoveCondition deletes the condition with id and reports whether it existed.
func (m *ConditionModel) RemoveCondition(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range m.conditions {
		if c.ID == id {
			m.conditions = append(m.conditions[:i:i], m.conditions[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateCondition merges upd into the condition with id. Switching to a
// different field resets the operator to "=" and clears the value; any
// operator or value in the same update is ignored. Nothing changes when the
// update is invalid.
func (m *ConditionModel) UpdateCondition(id string, upd ConditionUpdate) (patient.ConditionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, c := range m.conditions {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return patient.ConditionItem{}, fmt.Errorf("%w: %s", ErrConditionNotFound, id)
	}
	item := m.conditions[idx]

	if upd.FieldKey != nil && *upd.FieldKey != item.FieldKey {
		if _, ok := m.byKey[*upd.FieldKey]; !ok {
			return patient.ConditionItem{}, fmt.Errorf("%w: %q", ErrUnknownField, *upd.FieldKey)
		}
		item.FieldKey = *upd.FieldKey
		item.Operator = patient.OpEq
		item.Value = nil
		m.conditions[idx] = item
		return item, nil
	}

	field := m.byKey[item.FieldKey]
	if upd.Operator != nil {
		op := *upd.Operator
		if !op.Valid() {
			return patient.ConditionItem{}, fmt.Errorf("%w: %q", ErrOperatorNotAllowed, op)
		}
		if op.Ordering() && !field.Ordered() {
			return patient.ConditionItem{}, fmt.Errorf("%w: %q on %s field %q", ErrOperatorNotAllowed, op, field.Type, field.Key)
		}
		item.Operator = op
	}
	if upd.SetValue {
		if upd.Value == nil {
			item.Value = nil
		} else {
			v, err := field.NormalizeValue(upd.Value)
			if err != nil {
				return patient.ConditionItem{}, err
			}
			item.Value = v
		}
	}

	m.conditions[idx] = item
	return item, nil
}

// SetLogic chooses how conditions combine in the next search.
func (m *ConditionModel) SetLogic(l patient.Logic) error {
	if l != patient.LogicAnd && l != patient.LogicOr {
		return fmt.Errorf("%w: logic %q", ErrInvalidFilter, l)
	}
	m.mu.Lock()
	m.logic = l
	m.mu.Unlock()
	return nil
}

// Search queries the fetcher with every populated condition. It refuses to
// run with an empty condition list and leaves all state untouched then.
// A failed fetch keeps the previous results. A response overtaken by a newer
// search or a Reset is dropped and ErrSuperseded returned.
func (m *ConditionModel) Search(ctx context.Context, page, pageSize int) error {
	m.mu.Lock()
	if len(m.conditions) == 0 {
		m.mu.Unlock()
		return ErrNoConditions
	}
	page, pageSize = m.results.pageRequest(page, pageSize)

	conds := make([]patient.ConditionItem, 0, len(m.conditions))
	for _, c := range m.conditions {
		if c.Populated() {
			conds = append(conds, c)
		}
	}
	q := patient.QueryRequest{Logic: m.logic, Conditions: conds, Page: page, PageSize: pageSize}
	token := m.results.begin()
	m.mu.Unlock()

	res, fetchErr := m.fetcher.FetchPatients(ctx, q)

	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.results.settle(token, res, fetchErr, page, pageSize)
	switch {
	case errors.Is(err, ErrSuperseded):
		m.logger.Debug().Uint64("token", token).Msg("discarding stale search response")
	case err != nil:
		m.logger.Error().Err(fetchErr).
			Int("conditions", len(conds)).
			Int("page", page).
			Msg("condition search failed")
	}
	return err
}

// Reset clears conditions and results and returns pagination to page 1.
func (m *ConditionModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conditions = nil
	m.logic = patient.LogicAnd
	m.results.reset()
}

func (m *ConditionModel) Snapshot() ConditionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ConditionState{
		Conditions: append([]patient.ConditionItem{}, m.conditions...),
		Logic:      m.logic,
		Results:    m.results.snapshot(),
	}
}
