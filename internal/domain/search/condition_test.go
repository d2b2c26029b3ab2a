package search

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/huaxi/researchdb/internal/domain/dictionary"
	"github.com/huaxi/researchdb/internal/domain/patient"
)

func newConditionModel(t *testing.T, f patient.Fetcher) *ConditionModel {
	t.Helper()
	m, err := NewConditionModel(testFields(), f, 10, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func strPtr(s string) *string { return &s }

func opPtr(o patient.Operator) *patient.Operator { return &o }

func TestNewConditionModel_RequiresFields(t *testing.T) {
	if _, err := NewConditionModel(nil, &recordingFetcher{}, 10, zerolog.Nop()); err == nil {
		t.Error("expected error without fields")
	}
}

func TestConditionModel_AddDefaults(t *testing.T) {
	m := newConditionModel(t, &recordingFetcher{})
	item := m.AddCondition()

	if item.ID == "" {
		t.Error("expected generated id")
	}
	if item.FieldKey != "age" || item.Operator != patient.OpEq || item.Value != nil {
		t.Errorf("unexpected defaults %+v", item)
	}
	if got := len(m.Snapshot().Conditions); got != 1 {
		t.Errorf("expected 1 condition, got %d", got)
	}
}

func TestConditionModel_RemoveThenAddNeverReusesID(t *testing.T) {
	m := newConditionModel(t, &recordingFetcher{})
	for i := 0; i < 3; i++ {
		m.AddCondition()
	}
	before := m.Snapshot().Conditions
	removed := before[1].ID

	if !m.RemoveCondition(removed) {
		t.Fatal("expected condition to be removed")
	}
	added := m.AddCondition()

	after := m.Snapshot().Conditions
	if len(after) != len(before) {
		t.Errorf("expected size %d, got %d", len(before), len(after))
	}
	if added.ID == removed {
		t.Error("removed id was reused")
	}
	for _, c := range after {
		if c.ID == removed {
			t.Error("removed condition still present")
		}
	}
}

func TestConditionModel_RemoveAbsentIsNoop(t *testing.T) {
	m := newConditionModel(t, &recordingFetcher{})
	m.AddCondition()
	if m.RemoveCondition("missing") {
		t.Error("expected false for absent id")
	}
	if len(m.Snapshot().Conditions) != 1 {
		t.Error("collection changed")
	}
}

func TestConditionModel_FieldChangeResetsOperatorAndValue(t *testing.T) {
	tests := []struct {
		name string
		upd  ConditionUpdate
	}{
		{"field only", ConditionUpdate{FieldKey: strPtr("gender")}},
		{"field with operator", ConditionUpdate{FieldKey: strPtr("gender"), Operator: opPtr(patient.OpGt)}},
		{"field with value", ConditionUpdate{FieldKey: strPtr("gender"), Value: "F", SetValue: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newConditionModel(t, &recordingFetcher{})
			item := m.AddCondition()
			if _, err := m.UpdateCondition(item.ID, ConditionUpdate{Operator: opPtr(patient.OpGt), Value: 45, SetValue: true}); err != nil {
				t.Fatal(err)
			}

			got, err := m.UpdateCondition(item.ID, tt.upd)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.FieldKey != "gender" || got.Operator != patient.OpEq || got.Value != nil {
				t.Errorf("expected reset item on gender, got %+v", got)
			}
		})
	}
}

func TestConditionModel_SameFieldKeepsOperatorAndValue(t *testing.T) {
	m := newConditionModel(t, &recordingFetcher{})
	item := m.AddCondition()
	if _, err := m.UpdateCondition(item.ID, ConditionUpdate{Operator: opPtr(patient.OpLt), Value: 60, SetValue: true}); err != nil {
		t.Fatal(err)
	}
	got, err := m.UpdateCondition(item.ID, ConditionUpdate{FieldKey: strPtr("age")})
	if err != nil {
		t.Fatal(err)
	}
	if got.Operator != patient.OpLt || got.Value != 60.0 {
		t.Errorf("expected operator and value kept, got %+v", got)
	}
}

func TestConditionModel_UpdateValidation(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		upd     ConditionUpdate
		wantErr error
	}{
		{"unknown field", "", ConditionUpdate{FieldKey: strPtr("ssn")}, ErrUnknownField},
		{"bad operator", "", ConditionUpdate{Operator: opPtr("IN")}, ErrOperatorNotAllowed},
		{"ordering on select", "gender", ConditionUpdate{Operator: opPtr(patient.OpGt)}, ErrOperatorNotAllowed},
		{"ordering on string", "name", ConditionUpdate{Operator: opPtr(patient.OpLt)}, ErrOperatorNotAllowed},
		{"text for number", "", ConditionUpdate{Value: "old", SetValue: true}, dictionary.ErrInvalidValue},
		{"unknown option", "gender", ConditionUpdate{Value: "X", SetValue: true}, dictionary.ErrInvalidValue},
		{"bad date", "diagnosisDate", ConditionUpdate{Value: "17/03/2025", SetValue: true}, dictionary.ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newConditionModel(t, &recordingFetcher{})
			item := m.AddCondition()
			if tt.field != "" {
				if _, err := m.UpdateCondition(item.ID, ConditionUpdate{FieldKey: strPtr(tt.field)}); err != nil {
					t.Fatal(err)
				}
			}
			before := m.Snapshot()

			_, err := m.UpdateCondition(item.ID, tt.upd)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !reflect.DeepEqual(before, m.Snapshot()) {
				t.Error("rejected update mutated state")
			}
		})
	}
}

func TestConditionModel_UpdateAbsent(t *testing.T) {
	m := newConditionModel(t, &recordingFetcher{})
	m.AddCondition()
	before := m.Snapshot()
	if _, err := m.UpdateCondition("missing", ConditionUpdate{Value: 1, SetValue: true}); !errors.Is(err, ErrConditionNotFound) {
		t.Errorf("expected ErrConditionNotFound, got %v", err)
	}
	if !reflect.DeepEqual(before, m.Snapshot()) {
		t.Error("update of absent id mutated state")
	}
}

func TestConditionModel_UpdateOnlyTouchesTarget(t *testing.T) {
	m := newConditionModel(t, &recordingFetcher{})
	a := m.AddCondition()
	b := m.AddCondition()

	if _, err := m.UpdateCondition(a.ID, ConditionUpdate{Value: 45, SetValue: true}); err != nil {
		t.Fatal(err)
	}
	conds := m.Snapshot().Conditions
	if conds[0].Value != 45.0 {
		t.Errorf("expected 45, got %v", conds[0].Value)
	}
	if conds[1] != b {
		t.Errorf("other condition changed: %+v", conds[1])
	}
}

func TestConditionModel_ClearValue(t *testing.T) {
	m := newConditionModel(t, &recordingFetcher{})
	item := m.AddCondition()
	m.UpdateCondition(item.ID, ConditionUpdate{Value: 45, SetValue: true})
	got, err := m.UpdateCondition(item.ID, ConditionUpdate{SetValue: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != nil {
		t.Errorf("expected cleared value, got %v", got.Value)
	}
}

func TestConditionModel_SearchEmptyIsNoop(t *testing.T) {
	f := &recordingFetcher{page: patient.Page{List: records("p", 3), Total: 3}}
	m := newConditionModel(t, f)
	before := m.Snapshot()

	if err := m.Search(context.Background(), 1, 10); !errors.Is(err, ErrNoConditions) {
		t.Fatalf("expected ErrNoConditions, got %v", err)
	}
	if f.calls() != 0 {
		t.Error("fetcher must not be called")
	}
	if !reflect.DeepEqual(before, m.Snapshot()) {
		t.Error("empty search mutated state")
	}
}

func TestConditionModel_SearchScenario(t *testing.T) {
	m := newConditionModel(t, patient.NewSynthetic())

	item := m.AddCondition()
	if item.FieldKey != "age" || item.Operator != patient.OpEq || item.Value != nil {
		t.Fatalf("unexpected new condition %+v", item)
	}
	updated, err := m.UpdateCondition(item.ID, ConditionUpdate{Value: 45, SetValue: true})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Value != 45.0 {
		t.Fatalf("expected value 45, got %v", updated.Value)
	}

	if err := m.Search(context.Background(), 1, 10); err != nil {
		t.Fatalf("search: %v", err)
	}
	s := m.Snapshot()
	if len(s.Patients) != 10 {
		t.Errorf("expected 10 patients, got %d", len(s.Patients))
	}
	if s.Pagination.Total != 155 || s.Pagination.Current != 1 || s.Pagination.PageSize != 10 {
		t.Errorf("unexpected pagination %+v", s.Pagination)
	}
	if s.Loading {
		t.Error("loading should be cleared")
	}
}

func TestConditionModel_SearchSendsPopulatedOnly(t *testing.T) {
	f := &recordingFetcher{page: patient.Page{Total: 0}}
	m := newConditionModel(t, f)
	a := m.AddCondition()
	m.AddCondition()
	m.UpdateCondition(a.ID, ConditionUpdate{Operator: opPtr(patient.OpGt), Value: 45, SetValue: true})

	if err := m.Search(context.Background(), 2, 20); err != nil {
		t.Fatal(err)
	}
	q, ok := f.last().(patient.QueryRequest)
	if !ok {
		t.Fatalf("expected QueryRequest, got %T", f.last())
	}
	if q.Logic != patient.LogicAnd || q.Page != 2 || q.PageSize != 20 {
		t.Errorf("unexpected query %+v", q)
	}
	if len(q.Conditions) != 1 || q.Conditions[0].ID != a.ID {
		t.Errorf("expected only the populated condition, got %+v", q.Conditions)
	}
}

func TestConditionModel_SearchDefaultsPage(t *testing.T) {
	f := &recordingFetcher{}
	m := newConditionModel(t, f)
	m.AddCondition()
	if err := m.Search(context.Background(), 0, 0); err != nil {
		t.Fatal(err)
	}
	q := f.last().(patient.QueryRequest)
	if q.Page != 1 || q.PageSize != 10 {
		t.Errorf("expected page 1 size 10, got %d/%d", q.Page, q.PageSize)
	}
}

func TestConditionModel_OrLogic(t *testing.T) {
	f := &recordingFetcher{}
	m := newConditionModel(t, f)
	m.AddCondition()
	if err := m.SetLogic(patient.LogicOr); err != nil {
		t.Fatal(err)
	}
	if err := m.SetLogic("XOR"); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
	m.Search(context.Background(), 1, 10)
	if q := f.last().(patient.QueryRequest); q.Logic != patient.LogicOr {
		t.Errorf("expected OR, got %s", q.Logic)
	}
	m.Reset()
	if m.Snapshot().Logic != patient.LogicAnd {
		t.Error("reset should restore AND")
	}
}

func TestConditionModel_FetchFailureKeepsResults(t *testing.T) {
	f := &recordingFetcher{page: patient.Page{List: records("p", 2), Total: 2}}
	m := newConditionModel(t, f)
	m.AddCondition()
	if err := m.Search(context.Background(), 1, 10); err != nil {
		t.Fatal(err)
	}
	before := m.Snapshot()

	f.err = errors.New("connection reset")
	err := m.Search(context.Background(), 2, 10)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	after := m.Snapshot()
	if !reflect.DeepEqual(before.Results, after.Results) {
		t.Errorf("failure changed results: %+v -> %+v", before.Results, after.Results)
	}
}

func TestConditionModel_StaleResponseDiscarded(t *testing.T) {
	f := newGatedFetcher()
	m := newConditionModel(t, f)
	m.AddCondition()

	firstDone := make(chan error, 1)
	go func() { firstDone <- m.Search(context.Background(), 1, 10) }()
	<-f.started

	secondDone := make(chan error, 1)
	go func() { secondDone <- m.Search(context.Background(), 2, 10) }()
	<-f.started

	if !m.Snapshot().Loading {
		t.Fatal("expected loading while searches are in flight")
	}

	// The newer search settles first.
	f.gate(2) <- result{page: patient.Page{List: records("new", 3), Total: 30}}
	if err := <-secondDone; err != nil {
		t.Fatalf("second search: %v", err)
	}
	if m.Snapshot().Loading {
		t.Error("loading should clear once the latest search settles")
	}

	f.gate(1) <- result{page: patient.Page{List: records("old", 5), Total: 99}}
	if err := <-firstDone; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}

	s := m.Snapshot()
	if s.Pagination.Total != 30 || s.Pagination.Current != 2 || len(s.Patients) != 3 {
		t.Errorf("stale response overwrote newer results: %+v", s.Results)
	}
}

func TestConditionModel_StaleKeepsLoadingUntilLatest(t *testing.T) {
	f := newGatedFetcher()
	m := newConditionModel(t, f)
	m.AddCondition()

	firstDone := make(chan error, 1)
	go func() { firstDone <- m.Search(context.Background(), 1, 10) }()
	<-f.started
	secondDone := make(chan error, 1)
	go func() { secondDone <- m.Search(context.Background(), 2, 10) }()
	<-f.started

	f.gate(1) <- result{page: patient.Page{Total: 1}}
	if err := <-firstDone; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if !m.Snapshot().Loading {
		t.Error("loading must stay set while the latest search is pending")
	}

	f.gate(2) <- result{page: patient.Page{Total: 2}}
	if err := <-secondDone; err != nil {
		t.Fatal(err)
	}
	if m.Snapshot().Loading {
		t.Error("loading should be cleared")
	}
}

func TestConditionModel_ResetInvalidatesInFlight(t *testing.T) {
	f := newGatedFetcher()
	m := newConditionModel(t, f)
	m.AddCondition()

	done := make(chan error, 1)
	go func() { done <- m.Search(context.Background(), 1, 10) }()
	<-f.started

	m.Reset()
	f.gate(1) <- result{page: patient.Page{List: records("p", 4), Total: 4}}

	select {
	case err := <-done:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("expected ErrSuperseded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("search did not return")
	}

	s := m.Snapshot()
	if len(s.Conditions) != 0 || len(s.Patients) != 0 || s.Loading {
		t.Errorf("expected clean state after reset, got %+v", s)
	}
	if s.Pagination.Current != 1 || s.Pagination.PageSize != 10 || s.Pagination.Total != 0 {
		t.Errorf("unexpected pagination %+v", s.Pagination)
	}
}

func TestConditionUpdate_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		body     string
		setValue bool
		value    any
		field    string
	}{
		{`{"fieldKey":"gender"}`, false, nil, "gender"},
		{`{"value":45}`, true, json.Number("45"), ""},
		{`{"value":null}`, true, nil, ""},
		{`{"value":"2024-01-01","operator":">"}`, true, "2024-01-01", ""},
	}
	for _, tt := range tests {
		var u ConditionUpdate
		if err := json.Unmarshal([]byte(tt.body), &u); err != nil {
			t.Fatalf("%s: %v", tt.body, err)
		}
		if u.SetValue != tt.setValue || u.Value != tt.value {
			t.Errorf("%s: got SetValue=%v Value=%v", tt.body, u.SetValue, u.Value)
		}
		if tt.field != "" && (u.FieldKey == nil || *u.FieldKey != tt.field) {
			t.Errorf("%s: fieldKey not decoded", tt.body)
		}
	}
}
