package scroll

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStateValidate(t *testing.T) {
	tests := []struct {
		name    string
		state   State[int]
		wantErr bool
	}{
		{name: "empty", state: State[int]{}},
		{name: "flattened", state: State[int]{Items: []int{1, 2, 3}, Pages: [][]int{{1, 2}, {3}}}},
		{name: "empty trailing page", state: State[int]{Items: []int{1}, Pages: [][]int{{1}, {}}}},
		{name: "single flag", state: State[int]{IsRefreshing: true}},
		{name: "missing item", state: State[int]{Items: []int{1}, Pages: [][]int{{1, 2}}}, wantErr: true},
		{name: "reordered", state: State[int]{Items: []int{2, 1}, Pages: [][]int{{1}, {2}}}, wantErr: true},
		{name: "two flags", state: State[int]{IsLoading: true, IsLoadingMore: true}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvariant) {
				t.Errorf("Validate() error = %v, want ErrInvariant", err)
			}
		})
	}
}

func TestStateClone(t *testing.T) {
	cursor := "tok"
	total := 10
	s := State[int]{
		Items:      []int{1, 2},
		Pages:      [][]int{{1, 2}},
		Cursor:     &cursor,
		TotalItems: &total,
	}

	c := s.clone()
	c.Items[0] = 99
	c.Pages[0][0] = 99
	*c.Cursor = "changed"
	*c.TotalItems = 0

	if s.Items[0] != 1 || s.Pages[0][0] != 1 {
		t.Error("clone shares item storage with the original")
	}
	if *s.Cursor != "tok" || *s.TotalItems != 10 {
		t.Error("clone shares pointers with the original")
	}
}

func TestSnapshotJSON(t *testing.T) {
	cursor := "tok1"
	snap := Snapshot[string]{
		State: State[string]{
			Items:   []string{"x"},
			Pages:   [][]string{{"x"}},
			Cursor:  &cursor,
			HasMore: true,
		},
		Status:  StatusReady,
		Version: 3,
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"items", "pages", "cursor", "has_more", "status", "version"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing %q in %s", key, data)
		}
	}
	if _, ok := fields["error"]; ok {
		t.Errorf("empty error should be omitted, got %s", data)
	}
}
