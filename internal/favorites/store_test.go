package favorites

import (
	"sync"
	"testing"

	"github.com/hitoshi/moviedeck/internal/model"
)

type mockRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (m *mockRecorder) RecordFavoriteChange(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
}

func movie(id int, title string) model.Movie {
	return model.Movie{ID: id, Title: title}
}

func idsEqual(got, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name  string
		state State
		add   model.Movie
		want  []int
	}{
		{name: "空に追加", state: nil, add: movie(1, "A"), want: []int{1}},
		{name: "末尾に追加", state: State{movie(1, "A")}, add: movie(2, "B"), want: []int{1, 2}},
		{name: "登録済みは変化しない", state: State{movie(1, "A"), movie(2, "B")}, add: movie(1, "A"), want: []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Add(tt.state, tt.add)
			if !idsEqual(got.IDs(), tt.want) {
				t.Errorf("Add() = %v, want %v", got.IDs(), tt.want)
			}
		})
	}
}

func TestAdd_DoesNotMutateInput(t *testing.T) {
	base := make(State, 1, 4)
	base[0] = movie(1, "A")

	a := Add(base, movie(2, "B"))
	b := Add(base, movie(3, "C"))

	if !idsEqual(a.IDs(), []int{1, 2}) || !idsEqual(b.IDs(), []int{1, 3}) {
		t.Errorf("shared backing array: a=%v b=%v", a.IDs(), b.IDs())
	}
	if len(base) != 1 {
		t.Errorf("input modified: %v", base.IDs())
	}
}

func TestRemove(t *testing.T) {
	s := State{movie(1, "A"), movie(2, "B"), movie(3, "C")}

	if got := Remove(s, 2); !idsEqual(got.IDs(), []int{1, 3}) {
		t.Errorf("Remove(2) = %v, want [1 3]", got.IDs())
	}
	if got := Remove(s, 9); !idsEqual(got.IDs(), []int{1, 2, 3}) {
		t.Errorf("Remove(absent) = %v", got.IDs())
	}
	if got := Remove(nil, 1); len(got) != 0 {
		t.Errorf("Remove on empty = %v", got.IDs())
	}
	if !idsEqual(s.IDs(), []int{1, 2, 3}) {
		t.Errorf("input modified: %v", s.IDs())
	}
}

func TestToggle(t *testing.T) {
	s := State{movie(1, "A")}

	s = Toggle(s, movie(2, "B"))
	if !idsEqual(s.IDs(), []int{1, 2}) {
		t.Errorf("toggle absent = %v, want [1 2]", s.IDs())
	}
	s = Toggle(s, movie(1, "A"))
	if !idsEqual(s.IDs(), []int{2}) {
		t.Errorf("toggle present = %v, want [2]", s.IDs())
	}
	// 2回トグルすると集合としては元に戻るが、順序は末尾に移る
	s = Toggle(s, movie(1, "A"))
	if !idsEqual(s.IDs(), []int{2, 1}) {
		t.Errorf("toggle back = %v, want [2 1]", s.IDs())
	}
}

func TestStore_ToggleReportsPresence(t *testing.T) {
	rec := &mockRecorder{}
	s := NewStore(rec)

	if !s.Toggle(movie(550, "Fight Club")) {
		t.Error("first toggle should add")
	}
	if !s.Contains(550) || s.Len() != 1 {
		t.Errorf("Contains=%v Len=%d", s.Contains(550), s.Len())
	}
	if s.Toggle(movie(550, "Fight Club")) {
		t.Error("second toggle should remove")
	}
	if s.Contains(550) || s.Len() != 0 {
		t.Errorf("Contains=%v Len=%d", s.Contains(550), s.Len())
	}

	want := []string{"added", "removed"}
	if len(rec.actions) != 2 || rec.actions[0] != want[0] || rec.actions[1] != want[1] {
		t.Errorf("actions = %v, want %v", rec.actions, want)
	}
}

func TestStore_ListIsCopyInInsertionOrder(t *testing.T) {
	s := NewStore(nil)
	s.Add(movie(3, "C"))
	s.Add(movie(1, "A"))
	s.Add(movie(2, "B"))
	s.Remove(1)

	list := s.List()
	if !idsEqual(list.IDs(), []int{3, 2}) {
		t.Errorf("List() = %v, want [3 2]", list.IDs())
	}
	list[0].Title = "changed"
	if s.List()[0].Title != "C" {
		t.Error("List() must return a copy")
	}
}

func TestStore_NotifiesOncePerEffectiveChange(t *testing.T) {
	rec := &mockRecorder{}
	s := NewStore(rec)

	var got [][]int
	unsubscribe := s.Subscribe(func(st State) {
		got = append(got, st.IDs())
	})

	s.Add(movie(1, "A"))
	s.Add(movie(1, "A")) // 変化なし
	s.Add(movie(2, "B"))
	s.Remove(9) // 変化なし
	s.Toggle(movie(1, "A"))

	want := [][]int{{1}, {1, 2}, {2}}
	if len(got) != len(want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	for i := range want {
		if !idsEqual(got[i], want[i]) {
			t.Errorf("notification[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if len(rec.actions) != 3 {
		t.Errorf("recorded actions = %v, want 3 entries", rec.actions)
	}

	unsubscribe()
	unsubscribe()
	s.Add(movie(3, "C"))
	if len(got) != 3 {
		t.Errorf("notified after unsubscribe: %v", got)
	}
}

func TestStore_ListenerMayReadStore(t *testing.T) {
	s := NewStore(nil)
	var lens []int
	s.Subscribe(func(st State) {
		lens = append(lens, s.Len())
	})

	s.Add(movie(1, "A"))

	if len(lens) != 1 || lens[0] != 1 {
		t.Errorf("lens = %v, want [1]", lens)
	}
}

func TestStore_ListenersNotifiedInRegistrationOrder(t *testing.T) {
	s := NewStore(nil)
	var order []string
	s.Subscribe(func(State) { order = append(order, "first") })
	s.Subscribe(func(State) { order = append(order, "second") })

	s.Add(movie(1, "A"))

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v", order)
	}
}

func TestStore_ConcurrentToggles(t *testing.T) {
	s := NewStore(nil)
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.Toggle(movie(id, "m"))
		}(i)
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Errorf("Len() = %d, want 50", s.Len())
	}
	seen := map[int]bool{}
	for _, id := range s.List().IDs() {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
}
