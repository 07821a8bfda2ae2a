// Package favorites はワークスペース単位のお気に入り映画リストを管理する。
package favorites

import "github.com/hitoshi/moviedeck/internal/model"

// State はお気に入りの映画を追加順に並べたリスト。IDは重複しない。
// 値として扱い、遷移関数は常に新しいStateを返す。
type State []model.Movie

// Add はmが未登録なら末尾に追加したStateを返す。登録済みならsをそのまま返す。
func Add(s State, m model.Movie) State {
	if s.Contains(m.ID) {
		return s
	}
	out := make(State, len(s), len(s)+1)
	copy(out, s)
	return append(out, m)
}

// Remove はidの映画を除いたStateを返す。未登録ならsをそのまま返す。
func Remove(s State, id int) State {
	idx := s.index(id)
	if idx < 0 {
		return s
	}
	out := make(State, 0, len(s)-1)
	out = append(out, s[:idx]...)
	return append(out, s[idx+1:]...)
}

// Toggle はmが登録済みなら取り除き、未登録なら末尾に追加する。
func Toggle(s State, m model.Movie) State {
	if s.Contains(m.ID) {
		return Remove(s, m.ID)
	}
	return Add(s, m)
}

// Contains はidの映画が登録されているかを返す。
func (s State) Contains(id int) bool {
	return s.index(id) >= 0
}

// IDs は登録順の映画IDを返す。
func (s State) IDs() []int {
	ids := make([]int, len(s))
	for i, m := range s {
		ids[i] = m.ID
	}
	return ids
}

func (s State) index(id int) int {
	for i, m := range s {
		if m.ID == id {
			return i
		}
	}
	return -1
}
