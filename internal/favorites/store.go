package favorites

import (
	"slices"
	"sync"

	"github.com/hitoshi/moviedeck/internal/model"
)

// Listener は実際に状態が変化するたびに、変化後のStateを受け取る。
type Listener func(State)

// Recorder はお気に入り操作の記録先。
type Recorder interface {
	RecordFavoriteChange(action string)
}

// Store はStateを排他制御付きで保持する。
// ユーザーの識別は行わない。認証の確認は呼び出し側で済ませておくこと。
type Store struct {
	metrics Recorder

	mu        sync.Mutex
	state     State
	listeners map[uint64]Listener
	nextID    uint64

	queue       []notification
	dispatching bool
}

type notification struct {
	state     State
	listeners []Listener
}

// NewStore は空のStoreを生成する。metricsがnilの場合は記録しない。
func NewStore(metrics Recorder) *Store {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Store{
		metrics:   metrics,
		listeners: make(map[uint64]Listener),
	}
}

// Add はmを追加する。登録済みの場合は何もしない。戻り値は常にtrue。
func (s *Store) Add(m model.Movie) bool {
	s.apply("added", func(st State) State { return Add(st, m) })
	return true
}

// Remove はidの映画を取り除く。戻り値は常にfalse。
func (s *Store) Remove(id int) bool {
	s.apply("removed", func(st State) State { return Remove(st, id) })
	return false
}

// Toggle はmの登録状態を反転し、操作後に登録されているかを返す。
func (s *Store) Toggle(m model.Movie) bool {
	var present bool
	s.apply("", func(st State) State {
		next := Toggle(st, m)
		present = next.Contains(m.ID)
		return next
	})
	return present
}

// Contains はidの映画が登録されているかを返す。
func (s *Store) Contains(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Contains(id)
}

// List は登録順のお気に入り一覧のコピーを返す。
func (s *Store) List() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(State, len(s.state))
	copy(out, s.state)
	return out
}

// Len は登録件数を返す。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state)
}

// Subscribe はListenerを登録し、登録解除関数を返す。
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// apply は遷移関数を適用し、状態が変化した場合のみ通知する。
// actionが空の場合は変化の向きから記録名を決める。
func (s *Store) apply(action string, fn func(State) State) {
	s.mu.Lock()
	before := len(s.state)
	next := fn(s.state)
	if len(next) == before {
		// 遷移関数は変化がなければ同じStateを返す
		s.mu.Unlock()
		return
	}
	s.state = next
	if action == "" {
		action = "removed"
		if len(next) > before {
			action = "added"
		}
	}
	if len(s.listeners) > 0 {
		s.queue = append(s.queue, notification{state: next, listeners: s.sortedListenersLocked()})
	}
	s.mu.Unlock()

	s.metrics.RecordFavoriteChange(action)
	s.dispatch()
}

// dispatch は通知キューをロックの外で順に配信する。
func (s *Store) dispatch() {
	s.mu.Lock()
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	for len(s.queue) > 0 {
		n := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		for _, l := range n.listeners {
			l(n.state)
		}
		s.mu.Lock()
	}
	s.dispatching = false
	s.mu.Unlock()
}

func (s *Store) sortedListenersLocked() []Listener {
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	ls := make([]Listener, len(ids))
	for i, id := range ids {
		ls[i] = s.listeners[id]
	}
	return ls
}

type nopRecorder struct{}

func (nopRecorder) RecordFavoriteChange(string) {}
