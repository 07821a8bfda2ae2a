package querycache

import "time"

// Status はキャッシュエントリの状態。
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSuccess
	StatusError
)

// String はStatusの文字列表現を返す。
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Result はあるKeyについてキャッシュが把握している最新の状態。
// フェッチの失敗はErrに格納され、呼び出し元へerrorとして返ることはない。
type Result struct {
	Data       any
	HasData    bool
	Status     Status
	Err        error
	IsLoading  bool // データを持たない状態で初回フェッチ中
	IsFetching bool // バックグラウンド再取得を含むフェッチ中
	UpdatedAt  time.Time
}

// TypedResult はResultのDataを型付けしたもの。
type TypedResult[T any] struct {
	Data       T
	HasData    bool
	Status     Status
	Err        error
	IsLoading  bool
	IsFetching bool
	UpdatedAt  time.Time
}

// Typed はResultをTypedResultに変換する。Dataの型が一致しない場合はデータなしとして扱う。
func Typed[T any](r Result) TypedResult[T] {
	out := TypedResult[T]{
		Status:     r.Status,
		Err:        r.Err,
		IsLoading:  r.IsLoading,
		IsFetching: r.IsFetching,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.HasData {
		if v, ok := r.Data.(T); ok {
			out.Data = v
			out.HasData = true
		}
	}
	return out
}
