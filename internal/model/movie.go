package model

// Movie はカタログ一覧・検索結果に含まれる映画のサマリーを表す。
// リモートカタログから取得した後はローカルで変更しない。
type Movie struct {
	ID           int
	Title        string
	Overview     string
	PosterPath   string // 未設定の場合は空文字
	BackdropPath string // 未設定の場合は空文字
	VoteAverage  float64
	VoteCount    int
	ReleaseDate  string // ISO日付。未公開・不明の場合は空文字
	Popularity   float64
	GenreIDs     []int
}

// Genre はジャンルのIDと名称の組。
type Genre struct {
	ID   int
	Name string
}

// MovieDetails は映画の詳細情報を表す。
// Movieの上位集合だが、サマリーとはキャッシュ上で別エンティティとして扱う。
type MovieDetails struct {
	Movie

	Runtime  int // 分。不明の場合は0
	Tagline  string
	Status   string // Released, Post Production など
	Genres   []Genre
	Budget   int64
	Revenue  int64
	Homepage string
	IMDBID   string
}

// Page はページング付き取得結果を表す。
// TotalResults > 0 のとき Page <= TotalPages が成り立つ。
type Page[T any] struct {
	Page         int
	Results      []T
	TotalPages   int
	TotalResults int
}

// HasNext は後続ページが存在するかを返す。
func (p *Page[T]) HasNext() bool {
	if p == nil {
		return false
	}
	return p.Page < p.TotalPages
}
