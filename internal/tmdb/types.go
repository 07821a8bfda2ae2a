package tmdb

import "github.com/hitoshi/moviedeck/internal/model"

// movieResult はTMDBの一覧・検索APIが返す映画1件分のJSON。
// poster_path等がnullの場合は空文字としてデコードされる。
type movieResult struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int     `json:"vote_count"`
	ReleaseDate  string  `json:"release_date"`
	Popularity   float64 `json:"popularity"`
	GenreIDs     []int   `json:"genre_ids"`
}

// pageResponse はページング付きAPIのレスポンス。
type pageResponse struct {
	Page         int           `json:"page"`
	Results      []movieResult `json:"results"`
	TotalPages   int           `json:"total_pages"`
	TotalResults int           `json:"total_results"`
}

type genreResult struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// detailsResponse は /movie/{id} のレスポンス。
type detailsResponse struct {
	movieResult
	Runtime  int           `json:"runtime"`
	Tagline  string        `json:"tagline"`
	Status   string        `json:"status"`
	Genres   []genreResult `json:"genres"`
	Budget   int64         `json:"budget"`
	Revenue  int64         `json:"revenue"`
	Homepage string        `json:"homepage"`
	IMDBID   string        `json:"imdb_id"`
}

func (c *Client) toMovie(r movieResult) model.Movie {
	return model.Movie{
		ID:           r.ID,
		Title:        r.Title,
		Overview:     c.sanitizer.Sanitize(r.Overview),
		PosterPath:   r.PosterPath,
		BackdropPath: r.BackdropPath,
		VoteAverage:  r.VoteAverage,
		VoteCount:    r.VoteCount,
		ReleaseDate:  r.ReleaseDate,
		Popularity:   r.Popularity,
		GenreIDs:     r.GenreIDs,
	}
}

func (c *Client) toPage(r *pageResponse) *model.Page[model.Movie] {
	movies := make([]model.Movie, 0, len(r.Results))
	for _, m := range r.Results {
		movies = append(movies, c.toMovie(m))
	}
	return &model.Page[model.Movie]{
		Page:         r.Page,
		Results:      movies,
		TotalPages:   r.TotalPages,
		TotalResults: r.TotalResults,
	}
}

func (c *Client) toDetails(r *detailsResponse) *model.MovieDetails {
	genres := make([]model.Genre, 0, len(r.Genres))
	for _, g := range r.Genres {
		genres = append(genres, model.Genre{ID: g.ID, Name: g.Name})
	}
	return &model.MovieDetails{
		Movie:    c.toMovie(r.movieResult),
		Runtime:  r.Runtime,
		Tagline:  c.sanitizer.Sanitize(r.Tagline),
		Status:   r.Status,
		Genres:   genres,
		Budget:   r.Budget,
		Revenue:  r.Revenue,
		Homepage: r.Homepage,
		IMDBID:   r.IMDBID,
	}
}
