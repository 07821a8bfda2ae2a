package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/moviedeck/internal/favorites"
	"github.com/hitoshi/moviedeck/internal/middleware"
	"github.com/hitoshi/moviedeck/internal/model"
)

// sseKeepAliveInterval はイベントストリームでコメント行を送る間隔。
const sseKeepAliveInterval = 30 * time.Second

// FavoritesRecorder はお気に入り操作の記録先。
type FavoritesRecorder interface {
	RecordFavoriteChange(action string)
}

// FavoritesHandler はお気に入りのHTTPハンドラー。
// お気に入り自体はワークスペースに属し、変更にはログインが必要。
type FavoritesHandler struct {
	images  ImageLocator
	metrics FavoritesRecorder
}

// NewFavoritesHandler はFavoritesHandlerを生成する。metricsがnilの場合は記録しない。
func NewFavoritesHandler(images ImageLocator, metrics FavoritesRecorder) *FavoritesHandler {
	return &FavoritesHandler{images: images, metrics: metrics}
}

// favoritesResponse はお気に入り一覧のAPIレスポンス。
type favoritesResponse struct {
	Favorites []movieResponse `json:"favorites"`
	Count     int             `json:"count"`
}

// toggleResponse はお気に入り切り替えのAPIレスポンス。
type toggleResponse struct {
	Added   bool   `json:"added"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// List はお気に入り一覧を登録順に返す。ログインしていなくても参照できる。
// GET /api/favorites
func (h *FavoritesHandler) List(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.toFavoritesResponse(ws.Favorites.List()))
}

// Toggle はリクエストボディの映画の登録状態を反転する。
// 未ログインの場合は401 AUTHORIZATION_REQUIREDでログインを促す。
// POST /api/favorites/toggle
func (h *FavoritesHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		h.record("rejected")
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthorizationRequiredError())
		return
	}
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var req movieResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidMovieError("JSONとして解釈できません"))
		return
	}
	if req.ID <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidMovieError("IDが不正です"))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidMovieError("タイトルが空です"))
		return
	}

	added := ws.Favorites.Toggle(req.toModel())

	var message string
	if added {
		message = fmt.Sprintf("「%s」をお気に入りに追加しました", req.Title)
	} else {
		message = fmt.Sprintf("「%s」をお気に入りから削除しました", req.Title)
	}
	writeJSON(w, http.StatusOK, toggleResponse{
		Added:   added,
		Message: message,
		Count:   ws.Favorites.Len(),
	})
}

// Events はお気に入りが変化するたびに一覧全体をServer-Sent Eventsで送信する。
// 接続直後に現在の一覧を1回送る。
// GET /api/favorites/events
func (h *FavoritesHandler) Events(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)

	// リスナーはストアのロック外から呼ばれるが、書き込みはこのゴルーチンに限定する。
	updates := make(chan favorites.State, 16)
	unsubscribe := ws.Favorites.Subscribe(func(s favorites.State) {
		select {
		case updates <- s:
		default:
			slog.Warn("dropping favorites event for slow client",
				slog.String("workspace_id", ws.ID),
			)
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := h.writeEvent(w, rc, ws.Favorites.List()); err != nil {
		return
	}

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case s := <-updates:
			if err := h.writeEvent(w, rc, s); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *FavoritesHandler) writeEvent(w http.ResponseWriter, rc *http.ResponseController, s favorites.State) error {
	payload, err := json.Marshal(h.toFavoritesResponse(s))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: favorites\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return rc.Flush()
}

func (h *FavoritesHandler) toFavoritesResponse(s favorites.State) favoritesResponse {
	return favoritesResponse{
		Favorites: toMovieResponses(s, h.images),
		Count:     len(s),
	}
}

func (h *FavoritesHandler) record(action string) {
	if h.metrics != nil {
		h.metrics.RecordFavoriteChange(action)
	}
}
