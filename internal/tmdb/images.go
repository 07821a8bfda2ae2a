package tmdb

import "strings"

// ImageSize はTMDB画像のサイズ区分。値はTMDBの画像URLに埋め込むサイズ名。
type ImageSize string

const (
	SizePosterSmall ImageSize = "w500"
	SizeBackdrop    ImageSize = "w780"
	SizeOriginal    ImageSize = "original"
)

// PlaceholderImage は画像パスが無い映画に使う代替画像のパス。
const PlaceholderImage = "/placeholder-movie.jpg"

var imageSizeNames = map[string]ImageSize{
	"poster-small": SizePosterSmall,
	"backdrop":     SizeBackdrop,
	"original":     SizeOriginal,
}

// ParseImageSize はサイズ区分名（poster-small, backdrop, original）をImageSizeに変換する。
func ParseImageSize(name string) (ImageSize, bool) {
	size, ok := imageSizeNames[strings.ToLower(strings.TrimSpace(name))]
	return size, ok
}

// ImageURL は画像の相対パスとサイズから完全なURLを組み立てる。
// パスが空の場合はPlaceholderImageを返す。未知のサイズはポスターサイズとして扱う。
func ImageURL(imageBase, path string, size ImageSize) string {
	if path == "" {
		return PlaceholderImage
	}
	switch size {
	case SizePosterSmall, SizeBackdrop, SizeOriginal:
	default:
		size = SizePosterSmall
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(imageBase, "/") + "/" + string(size) + path
}
