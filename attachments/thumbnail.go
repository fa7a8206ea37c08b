package attachments

import (
	"bytes"
	"path"

	"github.com/disintegration/imaging"
)

const thumbnailWidth = 200

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

func generateThumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	thumbnail := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ThumbnailKey is where the preview of key lives: <dir>/thumbnails/<file>.
func ThumbnailKey(key string) string {
	return path.Join(path.Dir(key), "thumbnails", path.Base(key))
}
