package images

import (
	"fmt"
	"image"

	"github.com/bbrks/go-blurhash"
)

// blurHashSize is the longest side of the thumbnail a BlurHash is computed
// from. The hash is a low-resolution placeholder, so a small thumbnail gives
// nearly the same result in a fraction of the time.
const blurHashSize = 64

// BlurHash encodes img with 4x3 components.
func BlurHash(img image.Image) (string, error) {
	hash, err := blurhash.Encode(4, 3, Thumbnail(img, blurHashSize))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}
