package proxy

import (
	"bytes"
	"image"
	"image/png"

	_ "image/gif"  // decoder registration
	_ "image/jpeg" // decoder registration

	_ "golang.org/x/image/webp"
)

// reencodeImage re-encodes a relayed raster image to PNG, which drops EXIF
// and any other embedded metadata before the bytes reach the viewer. WebP
// input is covered by the x/image decoder. GIFs pass through untouched
// (re-encoding would lose animation), as does anything undecodable.
func reencodeImage(body []byte, declared string) ([]byte, string) {
	if len(body) == 0 {
		return body, declared
	}
	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil || format == "gif" {
		return body, declared
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return body, declared
	}
	return buf.Bytes(), "image/png"
}
