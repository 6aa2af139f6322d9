package gallery

import (
	"encoding/base64"
	"fmt"

	"Dreamy/core"
)

const downloadName = "generated_image"

// Rendered is the display form of one artifact. DataURI embeds the exact
// stored bytes so the download is identical to what was generated.
type Rendered struct {
	Index       int
	ContentType string
	DataURI     string
	FileName    string
	Size        int
}

func Render(images []core.Artifact) []Rendered {
	rendered := make([]Rendered, len(images))
	for i, img := range images {
		contentType := img.ContentType()
		rendered[i] = Rendered{
			Index:       i + 1,
			ContentType: contentType,
			DataURI:     "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(img),
			FileName:    FileName(i+1, contentType),
			Size:        len(img),
		}
	}
	return rendered
}

// FileName numbers downloads so several images saved from one page do not
// overwrite each other
func FileName(index int, contentType string) string {
	return fmt.Sprintf("%s_%d%s", downloadName, index, extension(contentType))
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	return ".png"
}
