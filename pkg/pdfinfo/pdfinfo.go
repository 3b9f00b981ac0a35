// Package pdfinfo reads basic facts about a compiled PDF.
package pdfinfo

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const previewLen = 200

// Info describes a PDF file on disk.
type Info struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Pages   int    `json:"pages"`
	Preview string `json:"preview,omitempty"`
}

// Inspect opens the PDF at path and reports its size, page count and a
// short text preview of the first page. The preview is best effort.
func Inspect(path string) (*Info, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	st, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}

	info := &Info{
		Path:  path,
		Size:  st.Size(),
		Pages: reader.NumPage(),
	}
	if info.Pages > 0 {
		info.Preview = preview(reader)
	}
	return info, nil
}

func preview(reader *pdf.Reader) (text string) {
	// Text extraction panics on some malformed content streams.
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()

	page := reader.Page(1)
	if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
		return ""
	}
	content, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	text = strings.Join(strings.Fields(content), " ")
	if len(text) > previewLen {
		text = text[:previewLen]
	}
	return text
}

// HumanSize formats a byte count for display.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
