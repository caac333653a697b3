package service

import (
	"encoding/base64"
	"pet-arena/internal/domain"
	"strings"
)

// parseDataURI decodes a base64 data URI. The MIME type is image/png when the
// header names it and image/jpeg otherwise.
func parseDataURI(uri string) (*domain.Blob, bool) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, false
	}
	if i := strings.IndexByte(payload, ','); i >= 0 {
		payload = payload[:i]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, false
		}
	}
	mime := "image/jpeg"
	if strings.Contains(header, "image/png") {
		mime = "image/png"
	}
	return &domain.Blob{MIMEType: mime, Data: data}, true
}

func encodeDataURI(b *domain.Blob) string {
	return "data:" + b.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

// FormatHistory turns a stored editing session into generation turns. Only
// user turns may carry images; any part that is neither text nor a usable
// image becomes an empty text part so turn shapes are preserved.
func FormatHistory(history []domain.HistoryItem) []domain.Turn {
	turns := make([]domain.Turn, 0, len(history)+1)
	for _, item := range history {
		parts := make([]domain.Part, 0, len(item.Parts))
		for _, p := range item.Parts {
			switch {
			case p.Text != "":
				parts = append(parts, domain.Part{Text: p.Text})
			case p.Image != "" && item.Role == domain.RoleUser:
				if blob, ok := parseDataURI(p.Image); ok {
					parts = append(parts, domain.Part{InlineData: blob})
				} else {
					parts = append(parts, domain.Part{})
				}
			default:
				parts = append(parts, domain.Part{})
			}
		}
		turns = append(turns, domain.Turn{Role: item.Role, Parts: parts})
	}
	return turns
}

// sanitizeName keeps the first line of a model answer, strips quoting and
// markdown emphasis, and caps it at two words.
func sanitizeName(raw string) string {
	line := strings.TrimSpace(raw)
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	line = strings.Trim(line, " \t\"'*`.")
	words := strings.Fields(line)
	if len(words) > 2 {
		words = words[:2]
	}
	return strings.Join(words, " ")
}
