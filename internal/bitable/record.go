package bitable

import (
	"encoding/json"
	"strings"
	"time"
)

// Record is the normalized bookmark shape produced from the heterogeneous
// remote field encodings.
type Record struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CreatedTime string   `json:"createdTime"`
}

// A field value arrives in one of several encodings depending on the table's
// field type: a plain string, an array of rich-text spans, a link object, or
// a number. Each decoder below matches the known variants exhaustively and
// falls back to "no value" for unrecognized shapes.

// textSpan is one element of a rich-text field value.
type textSpan struct {
	Text string `json:"text"`
}

// decodeText handles string and rich-text span array encodings.
func decodeText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var spans []textSpan
	if err := json.Unmarshal(raw, &spans); err == nil {
		var out string
		for _, sp := range spans {
			out += sp.Text
		}
		return out
	}
	return ""
}

// decodeLink handles link object and plain string encodings.
func decodeLink(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var link struct {
		Link string `json:"link"`
	}
	if err := json.Unmarshal(raw, &link); err == nil && link.Link != "" {
		return link.Link
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// decodeTags handles string array and comma-joined string encodings.
func decodeTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err == nil {
		return tags
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return strings.Split(s, ",")
	}
	return nil
}

// decodeCreatedTime handles millisecond-epoch numbers and preformatted
// strings; an unrecognized shape falls back to the current time.
func decodeCreatedTime(raw json.RawMessage, now func() time.Time) string {
	if len(raw) > 0 {
		var ms int64
		if err := json.Unmarshal(raw, &ms); err == nil {
			return time.UnixMilli(ms).UTC().Format(time.RFC3339)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return now().UTC().Format(time.RFC3339)
}

const untitled = "无标题"

// formatRecord normalizes one raw record.
func formatRecord(item recordItem) Record {
	title := decodeText(item.Fields[fieldTitle])
	if title == "" {
		title = untitled
	}
	return Record{
		ID:          item.RecordID,
		Title:       title,
		URL:         decodeLink(item.Fields[fieldURL]),
		Description: decodeText(item.Fields[fieldDescription]),
		Tags:        decodeTags(item.Fields[fieldTags]),
		CreatedTime: decodeCreatedTime(item.Fields[fieldCreatedTime], time.Now),
	}
}

func formatRecords(items []recordItem) []Record {
	records := make([]Record, len(items))
	for i, item := range items {
		records[i] = formatRecord(item)
	}
	return records
}
