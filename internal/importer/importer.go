// Package importer turns legacy visitor spreadsheets into bulk issuance
// batches.
package importer

import (
	"crypto/sha256"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/diagnosis/gatepass/internal/utils"
)

// Entry mirrors one element of the bulk issuance "entries" array.
type Entry struct {
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	RegisterNumber string `json:"register_number,omitempty"`
	Purpose        string `json:"purpose,omitempty"`
	Category       string `json:"visitor_category,omitempty"`
	EventName      string `json:"event_name,omitempty"`
	DateFrom       string `json:"date_of_visit_from,omitempty"`
	DateTo         string `json:"date_of_visit_to,omitempty"`
}

// Batch is the request body of POST /organiser/passes/bulk.
type Batch struct {
	EventID   string  `json:"event_id,omitempty"`
	EventName string  `json:"event_name,omitempty"`
	Category  string  `json:"visitor_category,omitempty"`
	Entries   []Entry `json:"entries"`
}

// RowError reports a spreadsheet row that was skipped. Line is 1-based and
// counts the header.
type RowError struct {
	Line    int
	Message string
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Message) }

var ErrNoHeader = errors.New("csv has no header row")

var aliases = map[string]string{
	"name":               "name",
	"full_name":          "name",
	"email":              "email",
	"phone":              "phone",
	"mobile":             "phone",
	"register_number":    "register_number",
	"reg_no":             "register_number",
	"purpose":            "purpose",
	"visitor_category":   "category",
	"category":           "category",
	"event_name":         "event_name",
	"event":              "event_name",
	"date_of_visit_from": "from",
	"date_of_visit_to":   "to",
	"date_of_visit":      "single",
}

// Result of reading a spreadsheet.
type Result struct {
	Entries []Entry
	Skipped []RowError
	// Digest identifies the file contents; batches derive idempotency keys from it.
	Digest string
}

// Read parses CSV with a header row. Unknown columns are ignored. Rows that
// only carry the legacy single date_of_visit get it as both window bounds.
func Read(r io.Reader) (*Result, error) {
	h := sha256.New()
	cr := csv.NewReader(io.TeeReader(r, h))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if field, ok := aliases[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["name"]; !ok {
		return nil, fmt.Errorf("csv header has no name column")
	}

	res := &Result{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, fmt.Errorf("failed to read csv: %w", err)
			}
			res.Skipped = append(res.Skipped, RowError{Line: perr.Line, Message: perr.Err.Error()})
			continue
		}
		line, _ := cr.FieldPos(0)
		get := func(field string) string {
			if i, ok := cols[field]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		if blank(rec) {
			continue
		}
		e := Entry{
			Name:           utils.NormalizeName(get("name")),
			Email:          utils.NormalizeEmail(get("email")),
			Phone:          utils.NormalizePhone(get("phone")),
			RegisterNumber: utils.NormalizeRegisterNumber(get("register_number")),
			Purpose:        get("purpose"),
			Category:       strings.ToLower(get("category")),
			EventName:      get("event_name"),
			DateFrom:       get("from"),
			DateTo:         get("to"),
		}
		if e.Name == "" {
			res.Skipped = append(res.Skipped, RowError{Line: line, Message: "name is empty"})
			continue
		}
		if single := get("single"); single != "" {
			if e.DateFrom == "" {
				e.DateFrom = single
			}
			if e.DateTo == "" {
				e.DateTo = single
			}
		}
		res.Entries = append(res.Entries, e)
	}

	res.Digest = fmt.Sprintf("%x", h.Sum(nil))
	return res, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Batches splits entries into chunks of at most size, keeping order.
func Batches(entries []Entry, size int) [][]Entry {
	if size <= 0 {
		size = len(entries)
	}
	var out [][]Entry
	for start := 0; start < len(entries); start += size {
		end := min(start+size, len(entries))
		out = append(out, entries[start:end])
	}
	return out
}

// IdempotencyKey is stable for a given file, target event and batch index,
// so re-running an interrupted import replays completed batches.
func IdempotencyKey(digest, eventID string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", digest, eventID, index)))
	return fmt.Sprintf("import-%x", sum[:16])
}
