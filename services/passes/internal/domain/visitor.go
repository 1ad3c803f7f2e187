package domain

import (
	"time"
)

type VisitorStatus string

const (
	StatusPending  VisitorStatus = "pending"
	StatusApproved VisitorStatus = "approved"
	StatusRevoked  VisitorStatus = "revoked"
)

func ParseVisitorStatus(s string) (VisitorStatus, bool) {
	switch VisitorStatus(s) {
	case StatusPending, StatusApproved, StatusRevoked:
		return VisitorStatus(s), true
	default:
		return "", false
	}
}

type VisitorCategory string

const (
	CategoryStudent VisitorCategory = "student"
	CategorySpeaker VisitorCategory = "speaker"
	CategoryVIP     VisitorCategory = "vip"
)

func ParseVisitorCategory(s string) (VisitorCategory, bool) {
	switch VisitorCategory(s) {
	case CategoryStudent, CategorySpeaker, CategoryVIP:
		return VisitorCategory(s), true
	default:
		return "", false
	}
}

// Presentation colours for QR codes. They carry no access meaning.
const (
	ColorStudent = "#007BFF"
	ColorSpeaker = "#FFB300"
	ColorVIP     = "#800000"
	ColorDefault = "#254A9A"
)

func QRColor(c VisitorCategory) string {
	switch c {
	case CategoryStudent:
		return ColorStudent
	case CategorySpeaker:
		return ColorSpeaker
	case CategoryVIP:
		return ColorVIP
	default:
		return ColorDefault
	}
}

type Visitor struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	RegisterNumber string          `json:"register_number,omitempty"`
	Purpose        string          `json:"purpose,omitempty"`
	Category       VisitorCategory `json:"visitor_category"`
	QRColor        string          `json:"qr_color"`
	EventID        *string         `json:"event_id,omitempty"`
	EventName      string          `json:"event_name"`
	Window         Window          `json:"window"`
	Status         VisitorStatus   `json:"status"`
	IssuedBy       *string         `json:"issued_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewVisitor is the validated, normalised input to VisitorRepository.Insert.
type NewVisitor struct {
	Name           string
	Email          string
	Phone          string
	RegisterNumber string
	Purpose        string
	Category       VisitorCategory
	QRColor        string
	EventID        *string
	EventName      string
	Window         Window
	Status         VisitorStatus
	IssuedBy       *string
}

// PassHolder is the display subset shown to the operator after a scan.
type PassHolder struct {
	Name           string          `json:"name"`
	Category       VisitorCategory `json:"visitor_category"`
	QRColor        string          `json:"qr_color"`
	EventName      string          `json:"event_name"`
	Window         Window          `json:"window"`
	RegisterNumber string          `json:"register_number,omitempty"`
}

func (v *Visitor) Holder() *PassHolder {
	return &PassHolder{
		Name:           v.Name,
		Category:       v.Category,
		QRColor:        v.QRColor,
		EventName:      v.EventName,
		Window:         v.Window,
		RegisterNumber: v.RegisterNumber,
	}
}

type IssueRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	RegisterNumber string `json:"register_number"`
	Purpose        string `json:"purpose"`
	Category       string `json:"visitor_category"`
	EventID        string `json:"event_id"`
	EventName      string `json:"event_name"`
	DateFrom       string `json:"date_of_visit_from"`
	DateTo         string `json:"date_of_visit_to"`
}

type IssuedPass struct {
	Visitor   *Visitor `json:"visitor"`
	VerifyURL string   `json:"verify_url"`
}

type BulkIssueRequest struct {
	EventID   string         `json:"event_id"`
	EventName string         `json:"event_name"`
	DateFrom  string         `json:"date_of_visit_from"`
	DateTo    string         `json:"date_of_visit_to"`
	Category  string         `json:"visitor_category"`
	Entries   []IssueRequest `json:"entries"`
}

type BulkFailure struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

type BulkResult struct {
	Requested int           `json:"requested"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Issued    []IssuedPass  `json:"issued"`
	Failures  []BulkFailure `json:"failures"`
}

type ListFilter struct {
	Status    *VisitorStatus
	EventName string
}
