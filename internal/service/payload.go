package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ScanPayload is a validated check-in request.
type ScanPayload struct {
	TicketID string `json:"ticketId"`
	Token    string `json:"token"`
	EventID  string `json:"eventId,omitempty"`
}

func (p ScanPayload) validate() error {
	if p.TicketID == "" || p.Token == "" {
		return fmt.Errorf("%w: ticket id and token are required", ErrInvalidInput)
	}
	return nil
}

// Encode renders the structured form printed into QR codes.
func (p ScanPayload) Encode() string {
	b, _ := json.Marshal(ScanPayload{TicketID: p.TicketID, Token: p.Token})
	return string(b)
}

type scanBody struct {
	TicketID      string `json:"ticketId"`
	TicketIDSnake string `json:"ticket_id"`
	Token         string `json:"token"`
	EventID       string `json:"eventId"`
	EventIDSnake  string `json:"event_id"`
	QRData        string `json:"qrData"`
	Payload       string `json:"payload"`
}

// ParseScanPayload accepts, in order of preference:
//
//	{"ticketId": "...", "token": "...", "eventId": "..."}
//	{"qrData": "<structured JSON or id:token>", "eventId": "..."}
//	"id:token"            (JSON string)
//	id:token              (plain text body)
func ParseScanPayload(raw []byte) (ScanPayload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ScanPayload{}, fmt.Errorf("%w: empty payload", ErrInvalidInput)
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ScanPayload{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return parseScanString(s, "")
	case '{':
		var body scanBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return ScanPayload{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		eventID := firstNonEmpty(body.EventID, body.EventIDSnake)
		if inner := firstNonEmpty(body.QRData, body.Payload); inner != "" && body.Token == "" {
			return parseScanString(inner, eventID)
		}
		p := ScanPayload{
			TicketID: strings.TrimSpace(firstNonEmpty(body.TicketID, body.TicketIDSnake)),
			Token:    strings.TrimSpace(body.Token),
			EventID:  eventID,
		}
		return p, p.validate()
	default:
		return parseScanString(string(raw), "")
	}
}

// parseScanString decodes the contents of a QR code: structured JSON or
// the legacy "id:token" form.
func parseScanString(s, eventID string) (ScanPayload, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		var body scanBody
		if err := json.Unmarshal([]byte(s), &body); err != nil {
			return ScanPayload{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		p := ScanPayload{
			TicketID: strings.TrimSpace(firstNonEmpty(body.TicketID, body.TicketIDSnake)),
			Token:    strings.TrimSpace(body.Token),
			EventID:  firstNonEmpty(eventID, body.EventID, body.EventIDSnake),
		}
		return p, p.validate()
	}

	i := strings.LastIndex(s, ":")
	if i < 0 {
		return ScanPayload{}, fmt.Errorf("%w: expected ticketId:token", ErrInvalidInput)
	}
	p := ScanPayload{
		TicketID: strings.TrimSpace(s[:i]),
		Token:    strings.TrimSpace(s[i+1:]),
		EventID:  eventID,
	}
	return p, p.validate()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
