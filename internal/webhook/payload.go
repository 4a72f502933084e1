package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LeadPayload is the delivery wire format. The signature covers the exact
// serialized bytes, so the payload is marshaled once at delivery creation
// and stored verbatim.
type LeadPayload struct {
	Event        string            `json:"event"`
	Lead         Lead              `json:"lead"`
	Campaign     CampaignInfo      `json:"campaign"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
	Timestamp    string            `json:"timestamp"`
}

type Lead struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	LinkedInID  string `json:"linkedInId"`
	LinkedInURL string `json:"linkedInUrl"`
	Company     string `json:"company,omitempty"`
	Title       string `json:"title,omitempty"`
	Source      string `json:"source"`
	CapturedAt  string `json:"capturedAt"`
}

type CampaignInfo struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	LeadMagnetName string `json:"leadMagnetName,omitempty"`
}

// NewLeadPayload builds and serializes the canonical body for a captured
// lead. The returned bytes are what gets signed and POSTed.
func NewLeadPayload(lead Lead, campaign CampaignInfo, custom map[string]string, now time.Time) ([]byte, error) {
	payload := LeadPayload{
		Event:        "lead.captured",
		Lead:         lead,
		Campaign:     campaign,
		CustomFields: custom,
		Timestamp:    now.UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling lead payload: %w", err)
	}
	return body, nil
}

// SplitName is a best-effort first/last split of a display name.
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// ToMailchimpFields maps a lead to Mailchimp merge-field naming.
// Pure mapping, no side effects.
func ToMailchimpFields(lead Lead) map[string]any {
	return map[string]any{
		"email_address": lead.Email,
		"status":        "subscribed",
		"merge_fields": map[string]string{
			"FNAME":    lead.FirstName,
			"LNAME":    lead.LastName,
			"COMPANY":  lead.Company,
			"LINKEDIN": lead.LinkedInURL,
		},
	}
}

// ToConvertKitFields maps a lead to ConvertKit subscriber naming.
// Pure mapping, no side effects.
func ToConvertKitFields(lead Lead) map[string]any {
	return map[string]any{
		"email":      lead.Email,
		"first_name": lead.FirstName,
		"fields": map[string]string{
			"last_name":    lead.LastName,
			"company":      lead.Company,
			"linkedin_url": lead.LinkedInURL,
			"source":       lead.Source,
		},
	}
}
