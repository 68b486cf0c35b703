// Package push delivers dose alerts through browser Web Push, both for the
// periodic background job and for alerts raised while the app is open.
package push

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gmsas95/dosekeeper/internal/schedule"
)

// Payload is the JSON body delivered to the device receiver
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Encode marshals the payload
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DeepLink builds the app URL that opens the schedule at one occurrence
func DeepLink(appURL, occurrenceID string) string {
	base := strings.TrimRight(appURL, "/")
	return base + "/schedule?occurrence=" + url.QueryEscape(occurrenceID)
}

// PayloadFor builds the background push for an occurrence
func PayloadFor(occ schedule.Occurrence, appURL string) Payload {
	part := string(occ.Daypart)
	if part != "" {
		part = strings.ToUpper(part[:1]) + part[1:]
	}
	body := fmt.Sprintf("%s dose", part)
	if occ.Dosage != "" {
		body = fmt.Sprintf("%s - %s", occ.Dosage, body)
	}
	return Payload{
		Title: fmt.Sprintf("Time to take %s", occ.MedicineName),
		Body:  body,
		Tag:   occ.ID,
		URL:   DeepLink(appURL, occ.ID),
	}
}
