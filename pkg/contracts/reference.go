package contracts

import "time"

// Reference is a methodology, project or baseline record in the reference
// registry. The engine stores RefIDs on actions and only consults the
// registry when RequireActiveReferences is set.
type Reference struct {
	ID         RefID     `json:"id"`
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	ContentRef string    `json:"content_ref,omitempty"`
	Active     bool      `json:"active"`
	UpdatedAt  time.Time `json:"updated_at"`
}
