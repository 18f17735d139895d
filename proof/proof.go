// Package proof models the opaque evidence records attached to milestone
// submissions and disputes. Binary storage lives elsewhere; settlement logic
// only inspects the metadata.
package proof

import "time"

const (
	TypePhoto    = "photo"
	TypeDocument = "document"
	TypeVideo    = "video"
)

type Proof struct {
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	FileRef    string         `json:"file_ref"`
	CapturedAt *time.Time     `json:"captured_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IsPhoto reports whether the proof is photographic evidence.
func (p Proof) IsPhoto() bool { return p.Type == TypePhoto }

// HasCaptureMetadata reports whether a photo carries both a capture timestamp
// and a geolocation. Photos without either are worth less as evidence.
func (p Proof) HasCaptureMetadata() bool {
	if p.CapturedAt == nil {
		return false
	}
	_, ok := p.Metadata["geolocation"]
	return ok
}

// CountPhotosMissingMetadata returns how many photo proofs lack capture
// metadata, together with the total photo count.
func CountPhotosMissingMetadata(proofs []Proof) (missing, photos int) {
	for _, p := range proofs {
		if !p.IsPhoto() {
			continue
		}
		photos++
		if !p.HasCaptureMetadata() {
			missing++
		}
	}
	return missing, photos
}
