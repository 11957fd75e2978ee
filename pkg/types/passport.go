package types

import "time"

// QRCodeLog records a QR code issued for a product version. The URL points at
// the public passport view.
type QRCodeLog struct {
	QRID      string    `json:"qr_id"`
	ProductID string    `json:"product_id"`
	VersionID string    `json:"version_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// PublicNode is the read-only, nested form of a trace record in the public
// passport view.
type PublicNode struct {
	TraceID          string           `json:"trace_id"`
	MaterialName     string           `json:"material_name"`
	MaterialType     MaterialType     `json:"material_type"`
	Tier             int              `json:"tier"`
	OriginCountry    string           `json:"origin_country"`
	ComplianceStatus ComplianceStatus `json:"compliance_status"`
	IsRecycled       bool             `json:"is_recycled_material"`
	ConflictMinerals bool             `json:"conflict_minerals_flag"`
	Children         []PublicNode     `json:"children,omitempty"`
}

// PublicDppData is the public, read-only projection of a product passport.
type PublicDppData struct {
	ProductID        string                   `json:"product_id"`
	GeneratedAt      time.Time                `json:"generated_at"`
	MaterialCount    int                      `json:"material_count"`
	StatusCounts     map[ComplianceStatus]int `json:"status_counts"`
	VerifiedShare    float64                  `json:"verified_share"`
	RecycledCount    int                      `json:"recycled_count"`
	ConflictMinerals int                      `json:"conflict_minerals_count"`
	Origins          []string                 `json:"origin_countries"`
	Materials        []PublicNode             `json:"materials"`
}
