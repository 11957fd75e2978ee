// Package export renders the public passport of a product as a printable
// PNG card.
package export

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/mesh-intelligence/passport/pkg/types"
)

const (
	width      = 900
	margin     = 40.0
	lineHeight = 22.0
	indent     = 24.0
	headerRows = 6
)

var (
	background = color.RGBA{0xfa, 0xfa, 0xf7, 0xff}
	ink        = color.RGBA{0x22, 0x22, 0x22, 0xff}
	muted      = color.RGBA{0x77, 0x77, 0x77, 0xff}
	accent     = color.RGBA{0x1f, 0x6f, 0x5c, 0xff}
)

var statusColors = map[types.ComplianceStatus]color.Color{
	types.StatusVerified: color.RGBA{0x2e, 0x9d, 0x52, 0xff},
	types.StatusPending:  color.RGBA{0xd9, 0x9a, 0x1e, 0xff},
	types.StatusRejected: color.RGBA{0xc6, 0x3b, 0x32, 0xff},
	types.StatusInvited:  color.RGBA{0x6b, 0x7f, 0xb5, 0xff},
}

// Renderer draws passports. The zero value uses the built-in bitmap font.
type Renderer struct {
	face font.Face
}

// NewRenderer returns a Renderer using the TrueType font at fontPath, or the
// built-in font when fontPath is empty.
func NewRenderer(fontPath string) (*Renderer, error) {
	if strings.TrimSpace(fontPath) == "" {
		return &Renderer{}, nil
	}
	face, err := loadFontFace(fontPath, 15)
	if err != nil {
		return nil, err
	}
	return &Renderer{face: face}, nil
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("read font file: %w", err)
	}
	parsed, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return truetype.NewFace(parsed, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}

type row struct {
	depth int
	node  types.PublicNode
}

func flatten(nodes []types.PublicNode, depth int, out []row) []row {
	for _, n := range nodes {
		out = append(out, row{depth, n})
		out = flatten(n.Children, depth+1, out)
	}
	return out
}

// PNG renders data as a PNG image: a summary header followed by the
// material tree, one line per material.
func (r *Renderer) PNG(data types.PublicDppData) ([]byte, error) {
	rows := flatten(data.Materials, 0, nil)
	height := int(2*margin + lineHeight*float64(headerRows+len(rows)+1))

	dc := gg.NewContext(width, height)
	dc.SetColor(background)
	dc.Clear()
	if r.face != nil {
		dc.SetFontFace(r.face)
	} else {
		dc.SetFontFace(basicfont.Face7x13)
	}

	y := margin + lineHeight
	dc.SetColor(accent)
	dc.DrawString("Digital Product Passport", margin, y)
	y += lineHeight
	dc.SetColor(ink)
	dc.DrawString("Product: "+data.ProductID, margin, y)
	y += lineHeight
	dc.SetColor(muted)
	dc.DrawString("Generated "+data.GeneratedAt.Format("2006-01-02 15:04 MST"), margin, y)
	y += lineHeight
	dc.SetColor(ink)
	dc.DrawString(fmt.Sprintf("%d materials, %.0f%% verified, %d recycled, %d conflict mineral flags",
		data.MaterialCount, data.VerifiedShare*100, data.RecycledCount, data.ConflictMinerals), margin, y)
	y += lineHeight
	dc.DrawString("Origins: "+strings.Join(data.Origins, ", "), margin, y)
	y += lineHeight

	dc.SetColor(muted)
	dc.SetLineWidth(1)
	dc.DrawLine(margin, y-lineHeight/2, width-margin, y-lineHeight/2)
	dc.Stroke()
	y += lineHeight / 2

	for _, rw := range rows {
		x := margin + indent*float64(rw.depth)
		dc.SetColor(statusColor(rw.node.ComplianceStatus))
		dc.DrawCircle(x+5, y-5, 5)
		dc.Fill()

		label := fmt.Sprintf("%s (%s, tier %d, %s) %s", rw.node.MaterialName, rw.node.MaterialType,
			rw.node.Tier, rw.node.OriginCountry, rw.node.ComplianceStatus)
		if rw.node.IsRecycled {
			label += " recycled"
		}
		if rw.node.ConflictMinerals {
			label += " conflict minerals"
		}
		dc.SetColor(ink)
		dc.DrawString(label, x+16, y)
		y += lineHeight
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func statusColor(s types.ComplianceStatus) color.Color {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return muted
}
