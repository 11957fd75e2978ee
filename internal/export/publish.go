package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/mesh-intelligence/passport/internal/blob"
	"github.com/mesh-intelligence/passport/pkg/types"
)

// Published lists where the artifacts of one product were written.
type Published struct {
	ProductID string `json:"product_id"`
	JSON      string `json:"json"`
	Image     string `json:"image"`
}

// Publish writes the public passport of a product to store as
// products/<id>/passport.json and products/<id>/passport.png.
func Publish(ctx context.Context, store blob.Store, r *Renderer, data types.PublicDppData) (Published, error) {
	prefix := path.Join("products", data.ProductID)

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return Published{}, fmt.Errorf("encode passport: %w", err)
	}
	jsonLoc, err := store.Put(ctx, prefix+"/passport.json", bytes.NewReader(raw), "application/json")
	if err != nil {
		return Published{}, fmt.Errorf("publish passport json: %w", err)
	}

	img, err := r.PNG(data)
	if err != nil {
		return Published{}, err
	}
	imgLoc, err := store.Put(ctx, prefix+"/passport.png", bytes.NewReader(img), "image/png")
	if err != nil {
		return Published{}, fmt.Errorf("publish passport image: %w", err)
	}
	return Published{ProductID: data.ProductID, JSON: jsonLoc, Image: imgLoc}, nil
}
