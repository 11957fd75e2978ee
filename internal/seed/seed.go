// Package seed loads fixture data (suppliers and trace records) into a store
// through the compliance service, so fixtures obey the same rules as any
// other write.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/passport/internal/compliance"
	"github.com/mesh-intelligence/passport/pkg/types"
)

//go:embed fixtures/demo.yaml
var demo []byte

// Fixture is the on-disk seed format. Records must list parents before
// their children.
type Fixture struct {
	Suppliers []types.Supplier    `yaml:"suppliers"`
	Records   []types.TraceRecord `yaml:"records"`
}

// Result counts what a load created and skipped.
type Result struct {
	Suppliers int `json:"suppliers"`
	Records   int `json:"records"`
	Skipped   int `json:"skipped"`
}

// Demo returns the built-in demo fixture.
func Demo() (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(demo, &f); err != nil {
		return Fixture{}, fmt.Errorf("decode demo fixture: %w", err)
	}
	return f, nil
}

// Decode reads a fixture from r. Unknown fields are rejected.
func Decode(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	return f, nil
}

// Load writes the fixture through svc as an admin. Entities whose ID already
// exists are skipped, so loading the same fixture twice is harmless.
func Load(ctx context.Context, svc *compliance.Service, f Fixture) (Result, error) {
	var res Result
	for _, sup := range f.Suppliers {
		_, err := svc.AddSupplier(ctx, sup)
		switch {
		case errors.Is(err, types.ErrDuplicateID):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("seed supplier %s: %w", sup.SupplierID, err)
		default:
			res.Suppliers++
		}
	}
	for _, rec := range f.Records {
		_, err := svc.Create(ctx, types.RoleAdmin, rec)
		switch {
		case errors.Is(err, types.ErrDuplicateID):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("seed record %s: %w", rec.TraceID, err)
		default:
			res.Records++
		}
	}
	return res, nil
}
