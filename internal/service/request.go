package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/media"
	apperrors "github.com/utafrali/catalogcore/pkg/errors"
	"github.com/utafrali/catalogcore/pkg/validator"
)

// ImageList is an image field that clients send either as one string or
// as a list of strings. It is normalized to a list when decoded.
type ImageList []string

// UnmarshalJSON accepts a JSON string, an array of strings, or null.
func (l *ImageList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ImageList{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = ImageList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("images must be a string or a list of strings: %w", err)
	}
	*l = ImageList(list)
	return nil
}

// CreateProductRequest is the input of CatalogService.CreateProduct.
// Specifications are JSON-encoded {"title","description"} objects.
type CreateProductRequest struct {
	Name           string    `json:"name" validate:"required,max=200"`
	Description    string    `json:"description" validate:"required"`
	Price          float64   `json:"price" validate:"gte=0"`
	CuttedPrice    float64   `json:"cutted_price" validate:"gte=0"`
	Category       string    `json:"category" validate:"required"`
	Stock          int       `json:"stock" validate:"gte=0"`
	Warranty       int       `json:"warranty" validate:"gte=0"`
	Highlights     []string  `json:"highlights"`
	Specifications []string  `json:"specifications"`
	Images         ImageList `json:"images" validate:"min=1"`
	BrandName      string    `json:"brand_name" validate:"required"`
	Logo           string    `json:"logo" validate:"required"`
}

// UpdateProductRequest is the input of CatalogService.UpdateProduct. Nil
// fields are left unchanged. A present Images field replaces the whole
// image set, even when empty; an empty Logo keeps the current logo.
type UpdateProductRequest struct {
	Name           *string    `json:"name" validate:"omitempty,min=1,max=200"`
	Description    *string    `json:"description"`
	Price          *float64   `json:"price" validate:"omitempty,gte=0"`
	CuttedPrice    *float64   `json:"cutted_price" validate:"omitempty,gte=0"`
	Category       *string    `json:"category" validate:"omitempty,min=1"`
	Stock          *int       `json:"stock" validate:"omitempty,gte=0"`
	Warranty       *int       `json:"warranty" validate:"omitempty,gte=0"`
	Highlights     []string   `json:"highlights"`
	Specifications []string   `json:"specifications"`
	Images         *ImageList `json:"images"`
	BrandName      *string    `json:"brand_name" validate:"omitempty,min=1"`
	Logo           string     `json:"logo"`
}

// parseSpecifications decodes each JSON-encoded specification entry.
func parseSpecifications(raws []string) ([]domain.Specification, error) {
	specs := make([]domain.Specification, 0, len(raws))
	for i, raw := range raws {
		var s domain.Specification
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return nil, apperrors.InvalidInput(fmt.Sprintf("specification %d is not a valid JSON object", i))
		}
		if err := validator.ValidateInput(s); err != nil {
			return nil, apperrors.Wrap(err, fmt.Sprintf("specification %d", i))
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// createInput is a CreateProductRequest decoded past the boundary.
type createInput struct {
	specs  []domain.Specification
	images []media.Payload
	logo   media.Payload
}

func (r *CreateProductRequest) decode() (*createInput, error) {
	if err := validator.ValidateInput(r); err != nil {
		return nil, err
	}
	specs, err := parseSpecifications(r.Specifications)
	if err != nil {
		return nil, err
	}
	images, err := media.ParsePayloads(r.Images)
	if err != nil {
		return nil, err
	}
	logo, err := media.ParsePayload(r.Logo)
	if err != nil {
		return nil, apperrors.Wrap(err, "logo")
	}
	return &createInput{specs: specs, images: images, logo: logo}, nil
}

// updateInput is an UpdateProductRequest decoded past the boundary.
type updateInput struct {
	specs  []domain.Specification
	assets media.Update
}

func (r *UpdateProductRequest) decode() (*updateInput, error) {
	if err := validator.ValidateInput(r); err != nil {
		return nil, err
	}
	in := &updateInput{}
	if r.Specifications != nil {
		specs, err := parseSpecifications(r.Specifications)
		if err != nil {
			return nil, err
		}
		in.specs = specs
	}
	if r.Images != nil {
		images, err := media.ParsePayloads(*r.Images)
		if err != nil {
			return nil, err
		}
		in.assets.ReplaceImages = true
		in.assets.Images = images
	}
	if r.Logo != "" {
		logo, err := media.ParsePayload(r.Logo)
		if err != nil {
			return nil, apperrors.Wrap(err, "logo")
		}
		in.assets.Logo = &logo
	}
	return in, nil
}

// applyFields copies the scalar fields of r onto p.
func (r *UpdateProductRequest) applyFields(p *domain.Product, in *updateInput) {
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.CuttedPrice != nil {
		p.CuttedPrice = *r.CuttedPrice
	}
	if r.Category != nil {
		p.Category = *r.Category
	}
	if r.Stock != nil {
		p.Stock = *r.Stock
	}
	if r.Warranty != nil {
		p.Warranty = *r.Warranty
	}
	if r.Highlights != nil {
		p.Highlights = append([]string(nil), r.Highlights...)
	}
	if r.Specifications != nil {
		p.Specifications = in.specs
	}
	if r.BrandName != nil {
		p.Brand.Name = *r.BrandName
	}
}
