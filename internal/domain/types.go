package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// MediaType is the declared encoding of an uploaded wine list photo.
type MediaType string

const (
	MediaTypeJPEG MediaType = "image/jpeg"
	MediaTypePNG  MediaType = "image/png"
	MediaTypeWebP MediaType = "image/webp"
	MediaTypeGIF  MediaType = "image/gif"
)

// MediaTypes is the closed set of image encodings the reasoning service accepts.
var MediaTypes = []MediaType{MediaTypeJPEG, MediaTypePNG, MediaTypeWebP, MediaTypeGIF}

func (m MediaType) Valid() bool {
	return slices.Contains(MediaTypes, m)
}

// Category is a wine style tag used to restrict which wines are reported.
type Category string

const (
	CategoryAll       Category = "all"
	CategoryRed       Category = "red"
	CategoryWhite     Category = "white"
	CategoryRose      Category = "rose"
	CategorySparkling Category = "sparkling"
	CategoryDessert   Category = "dessert"
)

// Categories lists every accepted filter value, including the "all" sentinel.
var Categories = []Category{
	CategoryAll, CategoryRed, CategoryWhite, CategoryRose, CategorySparkling, CategoryDessert,
}

func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// Label returns the human-facing spelling of the category. Only prompt text
// uses it; filter matching always compares raw tags.
func (c Category) Label() string {
	if c == CategoryRose {
		return "rosé"
	}
	return string(c)
}

// Descriptors is the grounded tasting vocabulary the service may rate.
var Descriptors = []string{
	"acidic", "mineral", "tannic", "full-bodied", "medium-bodied", "light-bodied",
	"oaky", "dry", "sweet", "off-dry", "crisp", "smooth", "fruity", "earthy",
	"spicy", "floral", "herbaceous", "buttery", "chalky", "rich", "bright",
	"bold", "delicate", "refreshing", "complex", "simple",
}

type TastingNote struct {
	Descriptor string `json:"descriptor"`
	Rating     int    `json:"rating"`
}

// UnmarshalJSON accepts any JSON number for rating, rounding fractions to the
// nearest whole point.
func (n *TastingNote) UnmarshalJSON(data []byte) error {
	var raw struct {
		Descriptor string      `json:"descriptor"`
		Rating     json.Number `json:"rating"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	n.Descriptor = raw.Descriptor
	n.Rating = 0
	if raw.Rating != "" {
		f, err := raw.Rating.Float64()
		if err != nil {
			return fmt.Errorf("rating %q: %w", raw.Rating, err)
		}
		n.Rating = int(math.Round(f))
	}
	return nil
}

type Wine struct {
	Name         string        `json:"name"`
	Price        string        `json:"price"`
	Vibe         string        `json:"vibe,omitempty"`
	RegionNotes  string        `json:"regionNotes"`
	TastingNotes []TastingNote `json:"tastingNotes"`
	Story        string        `json:"story"`
}

// UnmarshalJSON accepts price as a string or a bare number. A number keeps
// its literal text, so 14.50 stays "14.50".
func (w *Wine) UnmarshalJSON(data []byte) error {
	type plain Wine
	var raw struct {
		plain
		Price json.RawMessage `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	price, err := priceText(raw.Price)
	if err != nil {
		return err
	}
	*w = Wine(raw.plain)
	w.Price = price
	return nil
}

func priceText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	switch c := raw[0]; {
	case c == '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case c == '-' || (c >= '0' && c <= '9'):
		return string(raw), nil
	default:
		return "", fmt.Errorf("price must be a string or number, got %s", raw)
	}
}

// AnalysisRequest carries one photo through the pipeline. It is never stored.
type AnalysisRequest struct {
	Image       string // base64
	MediaType   MediaType
	Categories  []Category
	AllowLookup bool
}

// Filtered reports whether the request restricts wines to specific categories.
// An empty set or one containing CategoryAll means no filtering.
func (r AnalysisRequest) Filtered() bool {
	return len(r.Categories) > 0 && !slices.Contains(r.Categories, CategoryAll)
}
