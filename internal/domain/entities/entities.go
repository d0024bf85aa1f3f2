package entities

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Common errors
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrItemNotFound    = errors.New("item not found")
	ErrInvalidDocument = errors.New("invalid document")
	ErrUnknownDocument = errors.New("unknown document")
	ErrUnauthorized    = errors.New("unauthorized")
)

// Enums and types
type ItemType string

const (
	ItemTypeApp    ItemType = "App"
	ItemTypeGame   ItemType = "Game"
	ItemTypeDriver ItemType = "Driver"
)

type DocumentKey string

const (
	DocumentItems  DocumentKey = "items"
	DocumentConfig DocumentKey = "config"
	DocumentStats  DocumentKey = "stats"
)

// AllDocuments lists every persisted document.
var AllDocuments = []DocumentKey{DocumentItems, DocumentConfig, DocumentStats}

// Valid reports whether k names one of the persisted documents.
func (k DocumentKey) Valid() bool {
	switch k {
	case DocumentItems, DocumentConfig, DocumentStats:
		return true
	}
	return false
}

// ItemID is the creation timestamp (unix seconds) of an item.
//
// Older clients sent ids as JSON strings, so decoding accepts "123" as well
// as 123. Encoding always produces a number.
type ItemID int64

// UnmarshalJSON implements json.Unmarshaler.
func (id *ItemID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*id = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}

	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*id = ItemID(v)
		return nil
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		return fmt.Errorf("%w: item id %s is not an integer", ErrInvalidInput, string(data))
	}
	*id = ItemID(f)
	return nil
}

func (id ItemID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Item represents a downloadable catalog entry
type Item struct {
	ID          ItemID   `json:"id"`
	Name        string   `json:"name"`
	Type        ItemType `json:"type"`
	Icon        string   `json:"icon"`
	Rating      float64  `json:"rating"`
	RatingCount int      `json:"ratingCount"`
	Downloads   int      `json:"downloads"`
	ReleaseDate string   `json:"releaseDate"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Likes       int      `json:"likes"`
	Dislikes    int      `json:"dislikes"`
	RatedBy     []string `json:"ratedBy,omitempty"`
}

// SiteConfig is the admin-editable site configuration document
type SiteConfig struct {
	AdminPass    string `json:"adminPass"`
	SiteTitle    string `json:"siteTitle"`
	AboutContent string `json:"aboutContent"`
}

// Stats holds the site-wide counters
type Stats struct {
	Visitors       int `json:"visitors"`
	TotalDownloads int `json:"totalDownloads"`
}

// Vote bounds
const (
	MinVote = 1
	MaxVote = 5
)

// ValidateVote checks a single rating submission.
func ValidateVote(val int, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: missing userId", ErrInvalidInput)
	}
	if val < MinVote || val > MaxVote {
		return fmt.Errorf("%w: rating must be %d..%d", ErrInvalidInput, MinVote, MaxVote)
	}
	return nil
}

// RoundRating rounds a mean to two decimal places, half away from zero.
func RoundRating(v float64) float64 {
	return math.Round(v*100) / 100
}

// Business logic methods for Item

// HasRated reports whether userID already voted on the item.
func (i *Item) HasRated(userID string) bool {
	for _, id := range i.RatedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// ApplyVote folds val into the running mean and records userID. It returns
// false without touching the item when userID has already voted.
func (i *Item) ApplyVote(val int, userID string) bool {
	if i.HasRated(userID) {
		return false
	}

	oldCount := i.RatingCount
	newCount := oldCount + 1
	mean := (i.Rating*float64(oldCount) + float64(val)) / float64(newCount)

	i.Rating = RoundRating(mean)
	i.RatingCount = newCount
	i.RatedBy = append(i.RatedBy, userID)
	return true
}

// ResetStats zeroes every per-item counter and forgets who voted.
func (i *Item) ResetStats() {
	i.Rating = 0
	i.RatingCount = 0
	i.Downloads = 0
	i.Likes = 0
	i.Dislikes = 0
	i.RatedBy = nil
}

// itemFields holds the exact JSON names of the Item fields.
var itemFields = jsonFieldNames(reflect.TypeOf(Item{}))

func jsonFieldNames(t reflect.Type) map[string]bool {
	names := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			names[name] = true
		}
	}
	return names
}

// Merge returns a copy of the item with the supplied JSON fields laid over
// it. Any field may be replaced, counters included. Keys are matched exactly,
// so "Name" is not "name"; keys that are not item fields are dropped.
func (i Item) Merge(fields map[string]json.RawMessage) (Item, error) {
	current, err := json.Marshal(i)
	if err != nil {
		return i, fmt.Errorf("encode item: %w", err)
	}

	merged := make(map[string]json.RawMessage, len(fields)+13)
	if err := json.Unmarshal(current, &merged); err != nil {
		return i, fmt.Errorf("decode item: %w", err)
	}
	for k, v := range fields {
		if itemFields[k] {
			merged[k] = v
		}
	}

	body, err := json.Marshal(merged)
	if err != nil {
		return i, fmt.Errorf("encode merged item: %w", err)
	}

	var out Item
	if err := json.Unmarshal(body, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return i, fmt.Errorf("%w: %s has the wrong type", ErrInvalidInput, typeErr.Field)
		}
		return i, fmt.Errorf("%w: invalid item fields", ErrInvalidInput)
	}
	return out, nil
}

// FindItem returns the index of the first item with the given id, or -1.
func FindItem(items []Item, id ItemID) int {
	for idx := range items {
		if items[idx].ID == id {
			return idx
		}
	}
	return -1
}

// RemoveItems drops every item with the given id and reports how many went.
func RemoveItems(items []Item, id ItemID) ([]Item, int) {
	kept := make([]Item, 0, len(items))
	for _, it := range items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	return kept, len(items) - len(kept)
}

// Defaults describes the documents written when a store is first touched
type Defaults struct {
	SiteTitle    string
	AboutContent string
}

// Document returns a fresh default value for key.
func (d Defaults) Document(key DocumentKey) (interface{}, error) {
	switch key {
	case DocumentItems:
		return []Item{}, nil
	case DocumentConfig:
		return SiteConfig{
			AdminPass:    "",
			SiteTitle:    d.SiteTitle,
			AboutContent: d.AboutContent,
		}, nil
	case DocumentStats:
		return Stats{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDocument, key)
}

// CheckShape verifies that data is well-formed JSON of the container kind
// expected for key: an array for items, an object for config and stats.
func CheckShape(key DocumentKey, data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return ErrInvalidDocument
	}

	want := byte('{')
	if key == DocumentItems {
		want = '['
	}
	if trimmed[0] != want {
		return fmt.Errorf("%w: %s is not a JSON %s", ErrInvalidDocument, key, shapeName(want))
	}
	return nil
}

func shapeName(b byte) string {
	if b == '[' {
		return "array"
	}
	return "object"
}
