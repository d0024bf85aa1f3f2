package ports

import (
	"context"
	"encoding/json"

	"github.com/osamaflash/catalog/internal/domain/entities"
)

// CatalogService interface for item and counter operations
type CatalogService interface {
	List(ctx context.Context) (*CatalogSnapshot, error)
	Document(ctx context.Context, key entities.DocumentKey) (interface{}, error)
	AddItem(ctx context.Context, req AddItemRequest) (entities.ItemID, error)
	UpdateItem(ctx context.Context, req UpdateItemRequest) (bool, error)
	DeleteItem(ctx context.Context, id entities.ItemID) (int, error)
	IncrementDownload(ctx context.Context, id entities.ItemID) error
	IncrementVisitor(ctx context.Context) error
	RateItem(ctx context.Context, req RateItemRequest) (*RateResult, error)
	ResetItemStats(ctx context.Context, id entities.ItemID) (bool, error)
}

// AdminService interface for site configuration and admin authentication
type AdminService interface {
	Authenticate(ctx context.Context, password string) (bool, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	ValidateToken(tokenString string) (*AdminClaims, error)
	UpdateConfig(ctx context.Context, req UpdateConfigRequest) error
	SetPassword(ctx context.Context, password string, hash bool) error
}

// CatalogEvents receives notifications about catalog activity
type CatalogEvents interface {
	ItemAdded()
	ItemsDeleted(n int)
	Downloaded(found bool)
	Rated(result string)
	Visited()
}

// Rating outcomes reported to CatalogEvents
const (
	RateAccepted     = "accepted"
	RateAlreadyRated = "already_rated"
	RateRejected     = "rejected"
	RateNotFound     = "not_found"
)

// NopEvents discards every event
type NopEvents struct{}

func (NopEvents) ItemAdded() {}
func (NopEvents) ItemsDeleted(int) {}
func (NopEvents) Downloaded(bool) {}
func (NopEvents) Rated(string) {}
func (NopEvents) Visited() {}

// AdminClaims is the subject of an admin bearer token
type AdminClaims struct {
	Subject   string
	TokenID   string
	ExpiresAt int64
}

// Request/Response DTOs

// CatalogSnapshot is everything the front-end needs in one round trip
type CatalogSnapshot struct {
	Items  []entities.Item     `json:"items"`
	Stats  entities.Stats      `json:"stats"`
	Config entities.SiteConfig `json:"config"`
}

type AddItemRequest struct {
	Name        string            `json:"name" validate:"required,max=200"`
	Type        entities.ItemType `json:"type" validate:"omitempty,oneof=App Game Driver"`
	Icon        string            `json:"icon"`
	ReleaseDate string            `json:"releaseDate"`
	Description string            `json:"description"`
	URL         string            `json:"url"`
}

// UpdateItemRequest carries the raw fields to merge over an existing item.
type UpdateItemRequest struct {
	ID     entities.ItemID            `validate:"required"`
	Fields map[string]json.RawMessage `validate:"-"`
}

type ItemRequest struct {
	ID entities.ItemID `json:"id" validate:"required"`
}

type RateItemRequest struct {
	ID     entities.ItemID `json:"id" validate:"required"`
	Val    int             `json:"val" validate:"min=1,max=5"`
	UserID string          `json:"userId" validate:"required"`
}

// RateResult carries the new rating and count on success. An already-rated
// reply is just {success:false, alreadyRated:true}.
type RateResult struct {
	Success      bool    `json:"success"`
	AlreadyRated bool    `json:"alreadyRated,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
	RatingCount  int     `json:"ratingCount,omitempty"`
}

// LoginRequest keeps Password nil when the key is absent; an absent
// password never matches, not even an empty stored one.
type LoginRequest struct {
	Password *string `json:"password"`
}

type LoginResult struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
}

// UpdateConfigRequest uses pointers so absent keys are left untouched.
type UpdateConfigRequest struct {
	AdminPass    *string `json:"adminPass"`
	SiteTitle    *string `json:"siteTitle"`
	AboutContent *string `json:"aboutContent"`
}
