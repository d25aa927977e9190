// Package marketing holds the dashboard's domain records and the contract
// of the data service that stores them.
package marketing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("marketing: not found")
	ErrConflict     = errors.New("marketing: conflict")
	ErrInvalidInput = errors.New("marketing: invalid input")
	ErrNoOwner      = errors.New("marketing: no signed-in owner")
)

// AssetKind names one of the reusable building blocks of a campaign. The
// value doubles as the table name.
type AssetKind string

const (
	KindProducts  AssetKind = "products"
	KindAudiences AssetKind = "audiences"
	KindExperts   AssetKind = "experts"
)

// AssetKinds lists every kind in display order.
func AssetKinds() []AssetKind {
	return []AssetKind{KindProducts, KindAudiences, KindExperts}
}

func (k AssetKind) Valid() bool {
	switch k {
	case KindProducts, KindAudiences, KindExperts:
		return true
	}
	return false
}

// ParseAssetKind validates a kind taken from user input.
func ParseAssetKind(s string) (AssetKind, error) {
	k := AssetKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown asset kind %q", ErrInvalidInput, s)
	}
	return k, nil
}

// ContentType classifies generated content.
type ContentType string

const (
	ContentEmail   ContentType = "email"
	ContentMessage ContentType = "message"
	ContentStatic  ContentType = "static"
	ContentUGC     ContentType = "ugc"
	ContentGeneric ContentType = "content"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentEmail, ContentMessage, ContentStatic, ContentUGC, ContentGeneric:
		return true
	}
	return false
}

// ParseContentType validates a content type taken from user input.
func ParseContentType(s string) (ContentType, error) {
	t := ContentType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown content type %q", ErrInvalidInput, s)
	}
	return t, nil
}

// DefaultTitle is used when generated content is saved without a title.
func (t ContentType) DefaultTitle() string {
	switch t {
	case ContentEmail:
		return "E-mail Marketing"
	case ContentMessage:
		return "Mensagem"
	case ContentStatic:
		return "Anúncio Estático"
	case ContentUGC:
		return "Roteiro UGC"
	default:
		return "Conteúdo"
	}
}

const CampaignActive = "active"

// Campaign ties a product, an audience and an expert to an objective.
// The *Name fields are filled on reads.
type Campaign struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	Objective    string    `json:"objective,omitempty"`
	ProductID    string    `json:"product_id,omitempty"`
	AudienceID   string    `json:"audience_id,omitempty"`
	ExpertID     string    `json:"expert_id,omitempty"`
	ProductName  string    `json:"product_name,omitempty"`
	AudienceName string    `json:"audience_name,omitempty"`
	ExpertName   string    `json:"expert_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c Campaign) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: campaign name is required", ErrInvalidInput)
	}
	if c.ProductID == "" || c.AudienceID == "" || c.ExpertID == "" {
		return fmt.Errorf("%w: campaign needs a product, an audience and an expert", ErrInvalidInput)
	}
	return nil
}

// CampaignDetail is a campaign with its assets expanded.
type CampaignDetail struct {
	Campaign
	Product  *Asset `json:"product,omitempty"`
	Audience *Asset `json:"audience,omitempty"`
	Expert   *Asset `json:"expert,omitempty"`
}

// GeneratedContent is an AI output the user chose to keep. Content holds
// the raw JSON returned by the content API.
type GeneratedContent struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	CampaignID   *string         `json:"campaign_id"`
	CampaignName string          `json:"campaign_name,omitempty"`
	Type         ContentType     `json:"type"`
	Title        string          `json:"title"`
	Content      json.RawMessage `json:"content"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (g GeneratedContent) validate() error {
	if !g.Type.Valid() {
		return fmt.Errorf("%w: unknown content type %q", ErrInvalidInput, g.Type)
	}
	if len(g.Content) == 0 || !json.Valid(g.Content) {
		return fmt.Errorf("%w: content must be a JSON document", ErrInvalidInput)
	}
	return nil
}

// ContentFilter narrows a content listing. Zero fields match everything.
type ContentFilter struct {
	Type       ContentType
	CampaignID string
}

// KnowledgeFile is a document uploaded to the knowledge base.
type KnowledgeFile struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// BrandVoice describes how generated copy should sound.
type BrandVoice struct {
	UserID      string    `json:"user_id"`
	Tags        []string  `json:"tags"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}
