package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	Color                 string
	AvatarKey             string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Bond struct {
	ID           string
	Slug         string
	Name         string
	Issuer       string
	CouponPct    float64
	MaturityDate *time.Time
	Rating       string
	Summary      string
	Body         string
	Status       string
	UpdatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CryptoAsset struct {
	ID        string
	Slug      string
	Name      string
	Symbol    string
	Summary   string
	Body      string
	LogoKey   string
	Status    string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Stock struct {
	ID           string
	Slug         string
	Name         string
	Ticker       string
	Exchange     string
	Sector       string
	Summary      string
	Body         string
	HeroImageKey string
	Status       string
	UpdatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Newsletter struct {
	ID          string
	Slug        string
	Subject     string
	PreviewText string
	BodyHTML    string
	ScheduledAt *time.Time
	SentAt      *time.Time
	Status      string
	UpdatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Spotlight struct {
	ID        string
	Title     string
	ImageKey  string
	LinkURL   string
	Placement string
	StartsAt  *time.Time
	EndsAt    *time.Time
	SortOrder int
	Active    bool
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type LandingPage struct {
	ID              string
	Slug            string
	Title           string
	MetaDescription string
	BodyHTML        string
	PreviewKey      string
	Status          string
	PublishedAt     *time.Time
	UpdatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type PixelConfig struct {
	ID        string
	Provider  string
	PixelID   string
	Pages     []string
	Enabled   bool
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}
