package backend

import "time"

// envelope is the wrapper every backend response uses
type envelope[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error,omitempty"`
}

// Session is returned by a successful admin login
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// User is the admin account behind a session
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ContactInfo is the company contact block shown in the footer and contact page
type ContactInfo struct {
	Phone        string `json:"phone" validate:"required,max=40"`
	Email        string `json:"email" validate:"required,email"`
	Address      string `json:"address" validate:"required,max=300"`
	WhatsApp     string `json:"whatsapp,omitempty" validate:"omitempty,max=40"`
	WorkingHours string `json:"working_hours,omitempty" validate:"omitempty,max=120"`
	MapURL       string `json:"map_url,omitempty" validate:"omitempty,url"`
}

// OtherPage is a free-form content page editable from the admin panel
type OtherPage struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title" validate:"required,max=200"`
	Content   string    `json:"content" validate:"required"`
	Published bool      `json:"published"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Product is a catalogue entry
type Product struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// Post is a blog article
type Post struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt"`
	Content     string    `json:"content,omitempty"`
	CoverURL    string    `json:"cover_url"`
	PublishedAt time.Time `json:"published_at"`
}

// Infrastructure describes the company's plants and equipment
type Infrastructure struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Items       []InfrastructureItem `json:"items"`
}

// InfrastructureItem is one facility or machine
type InfrastructureItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}
