package store

import "time"

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	Created      time.Time `json:"created"`
}

// Post is a forum post. CommentCount is filled by listings only.
type Post struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Category     string    `json:"category"`
	Writer       string    `json:"writer"`
	Created      time.Time `json:"created"`
	IsHidden     bool      `json:"is_hidden"`
	Attachments  []string  `json:"attachments"`
	CommentCount int64     `json:"comment_count"`
}

// NewPost holds the fields of a post being created.
type NewPost struct {
	Title       string
	Content     string
	Category    string
	Writer      string
	Attachments []string
}

// PostFilter narrows post listings.
type PostFilter struct {
	Category      string
	Writer        string
	IncludeHidden bool
	Limit         int
}

// Comment is a reply to a post. PostTitle is filled by the my page listing.
type Comment struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	Content   string    `json:"content"`
	Writer    string    `json:"writer"`
	Created   time.Time `json:"created"`
	PostTitle string    `json:"post_title,omitempty"`
}

// Company is a directory entry.
type Company struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Category    string     `json:"category"`
	Type        string     `json:"type"`
	Website     string     `json:"website"`
	Phone       string     `json:"phone"`
	Messenger   string     `json:"messenger"`
	MessengerID string     `json:"messenger_id"`
	Description string     `json:"description"`
	Rating      int        `json:"rating"`
	ReportCount int64      `json:"report_count"`
	Writer      string     `json:"writer"`
	Created     time.Time  `json:"created"`
	IsCertified bool       `json:"is_certified"`
	CertifiedBy *string    `json:"certified_by"`
	CertifiedAt *time.Time `json:"certified_at"`
}

// CompanyFields are the editable fields of a company.
type CompanyFields struct {
	Name        string
	Category    string
	Type        string
	Website     string
	Phone       string
	Messenger   string
	MessengerID string
	Description string
	Rating      int
}

// CompanyFilter narrows company listings. Search matches name or description
// as a case-insensitive substring.
type CompanyFilter struct {
	Category string
	Type     string
	Search   string
	Writer   string
	Limit    int
}

// Review is a review or report left on a company.
type Review struct {
	ID         int64     `json:"id"`
	CompanyID  int64     `json:"company_id"`
	ReviewType string    `json:"review_type"`
	Rating     *int      `json:"rating"`
	Content    string    `json:"content"`
	Writer     string    `json:"writer"`
	Created    time.Time `json:"created"`
}

// NewReview holds the fields of a review being created.
type NewReview struct {
	CompanyID  int64
	ReviewType string
	Rating     *int
	Content    string
	Writer     string
}

// Review types.
const (
	ReviewTypeReview = "review"
	ReviewTypeReport = "report"
)

// CompanyTypeSafe is the only company type that can be certified.
const CompanyTypeSafe = "safe"

// SitemapEntry is an id with its creation time.
type SitemapEntry struct {
	ID      int64
	Created time.Time
}
