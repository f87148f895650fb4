// Package directory implements the company directory: listings, reviews,
// reports and certification.
package directory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/stokaro/trustboard/core/apperr"
	"github.com/stokaro/trustboard/core/clock"
	"github.com/stokaro/trustboard/core/sanitize"
	"github.com/stokaro/trustboard/store"
)

const (
	MsgBadCategory     = "잘못된 카테고리입니다"
	MsgBadType         = "잘못된 업체 분류입니다"
	MsgMissingFields   = "필수 정보가 누락되었습니다"
	MsgNotFound        = "업체를 찾을 수 없습니다"
	MsgBadReviewType   = "잘못된 리뷰 타입입니다"
	MsgEmptyReview     = "내용을 입력해주세요."
	MsgBadCompanyID    = "잘못된 업체 ID"
	MsgCertifySafeOnly = "정상업체만 인증할 수 있습니다."
)

// Field limits in runes.
const (
	NameMaxLen        = 100
	WebsiteMaxLen     = 200
	PhoneMaxLen       = 50
	MessengerMaxLen   = 50
	MessengerIDMaxLen = 100
	DescriptionMaxLen = 1000
	ReviewMaxLen      = 1000
	SearchMaxLen      = 100
	MinRating         = 0
	MaxRating         = 5
)

// Company types.
const (
	TypeSafe  = store.CompanyTypeSafe
	TypeFraud = "fraud"
	TypeOther = "other"
)

// Label pairs a stored value with its display name.
type Label struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Categories and Types are listed in display order.
var (
	Categories = []Label{
		{"payment", "소액결제"},
		{"credit", "신용카드"},
		{"scam", "사기사이트"},
		{"other", "기타"},
	}
	Types = []Label{
		{TypeSafe, "정상업체"},
		{TypeFraud, "사기업체"},
		{TypeOther, "기타"},
	}
)

// Meta is the label catalogue served to clients.
type Meta struct {
	Categories []Label `json:"categories"`
	Types      []Label `json:"types"`
}

// Labels returns the label catalogue.
func Labels() Meta {
	return Meta{Categories: Categories, Types: Types}
}

// CategoryLabel returns the display name of a category, or the value itself
// when it is unknown.
func CategoryLabel(v string) string {
	return lookup(Categories, v)
}

// TypeLabel returns the display name of a company type.
func TypeLabel(v string) string {
	return lookup(Types, v)
}

func lookup(labels []Label, v string) string {
	for _, l := range labels {
		if l.Value == v {
			return l.Label
		}
	}
	return v
}

func values(labels []Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.Value
	}
	return out
}

// Repository is the storage the service needs.
type Repository interface {
	CreateCompany(ctx context.Context, f store.CompanyFields, writer string) (int64, error)
	ListCompanies(ctx context.Context, f store.CompanyFilter) ([]store.Company, error)
	CompanyByID(ctx context.Context, id int64) (store.Company, bool, error)
	UpdateCompany(ctx context.Context, id int64, f store.CompanyFields) (bool, error)
	DeleteCompany(ctx context.Context, id int64) (bool, error)
	CertifyCompany(ctx context.Context, id int64, by string, at time.Time) (bool, error)
	UncertifyCompany(ctx context.Context, id int64) (bool, error)
	CreateReview(ctx context.Context, r store.NewReview) (int64, error)
	ReviewsByCompany(ctx context.Context, companyID int64, limit int) ([]store.Review, error)
}

// Service implements the directory operations.
type Service struct {
	repo   Repository
	clock  clock.Clock
	logger *slog.Logger
}

// NewService creates the directory service.
func NewService(repo Repository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{repo: repo, clock: clk, logger: slog.Default()}
}

// WithLogger sets the logger for the service
func (s *Service) WithLogger(l *slog.Logger) *Service {
	tmp := *s
	tmp.logger = l
	return &tmp
}

// CompanyInput is a company as submitted by a client.
type CompanyInput struct {
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

// Create stores a company. The writer is always the session user.
func (s *Service) Create(ctx context.Context, writer string, in CompanyInput) (int64, error) {
	fields, err := normalizeCompany(in)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.CreateCompany(ctx, fields, writer)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	s.logger.Info("Company created", "id", id, "writer", writer, "type", fields.Type)
	return id, nil
}

// Query narrows a company listing. Empty fields do not filter.
type Query struct {
	Category string
	Type     string
	Search   string
}

// List returns matching companies newest first.
func (s *Service) List(ctx context.Context, q Query) ([]store.Company, error) {
	category, ok := sanitize.Filter(filterValue(q.Category), values(Categories)...)
	if !ok {
		return nil, apperr.Validation(MsgBadCategory)
	}
	typ, ok := sanitize.Filter(filterValue(q.Type), values(Types)...)
	if !ok {
		return nil, apperr.Validation(MsgBadType)
	}

	companies, err := s.repo.ListCompanies(ctx, store.CompanyFilter{
		Category: category,
		Type:     typ,
		Search:   sanitize.Text(q.Search, SearchMaxLen),
		Limit:    store.MaxPublicCompanies,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return companies, nil
}

// "all" is what listing pages send for an unfiltered tab.
func filterValue(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), "all") {
		return ""
	}
	return v
}

// Get returns a company with its reviews newest first.
func (s *Service) Get(ctx context.Context, id int64) (store.Company, []store.Review, error) {
	company, err := s.company(ctx, id)
	if err != nil {
		return store.Company{}, nil, err
	}
	reviews, err := s.repo.ReviewsByCompany(ctx, id, 0)
	if err != nil {
		return store.Company{}, nil, apperr.Internal(err)
	}
	return company, reviews, nil
}

// ReviewInput is a review or report as submitted by a client.
type ReviewInput struct {
	ReviewType string
	Rating     *int
	Content    string
}

// AddReview stores a review on a company. Reports carry no rating and bump
// the company's report count.
func (s *Service) AddReview(ctx context.Context, companyID int64, writer string, in ReviewInput) (int64, error) {
	reviewType, ok := sanitize.OneOf(in.ReviewType, store.ReviewTypeReview, store.ReviewTypeReview, store.ReviewTypeReport)
	if !ok {
		return 0, apperr.Validation(MsgBadReviewType)
	}
	content := sanitize.Text(in.Content, ReviewMaxLen)
	if content == "" {
		return 0, apperr.Validation(MsgEmptyReview)
	}

	var rating *int
	if reviewType == store.ReviewTypeReview && in.Rating != nil {
		r := clamp(*in.Rating, 1, MaxRating)
		rating = &r
	}

	if _, err := s.company(ctx, companyID); err != nil {
		return 0, err
	}

	id, err := s.repo.CreateReview(ctx, store.NewReview{
		CompanyID:  companyID,
		ReviewType: reviewType,
		Rating:     rating,
		Content:    content,
		Writer:     writer,
	})
	if err != nil {
		return 0, apperr.Internal(err)
	}
	if reviewType == store.ReviewTypeReport {
		s.logger.Info("Company reported", "companyId", companyID, "writer", writer)
	}
	return id, nil
}

// ListAll returns companies for the admin console.
func (s *Service) ListAll(ctx context.Context) ([]store.Company, error) {
	companies, err := s.repo.ListCompanies(ctx, store.CompanyFilter{Limit: store.MaxAdminCompanies})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return companies, nil
}

// CompaniesBy returns the companies writer registered.
func (s *Service) CompaniesBy(ctx context.Context, writer string) ([]store.Company, error) {
	companies, err := s.repo.ListCompanies(ctx, store.CompanyFilter{Writer: writer, Limit: store.MaxMyPageEntries})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return companies, nil
}

// Update replaces the editable fields of a company.
func (s *Service) Update(ctx context.Context, id int64, in CompanyInput) error {
	fields, err := normalizeCompany(in)
	if err != nil {
		return err
	}
	found, err := s.repo.UpdateCompany(ctx, id, fields)
	if err != nil {
		return apperr.Internal(err)
	}
	if !found {
		return apperr.NotFound(MsgNotFound)
	}
	return nil
}

// Delete removes a company together with its reviews.
func (s *Service) Delete(ctx context.Context, id int64) error {
	found, err := s.repo.DeleteCompany(ctx, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if !found {
		return apperr.NotFound(MsgNotFound)
	}
	s.logger.Info("Company deleted", "id", id)
	return nil
}

// Certify marks a safe company as certified by admin.
func (s *Service) Certify(ctx context.Context, id int64, admin string) error {
	company, err := s.company(ctx, id)
	if err != nil {
		return err
	}
	if company.Type != TypeSafe {
		return apperr.InvalidOperation(MsgCertifySafeOnly)
	}
	found, err := s.repo.CertifyCompany(ctx, id, admin, s.clock.Now())
	if err != nil {
		return apperr.Internal(err)
	}
	if !found {
		return apperr.NotFound(MsgNotFound)
	}
	s.logger.Info("Company certified", "id", id, "by", admin)
	return nil
}

// Uncertify clears the certification of a company.
func (s *Service) Uncertify(ctx context.Context, id int64) error {
	found, err := s.repo.UncertifyCompany(ctx, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if !found {
		return apperr.NotFound(MsgNotFound)
	}
	return nil
}

func (s *Service) company(ctx context.Context, id int64) (store.Company, error) {
	company, found, err := s.repo.CompanyByID(ctx, id)
	if err != nil {
		return store.Company{}, apperr.Internal(err)
	}
	if !found {
		return store.Company{}, apperr.NotFound(MsgNotFound)
	}
	return company, nil
}

func normalizeCompany(in CompanyInput) (store.CompanyFields, error) {
	f := store.CompanyFields{
		Name:        sanitize.Text(in.Name, NameMaxLen),
		Category:    strings.TrimSpace(in.Category),
		Type:        strings.TrimSpace(in.Type),
		Website:     sanitize.Text(in.Website, WebsiteMaxLen),
		Phone:       sanitize.Text(in.Phone, PhoneMaxLen),
		Messenger:   sanitize.Text(in.Messenger, MessengerMaxLen),
		MessengerID: sanitize.Text(in.MessengerID, MessengerIDMaxLen),
		Description: sanitize.Text(in.Description, DescriptionMaxLen),
		Rating:      clamp(in.Rating, MinRating, MaxRating),
	}
	if f.Name == "" || f.Category == "" || f.Type == "" {
		return store.CompanyFields{}, apperr.Validation(MsgMissingFields)
	}
	if _, ok := sanitize.OneOf(f.Category, "", values(Categories)...); !ok {
		return store.CompanyFields{}, apperr.Validation(MsgBadCategory)
	}
	if _, ok := sanitize.OneOf(f.Type, "", values(Types)...); !ok {
		return store.CompanyFields{}, apperr.Validation(MsgBadType)
	}
	return f, nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
