package server

import (
	"net/http"

	"github.com/stokaro/trustboard/core/apperr"
	"github.com/stokaro/trustboard/directory"
)

// companyBody is the JSON form of a company. Any writer field a client
// sends is ignored.
type companyBody struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Type        string  `json:"type"`
	Website     string  `json:"website"`
	Phone       string  `json:"phone"`
	Messenger   string  `json:"messenger"`
	MessengerID string  `json:"messenger_id"`
	Description string  `json:"description"`
	Rating      flexInt `json:"rating"`
}

func (b companyBody) input() directory.CompanyInput {
	return directory.CompanyInput{
		Name:        b.Name,
		Category:    b.Category,
		Type:        b.Type,
		Website:     b.Website,
		Phone:       b.Phone,
		Messenger:   b.Messenger,
		MessengerID: b.MessengerID,
		Description: b.Description,
		Rating:      int(b.Rating),
	}
}

func (s *Server) companyMeta(w http.ResponseWriter, _ *http.Request) error {
	meta := directory.Labels()
	s.ok(w, envelope{"categories": meta.Categories, "types": meta.Types})
	return nil
}

func (s *Server) listCompanies(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	companies, err := s.deps.Directory.List(r.Context(), directory.Query{
		Category: q.Get("category"),
		Type:     q.Get("type"),
		Search:   q.Get("search"),
	})
	if err != nil {
		return err
	}
	s.ok(w, envelope{"companies": companies})
	return nil
}

func (s *Server) createCompany(w http.ResponseWriter, r *http.Request) error {
	var in companyBody
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	u, _ := currentUser(r)
	id, err := s.deps.Directory.Create(r.Context(), u.Username, in.input())
	if err != nil {
		return err
	}
	s.ok(w, envelope{"id": id})
	return nil
}

func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, directory.MsgBadCompanyID)
	if err != nil {
		return err
	}
	company, reviews, err := s.deps.Directory.Get(r.Context(), id)
	if err != nil {
		return err
	}
	s.ok(w, envelope{"company": company, "reviews": reviews})
	return nil
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, directory.MsgBadCompanyID)
	if err != nil {
		return err
	}
	var in struct {
		ReviewType string   `json:"review_type"`
		Rating     *flexInt `json:"rating"`
		Content    string   `json:"content"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	u, _ := currentUser(r)
	reviewID, err := s.deps.Directory.AddReview(r.Context(), id, u.Username, directory.ReviewInput{
		ReviewType: in.ReviewType,
		Rating:     in.Rating.ptr(),
		Content:    in.Content,
	})
	if err != nil {
		return err
	}
	s.ok(w, envelope{"id": reviewID})
	return nil
}

func (s *Server) latestCompanies(w http.ResponseWriter, r *http.Request) error {
	companies, err := s.deps.Latest.Companies(r.Context())
	if err != nil {
		return apperr.Internal(err)
	}
	s.ok(w, envelope{"companies": companies})
	return nil
}

func (s *Server) myCompanies(w http.ResponseWriter, r *http.Request) error {
	u, _ := currentUser(r)
	companies, err := s.deps.Directory.CompaniesBy(r.Context(), u.Username)
	if err != nil {
		return err
	}
	s.ok(w, envelope{"companies": companies})
	return nil
}
