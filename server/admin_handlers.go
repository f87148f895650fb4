package server

import (
	"context"
	"net/http"

	"github.com/stokaro/trustboard/admin"
	"github.com/stokaro/trustboard/directory"
	"github.com/stokaro/trustboard/forum"
)

const msgBadCommentID = "잘못된 댓글 ID"

func (s *Server) adminListPosts(w http.ResponseWriter, r *http.Request) error {
	posts, err := s.deps.Forum.ListAll(r.Context())
	if err != nil {
		return err
	}
	s.ok(w, envelope{"posts": posts})
	return nil
}

func (s *Server) adminEditPost(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, forum.MsgBadPostID)
	if err != nil {
		return err
	}
	var in struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	if err := s.deps.Forum.Edit(r.Context(), id, in.Title, in.Content); err != nil {
		return err
	}
	s.ok(w, nil)
	return nil
}

func (s *Server) adminDeletePost(w http.ResponseWriter, r *http.Request) error {
	return s.postAction(w, r, s.deps.Forum.Delete)
}

func (s *Server) adminHidePost(w http.ResponseWriter, r *http.Request) error {
	return s.postAction(w, r, s.deps.Forum.Hide)
}

func (s *Server) adminUnhidePost(w http.ResponseWriter, r *http.Request) error {
	return s.postAction(w, r, s.deps.Forum.Unhide)
}

func (s *Server) postAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id int64) error) error {
	id, err := pathID(r, forum.MsgBadPostID)
	if err != nil {
		return err
	}
	if err := action(r.Context(), id); err != nil {
		return err
	}
	s.ok(w, nil)
	return nil
}

func (s *Server) adminDeleteComment(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, msgBadCommentID)
	if err != nil {
		return err
	}
	if err := s.deps.Forum.DeleteComment(r.Context(), id); err != nil {
		return err
	}
	s.ok(w, nil)
	return nil
}

func (s *Server) adminListUsers(w http.ResponseWriter, r *http.Request) error {
	users, err := s.deps.Admin.Users(r.Context())
	if err != nil {
		return err
	}
	s.ok(w, envelope{"users": users})
	return nil
}

func (s *Server) adminToggleAdmin(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, admin.MsgBadUserID)
	if err != nil {
		return err
	}
	actor, _ := currentUser(r)
	isAdmin, err := s.deps.Admin.ToggleAdmin(r.Context(), actor, id)
	if err != nil {
		return err
	}
	s.ok(w, envelope{"is_admin": isAdmin})
	return nil
}

func (s *Server) adminDeleteUser(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, admin.MsgBadUserID)
	if err != nil {
		return err
	}
	actor, _ := currentUser(r)
	if err := s.deps.Admin.DeleteUser(r.Context(), actor, id); err != nil {
		return err
	}
	s.ok(w, nil)
	return nil
}

func (s *Server) adminListCompanies(w http.ResponseWriter, r *http.Request) error {
	companies, err := s.deps.Directory.ListAll(r.Context())
	if err != nil {
		return err
	}
	s.ok(w, envelope{"companies": companies})
	return nil
}

func (s *Server) adminUpdateCompany(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, directory.MsgBadCompanyID)
	if err != nil {
		return err
	}
	var in companyBody
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	if err := s.deps.Directory.Update(r.Context(), id, in.input()); err != nil {
		return err
	}
	s.ok(w, nil)
	return nil
}

func (s *Server) adminDeleteCompany(w http.ResponseWriter, r *http.Request) error {
	return s.companyAction(w, r, s.deps.Directory.Delete)
}

func (s *Server) adminUncertifyCompany(w http.ResponseWriter, r *http.Request) error {
	return s.companyAction(w, r, s.deps.Directory.Uncertify)
}

func (s *Server) adminCertifyCompany(w http.ResponseWriter, r *http.Request) error {
	actor, _ := currentUser(r)
	return s.companyAction(w, r, func(ctx context.Context, id int64) error {
		return s.deps.Directory.Certify(ctx, id, actor.Username)
	})
}

func (s *Server) companyAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id int64) error) error {
	id, err := pathID(r, directory.MsgBadCompanyID)
	if err != nil {
		return err
	}
	if err := action(r.Context(), id); err != nil {
		return err
	}
	s.ok(w, nil)
	return nil
}

func (s *Server) adminModerate(w http.ResponseWriter, r *http.Request) error {
	var in struct {
		Posts  []flexInt `json:"posts"`
		Action string    `json:"action"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	ids := make([]int64, 0, len(in.Posts))
	for _, id := range in.Posts {
		ids = append(ids, int64(id))
	}
	affected, err := s.deps.Admin.Moderate(r.Context(), ids, in.Action)
	if err != nil {
		return err
	}
	s.ok(w, envelope{"affected": affected})
	return nil
}
