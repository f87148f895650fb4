package server

import (
	"mime"
	"net/http"

	"github.com/stokaro/trustboard/core/apperr"
	"github.com/stokaro/trustboard/forum"
)

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) error {
	posts, err := s.deps.Forum.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		return err
	}
	s.ok(w, envelope{"posts": posts})
	return nil
}

// createPost accepts either a JSON body or a multipart form carrying
// attachment files.
func (s *Server) createPost(w http.ResponseWriter, r *http.Request) error {
	in, err := s.postInput(w, r)
	if err != nil {
		return err
	}
	u, _ := currentUser(r)
	id, err := s.deps.Forum.Create(r.Context(), u.Username, in)
	if err != nil {
		return err
	}
	s.ok(w, envelope{"id": id})
	return nil
}

func (s *Server) postInput(w http.ResponseWriter, r *http.Request) (forum.PostInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var body struct {
			Title    string `json:"title"`
			Content  string `json:"content"`
			Category string `json:"category"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			return forum.PostInput{}, err
		}
		return forum.PostInput{Title: body.Title, Content: body.Content, Category: body.Category}, nil
	}

	if s.deps.Uploads == nil {
		return forum.PostInput{}, apperr.Validation(msgBadRequest)
	}
	if err := s.deps.Uploads.ParseForm(w, r); err != nil {
		return forum.PostInput{}, err
	}
	paths, err := s.deps.Uploads.SaveForm(r)
	if err != nil {
		return forum.PostInput{}, err
	}
	return forum.PostInput{
		Title:       r.FormValue("title"),
		Content:     r.FormValue("content"),
		Category:    r.FormValue("category"),
		Attachments: paths,
	}, nil
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, forum.MsgBadPostID)
	if err != nil {
		return err
	}
	post, comments, err := s.deps.Forum.Get(r.Context(), id)
	if err != nil {
		return err
	}
	s.ok(w, envelope{"post": post, "comments": comments})
	return nil
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, forum.MsgBadPostID)
	if err != nil {
		return err
	}
	var in struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	u, _ := currentUser(r)
	comment, comments, err := s.deps.Forum.AddComment(r.Context(), id, u.Username, in.Content)
	if err != nil {
		return err
	}
	s.ok(w, envelope{"comment": comment, "comments": comments})
	return nil
}

func (s *Server) latestPosts(w http.ResponseWriter, r *http.Request) error {
	posts, err := s.deps.Latest.Posts(r.Context())
	if err != nil {
		return apperr.Internal(err)
	}
	s.ok(w, envelope{"posts": posts})
	return nil
}

func (s *Server) myPosts(w http.ResponseWriter, r *http.Request) error {
	u, _ := currentUser(r)
	posts, err := s.deps.Forum.PostsBy(r.Context(), u.Username)
	if err != nil {
		return err
	}
	s.ok(w, envelope{"posts": posts})
	return nil
}

func (s *Server) myComments(w http.ResponseWriter, r *http.Request) error {
	u, _ := currentUser(r)
	comments, err := s.deps.Forum.CommentsBy(r.Context(), u.Username)
	if err != nil {
		return err
	}
	s.ok(w, envelope{"comments": comments})
	return nil
}
