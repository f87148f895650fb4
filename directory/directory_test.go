package directory_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"golang.org/x/sync/errgroup"

	"github.com/stokaro/trustboard/core/apperr"
	"github.com/stokaro/trustboard/core/clock"
	"github.com/stokaro/trustboard/dbschema"
	"github.com/stokaro/trustboard/directory"
	"github.com/stokaro/trustboard/migration/migrations"
	"github.com/stokaro/trustboard/migration/migrator"
	"github.com/stokaro/trustboard/store"
)

var epoch = time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)

func newService(c *qt.C) (*directory.Service, *clock.FakeClock) {
	ctx := context.Background()

	conn, err := dbschema.ConnectToDatabase(filepath.Join(c.TempDir(), "directory.db"))
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = conn.Close() })

	provider, err := migrations.Provider(conn.Dialect())
	c.Assert(err, qt.IsNil)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	c.Assert(migrator.NewMigrator(conn, provider).WithLogger(quiet).MigrateUp(ctx), qt.IsNil)

	clk := clock.Fake(epoch)
	return directory.NewService(store.New(conn, clk), clk).WithLogger(quiet), clk
}

func safeCompany(name string) directory.CompanyInput {
	return directory.CompanyInput{
		Name:        name,
		Category:    "payment",
		Type:        directory.TypeSafe,
		Website:     "https://example.com",
		Description: "믿을 수 있는 소액결제 업체",
		Rating:      4,
	}
}

func TestCreateValidation(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	svc, _ := newService(c)

	tests := []struct {
		name   string
		mutate func(*directory.CompanyInput)
		msg    string
	}{
		{"missing name", func(in *directory.CompanyInput) { in.Name = "<b></b>" }, directory.MsgMissingFields},
		{"missing category", func(in *directory.CompanyInput) { in.Category = "" }, directory.MsgMissingFields},
		{"missing type", func(in *directory.CompanyInput) { in.Type = " " }, directory.MsgMissingFields},
		{"unknown category", func(in *directory.CompanyInput) { in.Category = "casino" }, directory.MsgBadCategory},
		{"unknown type", func(in *directory.CompanyInput) { in.Type = "trusted" }, directory.MsgBadType},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			in := safeCompany("acme")
			tt.mutate(&in)
			_, err := svc.Create(ctx, "alice", in)
			c.Assert(apperr.KindOf(err), qt.Equals, apperr.KindValidation)
			c.Assert(apperr.Message(err), qt.Equals, tt.msg)
		})
	}
}

func TestCreateClampsRating(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	svc, _ := newService(c)

	for _, tt := range []struct{ in, want int }{{-3, 0}, {3, 3}, {9, 5}} {
		in := safeCompany("acme")
		in.Rating = tt.in
		id, err := svc.Create(ctx, "alice", in)
		c.Assert(err, qt.IsNil)
		company, _, err := svc.Get(ctx, id)
		c.Assert(err, qt.IsNil)
		c.Assert(company.Rating, qt.Equals, tt.want, qt.Commentf("rating %d", tt.in))
		c.Assert(company.Writer, qt.Equals, "alice")
	}
}

func TestList(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	svc, clk := newService(c)

	_, err := svc.Create(ctx, "alice", safeCompany("Alpha Pay"))
	c.Assert(err, qt.IsNil)
	clk.Advance(time.Minute)
	fraud := safeCompany("Beta Loans")
	fraud.Category = "scam"
	fraud.Type = directory.TypeFraud
	fraud.Description = "선입금 요구"
	_, err = svc.Create(ctx, "bob", fraud)
	c.Assert(err, qt.IsNil)

	tests := []struct {
		name  string
		query directory.Query
		want  []string
	}{
		{"all newest first", directory.Query{}, []string{"Beta Loans", "Alpha Pay"}},
		{"all tab", directory.Query{Category: "all", Type: "ALL"}, []string{"Beta Loans", "Alpha Pay"}},
		{"by category", directory.Query{Category: "payment"}, []string{"Alpha Pay"}},
		{"by type", directory.Query{Type: directory.TypeFraud}, []string{"Beta Loans"}},
		{"search name", directory.Query{Search: "alpha"}, []string{"Alpha Pay"}},
		{"search description", directory.Query{Search: "선입금"}, []string{"Beta Loans"}},
		{"no match", directory.Query{Search: "zzz"}, []string{}},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			companies, err := svc.List(ctx, tt.query)
			c.Assert(err, qt.IsNil)
			names := []string{}
			for _, co := range companies {
				names = append(names, co.Name)
			}
			c.Assert(names, qt.DeepEquals, tt.want)
		})
	}

	_, err = svc.List(ctx, directory.Query{Type: "nope"})
	c.Assert(apperr.Message(err), qt.Equals, directory.MsgBadType)

	mine, err := svc.CompaniesBy(ctx, "bob")
	c.Assert(err, qt.IsNil)
	c.Assert(mine, qt.HasLen, 1)

	all, err := svc.ListAll(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 2)
}

func TestReviews(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	svc, clk := newService(c)

	id, err := svc.Create(ctx, "alice", safeCompany("acme"))
	c.Assert(err, qt.IsNil)

	ten := 10
	_, err = svc.AddReview(ctx, id, "bob", directory.ReviewInput{Rating: &ten, Content: "좋아요"})
	c.Assert(err, qt.IsNil)
	clk.Advance(time.Second)

	one := 1
	_, err = svc.AddReview(ctx, id, "carol", directory.ReviewInput{ReviewType: store.ReviewTypeReport, Rating: &one, Content: "연락 두절"})
	c.Assert(err, qt.IsNil)

	company, reviews, err := svc.Get(ctx, id)
	c.Assert(err, qt.IsNil)
	c.Assert(company.ReportCount, qt.Equals, int64(1))
	c.Assert(reviews, qt.HasLen, 2)
	c.Assert(reviews[0].ReviewType, qt.Equals, store.ReviewTypeReport)
	c.Assert(reviews[0].Rating, qt.IsNil)
	c.Assert(*reviews[1].Rating, qt.Equals, 5)

	_, err = svc.AddReview(ctx, id, "bob", directory.ReviewInput{ReviewType: "praise", Content: "x"})
	c.Assert(apperr.Message(err), qt.Equals, directory.MsgBadReviewType)
	_, err = svc.AddReview(ctx, id, "bob", directory.ReviewInput{Content: "  "})
	c.Assert(apperr.Message(err), qt.Equals, directory.MsgEmptyReview)
	_, err = svc.AddReview(ctx, 999, "bob", directory.ReviewInput{Content: "x"})
	c.Assert(apperr.KindOf(err), qt.Equals, apperr.KindNotFound)
}

func TestConcurrentReports(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	svc, _ := newService(c)

	id, err := svc.Create(ctx, "alice", safeCompany("acme"))
	c.Assert(err, qt.IsNil)

	const reports = 6
	var g errgroup.Group
	for i := 0; i < reports; i++ {
		g.Go(func() error {
			_, err := svc.AddReview(ctx, id, "reporter", directory.ReviewInput{ReviewType: store.ReviewTypeReport, Content: "사기"})
			return err
		})
	}
	c.Assert(g.Wait(), qt.IsNil)

	company, _, err := svc.Get(ctx, id)
	c.Assert(err, qt.IsNil)
	c.Assert(company.ReportCount, qt.Equals, int64(reports))
}

func TestCertification(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	svc, _ := newService(c)

	safeID, err := svc.Create(ctx, "alice", safeCompany("acme"))
	c.Assert(err, qt.IsNil)
	other := safeCompany("unknown")
	other.Type = directory.TypeOther
	otherID, err := svc.Create(ctx, "alice", other)
	c.Assert(err, qt.IsNil)

	err = svc.Certify(ctx, otherID, "admin")
	c.Assert(apperr.KindOf(err), qt.Equals, apperr.KindInvalidOperation)
	c.Assert(apperr.Message(err), qt.Equals, directory.MsgCertifySafeOnly)

	c.Assert(apperr.KindOf(svc.Certify(ctx, 999, "admin")), qt.Equals, apperr.KindNotFound)

	c.Assert(svc.Certify(ctx, safeID, "admin"), qt.IsNil)
	company, _, err := svc.Get(ctx, safeID)
	c.Assert(err, qt.IsNil)
	c.Assert(company.IsCertified, qt.IsTrue)
	c.Assert(*company.CertifiedBy, qt.Equals, "admin")
	c.Assert(company.CertifiedAt.Equal(epoch), qt.IsTrue)

	c.Assert(svc.Uncertify(ctx, safeID), qt.IsNil)
	company, _, err = svc.Get(ctx, safeID)
	c.Assert(err, qt.IsNil)
	c.Assert(company.IsCertified, qt.IsFalse)
	c.Assert(company.CertifiedBy, qt.IsNil)
	c.Assert(company.CertifiedAt, qt.IsNil)
}

func TestUpdateAndDelete(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	svc, _ := newService(c)

	id, err := svc.Create(ctx, "alice", safeCompany("acme"))
	c.Assert(err, qt.IsNil)

	in := safeCompany("acme corp")
	in.Rating = 42
	c.Assert(svc.Update(ctx, id, in), qt.IsNil)
	company, _, err := svc.Get(ctx, id)
	c.Assert(err, qt.IsNil)
	c.Assert(company.Name, qt.Equals, "acme corp")
	c.Assert(company.Rating, qt.Equals, directory.MaxRating)
	c.Assert(company.Writer, qt.Equals, "alice")

	c.Assert(apperr.KindOf(svc.Update(ctx, 999, in)), qt.Equals, apperr.KindNotFound)

	c.Assert(svc.Delete(ctx, id), qt.IsNil)
	_, _, err = svc.Get(ctx, id)
	c.Assert(apperr.Message(err), qt.Equals, directory.MsgNotFound)
	c.Assert(apperr.KindOf(svc.Delete(ctx, id)), qt.Equals, apperr.KindNotFound)
}

func TestLabels(t *testing.T) {
	c := qt.New(t)

	meta := directory.Labels()
	c.Assert(meta.Categories, qt.HasLen, 4)
	c.Assert(meta.Types, qt.HasLen, 3)
	c.Assert(directory.CategoryLabel("scam"), qt.Equals, "사기사이트")
	c.Assert(directory.TypeLabel(directory.TypeSafe), qt.Equals, "정상업체")
	c.Assert(directory.TypeLabel("mystery"), qt.Equals, "mystery")
}

func TestUpdateDropsCertification(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	svc, _ := newService(c)

	id, err := svc.Create(ctx, "alice", safeCompany("acme"))
	c.Assert(err, qt.IsNil)
	c.Assert(svc.Certify(ctx, id, "admin"), qt.IsNil)

	// an edit that keeps the company safe keeps the certification
	c.Assert(svc.Update(ctx, id, safeCompany("acme pay")), qt.IsNil)
	company, _, err := svc.Get(ctx, id)
	c.Assert(err, qt.IsNil)
	c.Assert(company.IsCertified, qt.IsTrue)
	c.Assert(*company.CertifiedBy, qt.Equals, "admin")

	fraud := safeCompany("acme pay")
	fraud.Type = directory.TypeFraud
	c.Assert(svc.Update(ctx, id, fraud), qt.IsNil)
	company, _, err = svc.Get(ctx, id)
	c.Assert(err, qt.IsNil)
	c.Assert(company.Type, qt.Equals, directory.TypeFraud)
	c.Assert(company.IsCertified, qt.IsFalse)
	c.Assert(company.CertifiedBy, qt.IsNil)
	c.Assert(company.CertifiedAt, qt.IsNil)
}
