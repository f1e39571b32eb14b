package careplan

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/carewizard/internal/platform/blobstore"
	"github.com/ehr/carewizard/internal/platform/formstate"
)

type stubSubmitter struct {
	err error
	got []*Payload
}

func (s *stubSubmitter) Submit(_ context.Context, p *Payload) (*Receipt, error) {
	s.got = append(s.got, p)
	if s.err != nil {
		return nil, s.err
	}
	return &Receipt{ID: "plan-1", CreatedAt: fixedNow}, nil
}

// failingBlobs rejects every upload after the first n.
type failingBlobs struct {
	*blobstore.InMemoryBlobStore
	allow int
}

func (f *failingBlobs) Upload(ctx context.Context, meta blobstore.BlobMetadata, content io.Reader) (*blobstore.BlobMetadata, error) {
	if f.allow == 0 {
		return nil, errors.New("storage unavailable")
	}
	f.allow--
	return f.InMemoryBlobStore.Upload(ctx, meta, content)
}

func pdf(name string) *formstate.Resource {
	return &formstate.Resource{Name: name, ContentType: "application/pdf", Data: []byte("%PDF-1.4")}
}

func preparedPayload(t *testing.T) *Payload {
	t.Helper()
	p, err := newTestPipeline(time.UTC).Prepare(validFields(), Meta{TenantID: "t1", ClientID: "c1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func ownedBlobs(t *testing.T, s blobstore.BlobStore, owner string) int {
	t.Helper()
	_, total, err := s.ListByOwner(context.Background(), owner, 100, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return total
}

func TestDispatch_UploadsAndPatches(t *testing.T) {
	blobs := blobstore.NewInMemoryBlobStore()
	sub := &stubSubmitter{}
	d := NewDispatcher(blobs, sub, AttachmentPath, zerolog.Nop())

	fields := validFields()
	fields["documentation_upload"] = pdf("report.pdf")
	fields["poa_upload"] = pdf("poa.pdf")
	fields["risk_management_plan_upload"] = pdf("plan.pdf")
	p := preparedPayload(t)

	receipt, err := d.Dispatch(context.Background(), p, fields, Meta{TenantID: "t1", ClientID: "c1", Actor: "nurse-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.ID != "plan-1" {
		t.Errorf("unexpected receipt: %+v", receipt)
	}
	if len(p.Attachments) != 3 {
		t.Fatalf("expected 3 attachments, got %d", len(p.Attachments))
	}
	byField := map[string]Attachment{}
	for _, a := range p.Attachments {
		byField[a.Field] = a
	}
	doc := byField["documentation_upload"]
	if p.MedicalInfo.MedicalReportUpload != AttachmentPath+doc.BlobID || doc.URL != p.MedicalInfo.MedicalReportUpload {
		t.Errorf("expected medical report URL patched, got %q", p.MedicalInfo.MedicalReportUpload)
	}
	if p.LegalRequirement.CertificateUpload != AttachmentPath+byField["poa_upload"].BlobID {
		t.Errorf("expected certificate URL patched, got %q", p.LegalRequirement.CertificateUpload)
	}
	if p.MovingHandling.RiskManagementPlan != "Uploaded" {
		t.Errorf("expected risk plan marked uploaded, got %q", p.MovingHandling.RiskManagementPlan)
	}

	meta, err := blobs.GetMetadata(context.Background(), doc.BlobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Owner != "t1/c1" || meta.Field != "documentation_upload" || meta.CreatedBy != "nurse-1" {
		t.Errorf("unexpected blob metadata: %+v", meta)
	}
}

func TestDispatch_SkipsRestoredDescriptor(t *testing.T) {
	blobs := blobstore.NewInMemoryBlobStore()
	d := NewDispatcher(blobs, &stubSubmitter{}, AttachmentPath, zerolog.Nop())

	fields := validFields()
	fields["id_upload"] = formstate.ResourceDescriptor{Name: "passport.png", Size: 10, Kind: "image/png", IsResourceMarker: true}
	p := preparedPayload(t)

	if _, err := d.Dispatch(context.Background(), p, fields, Meta{TenantID: "t1", ClientID: "c1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Attachments) != 0 || p.LegalRequirement.ConsentUpload != "" {
		t.Errorf("expected descriptor skipped, got %+v", p.Attachments)
	}
}

func TestDispatch_SubmitFailureRemovesBlobs(t *testing.T) {
	blobs := blobstore.NewInMemoryBlobStore()
	sub := &stubSubmitter{err: errors.New("backend down")}
	d := NewDispatcher(blobs, sub, AttachmentPath, zerolog.Nop())

	fields := validFields()
	fields["documentation_upload"] = pdf("report.pdf")
	fields["id_upload"] = pdf("id.pdf")

	_, err := d.Dispatch(context.Background(), preparedPayload(t), fields, Meta{TenantID: "t1", ClientID: "c1"})
	var de *DispatchError
	if !errors.As(err, &de) || de.Stage != "submit" {
		t.Fatalf("expected submit DispatchError, got %v", err)
	}
	if n := ownedBlobs(t, blobs, "t1/c1"); n != 0 {
		t.Errorf("expected uploaded blobs removed, %d left", n)
	}
}

func TestDispatch_UploadFailureStopsBeforeSubmit(t *testing.T) {
	blobs := &failingBlobs{InMemoryBlobStore: blobstore.NewInMemoryBlobStore(), allow: 1}
	sub := &stubSubmitter{}
	d := NewDispatcher(blobs, sub, AttachmentPath, zerolog.Nop())

	fields := validFields()
	fields["documentation_upload"] = pdf("report.pdf")
	fields["poa_upload"] = pdf("poa.pdf")

	_, err := d.Dispatch(context.Background(), preparedPayload(t), fields, Meta{TenantID: "t1", ClientID: "c1"})
	var de *DispatchError
	if !errors.As(err, &de) || de.Stage != "upload poa_upload" {
		t.Fatalf("expected poa upload DispatchError, got %v", err)
	}
	if len(sub.got) != 0 {
		t.Error("expected nothing submitted")
	}
	if n := ownedBlobs(t, blobs.InMemoryBlobStore, "t1/c1"); n != 0 {
		t.Errorf("expected first upload rolled back, %d left", n)
	}
}
