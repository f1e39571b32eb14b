package careplan

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/carewizard/internal/platform/blobstore"
	"github.com/ehr/carewizard/internal/platform/formstate"
)

// DispatchError reports a failed delivery. The draft is kept when it is
// returned.
type DispatchError struct {
	Stage string
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// attachmentTargets writes an uploaded attachment's URL into its payload
// section.
var attachmentTargets = map[string]func(p *Payload, url string){
	"documentation_upload": func(p *Payload, url string) { p.MedicalInfo.MedicalReportUpload = url },
	"risk_management_plan_upload": func(p *Payload, _ string) {
		p.MovingHandling.RiskManagementPlan = "Uploaded"
	},
	"poa_upload": func(p *Payload, url string) { p.LegalRequirement.CertificateUpload = url },
	"id_upload":  func(p *Payload, url string) { p.LegalRequirement.ConsentUpload = url },
}

// Dispatcher uploads live attachments and hands the payload to a Submitter.
type Dispatcher struct {
	blobs     blobstore.BlobStore
	submitter Submitter
	urlPrefix string
	log       zerolog.Logger
}

// NewDispatcher returns a Dispatcher. Attachment URLs are urlPrefix followed
// by the blob ID.
func NewDispatcher(blobs blobstore.BlobStore, submitter Submitter, urlPrefix string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		blobs:     blobs,
		submitter: submitter,
		urlPrefix: urlPrefix,
		log:       log.With().Str("component", "dispatch").Logger(),
	}
}

// Dispatch sends p. On failure every blob uploaded for this submission is
// deleted again.
func (d *Dispatcher) Dispatch(ctx context.Context, p *Payload, fields formstate.FieldMap, meta Meta) (*Receipt, error) {
	var uploaded []string
	rollback := func() {
		for _, id := range uploaded {
			if err := d.blobs.Delete(context.WithoutCancel(ctx), id); err != nil {
				d.log.Warn().Err(err).Str("blob_id", id).Msg("failed to remove orphaned attachment")
			}
		}
	}

	for _, name := range attachmentFields {
		switch v := fields[name].(type) {
		case *formstate.Resource:
			blob, err := d.blobs.Upload(ctx, blobstore.BlobMetadata{
				FileName:    v.Name,
				ContentType: v.ContentType,
				Owner:       meta.TenantID + "/" + meta.ClientID,
				Field:       name,
				CreatedBy:   meta.Actor,
			}, bytes.NewReader(v.Data))
			if err != nil {
				rollback()
				return nil, &DispatchError{Stage: "upload " + name, Err: err}
			}
			uploaded = append(uploaded, blob.ID)
			url := d.urlPrefix + blob.ID
			attachmentTargets[name](p, url)
			p.Attachments = append(p.Attachments, Attachment{
				Field:       name,
				BlobID:      blob.ID,
				FileName:    blob.FileName,
				ContentType: blob.ContentType,
				Size:        blob.Size,
				URL:         url,
			})
		case formstate.ResourceDescriptor:
			d.log.Warn().Str("field", name).Str("file", v.Name).
				Msg("attachment was restored from a draft without its content; not uploaded")
		}
	}

	receipt, err := d.submitter.Submit(ctx, p)
	if err != nil {
		rollback()
		return nil, &DispatchError{Stage: "submit", Err: err}
	}
	return receipt, nil
}
