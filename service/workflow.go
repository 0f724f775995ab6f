package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/pkg/logger"
	"github.com/recorpproduction-prog/camcapprod/pkg/metrics"
)

var (
	ErrInvalidTransition  = errors.New("transition not allowed from current status")
	ErrReviewerRequired   = errors.New("reviewer name required")
	ErrReviewDateRequired = errors.New("review date required")
	ErrCommentsRequired   = errors.New("review comments required unless confirmed empty")
)

// Review carries a reviewer's decision. Date is the next review date on
// approval and the review date on rejection, formatted YYYY-MM-DD.
type Review struct {
	Reviewer string `json:"reviewer"`
	Comments string `json:"comments"`
	Date     string `json:"date"`
}

// ExportOptions controls an explicit export.
type ExportOptions struct {
	// PreserveStatus exports without stamping the record Approved.
	PreserveStatus bool
	// Recipient, when set, receives the PDF by email.
	Recipient string
}

// Outcome is the result of a workflow action. Warnings report degraded
// success: the action took effect but a side effect failed.
type Outcome struct {
	Record   *model.SOP         `json:"record"`
	Warnings []string           `json:"warnings,omitempty"`
	Export   *model.ExportEntry `json:"export,omitempty"`
	PDF      []byte             `json:"-"`
}

func (o *Outcome) warn(format string, args ...any) {
	o.Warnings = append(o.Warnings, fmt.Sprintf(format, args...))
}

// WorkflowDeps wires a Workflow. Archive and Users may be nil.
type WorkflowDeps struct {
	Sync           *SyncService
	Renderer       Renderer
	Mailer         Mailer
	Archive        Archive
	Exports        *ExportLog
	Users          *UserDirectory
	HoldingAddress string
}

// Workflow moves SOPs through Draft, Under Review and Approved. Status is
// only ever set here, never taken from the submitted record.
type Workflow struct {
	deps WorkflowDeps
	now  func() time.Time
	wg   sync.WaitGroup
}

func NewWorkflow(deps WorkflowDeps) *Workflow {
	return &Workflow{deps: deps, now: time.Now}
}

// Wait blocks until background notifications have finished.
func (w *Workflow) Wait() {
	w.wg.Wait()
}

// storedStatus is the status of the persisted copy, Draft when there is none.
func (w *Workflow) storedStatus(ctx context.Context, id string) (model.Status, error) {
	if id == "" {
		return model.StatusDraft, nil
	}
	stored, err := w.deps.Sync.Get(ctx, id)
	if errors.Is(err, ErrSOPNotFound) {
		return model.StatusDraft, nil
	}
	if err != nil {
		return "", err
	}
	if stored.Meta.Status == "" {
		return model.StatusDraft, nil
	}
	return stored.Meta.Status, nil
}

func (w *Workflow) save(ctx context.Context, sop *model.SOP, out *Outcome) error {
	res, err := w.deps.Sync.Save(ctx, sop)
	if err != nil {
		return err
	}
	out.Record = res.Record
	if res.RemoteErr != nil {
		out.warn("saved locally only, remote backend failed: %v", res.RemoteErr)
	}
	return nil
}

func record(action string, err error) {
	metrics.Transitions.WithLabelValues(action, metrics.Result(err)).Inc()
}

// Autosave persists field edits without changing status.
func (w *Workflow) Autosave(ctx context.Context, sop *model.SOP) (out *Outcome, err error) {
	defer func() { record("autosave", err) }()
	if sop.Meta == nil {
		sop.Meta = &model.Meta{}
	}
	status, err := w.storedStatus(ctx, sop.ID())
	if err != nil {
		return nil, err
	}
	sop.Meta.Status = status

	out = &Outcome{}
	if err := w.save(ctx, sop, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Submit sends a record for review. The record is compacted, stamped with
// an effective date when it has none, and its author is emailed a copy in
// the background when registered with an address.
func (w *Workflow) Submit(ctx context.Context, sop *model.SOP) (out *Outcome, err error) {
	defer func() { record("submit", err) }()
	if sop.Meta == nil {
		sop.Meta = &model.Meta{}
	}
	ctx = logger.WithSOP(ctx, sop.ID())

	status, err := w.storedStatus(ctx, sop.ID())
	if err != nil {
		return nil, err
	}
	if status == model.StatusApproved {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, sop.ID(), status)
	}

	sop.Compact()
	if sop.Meta.EffectiveDate == "" {
		sop.Meta.EffectiveDate = w.now().Format(model.DateLayout)
	}
	sop.Meta.Status = model.StatusUnderReview

	out = &Outcome{}
	if err := w.save(ctx, sop, out); err != nil {
		return nil, err
	}
	logger.Info(ctx, "sop submitted for review", "author", sop.Meta.Author)

	w.notifyAuthor(ctx, out.Record.Clone())
	return out, nil
}

// Delete removes the record from every backend, then its archived PDFs.
// Archive cleanup failures are warnings since the record is already gone.
func (w *Workflow) Delete(ctx context.Context, id string) (out *Outcome, err error) {
	defer func() { record("delete", err) }()
	ctx = logger.WithSOP(ctx, id)

	if err := w.deps.Sync.Delete(ctx, id); err != nil {
		return nil, err
	}
	out = &Outcome{}
	if w.deps.Archive == nil {
		return out, nil
	}
	n, archiveErr := w.deps.Archive.DeletePrefix(ctx, archivePrefix(id))
	if archiveErr != nil {
		logger.Warn(ctx, "archive cleanup failed", "error", archiveErr, "removed", n)
		out.warn("archived PDFs were not removed: %v", archiveErr)
	} else if n > 0 {
		logger.Info(ctx, "archived pdfs removed", "count", n)
	}
	return out, nil
}

// notifyAuthor emails the author a PDF without changing status. It never
// blocks the caller and its failures are only logged and recorded in the
// export log.
func (w *Workflow) notifyAuthor(ctx context.Context, sop *model.SOP) {
	if w.deps.Users == nil || w.deps.Mailer == nil || w.deps.Renderer == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		user, ok := w.deps.Users.FindByName(ctx, sop.Meta.Author)
		if !ok || user.Email == "" {
			logger.Debug(ctx, "no registered email for author", "author", sop.Meta.Author)
			return
		}
		out := &Outcome{Record: sop}
		if err := w.deliver(ctx, sop, user.Email, out); err != nil {
			logger.Warn(ctx, "author notification failed", "error", err)
			return
		}
		for _, warning := range out.Warnings {
			logger.Warn(ctx, "author notification degraded", "warning", warning)
		}
	}()
}

func validateReview(r Review) error {
	if strings.TrimSpace(r.Reviewer) == "" {
		return ErrReviewerRequired
	}
	if strings.TrimSpace(r.Date) == "" {
		return ErrReviewDateRequired
	}
	if _, err := time.Parse(model.DateLayout, strings.TrimSpace(r.Date)); err != nil {
		return fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrReviewDateRequired, r.Date)
	}
	return nil
}

func (w *Workflow) underReview(ctx context.Context, id string) (*model.SOP, error) {
	sop, err := w.deps.Sync.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sop.Meta.Status != model.StatusUnderReview {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, sop.Meta.Status)
	}
	return sop.Clone(), nil
}

// Approve stamps the reviewer fields and approves the record, then renders
// the PDF and emails it to the holding address. Failures after the approval
// is persisted are returned as warnings and never undo it.
func (w *Workflow) Approve(ctx context.Context, id string, review Review) (out *Outcome, err error) {
	defer func() { record("approve", err) }()
	ctx = logger.WithSOP(ctx, id)
	if err := validateReview(review); err != nil {
		return nil, err
	}
	sop, err := w.underReview(ctx, id)
	if err != nil {
		return nil, err
	}

	sop.Meta.Reviewer = strings.TrimSpace(review.Reviewer)
	sop.Meta.ReviewComments = review.Comments
	sop.Meta.ReviewDate = strings.TrimSpace(review.Date)
	sop.Meta.Status = model.StatusApproved

	out = &Outcome{}
	if err := w.save(ctx, sop, out); err != nil {
		return nil, err
	}
	logger.Info(ctx, "sop approved", "reviewer", sop.Meta.Reviewer)

	if w.deps.HoldingAddress == "" {
		out.warn("approved, but no holding address is configured for the audit copy")
		return out, nil
	}
	if err := w.deliver(ctx, out.Record, w.deps.HoldingAddress, out); err != nil {
		out.warn("approved, but the PDF could not be generated: %v", err)
	}
	return out, nil
}

// Reject returns a record to Draft. Empty comments need confirmEmpty.
func (w *Workflow) Reject(ctx context.Context, id string, review Review, confirmEmpty bool) (out *Outcome, err error) {
	defer func() { record("reject", err) }()
	ctx = logger.WithSOP(ctx, id)
	if err := validateReview(review); err != nil {
		return nil, err
	}
	if strings.TrimSpace(review.Comments) == "" && !confirmEmpty {
		return nil, ErrCommentsRequired
	}
	sop, err := w.underReview(ctx, id)
	if err != nil {
		return nil, err
	}

	sop.Meta.Reviewer = strings.TrimSpace(review.Reviewer)
	sop.Meta.ReviewComments = review.Comments
	sop.Meta.ReviewDate = strings.TrimSpace(review.Date)
	sop.Meta.Status = model.StatusDraft

	out = &Outcome{}
	if err := w.save(ctx, sop, out); err != nil {
		return nil, err
	}
	logger.Info(ctx, "sop rejected", "reviewer", sop.Meta.Reviewer)
	return out, nil
}

// Export renders the PDF of a stored record. Unless PreserveStatus is set
// the record is stamped Approved and persisted first.
func (w *Workflow) Export(ctx context.Context, id string, opts ExportOptions) (out *Outcome, err error) {
	defer func() { record("export", err) }()
	ctx = logger.WithSOP(ctx, id)

	stored, err := w.deps.Sync.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sop := stored.Clone()

	out = &Outcome{Record: sop}
	if !opts.PreserveStatus && sop.Meta.Status != model.StatusApproved {
		sop.Meta.Status = model.StatusApproved
		if err := w.save(ctx, sop, out); err != nil {
			return nil, err
		}
	}
	if err := w.deliver(ctx, out.Record, strings.TrimSpace(opts.Recipient), out); err != nil {
		return nil, err
	}
	return out, nil
}

// deliver renders the PDF, archives it, emails it when a recipient is given
// and records the export. Only a rendering failure is returned; the other
// failures become warnings and are kept on the export entry.
func (w *Workflow) deliver(ctx context.Context, sop *model.SOP, recipient string, out *Outcome) error {
	if w.deps.Renderer == nil {
		return errors.New("pdf renderer not configured")
	}
	now := w.now().UTC()
	entry := model.ExportEntry{
		SOPID:      sop.ID(),
		Title:      sop.Meta.Title,
		Version:    sop.Meta.Version,
		Status:     sop.Meta.Status,
		ExportedAt: now,
	}

	pdf, err := w.deps.Renderer.Render(sop)
	if err != nil {
		entry.DeliveryError = err.Error()
		w.appendExport(ctx, entry, out)
		return err
	}
	out.PDF = pdf

	fileName := sanitizeObjectPart(sop.ID()) + ".pdf"
	if w.deps.Archive != nil {
		url, err := w.deps.Archive.Upload(ctx, archiveObjectName(sop, now), pdf, "application/pdf")
		if err != nil {
			out.warn("PDF archive upload failed: %v", err)
		} else {
			entry.ArchiveURL = url
		}
	}

	if recipient != "" {
		if w.deps.Mailer == nil {
			entry.DeliveryError = ErrMailDisabled.Error()
			out.warn("PDF not emailed to %s: %v", recipient, ErrMailDisabled)
		} else if err := w.deps.Mailer.Send(ctx, approvalEmail(sop, recipient, fileName, pdf)); err != nil {
			entry.DeliveryError = err.Error()
			out.warn("PDF not emailed to %s: %v", recipient, err)
			logger.Warn(ctx, "pdf email failed", "recipient", recipient, "error", err)
		} else {
			entry.DeliveredTo = recipient
		}
	}

	w.appendExport(ctx, entry, out)
	out.Export = &entry
	return nil
}

func (w *Workflow) appendExport(ctx context.Context, entry model.ExportEntry, out *Outcome) {
	if w.deps.Exports == nil {
		return
	}
	if err := w.deps.Exports.Append(ctx, entry); err != nil {
		out.warn("export history not updated: %v", err)
		logger.Warn(ctx, "export log write failed", "error", err)
	}
}

func approvalEmail(sop *model.SOP, to, fileName string, pdf []byte) Email {
	m := sop.Meta
	subject := fmt.Sprintf("SOP %s: %s (%s)", m.SOPID, m.Title, m.Status)
	body := fmt.Sprintf("SOP: %s\nTitle: %s\nDepartment: %s\nVersion: %s\nAuthor: %s\nStatus: %s\n",
		m.SOPID, m.Title, m.Department, m.Version, m.Author, m.Status)
	if m.Reviewer != "" {
		body += fmt.Sprintf("Reviewer: %s\nNext review: %s\n", m.Reviewer, m.ReviewDate)
	}
	if m.ReviewComments != "" {
		body += "\nComments:\n" + m.ReviewComments + "\n"
	}
	return Email{To: to, Subject: subject, Body: body, Attachment: pdf, AttachmentName: fileName}
}
