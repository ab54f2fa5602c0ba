package moderation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/oggyb/buildermatch/internal/app"
	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/db"
	svcErr "github.com/oggyb/buildermatch/internal/errors"
	"github.com/oggyb/buildermatch/internal/logger"
	"github.com/oggyb/buildermatch/internal/repository"
)

const (
	maxReasonLength  = 280
	maxDetailsLength = 2000

	StatusPending = "pending"
)

// Service records blocks and reports. A block hides both users from each
// other's feed, matches and conversations; a report only queues for review.
type Service struct {
	appCtx  *app.AppContext
	blocks  *repository.BlockRepository
	reports *repository.ReportRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:  appCtx,
		blocks:  repository.NewBlockRepository(appCtx.DB),
		reports: repository.NewReportRepository(appCtx.DB),
	}
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.appCtx.Logger)
}

func checkTarget(sess auth.Session, field, targetID string) error {
	if err := sess.Require(); err != nil {
		return err
	}
	switch {
	case targetID == "":
		return svcErr.Invalid(field, "required")
	case targetID == sess.UserID:
		return svcErr.Invalid(field, "cannot target yourself")
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Block hides blockedID from the session user, and the session user from blockedID.
// Blocking again replaces the reason.
func (s *Service) Block(ctx context.Context, sess auth.Session, blockedID, reason string) (*db.Block, error) {
	if err := checkTarget(sess, "blocked_id", blockedID); err != nil {
		return nil, err
	}
	if len(reason) > maxReasonLength {
		return nil, svcErr.Invalid("reason", "too long")
	}

	b := &db.Block{
		BlockerID: sess.UserID,
		BlockedID: blockedID,
		Reason:    optional(reason),
		CreatedAt: s.appCtx.Now(),
	}
	if err := s.blocks.Upsert(ctx, b); err != nil {
		s.log(ctx).Error("block upsert failed", "blocker", sess.UserID, "blocked", blockedID, "err", err)
		return nil, svcErr.Unavailable(err)
	}
	s.appCtx.Metrics.RecordBlock()
	s.log(ctx).Info("user blocked", "blocker", sess.UserID, "blocked", blockedID)
	return b, nil
}

// Unblock removes the session user's block on blockedID.
// Returns false when there was nothing to remove.
func (s *Service) Unblock(ctx context.Context, sess auth.Session, blockedID string) (bool, error) {
	if err := checkTarget(sess, "blocked_id", blockedID); err != nil {
		return false, err
	}
	n, err := s.blocks.Delete(ctx, sess.UserID, blockedID)
	if err != nil {
		return false, svcErr.Unavailable(err)
	}
	return n > 0, nil
}

// ListBlocked returns the blocks the session user created, newest first.
func (s *Service) ListBlocked(ctx context.Context, sess auth.Session) ([]db.Block, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}
	blocks, err := s.blocks.ListByBlocker(ctx, sess.UserID)
	if err != nil {
		return nil, svcErr.Unavailable(err)
	}
	return blocks, nil
}

// Report files a pending report against reportedID.
//
// Behavior:
//   - reason must be one of spam, inappropriate, harassment, scam, other.
//   - other requires non-empty details.
//   - Reports are append-only; reporting twice files two rows.
func (s *Service) Report(ctx context.Context, sess auth.Session, reportedID string, reason db.ReportReason, details string) (*db.Report, error) {
	if err := checkTarget(sess, "reported_id", reportedID); err != nil {
		return nil, err
	}
	if !reason.Valid() {
		return nil, svcErr.Invalid("reason", "unknown report reason")
	}
	d := optional(details)
	if reason == db.ReasonOther && d == nil {
		return nil, svcErr.Invalid("details", "required when reason is other")
	}
	if d != nil && len(*d) > maxDetailsLength {
		return nil, svcErr.Invalid("details", "too long")
	}

	rep := &db.Report{
		ID:         uuid.NewString(),
		ReporterID: sess.UserID,
		ReportedID: reportedID,
		Reason:     reason,
		Details:    d,
		Status:     StatusPending,
		CreatedAt:  s.appCtx.Now(),
	}
	if err := s.reports.Create(ctx, rep); err != nil {
		s.log(ctx).Error("report insert failed", "reporter", sess.UserID, "err", err)
		return nil, svcErr.Unavailable(err)
	}
	s.appCtx.Metrics.RecordReport(string(reason))

	total, err := s.reports.CountAgainst(ctx, reportedID)
	if err != nil {
		s.log(ctx).Warn("report count failed", "reported", reportedID, "err", err)
	}
	s.log(ctx).Info("report filed", "report", rep.ID, "reported", reportedID, "reason", reason, "total_against", total)
	return rep, nil
}

// ReportAndBlockResult says which of the two writes went through.
type ReportAndBlockResult struct {
	Report      *db.Report `json:"report,omitempty"`
	Block       *db.Block  `json:"block,omitempty"`
	ReportError error      `json:"-"`
	BlockError  error      `json:"-"`
}

// Complete reports whether both writes succeeded.
func (r ReportAndBlockResult) Complete() bool {
	return r.ReportError == nil && r.BlockError == nil
}

// ReportAndBlock files the report and then the block. The writes are
// independent: a failed block does not undo the report.
//
// The returned error is the first failure; the result is always populated.
func (s *Service) ReportAndBlock(ctx context.Context, sess auth.Session, reportedID string, reason db.ReportReason, details string) (ReportAndBlockResult, error) {
	var res ReportAndBlockResult

	res.Report, res.ReportError = s.Report(ctx, sess, reportedID, reason, details)
	if svcErr.Is(res.ReportError, svcErr.ErrInvalidArgument) || svcErr.Is(res.ReportError, svcErr.ErrUnauthenticated) {
		return res, res.ReportError
	}

	res.Block, res.BlockError = s.Block(ctx, sess, reportedID, string(reason))
	if res.ReportError != nil {
		return res, res.ReportError
	}
	return res, res.BlockError
}
