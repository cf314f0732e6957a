package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// MessageSigner attests archived reports. crypto.Signer satisfies it.
type MessageSigner interface {
	Address() common.Address
	SignMessage(msg []byte) (string, error)
}

// Report is the archived form of an execution. Signature, when present, is
// an EIP-191 signature over the exact Result bytes.
type Report struct {
	Result     json.RawMessage `json:"result"`
	ArchivedAt time.Time       `json:"archived_at"`
	Signer     string          `json:"signer,omitempty"`
	Signature  string          `json:"signature,omitempty"`
}

// Decode unmarshals the embedded execution result.
func (r Report) Decode() (domain.ExecutionResult, error) {
	var res domain.ExecutionResult
	if err := json.Unmarshal(r.Result, &res); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("s3blob: decode report: %w", err)
	}
	return res, nil
}

// ReportArchiver implements domain.ReportArchiver on top of a blob store.
type ReportArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	signer MessageSigner
	logger *slog.Logger
	now    func() time.Time
}

// NewReportArchiver creates a ReportArchiver. signer and reader may be nil.
func NewReportArchiver(w domain.BlobWriter, r domain.BlobReader, signer MessageSigner, logger *slog.Logger) *ReportArchiver {
	return &ReportArchiver{
		writer: w,
		reader: r,
		signer: signer,
		logger: logger.With(slog.String("component", "report_archiver")),
		now:    time.Now,
	}
}

// ReportPath is where the report for r lives: reports/YYYY/MM/DD/<id>.json,
// dated by the UTC start time.
func ReportPath(r domain.ExecutionResult) string {
	return fmt.Sprintf("reports/%s/%s.json", r.StartedAt.UTC().Format("2006/01/02"), r.ID)
}

// Archive uploads the report for r and returns its path.
func (a *ReportArchiver) Archive(ctx context.Context, r domain.ExecutionResult) (string, error) {
	result, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal result %s: %w", r.ID, err)
	}
	rep := Report{Result: result, ArchivedAt: a.now().UTC()}
	if a.signer != nil {
		sig, err := a.signer.SignMessage(result)
		if err != nil {
			return "", fmt.Errorf("s3blob: sign report %s: %w", r.ID, err)
		}
		rep.Signer = a.signer.Address().Hex()
		rep.Signature = sig
	}

	body, err := json.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal report %s: %w", r.ID, err)
	}

	path := ReportPath(r)
	if int64(len(body)) >= minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(body), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(body), "application/json")
	}
	if err != nil {
		return "", err
	}
	a.logger.DebugContext(ctx, "report archived", slog.String("id", r.ID), slog.String("path", path))
	return path, nil
}

// Load reads back an archived report.
func (a *ReportArchiver) Load(ctx context.Context, path string) (Report, error) {
	if a.reader == nil {
		return Report{}, fmt.Errorf("s3blob: load %s: no reader configured", path)
	}
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return Report{}, err
	}
	defer body.Close()

	var rep Report
	if err := json.NewDecoder(body).Decode(&rep); err != nil {
		return Report{}, fmt.Errorf("s3blob: decode %s: %w", path, err)
	}
	return rep, nil
}

var _ domain.ReportArchiver = (*ReportArchiver)(nil)
