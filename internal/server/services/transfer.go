package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/netx"
	sc "github.com/dmitrijs2005/passvault/internal/server/config"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

type FileType string

const (
	FileTypeJSON FileType = "json"
	FileTypeCSV  FileType = "csv"
)

// ParseFileType accepts "json" and "csv" in any case. An empty value means
// JSON.
func ParseFileType(s string) (FileType, error) {
	switch FileType(strings.ToLower(strings.TrimSpace(s))) {
	case "", FileTypeJSON:
		return FileTypeJSON, nil
	case FileTypeCSV:
		return FileTypeCSV, nil
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", common.ErrValidation, s)
	}
}

func (t FileType) ContentType() string {
	if t == FileTypeCSV {
		return "text/csv"
	}
	return "application/json"
}

func (t FileType) Ext() string {
	return string(t)
}

var csvHeader = []string{"name", "username", "password", "url", "notes", "created_at", "updated_at"}

// ExportRecord is one entry in an export file.
type ExportRecord struct {
	Name      string     `json:"name"`
	Username  string     `json:"username"`
	Password  string     `json:"password"`
	URL       *string    `json:"url"`
	Notes     *string    `json:"notes"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type importRecord struct {
	Name     string  `json:"name"`
	Username string  `json:"username"`
	Password string  `json:"password"`
	URL      *string `json:"url"`
	Notes    *string `json:"notes"`
}

// EntryTransferer is what import and export need from the password store.
type EntryTransferer interface {
	ListAll(ctx context.Context, userID string) ([]*models.PasswordEntry, error)
	CreateMany(ctx context.Context, userID string, in []models.NewEntry) (int, error)
}

// TransferService moves a user's entries in and out as JSON or CSV files and
// keeps export archives in the configured S3 bucket.
type TransferService struct {
	entries    EntryTransferer
	config     *sc.Config
	httpClient *http.Client
	now        func() time.Time
}

func NewTransferService(entries EntryTransferer, config *sc.Config) *TransferService {
	return &TransferService{
		entries:    entries,
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

// Export renders every entry of the user, Active and Trashed.
func (s *TransferService) Export(ctx context.Context, userID string, ft FileType) ([]byte, error) {
	list, err := s.entries.ListAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	records := make([]ExportRecord, 0, len(list))
	for _, e := range list {
		records = append(records, ExportRecord{
			Name:      e.Name,
			Username:  e.Username,
			Password:  e.Password,
			URL:       e.URL,
			Notes:     e.Notes,
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
		})
	}

	if ft == FileTypeCSV {
		return encodeCSV(records)
	}
	return json.MarshalIndent(records, "", "  ")
}

// Import creates an Active entry for every record in r. Either all records
// are stored or none.
func (s *TransferService) Import(ctx context.Context, userID string, ft FileType, r io.Reader) (int, error) {
	var (
		in  []models.NewEntry
		err error
	)
	if ft == FileTypeCSV {
		in, err = decodeCSV(r)
	} else {
		in, err = decodeJSON(r)
	}
	if err != nil {
		return 0, err
	}
	if len(in) == 0 {
		return 0, fmt.Errorf("%w: file contains no entries", common.ErrValidation)
	}
	return s.entries.CreateMany(ctx, userID, in)
}

// Archive uploads an export to the bucket and returns its key and a
// presigned download URL valid for ExportLinkTTL.
func (s *TransferService) Archive(ctx context.Context, userID string, ft FileType) (string, string, error) {
	body, err := s.Export(ctx, userID, ft)
	if err != nil {
		return "", "", err
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := s.archiveKey(userID, ft)
	contentType := ft.ContentType()

	put, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: &contentType,
	}, s3.WithPresignExpires(s.config.ExportLinkTTL))
	if err != nil {
		return "", "", err
	}

	if err := netx.UploadToPresignedURL(ctx, s.httpClient, put.URL, contentType, body); err != nil {
		return "", "", err
	}

	get, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.config.ExportLinkTTL))
	if err != nil {
		return "", "", err
	}

	return key, get.URL, nil
}

func (s *TransferService) archiveKey(userID string, ft FileType) string {
	d := s.now().UTC()
	return fmt.Sprintf("exports/%s/%d/%02d/%02d/%v.%s", userID, d.Year(), d.Month(), d.Day(), uuid.New(), ft.Ext())
}

func (s *TransferService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		// MinIO serves buckets under the path, not as subdomains
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

func encodeCSV(records []ExportRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range records {
		updated := ""
		if r.UpdatedAt != nil {
			updated = r.UpdatedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			r.Name,
			r.Username,
			r.Password,
			deref(r.URL),
			deref(r.Notes),
			r.CreatedAt.UTC().Format(time.RFC3339),
			updated,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeJSON(r io.Reader) ([]models.NewEntry, error) {
	var records []importRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", common.ErrValidation, err)
	}

	out := make([]models.NewEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, models.NewEntry{
			Name:     rec.Name,
			Username: rec.Username,
			Password: rec.Password,
			URL:      nonEmpty(rec.URL),
			Notes:    nonEmpty(rec.Notes),
		})
	}
	return out, nil
}

// decodeCSV reads a file with a header row. Columns are matched by name, so
// their order is free and the timestamp columns of an export are ignored.
func decodeCSV(r io.Reader) ([]models.NewEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty CSV file", common.ErrValidation)
		}
		return nil, fmt.Errorf("%w: invalid CSV: %v", common.ErrValidation, err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"name", "username", "password"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%w: CSV header lacks %q column", common.ErrValidation, required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var out []models.NewEntry
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: invalid CSV: %v", common.ErrValidation, err)
		}

		url, notes := field(row, "url"), field(row, "notes")
		out = append(out, models.NewEntry{
			Name:     field(row, "name"),
			Username: field(row, "username"),
			Password: field(row, "password"),
			URL:      nonEmpty(&url),
			Notes:    nonEmpty(&notes),
		})
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
