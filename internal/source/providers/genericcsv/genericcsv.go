// Package genericcsv is the fallback adapter for CSV exports. Columns holding
// names, emails, ids and dates are detected from their headers unless the
// operator names them.
package genericcsv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"

	"dsar/internal/domain"
	"dsar/internal/source"
	"dsar/pkg/identity"
	"dsar/pkg/platform/sentinel"
	platformstrings "dsar/pkg/platform/strings"
)

// Vendor is the display name used in reports.
const Vendor = "Generic_CSV"

const (
	maxCellLen      = 200
	maxRecordFields = 20
)

var (
	nameColumns = []string{
		"name", "full_name", "fullname", "display_name", "displayname",
		"user_name", "username", "customer_name", "contact_name",
		"first_name", "firstname", "fname", "given_name",
		"person_name", "member_name", "employee_name",
	}
	emailColumns = []string{
		"email", "email_address", "emailaddress", "e_mail", "e-mail",
		"user_email", "work_email", "primary_email", "contact_email",
		"mail", "email_id",
	}
	idColumns = []string{
		"id", "user_id", "userid", "customer_id", "contact_id",
		"member_id", "employee_id", "record_id", "_id", "uuid",
	}
	dateColumns = []string{
		"date", "created", "created_at", "createdat", "timestamp",
		"modified", "updated", "updated_at", "time", "datetime",
	}
)

// detectColumn returns the index of the first header equal to a candidate,
// then the first header containing one. -1 when nothing fits.
func detectColumn(headers []string, candidates []string) int {
	norm := make([]string, len(headers))
	for i, h := range headers {
		norm[i] = strings.ToLower(strings.TrimSpace(h))
	}
	for _, c := range candidates {
		for i, h := range norm {
			if h == c {
				return i
			}
		}
	}
	for _, c := range candidates {
		for i, h := range norm {
			if strings.Contains(h, c) {
				return i
			}
		}
	}
	return -1
}

// Option configures the adapter.
type Option func(*Adapter)

// WithNameColumn pins the header holding display names.
func WithNameColumn(header string) Option {
	return func(a *Adapter) { a.nameColumn = header }
}

// WithEmailColumn pins the header holding emails.
func WithEmailColumn(header string) Option {
	return func(a *Adapter) { a.emailColumn = header }
}

// Adapter implements source.Adapter for CSV files.
type Adapter struct {
	logger      *slog.Logger
	nameColumn  string
	emailColumn string
}

// New creates the generic CSV adapter.
func New(logger *slog.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Vendor() string { return Vendor }

func (a *Adapter) Capabilities() source.Capabilities {
	return source.Capabilities{
		Formats:     []source.Format{source.FormatCSV},
		Description: "Any CSV with a header row; name, email, id and date columns are auto-detected",
	}
}

// columns are the detected indexes, -1 when absent.
type columns struct {
	name, email, id, date int
}

func (a *Adapter) Extract(ctx context.Context, exportPath string, q source.SubjectQuery) (*domain.Export, error) {
	headers, rows, err := readCSV(exportPath)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, source.Malformed(Vendor, exportPath, "no data rows", nil)
	}

	cols, err := a.detect(headers)
	if err != nil {
		return nil, source.Malformed(Vendor, exportPath, err.Error(), nil)
	}

	identities := make([]identity.Identity, 0, len(rows))
	byID := make(map[string]int, len(rows))
	for i, row := range rows {
		id := rowIdentity(row, cols, i)
		if id.DisplayName == "" && id.Email == "" {
			continue
		}
		if _, seen := byID[id.ID]; seen {
			continue
		}
		// Without an id column the same person repeats once per row.
		if cell(row, cols.id) == "" && slices.ContainsFunc(identities, func(other identity.Identity) bool {
			return identity.SamePerson(id, other)
		}) {
			continue
		}
		byID[id.ID] = i
		identities = append(identities, id)
	}

	subject, err := source.ResolveSubject(q, identities)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "data subject found",
		"vendor", Vendor,
		"subject", subject.String(),
		"row", byID[subject.ID],
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &domain.Export{
		Vendor:     Vendor,
		ExportFile: path.Base(exportPath),
		Subject:    subject,
		Profile:    buildProfile(headers, rows[byID[subject.ID]]),
		Identities: identities,
		Records:    records(headers, rows, cols, subject),
	}, nil
}

func (a *Adapter) detect(headers []string) (columns, error) {
	cols := columns{
		name:  detectColumn(headers, nameColumns),
		email: detectColumn(headers, emailColumns),
		id:    detectColumn(headers, idColumns),
		date:  detectColumn(headers, dateColumns),
	}
	if a.nameColumn != "" {
		if cols.name = detectColumn(headers, []string{strings.ToLower(a.nameColumn)}); cols.name < 0 {
			return cols, fmt.Errorf("name column %q not in header", a.nameColumn)
		}
	}
	if a.emailColumn != "" {
		if cols.email = detectColumn(headers, []string{strings.ToLower(a.emailColumn)}); cols.email < 0 {
			return cols, fmt.Errorf("email column %q not in header", a.emailColumn)
		}
	}
	if cols.name < 0 && cols.email < 0 {
		return cols, fmt.Errorf("could not detect a name or email column among: %s", strings.Join(headers, ", "))
	}
	return cols, nil
}

// records keeps every row that belongs to the subject. Content lists the
// row's non-empty cells.
func records(headers []string, rows [][]string, cols columns, subject identity.Identity) []domain.Record {
	var out []domain.Record
	for i, row := range rows {
		if !rowIsSubject(row, cols, i, subject) {
			continue
		}

		var lines []string
		for j, v := range row {
			if len(lines) == maxRecordFields {
				break
			}
			v = strings.TrimSpace(v)
			if v == "" || j >= len(headers) {
				continue
			}
			lines = append(lines, headers[j]+": "+platformstrings.Truncate(platformstrings.StripHTML(v), maxCellLen))
		}

		r := domain.Record{
			Kind:          "record",
			Category:      "Data",
			Content:       strings.Join(lines, "\n"),
			Fields:        map[string]string{"row": strconv.Itoa(i + 1)},
			Relationships: []domain.Relationship{domain.RelationshipAuthor},
		}
		r.Timestamp, _ = source.ParseTime(cell(row, cols.date))
		out = append(out, r)
	}
	source.SortRecords(out)
	return out
}

func rowIsSubject(row []string, cols columns, i int, subject identity.Identity) bool {
	return identity.SamePerson(rowIdentity(row, cols, i), subject)
}

// rowIdentity falls back to the 1-based row number when there is no id column.
func rowIdentity(row []string, cols columns, i int) identity.Identity {
	id := cell(row, cols.id)
	if id == "" {
		id = "row-" + strconv.Itoa(i+1)
	}
	return identity.Identity{
		ID:          id,
		DisplayName: cell(row, cols.name),
		Email:       cell(row, cols.email),
	}
}

func buildProfile(headers []string, row []string) domain.Profile {
	var p domain.Profile
	for j, h := range headers {
		if j < len(row) {
			p = p.Add(displayKey(h), strings.TrimSpace(row[j]))
		}
	}
	return p
}

// displayKey turns "first_name" into "First Name".
func displayKey(h string) string {
	words := strings.Fields(strings.ReplaceAll(strings.TrimSpace(h), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func readCSV(filePath string) ([]string, [][]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("export %s: %w", filePath, sentinel.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	headers, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, source.Malformed(Vendor, filePath, "empty file", nil)
		}
		return nil, nil, source.Malformed(Vendor, filePath, "unreadable header", err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, source.Malformed(Vendor, filePath, "unreadable row", err)
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}
