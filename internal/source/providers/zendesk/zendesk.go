// Package zendesk reads Zendesk support exports: one JSON document with
// users, tickets, ticket comments and ticket audit events.
package zendesk

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"dsar/internal/domain"
	"dsar/internal/source"
	"dsar/pkg/identity"
	platformstrings "dsar/pkg/platform/strings"
)

// Vendor is the display name used in reports.
const Vendor = "Zendesk"

type user struct {
	ID             source.FlexString `json:"id"`
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	Phone          string            `json:"phone"`
	Role           string            `json:"role"`
	OrganizationID source.FlexString `json:"organization_id"`
	Locale         string            `json:"locale"`
	TimeZone       string            `json:"time_zone"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
	LastLoginAt    string            `json:"last_login_at"`
	Verified       *bool             `json:"verified"`
	Active         *bool             `json:"active"`
	Suspended      *bool             `json:"suspended"`
	Tags           []string          `json:"tags"`
}

type ticket struct {
	ID          source.FlexString `json:"id"`
	Subject     string            `json:"subject"`
	Description string            `json:"description"`
	Status      string            `json:"status"`
	Priority    string            `json:"priority"`
	RequesterID source.FlexString `json:"requester_id"`
	SubmitterID source.FlexString `json:"submitter_id"`
	AssigneeID  source.FlexString `json:"assignee_id"`
	CreatedAt   string            `json:"created_at"`
}

type comment struct {
	TicketID  source.FlexString `json:"ticket_id"`
	AuthorID  source.FlexString `json:"author_id"`
	Body      string            `json:"body"`
	PlainBody string            `json:"plain_body"`
	Public    *bool             `json:"public"`
	CreatedAt string            `json:"created_at"`
}

type event struct {
	TicketID  source.FlexString `json:"ticket_id"`
	UpdaterID source.FlexString `json:"updater_id"`
	EventType string            `json:"event_type"`
	Timestamp string            `json:"timestamp"`
	CreatedAt string            `json:"created_at"`
}

type export struct {
	Users          []user    `json:"users"`
	Tickets        []ticket  `json:"tickets"`
	Comments       []comment `json:"comments"`
	TicketComments []comment `json:"ticket_comments"`
	TicketEvents   []event   `json:"ticket_events"`
}

// Adapter implements source.Adapter for Zendesk.
type Adapter struct {
	logger *slog.Logger
}

// New creates a Zendesk adapter.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{logger: logger}
}

func (a *Adapter) Vendor() string { return Vendor }

func (a *Adapter) Capabilities() source.Capabilities {
	return source.Capabilities{
		Formats:     []source.Format{source.FormatJSON},
		Description: "Account export JSON (users, tickets, comments, ticket_events)",
	}
}

func (a *Adapter) Extract(ctx context.Context, exportPath string, q source.SubjectQuery) (*domain.Export, error) {
	var data export
	if err := source.ReadJSONFile(Vendor, exportPath, &data); err != nil {
		return nil, err
	}
	if len(data.Users) == 0 {
		return nil, source.Malformed(Vendor, exportPath, "no users in export", nil)
	}

	identities := make([]identity.Identity, 0, len(data.Users))
	byID := make(map[string]user, len(data.Users))
	for _, u := range data.Users {
		id := u.ID.String()
		if id == "" {
			continue
		}
		byID[id] = u
		identities = append(identities, identity.Identity{ID: id, DisplayName: u.Name, Email: u.Email})
	}

	subject, err := source.ResolveSubject(q, identities)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "data subject found",
		"vendor", Vendor,
		"subject", subject.String(),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &domain.Export{
		Vendor:     Vendor,
		ExportFile: path.Base(exportPath),
		Subject:    subject,
		Profile:    buildProfile(byID[subject.ID]),
		Identities: identities,
		Records:    records(data, subject),
	}, nil
}

// records collects tickets the subject requested, submitted or is named in,
// comments they wrote or are named in, and ticket updates they made.
func records(data export, subject identity.Identity) []domain.Record {
	matcher := source.NewMentionMatcher(subject)
	subjectID := subject.ID

	tickets := make(map[string]ticket, len(data.Tickets))
	var out []domain.Record

	for _, t := range data.Tickets {
		tickets[t.ID.String()] = t

		var roles []domain.Relationship
		if t.RequesterID.String() == subjectID {
			roles = append(roles, domain.RelationshipRequester)
		}
		if t.SubmitterID.String() == subjectID && t.SubmitterID != t.RequesterID {
			roles = append(roles, domain.RelationshipAuthor)
		}
		if t.AssigneeID.String() == subjectID {
			roles = append(roles, domain.RelationshipAssignee)
		}
		description := platformstrings.StripHTML(t.Description)
		rels := matcher.Relate(roles, t.Subject, description)
		if rels == nil {
			continue
		}

		r := domain.Record{
			Kind:     "ticket_created",
			Category: "Ticket #" + t.ID.String(),
			Content: fmt.Sprintf("Subject: %s\nStatus: %s\nPriority: %s\nDescription: %s",
				t.Subject, t.Status, source.FirstNonEmpty(t.Priority, "none"), description),
			Relationships: rels,
		}
		r.Timestamp, _ = source.ParseTime(t.CreatedAt)
		out = append(out, r)
	}

	comments := data.Comments
	if len(comments) == 0 {
		comments = data.TicketComments
	}
	for _, c := range comments {
		var roles []domain.Relationship
		if c.AuthorID.String() == subjectID {
			roles = append(roles, domain.RelationshipAuthor)
		}
		body := platformstrings.StripHTML(source.FirstNonEmpty(c.Body, c.PlainBody))
		rels := matcher.Relate(roles, body)
		if rels == nil {
			continue
		}

		ticketSubject := "Unknown"
		if t, ok := tickets[c.TicketID.String()]; ok && t.Subject != "" {
			ticketSubject = t.Subject
		}
		r := domain.Record{
			Kind:          "comment",
			Category:      fmt.Sprintf("Ticket #%s - %s", c.TicketID, ticketSubject),
			Content:       body,
			Relationships: rels,
		}
		if c.Public != nil {
			r.Fields = map[string]string{"public": strconv.FormatBool(*c.Public)}
		}
		r.Timestamp, _ = source.ParseTime(c.CreatedAt)
		out = append(out, r)
	}

	for _, e := range data.TicketEvents {
		if e.UpdaterID.String() != subjectID {
			continue
		}
		r := domain.Record{
			Kind:          "ticket_update",
			Category:      "Ticket #" + e.TicketID.String(),
			Content:       "Event: " + source.FirstNonEmpty(e.EventType, "update"),
			Relationships: []domain.Relationship{domain.RelationshipAuthor},
		}
		r.Timestamp, _ = source.ParseTime(source.FirstNonEmpty(e.Timestamp, e.CreatedAt))
		out = append(out, r)
	}

	source.SortRecords(out)
	return out
}

func buildProfile(u user) domain.Profile {
	var p domain.Profile
	p = p.Add("User ID", u.ID.String())
	p = p.Add("Name", u.Name)
	p = p.Add("Email", u.Email)
	p = p.Add("Phone", u.Phone)
	p = p.Add("Role", u.Role)
	p = p.Add("Organization ID", u.OrganizationID.String())
	p = p.Add("Locale", u.Locale)
	p = p.Add("Timezone", u.TimeZone)
	p = p.Add("Created At", formatDate(u.CreatedAt))
	p = p.Add("Updated At", formatDate(u.UpdatedAt))
	p = p.Add("Last Login", formatDate(u.LastLoginAt))
	p = p.Add("Verified", formatBool(u.Verified))
	p = p.Add("Active", formatBool(u.Active))
	p = p.Add("Suspended", formatBool(u.Suspended))
	p = p.Add("Tags", strings.Join(u.Tags, ", "))
	return p
}

func formatDate(raw string) string {
	if t, ok := source.ParseTime(raw); ok {
		return t.Format("2006-01-02 15:04:05")
	}
	return raw
}

func formatBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}
