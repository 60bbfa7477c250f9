// Package slack reads Slack workspace exports: a zip holding users.json,
// channels.json and one directory of daily message files per channel.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"

	"dsar/internal/domain"
	"dsar/internal/source"
	"dsar/pkg/identity"
)

// Vendor is the display name used in reports.
const Vendor = "Slack"

const (
	usersFile           = "users.json"
	channelsFile        = "channels.json"
	integrationLogsFile = "integration_logs.json"
)

type profile struct {
	RealName    string `json:"real_name"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Title       string `json:"title"`
	StatusText  string `json:"status_text"`
	StatusEmoji string `json:"status_emoji"`
}

type user struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Deleted bool              `json:"deleted"`
	IsBot   bool              `json:"is_bot"`
	IsAdmin bool              `json:"is_admin"`
	IsOwner bool              `json:"is_owner"`
	Has2FA  bool              `json:"has_2fa"`
	TZ      string            `json:"tz"`
	TZLabel string            `json:"tz_label"`
	Updated source.FlexString `json:"updated"`
	Profile profile           `json:"profile"`
}

func (u user) displayName() string {
	return source.FirstNonEmpty(u.Profile.RealName, u.Profile.DisplayName, u.Name)
}

func (u user) identity() identity.Identity {
	return identity.Identity{
		ID:          u.ID,
		DisplayName: u.displayName(),
		Email:       u.Profile.Email,
		IsBot:       u.IsBot,
	}
}

type channel struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	IsPrivate bool     `json:"is_private"`
}

type message struct {
	User        string       `json:"user"`
	BotID       string       `json:"bot_id"`
	Text        string       `json:"text"`
	TS          string       `json:"ts"`
	Subtype     string       `json:"subtype"`
	ThreadTS    string       `json:"thread_ts"`
	ReplyCount  int          `json:"reply_count"`
	Files       []file       `json:"files"`
	Attachments []attachment `json:"attachments"`
	Reactions   []reaction   `json:"reactions"`
}

type file struct {
	Name string `json:"name"`
}

type attachment struct {
	Fallback string `json:"fallback"`
}

type reaction struct {
	Name  string   `json:"name"`
	Users []string `json:"users"`
}

// Adapter implements source.Adapter for Slack.
type Adapter struct {
	logger *slog.Logger
}

// New creates a Slack adapter.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{logger: logger}
}

func (a *Adapter) Vendor() string { return Vendor }

func (a *Adapter) Capabilities() source.Capabilities {
	return source.Capabilities{
		Formats:     []source.Format{source.FormatZIP},
		Description: "Workspace export zip (users.json, channels.json, per-channel message files)",
	}
}

func (a *Adapter) Extract(ctx context.Context, exportPath string, q source.SubjectQuery) (*domain.Export, error) {
	archive, err := source.OpenArchive(Vendor, exportPath)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	var users []user
	if err := archive.ReadJSON(usersFile, &users); err != nil {
		return nil, err
	}
	var channels []channel
	if archive.Has(channelsFile) {
		if err := archive.ReadJSON(channelsFile, &channels); err != nil {
			return nil, err
		}
	}

	identities := make([]identity.Identity, 0, len(users))
	candidates := make([]identity.Identity, 0, len(users))
	byID := make(map[string]user, len(users))
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		byID[u.ID] = u
		id := u.identity()
		identities = append(identities, id)
		if !u.Deleted {
			candidates = append(candidates, id)
		}
	}

	subject, err := source.ResolveSubject(q, candidates)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "data subject found",
		"vendor", Vendor,
		"subject", subject.String(),
	)

	records, err := a.records(ctx, archive, subject)
	if err != nil {
		return nil, err
	}

	return &domain.Export{
		Vendor:      Vendor,
		ExportFile:  path.Base(exportPath),
		Subject:     subject,
		Profile:     buildProfile(byID[subject.ID]),
		Memberships: memberships(channels, subject.ID),
		Identities:  identities,
		Records:     records,
	}, nil
}

// records walks every channel message file. A message is included when the
// subject wrote it, is mentioned in it, or is named in it.
func (a *Adapter) records(ctx context.Context, archive *source.Archive, subject identity.Identity) ([]domain.Record, error) {
	matcher := source.NewMentionMatcher(subject, "<@"+subject.ID+">", "<@"+subject.ID+"|")

	var records []domain.Record
	for _, name := range archive.Names() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !strings.HasSuffix(name, ".json") || source.Dir(name) == "" || name == integrationLogsFile {
			continue
		}

		var messages []message
		if err := archive.ReadJSON(name, &messages); err != nil {
			a.logger.WarnContext(ctx, "skipping unreadable message file",
				"vendor", Vendor,
				"file", name,
				"error", err,
			)
			continue
		}

		category := "#" + strings.TrimPrefix(source.Dir(name), "#")
		for _, m := range messages {
			var roles []domain.Relationship
			if m.User == subject.ID {
				roles = append(roles, domain.RelationshipAuthor)
			}
			rels := matcher.Relate(roles, m.Text)
			if rels == nil {
				continue
			}
			records = append(records, toRecord(m, category, rels))
		}
	}

	source.SortRecords(records)
	return records, nil
}

func toRecord(m message, category string, rels []domain.Relationship) domain.Record {
	kind := "message"
	if m.Subtype != "" {
		kind = m.Subtype
	}

	text := m.Text
	if len(m.Files) > 0 {
		kind = "file_share"
		names := make([]string, len(m.Files))
		for i, f := range m.Files {
			names[i] = source.FirstNonEmpty(f.Name, "file")
		}
		text += "\n[Files: " + strings.Join(names, ", ") + "]"
	}
	if len(m.Attachments) > 0 {
		kind = "message_with_attachment"
	}
	if len(m.Reactions) > 0 {
		names := make([]string, len(m.Reactions))
		for i, r := range m.Reactions {
			names[i] = r.Name
		}
		text += "\n[Reactions received: " + strings.Join(names, ", ") + "]"
	}

	r := domain.Record{
		Kind:          kind,
		Category:      category,
		Content:       strings.TrimSpace(text),
		Relationships: rels,
	}
	if ts, ok := source.ParseTime(m.TS); ok {
		r.Timestamp = ts
	}
	if m.ThreadTS != "" || m.ReplyCount > 0 {
		r.Fields = map[string]string{}
		if m.ThreadTS != "" {
			r.Fields["thread_ts"] = m.ThreadTS
		}
		if m.ReplyCount > 0 {
			r.Fields["reply_count"] = strconv.Itoa(m.ReplyCount)
		}
	}
	return r
}

func buildProfile(u user) domain.Profile {
	var p domain.Profile
	p = p.Add("User ID", u.ID)
	p = p.Add("Display Name", u.Profile.DisplayName)
	p = p.Add("Real Name", u.Profile.RealName)
	p = p.Add("First Name", u.Profile.FirstName)
	p = p.Add("Last Name", u.Profile.LastName)
	p = p.Add("Email", u.Profile.Email)
	p = p.Add("Phone", u.Profile.Phone)
	p = p.Add("Title", u.Profile.Title)
	p = p.Add("Status Text", u.Profile.StatusText)
	p = p.Add("Status Emoji", u.Profile.StatusEmoji)
	p = p.Add("Timezone", u.TZ)
	p = p.Add("Timezone Label", u.TZLabel)
	if ts, ok := source.ParseTime(u.Updated.String()); ok {
		p = p.Add("Profile Updated", ts.Format("2006-01-02 15:04:05"))
	}
	p = p.Add("Is Admin", strconv.FormatBool(u.IsAdmin))
	p = p.Add("Is Owner", strconv.FormatBool(u.IsOwner))
	p = p.Add("Has 2FA", strconv.FormatBool(u.Has2FA))
	return p
}

// memberships renders "#name (private|public)" for each channel the
// subject belongs to.
func memberships(channels []channel, subjectID string) []string {
	var out []string
	for _, c := range channels {
		if !slices.Contains(c.Members, subjectID) {
			continue
		}
		kind := "public"
		if c.IsPrivate {
			kind = "private"
		}
		out = append(out, fmt.Sprintf("#%s (%s)", source.FirstNonEmpty(c.Name, c.ID), kind))
	}
	slices.Sort(out)
	return out
}
