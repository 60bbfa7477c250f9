// Package jira reads Jira backup exports in JSON form: users, projects and
// issues with their comments and worklogs inlined.
package jira

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
const Vendor = "Jira"

// account is how Jira references a person. Cloud uses accountId; server
// exports use key or name.
type account struct {
	AccountID    string            `json:"accountId"`
	Key          string            `json:"key"`
	Name         string            `json:"name"`
	DisplayName  string            `json:"displayName"`
	EmailAddress string            `json:"emailAddress"`
	Email        string            `json:"email"`
	Active       *bool             `json:"active"`
	TimeZone     string            `json:"timeZone"`
	Locale       string            `json:"locale"`
	AccountType  string            `json:"accountType"`
	AvatarURLs   map[string]string `json:"avatarUrls"`
}

func (a *account) id() string {
	if a == nil {
		return ""
	}
	return source.FirstNonEmpty(a.AccountID, a.Key, a.Name)
}

func (a *account) identity() identity.Identity {
	return identity.Identity{
		ID:          a.id(),
		DisplayName: source.FirstNonEmpty(a.DisplayName, a.Name),
		Email:       source.FirstNonEmpty(a.EmailAddress, a.Email),
		IsBot:       a.AccountType == "app",
	}
}

type project struct {
	ID   source.FlexString `json:"id"`
	Key  string            `json:"key"`
	Name string            `json:"name"`
}

type comment struct {
	Author  *account `json:"author"`
	Body    string   `json:"body"`
	Created string   `json:"created"`
}

type worklog struct {
	Author    *account `json:"author"`
	Comment   string   `json:"comment"`
	Started   string   `json:"started"`
	TimeSpent string   `json:"timeSpent"`
}

type issue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string   `json:"summary"`
		Description string   `json:"description"`
		Created     string   `json:"created"`
		Reporter    *account `json:"reporter"`
		Assignee    *account `json:"assignee"`
		Creator     *account `json:"creator"`
		Status      struct {
			Name string `json:"name"`
		} `json:"status"`
		Project struct {
			ID source.FlexString `json:"id"`
		} `json:"project"`
		Comment struct {
			Comments []comment `json:"comments"`
		} `json:"comment"`
		Worklog struct {
			Worklogs []worklog `json:"worklogs"`
		} `json:"worklog"`
	} `json:"fields"`
}

type export struct {
	Users    []account `json:"users"`
	Projects []project `json:"projects"`
	Issues   []issue   `json:"issues"`
}

// Adapter implements source.Adapter for Jira.
type Adapter struct {
	logger *slog.Logger
}

// New creates a Jira adapter.
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
		Description: "Backup manager JSON (users, projects, issues with comments and worklogs)",
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
	byID := make(map[string]account, len(data.Users))
	for _, u := range data.Users {
		id := u.identity()
		if id.ID == "" {
			continue
		}
		byID[id.ID] = u
		identities = append(identities, id)
	}

	subject, err := source.ResolveSubject(q, identities)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "data subject found",
		"vendor", Vendor,
		"subject", subject.String(),
	)

	recs, err := records(ctx, data, subject)
	if err != nil {
		return nil, err
	}

	return &domain.Export{
		Vendor:     Vendor,
		ExportFile: path.Base(exportPath),
		Subject:    subject,
		Profile:    buildProfile(byID[subject.ID]),
		Identities: identities,
		Records:    recs,
	}, nil
}

// records includes every issue, comment and worklog the subject holds a role
// on, wrote, or is mentioned in. Comments are checked on every issue, not
// only the ones the subject is involved in.
func records(ctx context.Context, data export, subject identity.Identity) ([]domain.Record, error) {
	matcher := source.NewMentionMatcher(subject,
		"[~"+subject.ID+"]",
		"[~accountid:"+subject.ID+"]",
	)

	projects := make(map[string]string, len(data.Projects))
	for _, p := range data.Projects {
		projects[p.ID.String()] = source.FirstNonEmpty(p.Name, p.Key)
	}

	var out []domain.Record
	for _, is := range data.Issues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := is.Fields
		category := source.FirstNonEmpty(projects[f.Project.ID.String()], "Unknown") + " / " + is.Key

		var roles []domain.Relationship
		if f.Reporter.id() == subject.ID {
			roles = append(roles, domain.RelationshipReporter)
		}
		if f.Assignee.id() == subject.ID {
			roles = append(roles, domain.RelationshipAssignee)
		}
		if f.Creator.id() == subject.ID {
			roles = append(roles, domain.RelationshipCreator)
		}
		description := platformstrings.StripHTML(f.Description)
		if rels := matcher.Relate(roles, f.Summary, description); rels != nil {
			r := domain.Record{
				Kind:     "issue",
				Category: category,
				Content: fmt.Sprintf("Summary: %s\nRole: %s\nStatus: %s\nDescription: %s",
					f.Summary, roleList(roles), source.FirstNonEmpty(f.Status.Name, "Unknown"), description),
				Fields:        map[string]string{"issue_key": is.Key},
				Relationships: rels,
			}
			r.Timestamp, _ = source.ParseTime(f.Created)
			out = append(out, r)
		}

		for _, c := range f.Comment.Comments {
			body := platformstrings.StripHTML(c.Body)
			if rels := matcher.Relate(authored(c.Author, subject.ID), body); rels != nil {
				r := domain.Record{
					Kind:          "comment",
					Category:      category,
					Content:       body,
					Fields:        map[string]string{"issue_key": is.Key},
					Relationships: rels,
				}
				r.Timestamp, _ = source.ParseTime(c.Created)
				out = append(out, r)
			}
		}

		for _, w := range f.Worklog.Worklogs {
			note := platformstrings.StripHTML(w.Comment)
			if rels := matcher.Relate(authored(w.Author, subject.ID), note); rels != nil {
				r := domain.Record{
					Kind:          "worklog",
					Category:      category,
					Content:       fmt.Sprintf("Time logged: %s\nComment: %s", source.FirstNonEmpty(w.TimeSpent, "Unknown"), note),
					Fields:        map[string]string{"issue_key": is.Key},
					Relationships: rels,
				}
				r.Timestamp, _ = source.ParseTime(w.Started)
				out = append(out, r)
			}
		}
	}

	source.SortRecords(out)
	return out, nil
}

func authored(author *account, subjectID string) []domain.Relationship {
	if author.id() == subjectID {
		return []domain.Relationship{domain.RelationshipAuthor}
	}
	return nil
}

func roleList(roles []domain.Relationship) string {
	if len(roles) == 0 {
		return "mentioned"
	}
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

func buildProfile(u account) domain.Profile {
	var p domain.Profile
	p = p.Add("Account ID", u.id())
	p = p.Add("Display Name", u.DisplayName)
	p = p.Add("Email", source.FirstNonEmpty(u.EmailAddress, u.Email))
	p = p.Add("Username", u.Name)
	if u.Active != nil {
		p = p.Add("Active", strconv.FormatBool(*u.Active))
	}
	p = p.Add("Timezone", u.TimeZone)
	p = p.Add("Locale", u.Locale)
	p = p.Add("Account Type", u.AccountType)
	p = p.Add("Avatar URL", u.AvatarURLs["48x48"])
	return p
}
