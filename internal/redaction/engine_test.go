package redaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"dsar/pkg/identity"
)

var janeDoe = identity.Identity{ID: "1", DisplayName: "Jane Doe", Email: "jane@co.com"}

type EngineSuite struct {
	suite.Suite
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.engine = NewEngine(janeDoe)
}

func (s *EngineSuite) TestIsSubject() {
	s.Run("all fields empty is never the subject", func() {
		s.False(s.engine.IsSubject("", "", ""))
		s.False(s.engine.IsSubject("  ", "", " "))
	})

	s.Run("email matches regardless of case", func() {
		s.True(s.engine.IsSubject("", "JANE@CO.COM", ""))
	})

	s.Run("id matches", func() {
		s.True(s.engine.IsSubject("", "", "1"))
	})

	s.Run("name matches on significant tokens", func() {
		s.True(s.engine.IsSubject("doe, jane", "", ""))
	})

	s.Run("partial name is not the subject", func() {
		s.False(s.engine.IsSubject("Jane", "", ""))
		s.False(s.engine.IsSubject("Jane Smith", "", ""))
	})
}

func (s *EngineSuite) TestRegisterIdentityIsIdempotent() {
	first, ok := s.engine.RegisterIdentity("U2", "Bob Lee", "bob@co.com", false)
	s.Require().True(ok)
	s.Equal(Label("[User 1]"), first)

	s.Run("same id", func() {
		l, ok := s.engine.RegisterIdentity("U2", "Robert Lee", "", false)
		s.True(ok)
		s.Equal(first, l)
	})

	s.Run("same email in another case", func() {
		l, ok := s.engine.RegisterIdentity("", "", "BOB@co.com", false)
		s.True(ok)
		s.Equal(first, l)
	})

	s.Run("same name with different spacing", func() {
		l, ok := s.engine.RegisterIdentity("", "bob   LEE", "", false)
		s.True(ok)
		s.Equal(first, l)
	})

	s.Equal(1, s.engine.Len())
	s.Equal(1, s.engine.Stats()[CategoryUser])
}

func (s *EngineSuite) TestSubjectIsNeverRegistered() {
	_, ok := s.engine.RegisterIdentity("1", "Jane Doe", "jane@co.com", false)
	s.False(ok)

	_, ok = s.engine.RegisterIdentity("U77", "J. Doe", "Jane@Co.com", false)
	s.False(ok, "an identity carrying the subject email is the subject")

	_, ok = s.engine.RegisterExternalName("jane doe")
	s.False(ok)

	_, ok = s.engine.RegisterEmail("<JANE@co.com>")
	s.False(ok)

	s.Zero(s.engine.Len())
	s.Empty(s.engine.Key())

	text := "Jane Doe (jane@co.com) opened the ticket"
	s.Equal(text, s.engine.Redact(text))
}

func (s *EngineSuite) TestSameNameDifferentIDs() {
	first, ok := s.engine.RegisterIdentity("u1", "John Smith", "", false)
	s.Require().True(ok)
	second, ok := s.engine.RegisterIdentity("u2", "John Smith", "", false)
	s.Require().True(ok)

	s.NotEqual(first, second)
	s.Equal(2, s.engine.Stats()[CategoryUser])

	got := s.engine.Redact("<@u1> thanked <@u2> for the review")
	s.Equal("<@[User 1]> thanked <@[User 2]> for the review", got)

	s.Run("short ids are recorded on the key", func() {
		key := s.engine.Key()
		s.Require().Len(key, 2)
		s.Contains(key[0].Aliases, "u1")
		s.Contains(key[1].Aliases, "u2")
	})
}

func (s *EngineSuite) TestStandaloneEmailIsAdoptedByItsPerson() {
	standalone, ok := s.engine.RegisterEmail("bob@x.com")
	s.Require().True(ok)
	s.Equal(Label("[Email 1]"), standalone)

	user, ok := s.engine.RegisterIdentity("U7", "Bob Leeson", "Bob@X.com", false)
	s.Require().True(ok)
	s.Equal(Label("[User 1]"), user)

	s.Equal("mail [User 1]", s.engine.Redact("mail bob@x.com"))

	again, ok := s.engine.RegisterEmail("bob@x.com")
	s.True(ok)
	s.Equal(user, again)

	key := s.engine.Key()
	s.Require().Len(key, 2)
	s.Contains(key[1].Aliases, "bob@x.com")
	original, ok := key.Decode(standalone)
	s.True(ok, "the standalone label still decodes")
	s.Equal("bob@x.com", original)
}

func (s *EngineSuite) TestBotFlagForcesBotCategory() {
	l, ok := s.engine.RegisterIdentity("B1", "Deploy Helper", "", true)
	s.Require().True(ok)
	s.Equal(Label("[Bot 1]"), l)

	key := s.engine.Key()
	s.Require().Len(key, 1)
	s.Equal(CategoryBot, key[0].EntityType)

	s.Run("a human with the same name is a different party", func() {
		human, ok := s.engine.RegisterIdentity("", "Deploy Helper", "", false)
		s.True(ok)
		s.Equal(Label("[User 1]"), human)
	})
}

func (s *EngineSuite) TestRegisterExternalName() {
	s.Run("short names are refused", func() {
		_, ok := s.engine.RegisterExternalName("Al")
		s.False(ok)
	})

	s.Run("allocates external and is idempotent", func() {
		l, ok := s.engine.RegisterExternalName("Maria Garcia")
		s.True(ok)
		s.Equal(Label("[External 1]"), l)

		again, ok := s.engine.RegisterExternalName("  maria   garcia ")
		s.True(ok)
		s.Equal(l, again)
	})

	s.Run("reuses the label of a registered person", func() {
		user, _ := s.engine.RegisterIdentity("U5", "Tom Baker", "", false)
		l, ok := s.engine.RegisterExternalName("Baker, Tom")
		s.True(ok)
		s.Equal(user, l)
		s.Equal("[User 1] called", s.engine.Redact("Baker, Tom called"))
	})
}

func (s *EngineSuite) TestRegisterEmailReusesIdentityLabel() {
	user, _ := s.engine.RegisterIdentity("U9", "Carol King", "carol@x.com", false)

	l, ok := s.engine.RegisterEmail("Carol@X.com")
	s.True(ok)
	s.Equal(user, l)

	other, ok := s.engine.RegisterEmail("mailto:dave@x.com")
	s.True(ok)
	s.Equal(Label("[Email 1]"), other)

	s.Equal("write to [User 1] or [Email 1]", s.engine.Redact("write to CAROL@x.com or dave@x.com"))
}

func (s *EngineSuite) TestRegisterPhone() {
	first, ok := s.engine.RegisterPhone("+1 (555) 123-4567")
	s.Require().True(ok)
	s.Equal(Label("[Phone 1]"), first)

	same, ok := s.engine.RegisterPhone("15551234567")
	s.True(ok)
	s.Equal(first, same)

	_, ok = s.engine.RegisterPhone("12345")
	s.False(ok, "too few digits")

	got := s.engine.Redact("call +1 (555) 123-4567 or 15551234567")
	s.Equal("call [Phone 1] or [Phone 1]", got)
}

func (s *EngineSuite) TestRegisterID() {
	l, ok := s.engine.RegisterID("EMP-00412")
	s.Require().True(ok)
	s.Equal(Label("[ID 1]"), l)

	_, ok = s.engine.RegisterID("1")
	s.False(ok, "the subject id")

	short, ok := s.engine.RegisterID("77")
	s.True(ok)
	s.Equal("see <@[ID 2]> about 77 items", s.engine.Redact("see <@77> about 77 items"))
	s.Equal(Label("[ID 2]"), short)

	s.Equal("badge [ID 1] revoked", s.engine.Redact("badge EMP-00412 revoked"))
}

func TestSubjectPhonesAreNotLabelled(t *testing.T) {
	e := NewEngine(janeDoe, WithSubjectPhones("+44 20 7946 0958"))

	_, ok := e.RegisterPhone("020 7946 0958 ")
	assert.True(t, ok, "different digits are a different number")

	_, ok = e.RegisterPhone("+44 (20) 7946-0958")
	assert.False(t, ok)
}

func TestKeyIsBijective(t *testing.T) {
	e := NewEngine(janeDoe)
	e.RegisterIdentity("U1", "Bob Lee", "bob@co.com", false)
	e.RegisterIdentity("U2", "Ci Ng", "", false)
	e.RegisterIdentity("B1", "Standup Bot", "", true)
	e.RegisterExternalName("Maria Garcia")
	e.RegisterEmail("ext@vendor.io")
	e.RegisterPhone("+1 555 010 9999")
	e.RegisterPhone("+1-555-010-9999")
	e.RegisterID("ACC-9981")

	key := e.Key()
	require.Len(t, key, e.Len())

	seen := make(map[Label]struct{})
	for _, entry := range key {
		_, dup := seen[entry.Label]
		require.False(t, dup, "label %s allocated twice", entry.Label)
		seen[entry.Label] = struct{}{}

		original, ok := key.Decode(entry.Label)
		require.True(t, ok)
		assert.Equal(t, entry.OriginalValue, original)
	}

	for fragment, label := range e.forward {
		entry := e.entries[label]
		require.NotNil(t, entry)
		values := append([]string{entry.original}, entry.aliases...)
		assert.True(t, containsFold(values, e.raw[fragment]),
			"fragment %q of %s missing from its key entry", fragment, label)
	}

	_, ok := key.Decode("[User 99]")
	assert.False(t, ok)
	assert.Len(t, key.ByCategory(CategoryPhone), 1)
}

func TestEndToEndJaneDoe(t *testing.T) {
	e := NewEngine(janeDoe)

	identities := []identity.Identity{
		{ID: "1", DisplayName: "Jane Doe", Email: "jane@co.com"},
		{ID: "2", DisplayName: "Bob Lee"},
		{ID: "3", DisplayName: "Bot", IsBot: true},
	}
	for _, id := range identities {
		e.RegisterIdentity(id.ID, id.DisplayName, id.Email, id.IsBot)
	}

	got := e.Redact("Bob Lee and Bot replied to Jane Doe")
	assert.Equal(t, "[User 1] and [Bot 1] replied to Jane Doe", got)

	stats := e.Stats()
	assert.Equal(t, 1, stats[CategoryUser])
	assert.Equal(t, 1, stats[CategoryBot])
	assert.Equal(t, 2, stats.Total())
}

func TestEnginesAreIndependent(t *testing.T) {
	slack := NewEngine(janeDoe)
	jira := NewEngine(janeDoe)

	slack.RegisterIdentity("U1", "Bob Lee", "", false)
	jira.RegisterIdentity("X1", "Ann Park", "", false)
	jira.RegisterIdentity("X2", "Bob Lee", "", false)

	assert.Equal(t, "[User 1]", slack.Redact("Bob Lee"))
	assert.Equal(t, "[User 2]", jira.Redact("Bob Lee"))
}
