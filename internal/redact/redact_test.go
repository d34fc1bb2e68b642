package redact

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"opsportal/internal/entity"
)

type RedactTestSuite struct {
	suite.Suite
}

func TestRedactTestSuite(t *testing.T) {
	suite.Run(t, new(RedactTestSuite))
}

func (s *RedactTestSuite) TestTopLevelFieldsBlanked() {
	d, ok := entity.Lookup("crew")
	s.Require().True(ok)

	got := Snapshot(map[string]any{
		"crew_id": "CRW-001",
		"name":    "Night Shift",
		"email":   "crew@example.com",
		"phone":   "555-0100",
	}, d)

	s.Equal("CRW-001", got["crew_id"])
	s.Equal("Night Shift", got["name"])
	s.Equal(Marker, got["email"])
	s.Equal(Marker, got["phone"])
}

func (s *RedactTestSuite) TestAbsentAndNullFieldsLeftAlone() {
	d, ok := entity.Lookup("crew")
	s.Require().True(ok)

	got := Snapshot(map[string]any{"crew_id": "CRW-001", "email": nil}, d)

	s.Nil(got["email"])
	s.NotContains(got, "phone")
}

func (s *RedactTestSuite) TestNestedContactScrubbedRecursively() {
	d, ok := entity.Lookup("crew")
	s.Require().True(ok)

	got := Snapshot(map[string]any{
		"crew_id": "CRW-001",
		"emergency_contact": map[string]any{
			"name":  "Pat",
			"phone": "555-0101",
			"addresses": []any{
				map[string]any{"street": "1 Main St", "city": "Springfield"},
			},
			"verified": nil,
		},
	}, d)

	contact, ok := got["emergency_contact"].(map[string]any)
	s.Require().True(ok)
	s.Equal(Marker, contact["name"])
	s.Equal(Marker, contact["phone"])
	s.Nil(contact["verified"])

	addrs, ok := contact["addresses"].([]any)
	s.Require().True(ok)
	s.Require().Len(addrs, 1)
	addr, ok := addrs[0].(map[string]any)
	s.Require().True(ok)
	s.Equal(Marker, addr["street"])
	s.Equal(Marker, addr["city"])
}

func (s *RedactTestSuite) TestJSONStringContactParsedBeforeScrub() {
	// JSONB columns come off a plain row scan as strings; the contact keys
	// must still survive with only the values blanked.
	d, ok := entity.Lookup("crew")
	s.Require().True(ok)

	got := Snapshot(map[string]any{
		"crew_id":           "CRW-001",
		"emergency_contact": `{"name":"Pat","phone":"555-0101"}`,
	}, d)

	contact, ok := got["emergency_contact"].(map[string]any)
	s.Require().True(ok)
	s.Equal(Marker, contact["name"])
	s.Equal(Marker, contact["phone"])
}

func (s *RedactTestSuite) TestUnparseableContactBlankedWholesale() {
	d, ok := entity.Lookup("crew")
	s.Require().True(ok)

	got := Snapshot(map[string]any{"emergency_contact": "call Pat on 555-0101"}, d)

	s.Equal(Marker, got["emergency_contact"])
}

func (s *RedactTestSuite) TestInputNotMutated() {
	d, ok := entity.Lookup("manager")
	s.Require().True(ok)

	in := map[string]any{"email": "m@example.com"}
	_ = Snapshot(in, d)

	s.Equal("m@example.com", in["email"])
}

func (s *RedactTestSuite) TestNilSnapshot() {
	d, ok := entity.Lookup("manager")
	s.Require().True(ok)
	s.Nil(Snapshot(nil, d))
}
