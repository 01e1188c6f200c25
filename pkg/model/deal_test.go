package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/earnout-labs/dealvault/pkg/model"
)

func TestDealRoleOf(t *testing.T) {
	deal := model.Deal{
		Buyer:   "0xB0",
		Seller:  "0x5e",
		Auditor: "a0",
	}

	role, ok := deal.RoleOf("0xb0")
	require.True(t, ok)
	require.Equal(t, model.RoleBuyer, role)

	role, ok = deal.RoleOf("5E")
	require.True(t, ok)
	require.Equal(t, model.RoleSeller, role)

	role, ok = deal.RoleOf("0xA0")
	require.True(t, ok)
	require.Equal(t, model.RoleAuditor, role)

	_, ok = deal.RoleOf("0xff")
	require.False(t, ok)

	_, ok = deal.RoleOf("")
	require.False(t, ok)
}

func TestDealRolesOf(t *testing.T) {
	deal := model.Deal{Buyer: "0xb0", Seller: "0x5e", Auditor: "0xB0"}

	require.Equal(t, []model.Role{model.RoleBuyer, model.RoleAuditor}, deal.RolesOf("b0"))
	require.Equal(t, []model.Role{model.RoleSeller}, deal.RolesOf("0x5e"))
	require.Empty(t, deal.RolesOf("0xff"))

	role, ok := deal.RoleOf("0xb0")
	require.True(t, ok)
	require.Equal(t, model.RoleBuyer, role)
}

func TestEmptyParticipantNeverMatches(t *testing.T) {
	deal := model.Deal{Buyer: "0x1"}
	_, ok := deal.RoleOf("  ")
	require.False(t, ok)
}

func TestParseDealStatus(t *testing.T) {
	st, err := model.ParseDealStatus("Active")
	require.NoError(t, err)
	require.Equal(t, model.DealStatusActive, st)

	st, err = model.ParseDealStatus("3")
	require.NoError(t, err)
	require.Equal(t, model.DealStatusCancelled, st)

	_, err = model.ParseDealStatus("4")
	require.Error(t, err)

	_, err = model.ParseDealStatus("archived")
	require.Error(t, err)
}

func TestParseRole(t *testing.T) {
	r, err := model.ParseRole(" Auditor ")
	require.NoError(t, err)
	require.Equal(t, model.RoleAuditor, r)

	_, err = model.ParseRole("arbiter")
	require.Error(t, err)
}
