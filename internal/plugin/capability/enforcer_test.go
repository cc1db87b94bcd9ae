// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockclerk/stockclerk/internal/plugin/capability"
	"github.com/stockclerk/stockclerk/pkg/errutil"
)

func TestEnforcer_Check(t *testing.T) {
	tests := []struct {
		name       string
		grants     []string
		capability string
		want       bool
	}{
		{"exact match", []string{capability.HostPublish}, capability.HostPublish, true},
		{"single segment wildcard", []string{"host.*"}, capability.HostOptions, true},
		{"host super wildcard", []string{capability.AllHost}, capability.HostReportError, true},
		{"root super wildcard", []string{"**"}, "anything.at.all", true},
		{"other capability denied", []string{capability.HostPublish}, capability.HostOptions, false},
		{"prefix is not a grant", []string{"host"}, capability.HostPublish, false},
		{"no grants", []string{}, capability.HostPublish, false},
		{"empty capability", []string{"**"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := capability.NewEnforcer()
			require.NoError(t, e.SetGrants("pricefloor", tt.grants))
			assert.Equal(t, tt.want, e.Check("pricefloor", tt.capability))
		})
	}
}

func TestEnforcer_UnknownPluginDenied(t *testing.T) {
	var e capability.Enforcer
	assert.False(t, e.Check("ghost", capability.HostPublish))
	assert.Nil(t, e.Grants("ghost"))
}

func TestEnforcer_SetGrantsIsAtomic(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("p", []string{capability.HostPublish}))

	err := e.SetGrants("p", []string{capability.HostOptions, "host.[unclosed"})
	require.Error(t, err)
	assert.Equal(t, []string{capability.HostPublish}, e.Grants("p"))

	require.Error(t, e.SetGrants("p", []string{""}))
	require.Error(t, e.SetGrants("", []string{"**"}))
}

func TestEnforcer_GrantsReturnsCopy(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("p", []string{capability.HostPublish}))

	grants := e.Grants("p")
	grants[0] = "**"
	assert.False(t, e.Check("p", capability.HostOptions))
}

func TestEnforcer_RemoveGrants(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("p", []string{"**"}))
	e.RemoveGrants("p")
	e.RemoveGrants("never-registered")
	assert.False(t, e.Check("p", capability.HostPublish))
}

func TestEnforcer_Require(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("p", []string{capability.HostPublish}))

	require.NoError(t, e.Require("p", capability.HostPublish))

	err := e.Require("p", capability.HostOptions)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, capability.CodeCapabilityDenied)
	errutil.AssertErrorContext(t, err, "capability", capability.HostOptions)
}
