package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnums(t *testing.T) {
	status, err := ParseContactStatus("engaged")
	require.NoError(t, err)
	assert.Equal(t, ContactStatusEngaged, status)

	source, err := ParseLeadSource("cold_outreach")
	require.NoError(t, err)
	assert.Equal(t, LeadSourceColdOutreach, source)

	it, err := ParseInteractionType("meeting_completed")
	require.NoError(t, err)
	assert.Equal(t, InteractionMeetingCompleted, it)

	as, err := ParseAutomationStatus("paused")
	require.NoError(t, err)
	assert.Equal(t, AutomationPaused, as)

	for _, raw := range []string{"", "Engaged", "vip"} {
		_, err := ParseContactStatus(raw)
		assert.ErrorIs(t, err, ErrInvalidEnum, raw)
	}
	_, err = ParseLeadSource("tv")
	assert.ErrorIs(t, err, ErrInvalidEnum)
}

func TestEnumJSON(t *testing.T) {
	var body struct {
		Status ContactStatus     `json:"status"`
		Camp   CampaignStatus    `json:"campaign"`
		Types  []InteractionType `json:"types"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"customer","campaign":"scheduled","types":["note_added"]}`), &body))
	assert.Equal(t, ContactStatusCustomer, body.Status)
	assert.Equal(t, CampaignStatusScheduled, body.Camp)
	assert.Equal(t, []InteractionType{InteractionNoteAdded}, body.Types)

	err := json.Unmarshal([]byte(`{"status":"lost"}`), &body)
	assert.ErrorIs(t, err, ErrInvalidEnum)

	err = json.Unmarshal([]byte(`{"campaign":3}`), &body)
	assert.Error(t, err)
}

func TestCampaignStatusSendable(t *testing.T) {
	assert.True(t, CampaignStatusDraft.Sendable())
	assert.True(t, CampaignStatusScheduled.Sendable())
	assert.False(t, CampaignStatusSent.Sendable())
	assert.False(t, CampaignStatusPaused.Sendable())
	assert.False(t, CampaignStatusCompleted.Sendable())
}
