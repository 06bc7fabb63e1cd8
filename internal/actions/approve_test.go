package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

func seedOffer(ms *mockStore, id string, state schema.ApprovalState) {
	admin, client := state.Tracks()
	ms.offers[id] = &store.Offer{
		ID: id, RequestID: "R1", VendorID: "V1", ClientID: "C1",
		ApprovalState: state, AdminApprovalStatus: admin, ClientApprovalStatus: client,
	}
}

func approveInput(level string, offerID string) Input {
	data := schema.TriggerData{}
	if offerID != "" {
		data["offer_id"] = offerID
	}
	return input(schema.ActionAutoApprove, map[string]any{"level": level}, data)
}

func twoPartyInput(level string, offerID string) Input {
	in := approveInput(level, offerID)
	in.Action.Params["mode"] = ApproveModeTwoParty
	return in
}

func TestAutoApprove_AdminApprovesBothTracksInOneUpdate(t *testing.T) {
	ms := newMockStore()
	seedOffer(ms, "O1", schema.ApprovalPending)
	a := NewAutoApproveAction(testDeps(ms))

	out, err := a.Execute(context.Background(), approveInput("admin", "O1"))
	require.NoError(t, err)
	assert.Equal(t, "approved", out.Data["to"])

	require.Len(t, ms.offerUpdates, 1)
	o := ms.offers["O1"]
	assert.Equal(t, schema.ApprovalApproved, o.ApprovalState)
	assert.Equal(t, schema.TrackApproved, o.AdminApprovalStatus)
	assert.Equal(t, schema.TrackApproved, o.ClientApprovalStatus)
	require.NotNil(t, o.ClientApprovedAt)
	assert.Equal(t, fixedNow, *o.ClientApprovedAt)

	require.Len(t, ms.notifications, 1)
	assert.Equal(t, "V1", ms.notifications[0].UserID)
}

func TestAutoApprove_CombinedNoOps(t *testing.T) {
	ms := newMockStore()
	seedOffer(ms, "O1", schema.ApprovalApproved)
	seedOffer(ms, "O2", schema.ApprovalPending)
	a := NewAutoApproveAction(testDeps(ms))

	out, err := a.Execute(context.Background(), approveInput("admin", "O1"))
	require.NoError(t, err)
	assert.Equal(t, true, out.Data["skipped"])

	out, err = a.Execute(context.Background(), approveInput("client", "O2"))
	require.NoError(t, err)
	assert.Equal(t, true, out.Data["skipped"])

	assert.Empty(t, ms.offerUpdates)
	assert.Empty(t, ms.notifications)
}

func TestAutoApprove_TwoPartyAdminThenClientReachesApproved(t *testing.T) {
	ms := newMockStore()
	seedOffer(ms, "O1", schema.ApprovalPending)
	a := NewAutoApproveAction(testDeps(ms))

	out, err := a.Execute(context.Background(), twoPartyInput("admin", "O1"))
	require.NoError(t, err)
	assert.Equal(t, "admin_approved", out.Data["to"])
	assert.Equal(t, schema.TrackApproved, ms.offers["O1"].AdminApprovalStatus)
	assert.Equal(t, schema.TrackPending, ms.offers["O1"].ClientApprovalStatus)
	assert.Nil(t, ms.offers["O1"].ClientApprovedAt)

	_, err = a.Execute(context.Background(), twoPartyInput("client", "O1"))
	require.NoError(t, err)
	o := ms.offers["O1"]
	assert.Equal(t, schema.ApprovalApproved, o.ApprovalState)
	assert.Equal(t, schema.TrackApproved, o.AdminApprovalStatus)
	assert.Equal(t, schema.TrackApproved, o.ClientApprovalStatus)
	require.NotNil(t, o.ClientApprovedAt)
	assert.Equal(t, fixedNow, *o.ClientApprovedAt)

	// One update per approval.
	require.Len(t, ms.offerUpdates, 2)
	assert.Equal(t, schema.ApprovalPending, ms.offerUpdates[0].From)
	assert.Equal(t, schema.ApprovalAdminApproved, ms.offerUpdates[1].From)

	require.Len(t, ms.notifications, 2)
	assert.Equal(t, "V1", ms.notifications[0].UserID)
	assert.Equal(t, "Offer Approved", ms.notifications[0].Title)
	assert.Equal(t, "Your offer O1 has been approved automatically.", ms.notifications[0].Message)
}

func TestAutoApprove_TwoPartyClientApprovedPlusAdminSetsBothTracks(t *testing.T) {
	ms := newMockStore()
	seedOffer(ms, "O1", schema.ApprovalClientApproved)
	a := NewAutoApproveAction(testDeps(ms))

	_, err := a.Execute(context.Background(), twoPartyInput("admin", "O1"))
	require.NoError(t, err)
	require.Len(t, ms.offerUpdates, 1)
	assert.Equal(t, schema.ApprovalApproved, ms.offerUpdates[0].To)
	assert.Equal(t, schema.TrackApproved, ms.offers["O1"].AdminApprovalStatus)
	assert.Equal(t, schema.TrackApproved, ms.offers["O1"].ClientApprovalStatus)
}

func TestAutoApprove_TwoPartyIllegalTransitions(t *testing.T) {
	cases := []struct {
		state schema.ApprovalState
		level string
	}{
		{schema.ApprovalAdminApproved, "admin"},
		{schema.ApprovalClientApproved, "client"},
		{schema.ApprovalApproved, "admin"},
		{schema.ApprovalRejected, "client"},
	}
	for _, tc := range cases {
		t.Run(string(tc.state)+"/"+tc.level, func(t *testing.T) {
			ms := newMockStore()
			seedOffer(ms, "O1", tc.state)
			a := NewAutoApproveAction(testDeps(ms))

			_, err := a.Execute(context.Background(), twoPartyInput(tc.level, "O1"))
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))
			assert.Empty(t, ms.offerUpdates)
			assert.Empty(t, ms.notifications)
		})
	}
}

func TestAutoApprove_Preconditions(t *testing.T) {
	ms := newMockStore()
	a := NewAutoApproveAction(testDeps(ms))

	out, err := a.Execute(context.Background(), approveInput("admin", ""))
	require.NoError(t, err)
	assert.Equal(t, true, out.Data["skipped"])

	_, err = a.Execute(context.Background(), twoPartyInput("owner", "O1"))
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	in := approveInput("admin", "O1")
	in.Action.Params["mode"] = "majority"
	_, err = a.Execute(context.Background(), in)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = a.Execute(context.Background(), approveInput("admin", "missing"))
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}
