package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextApproval_Legal(t *testing.T) {
	cases := []struct {
		from  ApprovalState
		level ApprovalLevel
		want  ApprovalState
	}{
		{ApprovalPending, ApprovalLevelAdmin, ApprovalAdminApproved},
		{ApprovalPending, ApprovalLevelClient, ApprovalClientApproved},
		{ApprovalClientApproved, ApprovalLevelAdmin, ApprovalApproved},
		{ApprovalAdminApproved, ApprovalLevelClient, ApprovalApproved},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.level), func(t *testing.T) {
			got, err := NextApproval(tc.from, tc.level)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNextApproval_Illegal(t *testing.T) {
	cases := []struct {
		from  ApprovalState
		level ApprovalLevel
	}{
		{ApprovalAdminApproved, ApprovalLevelAdmin},
		{ApprovalClientApproved, ApprovalLevelClient},
		{ApprovalApproved, ApprovalLevelAdmin},
		{ApprovalRejected, ApprovalLevelClient},
		{ApprovalPending, "manager"},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.level), func(t *testing.T) {
			_, err := NextApproval(tc.from, tc.level)
			require.Error(t, err)
			assert.True(t, IsCode(err, ErrCodeInvalidTransition))
		})
	}
}

func TestApprovalTracks_RoundTrip(t *testing.T) {
	for _, s := range []ApprovalState{
		ApprovalPending, ApprovalClientApproved, ApprovalAdminApproved, ApprovalApproved, ApprovalRejected,
	} {
		admin, client := s.Tracks()
		assert.Equal(t, s, StateFromTracks(admin, client), string(s))
	}
}

func TestStateFromTracks_AnyRejectionWins(t *testing.T) {
	assert.Equal(t, ApprovalRejected, StateFromTracks(TrackApproved, TrackRejected))
	assert.Equal(t, ApprovalRejected, StateFromTracks(TrackRejected, TrackPending))
}
