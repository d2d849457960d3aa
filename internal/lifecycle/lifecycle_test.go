package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Total(t *testing.T) {
	counts := map[Classification]int{}
	for _, s := range AllStatuses() {
		c := Classify(s)
		assert.Contains(t, []Classification{ClassInitial, ClassActive, ClassAttention, ClassSuccess, ClassFailure}, c, "status %s", s)
		counts[c]++
	}

	assert.Equal(t, 2, counts[ClassInitial])
	assert.Equal(t, 5, counts[ClassActive])
	assert.Equal(t, 4, counts[ClassAttention])
	assert.Equal(t, 6, counts[ClassSuccess])
	assert.Equal(t, 4, counts[ClassFailure])
}

func TestClassify_KnownExamples(t *testing.T) {
	tests := []struct {
		status Status
		want   Classification
	}{
		{StatusFunded, ClassSuccess},
		{StatusQCRejected, ClassAttention},
		{StatusDraft, ClassInitial},
		{StatusSubmitted, ClassInitial},
		{StatusQCReview, ClassActive},
		{StatusDocumentsExpired, ClassFailure},
		{StatusCounterOfferMade, ClassAttention},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.status))
		})
	}
}

func TestClassify_UnknownFallsBackToInitial(t *testing.T) {
	assert.Equal(t, ClassInitial, Classify(Status("warehoused")))
	assert.Equal(t, ClassInitial, Classify(""))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" QC_Approved ")
	require.NoError(t, err)
	assert.Equal(t, StatusQCApproved, s)

	_, err = ParseStatus("bogus")
	assert.Error(t, err)
}

func TestLabelAndBadge(t *testing.T) {
	assert.Equal(t, "In Review", StatusInReview.Label())
	assert.Equal(t, "QC Rejected", StatusQCRejected.Label())
	assert.Equal(t, "Ready To Fund", StatusReadyToFund.Label())

	assert.Equal(t, "green", Classify(StatusFunded).BadgeColor())
	assert.Equal(t, "red", Classify(StatusDenied).BadgeColor())
	assert.Equal(t, "orange", Classify(StatusIncomplete).BadgeColor())
	assert.Equal(t, "blue", Classify(StatusInReview).BadgeColor())
	assert.Equal(t, "gray", Classify(StatusDraft).BadgeColor())
}

func TestTerminalAndAttention(t *testing.T) {
	assert.True(t, IsTerminal(StatusFunded))
	assert.True(t, IsTerminal(StatusAbandoned))
	assert.False(t, IsTerminal(StatusInReview))
	assert.True(t, RequiresAttention(StatusRevisionRequested))
	assert.False(t, RequiresAttention(StatusApproved))
}

func TestIsCurrent(t *testing.T) {
	tr := StatusTransition{PreviousStatus: StatusSubmitted, NewStatus: StatusInReview}
	assert.True(t, IsCurrent(tr, StatusInReview))
	assert.False(t, IsCurrent(tr, StatusSubmitted))
}

func at(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
}

func TestSortHistory_StableOnTies(t *testing.T) {
	entries := []StatusTransition{
		{ID: "c", ChangedAt: at(5)},
		{ID: "a", ChangedAt: at(1)},
		{ID: "tie-1", ChangedAt: at(3)},
		{ID: "tie-2", ChangedAt: at(3)},
		{ID: "tie-3", ChangedAt: at(3)},
	}

	sorted := SortHistory(entries)

	ids := make([]string, len(sorted))
	for i, e := range sorted {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"a", "tie-1", "tie-2", "tie-3", "c"}, ids)
	assert.Equal(t, "c", entries[0].ID, "input must not be reordered")
}

func history() []StatusTransition {
	return []StatusTransition{
		{ID: "1", PreviousStatus: StatusDraft, NewStatus: StatusSubmitted, ChangedAt: at(1)},
		{ID: "2", PreviousStatus: StatusSubmitted, NewStatus: StatusInReview, ChangedAt: at(2)},
		{ID: "3", PreviousStatus: StatusInReview, NewStatus: StatusRevisionRequested, ChangedAt: at(3)},
		{ID: "4", PreviousStatus: StatusRevisionRequested, NewStatus: StatusInReview, ChangedAt: at(4)},
	}
}

func TestVerifyChain(t *testing.T) {
	assert.NoError(t, VerifyChain(history()))

	broken := history()
	broken[2].PreviousStatus = StatusQCReview
	err := VerifyChain(broken)
	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, 2, chainErr.Index)
	assert.Equal(t, StatusInReview, chainErr.Expected)

	skipped := history()
	skipped[0].NewStatus = StatusInReview
	skipped[1].PreviousStatus = StatusInReview
	err = VerifyChain(skipped)
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, 0, chainErr.Index)
	assert.Equal(t, "new_status", chainErr.Field)
	assert.Equal(t, StatusSubmitted, chainErr.Expected)
	assert.Equal(t, StatusInReview, chainErr.Got)

	assert.NoError(t, VerifyChain(nil))
}

func TestBuildTimeline_MarksLatestCurrentOnly(t *testing.T) {
	timeline := BuildTimeline(history(), StatusInReview)
	require.Len(t, timeline, 4)

	assert.False(t, timeline[1].IsCurrent)
	assert.True(t, timeline[3].IsCurrent)
	assert.Equal(t, ClassAttention, timeline[2].Classification)
	assert.Equal(t, "Revision Requested", timeline[2].Label)
	assert.Equal(t, "orange", timeline[2].BadgeColor)
}

type stubHistory struct {
	entries []StatusTransition
	err     error
}

func (s stubHistory) GetStatusHistory(_ context.Context, _ string) ([]StatusTransition, error) {
	return s.entries, s.err
}

func TestLoadTimeline(t *testing.T) {
	timeline, err := LoadTimeline(context.Background(), stubHistory{entries: history()}, "app-1", StatusInReview)
	require.NoError(t, err)
	assert.Len(t, timeline, 4)

	_, err = LoadTimeline(context.Background(), stubHistory{err: errors.New("boom")}, "app-1", StatusInReview)
	assert.ErrorContains(t, err, "app-1")
}

func TestStaffActions(t *testing.T) {
	assert.Equal(t, []Action{ActionUnderwritingDecide, ActionWithdraw}, StaffActions(StatusInReview))
	assert.Equal(t, []Action{ActionRecordFunding}, StaffActions(StatusReadyToFund))
	assert.Empty(t, StaffActions(StatusFunded))
	assert.Empty(t, StaffActions(StatusDenied))
}

func TestParseClassification(t *testing.T) {
	c, err := ParseClassification(" Attention ")
	require.NoError(t, err)
	assert.Equal(t, ClassAttention, c)

	_, err = ParseClassification("pending")
	assert.Error(t, err)
	assert.False(t, Classification("").Valid())
}

func TestStatusesIn(t *testing.T) {
	assert.Equal(t, []Status{StatusRevisionRequested, StatusQCRejected, StatusCounterOfferMade, StatusIncomplete}, StatusesIn(ClassAttention))

	total := 0
	for _, c := range []Classification{ClassInitial, ClassActive, ClassAttention, ClassSuccess, ClassFailure} {
		for _, s := range StatusesIn(c) {
			assert.Equal(t, c, Classify(s))
		}
		total += len(StatusesIn(c))
	}
	assert.Equal(t, len(AllStatuses()), total)
}
