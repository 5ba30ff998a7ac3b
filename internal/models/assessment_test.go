package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitCounts(t *testing.T) {
	cases := []struct {
		total int
		mcq   int
		open  int
	}{
		{0, 0, 0},
		{1, 1, 0},
		{2, 1, 1},
		{5, 3, 2},
		{10, 6, 4},
		{7, 4, 3},
	}

	for _, tc := range cases {
		mcq, open := SplitCounts(tc.total)
		require.Equal(t, tc.mcq, mcq, "total=%d", tc.total)
		require.Equal(t, tc.open, open, "total=%d", tc.total)
		require.Equal(t, tc.total, mcq+open, "total=%d", tc.total)
	}
}

func TestMaxScore(t *testing.T) {
	questions := []Question{
		{Type: QuestionTypeMCQ, MaxPoints: PointsMCQ},
		{Type: QuestionTypeMCQ, MaxPoints: PointsMCQ},
		{Type: QuestionTypeOpen, MaxPoints: PointsOpen},
	}

	require.Equal(t, 20.0, MaxScore(questions))
	require.Equal(t, 0.0, MaxScore(nil))
}

func TestDecodeQuestions(t *testing.T) {
	questions := []Question{
		{ID: "q_1_0", Type: QuestionTypeMCQ, Prompt: "pick one", Options: []string{"a", "b", "c", "d"}, CorrectOptionIndex: 2, MaxPoints: PointsMCQ},
	}

	encoded, err := json.Marshal(questions)
	require.NoError(t, err)

	assessment := Assessment{Questions: encoded}
	decoded, err := assessment.DecodeQuestions()
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	require.Equal(t, "q_1_0", decoded[0].ID)
	require.Equal(t, 2, decoded[0].CorrectOptionIndex)

	empty := Assessment{}
	decoded, err = empty.DecodeQuestions()
	require.NoError(t, err)
	require.Nil(t, decoded)
}
