package dto

import "github.com/edugrove/examgen-api/internal/models"

// AssessmentAnalytics summarizes graded submissions for one assessment.
type AssessmentAnalytics struct {
	AssessmentID   uint                        `json:"assessment_id"`
	SubmissionsIn  int64                       `json:"submissions_in"`
	GradedCount    int64                       `json:"graded_count"`
	AverageScore   float64                     `json:"average_score"`
	HighestScore   float64                     `json:"highest_score"`
	LowestScore    float64                     `json:"lowest_score"`
	GradeHistogram map[string]int              `json:"grade_histogram"`
	TopicBreakdown map[string]models.TopicStat `json:"topic_breakdown"`
}
