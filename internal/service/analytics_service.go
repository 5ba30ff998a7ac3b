package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/edugrove/examgen-api/internal/dto"
	"github.com/edugrove/examgen-api/internal/models"
	"github.com/edugrove/examgen-api/internal/repository"
)

// AnalyticsService aggregates grading results per assessment.
type AnalyticsService interface {
	AssessmentAnalytics(ctx context.Context, assessmentID uint) (dto.AssessmentAnalytics, error)
}

type analyticsService struct {
	assessments repository.AssessmentRepository
	submissions repository.SubmissionRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
}

// NewAnalyticsService constructs an AnalyticsService instance. The
// cache client may be nil; aggregation then runs on every request.
func NewAnalyticsService(assessments repository.AssessmentRepository, submissions repository.SubmissionRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) AnalyticsService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &analyticsService{
		assessments: assessments,
		submissions: submissions,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "analytics_service").Logger(),
	}
}

func (s *analyticsService) AssessmentAnalytics(ctx context.Context, assessmentID uint) (dto.AssessmentAnalytics, error) {
	cacheKey := fmt.Sprintf("analytics:assessment:%d", assessmentID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var analytics dto.AssessmentAnalytics
			if unmarshalErr := json.Unmarshal([]byte(cached), &analytics); unmarshalErr == nil {
				s.logger.Debug().Uint("assessment_id", assessmentID).Msg("analytics cache hit")
				return analytics, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read analytics cache")
		}
	}

	if _, err := s.assessments.GetByID(ctx, assessmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssessmentAnalytics{}, ErrAssessmentNotFound
		}
		return dto.AssessmentAnalytics{}, err
	}

	total, err := s.submissions.CountByAssessment(ctx, assessmentID)
	if err != nil {
		return dto.AssessmentAnalytics{}, err
	}

	graded, err := s.submissions.ListGradedByAssessment(ctx, assessmentID)
	if err != nil {
		return dto.AssessmentAnalytics{}, err
	}

	analytics := buildAnalytics(assessmentID, total, graded)

	if s.cache != nil {
		if payload, err := json.Marshal(analytics); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store analytics cache")
			}
		}
	}

	return analytics, nil
}

func buildAnalytics(assessmentID uint, total int64, graded []models.Submission) dto.AssessmentAnalytics {
	analytics := dto.AssessmentAnalytics{
		AssessmentID:   assessmentID,
		SubmissionsIn:  total,
		GradedCount:    int64(len(graded)),
		GradeHistogram: make(map[string]int),
		TopicBreakdown: make(map[string]models.TopicStat),
	}

	if len(graded) == 0 {
		return analytics
	}

	var sum float64
	highest := -1.0
	lowest := -1.0

	for _, submission := range graded {
		score := 0.0
		if effective := submission.EffectiveScore(); effective != nil {
			score = *effective
		}

		sum += score
		if highest < 0 || score > highest {
			highest = score
		}
		if lowest < 0 || score < lowest {
			lowest = score
		}

		grade := submission.Grade
		if grade == "" {
			grade = models.ComputeGrade(score, submission.MaxScore)
		}
		analytics.GradeHistogram[grade]++

		if len(submission.TopicAnalysis) > 0 {
			var topics map[string]models.TopicStat
			if err := json.Unmarshal(submission.TopicAnalysis, &topics); err == nil {
				for topic, stat := range topics {
					merged := analytics.TopicBreakdown[topic]
					merged.Earned += stat.Earned
					merged.Maximum += stat.Maximum
					merged.Correct += stat.Correct
					merged.Total += stat.Total
					analytics.TopicBreakdown[topic] = merged
				}
			}
		}
	}

	analytics.AverageScore = sum / float64(len(graded))
	analytics.HighestScore = highest
	analytics.LowestScore = lowest

	return analytics
}
