package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"growth_tracker/internal/domain"
)

const (
	velocityWindow      = 7
	velocityChartDays   = 30
	predictionChartDays = 7
	defaultPredictDays  = 30

	// A window-over-window change within this fraction of the prior
	// velocity counts as stable.
	velocityTolerance = 0.10
)

// weeklyRateBuckets map a follower count to an assumed weekly growth rate.
// Larger accounts grow slower.
var weeklyRateBuckets = []struct {
	above int64
	rate  float64
}{
	{100_000, 0.5},
	{50_000, 1.0},
	{10_000, 2.0},
	{5_000, 3.0},
	{1_000, 5.0},
}

const smallAccountWeeklyRate = 8.0

// GrowthService turns snapshot history into the growth figures the
// dashboard renders, falling back to estimates when history is short.
type GrowthService struct {
	history HistoryReader
	logger  *slog.Logger
}

func NewGrowthService(history HistoryReader, logger *slog.Logger) *GrowthService {
	return &GrowthService{
		history: history,
		logger:  logger.With("component", "growth"),
	}
}

// GetComprehensiveGrowthAnalysis uses real history when at least two
// snapshots exist. Otherwise it estimates from reportData, or from the
// single stored snapshot when reportData is nil, or returns the default.
func (g *GrowthService) GetComprehensiveGrowthAnalysis(ctx context.Context, userID string, reportData *domain.ReportData) (*domain.GrowthAnalysisResult, error) {
	analytics, err := g.history.GetGrowthAnalytics(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("growth analytics: %w", err)
	}
	summary, err := g.history.GetAccountSummary(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("account summary: %w", err)
	}

	if analytics.IsRealData && summary != nil {
		return &domain.GrowthAnalysisResult{
			WeeklyGrowthRate:  followersRate(analytics.Weekly),
			MonthlyGrowthRate: followersRate(analytics.Monthly),
			AnnualGrowthRate:  followersRate(analytics.Annual),
			FollowersCount:    summary.Latest.FollowersCount,
			EngagementRate:    summary.Latest.EngagementRate,
			EngagementTrend:   summary.EngagementTrend,
			Analytics:         analytics,
			IsRealData:        true,
			Source:            domain.AnalysisHistorical,
		}, nil
	}

	data := reportData
	if data == nil && summary != nil {
		data = &domain.ReportData{
			FollowersCount: summary.Latest.FollowersCount,
			PostsCount:     summary.Latest.MediaCount,
		}
	}
	if data == nil {
		g.logger.Debug("no history or report data, using default growth", "user_id", userID)
		result := DefaultGrowthAnalysis()
		return &result, nil
	}

	result := GenerateEstimatedGrowth(*data)
	return &result, nil
}

// GenerateEstimatedGrowth is a pure function of follower and post counts.
// The weekly rate comes from the follower bucket scaled by posting activity
// (posts/20 clamped to [0.5, 1.5]); monthly is weekly×4 and annual weekly×52.
func GenerateEstimatedGrowth(data domain.ReportData) domain.GrowthAnalysisResult {
	activity := math.Min(math.Max(float64(data.PostsCount)/20, 0.5), 1.5)
	weekly := baseWeeklyRate(data.FollowersCount) * activity

	return domain.GrowthAnalysisResult{
		WeeklyGrowthRate:  weekly,
		MonthlyGrowthRate: weekly * 4,
		AnnualGrowthRate:  weekly * 52,
		FollowersCount:    data.FollowersCount,
		IsRealData:        false,
		Source:            domain.AnalysisEstimated,
	}
}

func DefaultGrowthAnalysis() domain.GrowthAnalysisResult {
	return domain.GrowthAnalysisResult{
		WeeklyGrowthRate:  1.2,
		MonthlyGrowthRate: 5.0,
		AnnualGrowthRate:  60,
		IsRealData:        false,
		Source:            domain.AnalysisDefault,
	}
}

// GetGrowthVelocity compares the average daily follower change of the last
// seven chart points with the seven before them.
func (g *GrowthService) GetGrowthVelocity(ctx context.Context, userID string) (*domain.GrowthVelocity, error) {
	points, err := g.history.GetFollowerGrowthChart(ctx, userID, velocityChartDays)
	if err != nil {
		return nil, fmt.Errorf("growth chart: %w", err)
	}
	return growthVelocity(points), nil
}

func growthVelocity(points []domain.ChartPoint) *domain.GrowthVelocity {
	if len(points) < 2*velocityWindow {
		return &domain.GrowthVelocity{Trend: domain.TrendInsufficientData}
	}

	n := len(points)
	recent := averageGrowth(points[n-velocityWindow:])
	previous := averageGrowth(points[n-2*velocityWindow : n-velocityWindow])

	return &domain.GrowthVelocity{
		Velocity:         recent,
		PreviousVelocity: previous,
		Trend:            velocityTrend(recent, previous),
	}
}

func velocityTrend(recent, previous float64) domain.VelocityTrend {
	if previous == 0 {
		switch {
		case recent > 0:
			return domain.TrendAccelerating
		case recent < 0:
			return domain.TrendDecelerating
		default:
			return domain.TrendStable
		}
	}

	threshold := math.Abs(previous) * velocityTolerance
	switch diff := recent - previous; {
	case diff > threshold:
		return domain.TrendAccelerating
	case diff < -threshold:
		return domain.TrendDecelerating
	default:
		return domain.TrendStable
	}
}

// GetGrowthPredictions extrapolates the last week's average daily growth
// for days days. Confidence decays linearly from 1.0 on the first day to
// 0.5 on the last.
func (g *GrowthService) GetGrowthPredictions(ctx context.Context, userID string, days int) (*domain.GrowthPredictions, error) {
	if days <= 0 {
		days = defaultPredictDays
	}
	points, err := g.history.GetFollowerGrowthChart(ctx, userID, predictionChartDays)
	if err != nil {
		return nil, fmt.Errorf("growth chart: %w", err)
	}
	return growthPredictions(points, days), nil
}

func growthPredictions(points []domain.ChartPoint, days int) *domain.GrowthPredictions {
	result := &domain.GrowthPredictions{Predictions: []domain.Prediction{}}
	if len(points) == 0 {
		return result
	}

	last := points[len(points)-1]
	result.AvgDailyGrowth = averageGrowth(points)
	result.IsRealData = len(points) >= minRealDataPoints

	for d := 1; d <= days; d++ {
		result.Predictions = append(result.Predictions, domain.Prediction{
			Date:               last.Date.AddDate(0, 0, d),
			PredictedFollowers: last.Followers + int64(math.Round(result.AvgDailyGrowth*float64(d))),
			Confidence:         predictionConfidence(d, days),
		})
	}
	return result
}

func predictionConfidence(day, horizon int) float64 {
	if horizon <= 1 {
		return 1.0
	}
	return 1.0 - 0.5*float64(day-1)/float64(horizon-1)
}

func baseWeeklyRate(followers int64) float64 {
	for _, bucket := range weeklyRateBuckets {
		if followers > bucket.above {
			return bucket.rate
		}
	}
	return smallAccountWeeklyRate
}

func averageGrowth(points []domain.ChartPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum int64
	for _, p := range points {
		sum += p.Growth
	}
	return float64(sum) / float64(len(points))
}

func followersRate(p *domain.PeriodGrowth) float64 {
	if p == nil {
		return 0
	}
	return p.FollowersGrowthRate
}
