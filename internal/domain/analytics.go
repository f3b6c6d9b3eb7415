package domain

import "time"

// Period names a growth comparison window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAnnual  Period = "annual"
)

// Days returns the look-back distance of the period.
func (p Period) Days() int {
	switch p {
	case PeriodDaily:
		return 1
	case PeriodWeekly:
		return 7
	case PeriodMonthly:
		return 30
	case PeriodAnnual:
		return 365
	default:
		return 0
	}
}

// Periods lists every period in ascending length.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAnnual}

// PeriodGrowth compares the current snapshot with the most recent snapshot
// dated on or before the period's target date.
type PeriodGrowth struct {
	Period               Period    `json:"period"`
	TargetDate           time.Time `json:"target_date"`
	FromDate             time.Time `json:"from_date"`
	ToDate               time.Time `json:"to_date"`
	FollowersChange      int64     `json:"followers_change"`
	FollowersGrowthRate  float64   `json:"followers_growth_rate"`
	PostsChange          int64     `json:"posts_change"`
	PostsGrowthRate      float64   `json:"posts_growth_rate"`
	EngagementChange     float64   `json:"engagement_change"`
	EngagementGrowthRate float64   `json:"engagement_growth_rate"`
}

// GrowthAnalytics is computed on demand and never persisted.
type GrowthAnalytics struct {
	Daily      *PeriodGrowth `json:"daily"`
	Weekly     *PeriodGrowth `json:"weekly"`
	Monthly    *PeriodGrowth `json:"monthly"`
	Annual     *PeriodGrowth `json:"annual"`
	IsRealData bool          `json:"isRealData"`
}

func (g *GrowthAnalytics) Set(p Period, v *PeriodGrowth) {
	switch p {
	case PeriodDaily:
		g.Daily = v
	case PeriodWeekly:
		g.Weekly = v
	case PeriodMonthly:
		g.Monthly = v
	case PeriodAnnual:
		g.Annual = v
	}
}

func (g *GrowthAnalytics) Get(p Period) *PeriodGrowth {
	switch p {
	case PeriodDaily:
		return g.Daily
	case PeriodWeekly:
		return g.Weekly
	case PeriodMonthly:
		return g.Monthly
	case PeriodAnnual:
		return g.Annual
	default:
		return nil
	}
}

// PercentChange returns ((current-previous)/previous)*100, or 0 when
// previous is 0.
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

type ChartPoint struct {
	Date      time.Time `json:"date"`
	Followers int64     `json:"followers"`
	Growth    int64     `json:"growth"`
	Posts     int       `json:"posts"`
}

type EngagementPoint struct {
	Date           time.Time `json:"date"`
	EngagementRate float64   `json:"engagement_rate"`
}

// AccountSummary is the dashboard composite for one user.
type AccountSummary struct {
	Latest          DailySnapshot     `json:"latest"`
	Growth          *GrowthAnalytics  `json:"growth"`
	TopPosts        []PostSnapshot    `json:"top_posts"`
	EngagementTrend []EngagementPoint `json:"engagement_trend"`
}

// ReportData carries the current numbers a caller already has, used to
// estimate growth when history is insufficient.
type ReportData struct {
	FollowersCount int64 `json:"followers_count"`
	PostsCount     int64 `json:"posts_count"`
}

type AnalysisSource string

const (
	AnalysisHistorical AnalysisSource = "historical"
	AnalysisEstimated  AnalysisSource = "estimated"
	AnalysisDefault    AnalysisSource = "default"
)

// GrowthAnalysisResult is what the presentation layer renders. When
// IsRealData is false the numbers are estimates.
type GrowthAnalysisResult struct {
	WeeklyGrowthRate  float64           `json:"weekly_growth_rate"`
	MonthlyGrowthRate float64           `json:"monthly_growth_rate"`
	AnnualGrowthRate  float64           `json:"annual_growth_rate"`
	FollowersCount    int64             `json:"followers_count"`
	EngagementRate    float64           `json:"engagement_rate"`
	EngagementTrend   []EngagementPoint `json:"engagement_trend,omitempty"`
	Analytics         *GrowthAnalytics  `json:"analytics,omitempty"`
	IsRealData        bool              `json:"isRealData"`
	Source            AnalysisSource    `json:"source"`
}

type VelocityTrend string

const (
	TrendAccelerating     VelocityTrend = "accelerating"
	TrendDecelerating     VelocityTrend = "decelerating"
	TrendStable           VelocityTrend = "stable"
	TrendInsufficientData VelocityTrend = "insufficient_data"
)

type GrowthVelocity struct {
	Velocity         float64       `json:"velocity"`
	PreviousVelocity float64       `json:"previous_velocity"`
	Trend            VelocityTrend `json:"trend"`
}

type Prediction struct {
	Date               time.Time `json:"date"`
	PredictedFollowers int64     `json:"predicted_followers"`
	Confidence         float64   `json:"confidence"`
}

type GrowthPredictions struct {
	AvgDailyGrowth float64      `json:"avg_daily_growth"`
	Predictions    []Prediction `json:"predictions"`
	IsRealData     bool         `json:"isRealData"`
}
