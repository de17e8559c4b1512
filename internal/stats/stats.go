// Package stats aggregates the playback activity log for the dashboard and
// chat reports.
package stats

import (
	"time"

	"github.com/embywatch/embywatch/internal/models"
	"gorm.io/gorm"
)

// DayCount holds plays and watch time for a single day.
type DayCount struct {
	Day      string `json:"day"`
	Plays    int    `json:"plays"`
	Duration int    `json:"duration"` // seconds
}

// UserCount holds per-user totals.
type UserCount struct {
	UserName string `json:"user_name"`
	Plays    int    `json:"plays"`
	Duration int    `json:"duration"`
}

// ItemCount holds per-item totals.
type ItemCount struct {
	ItemName string `json:"item_name"`
	ItemType string `json:"item_type"`
	Plays    int    `json:"plays"`
	Duration int    `json:"duration"`
}

// Query runs aggregations over the activity log, excluding hidden users.
type Query struct {
	db     *gorm.DB
	hidden []string
	now    func() time.Time
}

// NewQuery creates a Query. hidden lists user names to exclude everywhere.
func NewQuery(db *gorm.DB, hidden []string) *Query {
	return &Query{db: db, hidden: hidden, now: time.Now}
}

// base returns the activity query with the hidden-user filter applied.
func (q *Query) base() *gorm.DB {
	tx := q.db.Model(&models.PlaybackActivity{})
	if len(q.hidden) > 0 {
		tx = tx.Where("user_name NOT IN ?", q.hidden)
	}
	return tx
}

// since returns the cutoff timestamp for a trailing window of days.
func (q *Query) since(days int) time.Time {
	return q.now().AddDate(0, 0, -days)
}

// PlaysPerDay returns daily play counts for the trailing window.
func (q *Query) PlaysPerDay(days int) ([]DayCount, error) {
	type row struct {
		Day      string
		Plays    int
		Duration int
	}
	dayExpr := "strftime('%Y-%m-%d', date)"
	if q.db.Dialector.Name() == "mysql" {
		dayExpr = "DATE_FORMAT(date, '%Y-%m-%d')"
	}
	var rows []row
	err := q.base().
		Select(dayExpr + " as day, count(*) as plays, sum(duration) as duration").
		Where("date >= ?", q.since(days)).
		Group("day").
		Order("day ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]DayCount, len(rows))
	for i, r := range rows {
		out[i] = DayCount{Day: r.Day, Plays: r.Plays, Duration: r.Duration}
	}
	return out, nil
}

// TopUsers returns the most active users in the trailing window.
func (q *Query) TopUsers(days, limit int) ([]UserCount, error) {
	var rows []UserCount
	err := q.base().
		Select("user_name, count(*) as plays, sum(duration) as duration").
		Where("date >= ?", q.since(days)).
		Group("user_name").
		Order("plays DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TopItems returns the most played items in the trailing window.
func (q *Query) TopItems(days, limit int) ([]ItemCount, error) {
	var rows []ItemCount
	err := q.base().
		Select("item_name, item_type, count(*) as plays, sum(duration) as duration").
		Where("date >= ?", q.since(days)).
		Group("item_name, item_type").
		Order("plays DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Recent returns the latest activity rows, newest first.
func (q *Query) Recent(limit int) ([]models.PlaybackActivity, error) {
	var rows []models.PlaybackActivity
	err := q.base().
		Order("date DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UserActivity returns one user's activity in the trailing window.
func (q *Query) UserActivity(userID string, days int) ([]models.PlaybackActivity, error) {
	var rows []models.PlaybackActivity
	err := q.base().
		Where("user_id = ? AND date >= ?", userID, q.since(days)).
		Order("date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
