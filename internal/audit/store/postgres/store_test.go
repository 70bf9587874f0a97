package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"haven/internal/audit/models"
	"haven/pkg/platform/sentinel"
)

func TestWhereClause(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		where, args := whereClause(models.RecordQuery{})
		assert.Empty(t, where)
		assert.Empty(t, args)
	})

	t.Run("placeholders follow argument order", func(t *testing.T) {
		start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		where, args := whereClause(models.RecordQuery{
			Start:      start,
			Categories: []models.Category{models.CategoryPHIAccess, models.CategoryPHIExport},
			RiskLevels: []models.RiskLevel{models.RiskHigh},
		})
		assert.Equal(t, " WHERE timestamp >= $1 AND category = ANY($2) AND risk_level = ANY($3)", where)
		assert.Len(t, args, 3)
		assert.Equal(t, start, args[0])
	})
}

func TestOrderClause(t *testing.T) {
	assert.Equal(t, " ORDER BY timestamp DESC", orderClause("", ""))
	assert.Equal(t, " ORDER BY timestamp ASC", orderClause(models.SortByTimestamp, models.SortAsc))
	assert.Equal(t, " ORDER BY category DESC, timestamp DESC", orderClause(models.SortByCategory, models.SortDesc))
	assert.Contains(t, orderClause(models.SortByRiskLevel, models.SortDesc), "WHEN 'CRITICAL' THEN 4")
}

func TestClassify(t *testing.T) {
	cases := map[string]struct {
		err  error
		want error
	}{
		"deadline":          {fmt.Errorf("exec: %w", context.DeadlineExceeded), sentinel.ErrTimeout},
		"statement timeout": {&pq.Error{Code: "57014"}, sentinel.ErrTimeout},
		"bad connection":    {driver.ErrBadConn, sentinel.ErrUnavailable},
		"connection class":  {&pq.Error{Code: "08006"}, sentinel.ErrUnavailable},
		"retention trigger": {&pq.Error{Code: codeRetentionActive}, sentinel.ErrRetentionActive},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := classify(tc.err)
			assert.ErrorIs(t, got, tc.want)
			assert.ErrorIs(t, got, tc.err)
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		err := &pq.Error{Code: "42601"}
		got := classify(err)
		assert.Same(t, err, got)
		assert.False(t, errors.Is(got, sentinel.ErrTimeout))
	})

	t.Run("already classified errors are not wrapped twice", func(t *testing.T) {
		err := fmt.Errorf("insert: %w", classify(context.DeadlineExceeded))
		assert.Same(t, err, classify(err))
	})

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, classify(nil))
	})
}
