package crisis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_HighSeverityWithImmediacy(t *testing.T) {
	res := New().Detect("I want to kill myself tonight")

	require.True(t, res.Detected)
	assert.Equal(t, SeverityHigh, res.Severity)
	assert.True(t, res.RequiresImmediate)
	assert.Equal(t, []string{"kill myself"}, res.Triggers)
	assert.Equal(t, 1, res.NegativeIndicators)
	assert.Contains(t, ResponseTemplates(SeverityHigh), res.SuggestedResponse)
}

func TestDetect_PositiveContextDowngrades(t *testing.T) {
	res := New().Detect("I used to think about suicide but therapy helped me recover")

	require.True(t, res.Detected)
	assert.Equal(t, SeverityMedium, res.Severity)
	assert.False(t, res.RequiresImmediate)
	assert.Equal(t, []string{"suicide"}, res.Triggers)
	assert.Greater(t, res.PositiveIndicators, res.NegativeIndicators)
	assert.Contains(t, ResponseTemplates(SeverityMedium), res.SuggestedResponse)
}

func TestDetect_ImmediacyOutweighsRecoveryLanguage(t *testing.T) {
	res := New().Detect("I used to think about suicide and I am planning it tonight")

	assert.Equal(t, SeverityHigh, res.Severity)
	assert.True(t, res.RequiresImmediate)
	assert.Equal(t, 1, res.PositiveIndicators)
	assert.Equal(t, 2, res.NegativeIndicators)
}

func TestDetect_CollectsTriggersFromEveryTier(t *testing.T) {
	res := New().Detect("I feel so depressed and hopeless, I want to kill myself")

	assert.Equal(t, SeverityHigh, res.Severity)
	assert.Equal(t, []string{"kill myself", "hopeless", "depressed"}, res.Triggers)
}

func TestDetect_CaseInsensitive(t *testing.T) {
	res := New().Detect("I WANT TO END MY LIFE")

	assert.True(t, res.Detected)
	assert.Equal(t, SeverityHigh, res.Severity)
}

func TestDetect_DowngradeFloorsAtLow(t *testing.T) {
	d := New()

	medium := d.Detect("I used to self harm, therapy helped")
	assert.Equal(t, SeverityLow, medium.Severity)

	low := d.Detect("I recovered after feeling depressed for months")
	assert.Equal(t, SeverityLow, low.Severity)
	assert.False(t, low.RequiresImmediate)
}

func TestDetect_NoMatch(t *testing.T) {
	res := New().Detect("Had a lovely walk with my dog today")

	assert.False(t, res.Detected)
	assert.Empty(t, res.Severity)
	assert.Empty(t, res.Triggers)
	assert.Empty(t, res.SuggestedResponse)
	assert.False(t, res.RequiresImmediate)
}

func TestDetect_PickerSelectsTemplate(t *testing.T) {
	d := New(WithPicker(func(n int) int { return n - 1 }))
	res := d.Detect("feeling anxious")

	templates := ResponseTemplates(SeverityLow)
	assert.Equal(t, templates[len(templates)-1], res.SuggestedResponse)
}

func TestResponseTemplates_ReturnsCopy(t *testing.T) {
	templates := ResponseTemplates(SeverityHigh)
	require.NotEmpty(t, templates)
	templates[0] = "changed"

	assert.NotEqual(t, "changed", ResponseTemplates(SeverityHigh)[0])
	assert.Empty(t, ResponseTemplates(Severity("unknown")))
}
