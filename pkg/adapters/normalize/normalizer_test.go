package normalize_test

import (
	"testing"
	"time"

	"github.com/aretw0/cadence/pkg/adapters/normalize"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNormalizer() *normalize.Normalizer {
	n := normalize.New()
	n.Now = func() time.Time {
		return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	}
	return n
}

func TestNormalizeText(t *testing.T) {
	n := fixedNormalizer()
	got, err := n.Normalize(domain.SlotSpec{Name: "origin", Type: "text"}, "  Madrid  ")
	require.NoError(t, err)
	assert.Equal(t, "Madrid", got)

	got, err = n.Normalize(domain.SlotSpec{Name: "origin"}, 42)
	require.NoError(t, err)
	assert.Equal(t, "42", got, "untyped slots coerce to text")
}

func TestNormalizeNumber(t *testing.T) {
	n := fixedNormalizer()
	spec := domain.SlotSpec{Name: "passengers", Type: "number"}

	got, err := n.Normalize(spec, "3")
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	got, err = n.Normalize(spec, 7)
	require.NoError(t, err)
	assert.Equal(t, 7.0, got)

	_, err = n.Normalize(spec, "a few")
	assert.Error(t, err)
}

func TestNormalizeDate(t *testing.T) {
	n := fixedNormalizer()
	spec := domain.SlotSpec{Name: "date", Type: "date"}

	got, err := n.Normalize(spec, "2026-09-01")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-01", got)

	got, err = n.Normalize(spec, "September 1, 2026")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-01", got)

	got, err = n.Normalize(spec, "tomorrow")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-29", got)

	_, err = n.Normalize(spec, "sometime soon")
	assert.Error(t, err)
}

func TestNormalizeBool(t *testing.T) {
	n := fixedNormalizer()
	spec := domain.SlotSpec{Name: "window_seat", Type: "bool"}

	got, err := n.Normalize(spec, "yep")
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = n.Normalize(spec, "nope")
	require.NoError(t, err)
	assert.Equal(t, false, got)

	_, err = n.Normalize(spec, "maybe")
	assert.Error(t, err)
}
