package totp

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const step = 30 * time.Second

func TestGenerate_Enrollment(t *testing.T) {
	enr, err := Generate("NewsInsight", "alice@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, enr.Secret)
	assert.Equal(t, enr.Secret, enr.ManualEntryKey)
	assert.Contains(t, enr.URL, "otpauth://totp/")
	assert.Contains(t, enr.URL, "NewsInsight")
	assert.Contains(t, enr.QRCodeDataURL, "data:image/png;base64,")
}

func TestGenerate_SecretsAreUnique(t *testing.T) {
	a, err := Generate("NewsInsight", "alice@example.com")
	require.NoError(t, err)
	b, err := Generate("NewsInsight", "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a.Secret, b.Secret)
}

func TestValidate_AcceptsCodesWithinSkewWindow(t *testing.T) {
	enr, err := Generate("NewsInsight", "alice@example.com")
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)

	for offset := -Skew; offset <= Skew; offset++ {
		t.Run(fmt.Sprintf("offset_%d", offset), func(t *testing.T) {
			code, err := Code(enr.Secret, now.Add(time.Duration(offset)*step))
			require.NoError(t, err)
			assert.True(t, Validate(code, enr.Secret, now))
		})
	}
}

func TestValidate_RejectsCodesOutsideSkewWindow(t *testing.T) {
	enr, err := Generate("NewsInsight", "alice@example.com")
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)

	var window []string
	for offset := -Skew; offset <= Skew; offset++ {
		code, err := Code(enr.Secret, now.Add(time.Duration(offset)*step))
		require.NoError(t, err)
		window = append(window, code)
	}

	for _, offset := range []int{-(Skew + 1), Skew + 1} {
		code, err := Code(enr.Secret, now.Add(time.Duration(offset)*step))
		require.NoError(t, err)
		if slices.Contains(window, code) {
			// Distinct steps can collide on the same 6 digits; only a
			// code unique to the out-of-window step proves rejection.
			continue
		}
		assert.False(t, Validate(code, enr.Secret, now), "offset %d", offset)
	}
}

func TestValidate_RejectsGarbage(t *testing.T) {
	enr, err := Generate("NewsInsight", "alice@example.com")
	require.NoError(t, err)

	assert.False(t, Validate("", enr.Secret, time.Now()))
	assert.False(t, Validate("abc123", enr.Secret, time.Now()))
	assert.False(t, Validate("1234567", enr.Secret, time.Now()))
}
