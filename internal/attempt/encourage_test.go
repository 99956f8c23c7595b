package attempt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncouragement(t *testing.T) {
	cases := []struct {
		scores []int
		want   string
	}{
		{nil, ""},
		{[]int{55}, "Fantastic start!"},
		{[]int{30}, "Great job reading!"},
		{[]int{12}, "Good effort!"},
		{[]int{20, 31}, "Incredible improvement!"},
		{[]int{20, 25}, "Amazing progress!"},
		{[]int{20, 22}, "You're getting better!"},
		{[]int{20, 18}, "Keep practicing! You can do it!"},
		{[]int{20, 25, 25}, "Keep practicing! You can do it!"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Encouragement(tc.scores), "%v", tc.scores)
	}
}

func TestImprovement(t *testing.T) {
	assert.Equal(t, 0, Improvement([]int{40}))
	assert.Equal(t, 7, Improvement([]int{30, 37}))
	assert.Equal(t, 0, Improvement([]int{37, 30}))
}
