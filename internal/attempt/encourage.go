package attempt

// Improvement returns how many words the latest score gained over the one
// before it, or 0 when it did not improve.
func Improvement(scores []int) int {
	if len(scores) < 2 {
		return 0
	}
	diff := scores[len(scores)-1] - scores[len(scores)-2]
	return max(diff, 0)
}

// Encouragement picks the results message for scores, oldest first.
func Encouragement(scores []int) string {
	if len(scores) == 0 {
		return ""
	}
	current := scores[len(scores)-1]
	if gain := Improvement(scores); gain > 0 {
		switch {
		case gain >= 10:
			return "Incredible improvement!"
		case gain >= 5:
			return "Amazing progress!"
		default:
			return "You're getting better!"
		}
	}
	if len(scores) == 1 {
		switch {
		case current >= 50:
			return "Fantastic start!"
		case current >= 30:
			return "Great job reading!"
		default:
			return "Good effort!"
		}
	}
	return "Keep practicing! You can do it!"
}
