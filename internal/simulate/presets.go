package simulate

// Preset returns the stock profile for kind at the given attempt number.
func Preset(kind Kind, attempt int) Profile {
	if attempt < 1 {
		attempt = 1
	}
	switch kind {
	case Perfect:
		return Profile{WordsPerMinute: 60, ErrorRatePercent: 0, Kind: Perfect}
	case Struggling:
		return Profile{WordsPerMinute: 20, ErrorRatePercent: 30, Kind: Struggling}
	case Improving:
		return Profile{
			WordsPerMinute:   30 + attempt*5,
			ErrorRatePercent: max(5, 20-attempt*5),
			ImprovementDelta: 5,
			Kind:             Improving,
		}
	default:
		return Profile{WordsPerMinute: 40, ErrorRatePercent: 10, ImprovementDelta: 5, Kind: Normal}
	}
}

// QuickTestKind picks a kind that walks a passage from struggling to perfect.
func QuickTestKind(attempt int) Kind {
	switch attempt {
	case 1:
		return Struggling
	case 2:
		return Improving
	default:
		return Perfect
	}
}

// QuickTest returns the quick-test profile for an attempt.
func QuickTest(attempt int) Profile {
	return Preset(QuickTestKind(attempt), attempt)
}
