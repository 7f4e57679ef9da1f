package resolve

// DefaultSimilarityThreshold is the score at or above which two normalized
// names become a merge candidate.
const DefaultSimilarityThreshold = 0.9

const (
	winklerPrefixCap    = 4
	winklerScalingConst = 0.1
)

// Similarity returns the Jaro-Winkler similarity of two normalized names in
// [0, 1]. Deterministic: no randomness, no locale dependence. Callers are
// expected to pass names through namenorm.Normalize first.
func Similarity(a, b string) float64 {
	left := []rune(a)
	right := []rune(b)

	if len(left) == 0 && len(right) == 0 {
		return 1
	}
	if len(left) == 0 || len(right) == 0 {
		return 0
	}

	jaro := jaroSimilarity(left, right)
	if jaro == 0 {
		return 0
	}

	prefix := 0
	for prefix < len(left) && prefix < len(right) && prefix < winklerPrefixCap {
		if left[prefix] != right[prefix] {
			break
		}
		prefix++
	}

	return jaro + float64(prefix)*winklerScalingConst*(1-jaro)
}

func jaroSimilarity(left, right []rune) float64 {
	window := max(len(left), len(right))/2 - 1
	if window < 0 {
		window = 0
	}

	leftMatched := make([]bool, len(left))
	rightMatched := make([]bool, len(right))

	matches := 0
	for i, r := range left {
		lo := max(0, i-window)
		hi := min(len(right)-1, i+window)
		for j := lo; j <= hi; j++ {
			if rightMatched[j] || right[j] != r {
				continue
			}
			leftMatched[i] = true
			rightMatched[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0
	}

	transpositions := 0
	j := 0
	for i := range left {
		if !leftMatched[i] {
			continue
		}
		for !rightMatched[j] {
			j++
		}
		if left[i] != right[j] {
			transpositions++
		}
		j++
	}
	halfTranspositions := float64(transpositions) / 2

	m := float64(matches)
	return (m/float64(len(left)) + m/float64(len(right)) + (m-halfTranspositions)/m) / 3
}
