package emotions

// Tally aggregates the observations of one primary emotion.
type Tally struct {
	Emotion        Emotion `json:"emotion"`
	Count          int     `json:"count"`
	MeanConfidence float64 `json:"meanConfidence"`
}

// Summary describes a run of observations, typically a session history.
type Summary struct {
	Total    int     `json:"total"`    // All observations
	NoFace   int     `json:"noFace"`   // No-face sentinels
	Dominant Emotion `json:"dominant"` // Most frequent primary emotion, empty if none
	Tallies  []Tally `json:"tallies"`  // Vocabulary order, then unknown labels in arrival order
}

// Summarize tallies primary emotions over face-detected observations.
func Summarize(history []Observation) Summary {
	s := Summary{Total: len(history)}

	index := make(map[Emotion]int, len(all))
	for _, e := range all {
		index[e] = len(s.Tallies)
		s.Tallies = append(s.Tallies, Tally{Emotion: e})
	}

	sums := make([]float64, len(s.Tallies))
	for _, o := range history {
		if o.NoFace() {
			s.NoFace++
			continue
		}
		i, ok := index[o.PrimaryEmotion]
		if !ok {
			i = len(s.Tallies)
			index[o.PrimaryEmotion] = i
			s.Tallies = append(s.Tallies, Tally{Emotion: o.PrimaryEmotion})
			sums = append(sums, 0)
		}
		s.Tallies[i].Count++
		sums[i] += o.Confidence
	}

	best := 0
	for i := range s.Tallies {
		if s.Tallies[i].Count > 0 {
			s.Tallies[i].MeanConfidence = sums[i] / float64(s.Tallies[i].Count)
		}
		if s.Tallies[i].Count > best {
			best = s.Tallies[i].Count
			s.Dominant = s.Tallies[i].Emotion
		}
	}

	return s
}
