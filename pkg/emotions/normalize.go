package emotions

// Normalize clamps o into its documented ranges in place.
//
//   - Confidence, every intensity and FaceRecognitionScore land in [0,1].
//   - Bounding box coordinates land in [0,1000]; an inverted box is dropped.
//   - Without a detected face the box and the recognition score are dropped.
//   - A nil SecondaryEmotions becomes an empty slice.
//
// Unknown emotion labels are kept.
func (o *Observation) Normalize() {
	o.Confidence = clamp(o.Confidence, 0, 1)

	if o.SecondaryEmotions == nil {
		o.SecondaryEmotions = []SecondaryEmotion{}
	}
	for i := range o.SecondaryEmotions {
		o.SecondaryEmotions[i].Intensity = clamp(o.SecondaryEmotions[i].Intensity, 0, 1)
	}

	if !o.FaceDetected {
		o.BoundingBox = nil
		o.FaceRecognitionScore = nil
		return
	}

	if o.BoundingBox != nil {
		b := o.BoundingBox
		b.YMin = clamp(b.YMin, 0, BoxScale)
		b.XMin = clamp(b.XMin, 0, BoxScale)
		b.YMax = clamp(b.YMax, 0, BoxScale)
		b.XMax = clamp(b.XMax, 0, BoxScale)
		if !b.Valid() {
			o.BoundingBox = nil
		}
	}

	if o.FaceRecognitionScore != nil {
		s := clamp(*o.FaceRecognitionScore, 0, 1)
		o.FaceRecognitionScore = &s
	}
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
