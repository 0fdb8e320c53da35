package training

// BinaryMetrics computes accuracy together with precision, recall and
// F1 for the positive class, label 1. Ratios with a zero denominator
// are reported as 0.
func BinaryMetrics(labels, preds []int) (accuracy, precision, recall, f1 float64) {
	if len(labels) != len(preds) {
		panic("training: labels and predictions differ in length")
	}
	if len(labels) == 0 {
		return 0, 0, 0, 0
	}

	var correct, tp, fp, fn int
	for i, label := range labels {
		pred := preds[i]
		if pred == label {
			correct++
		}
		switch {
		case pred == 1 && label == 1:
			tp++
		case pred == 1 && label != 1:
			fp++
		case pred != 1 && label == 1:
			fn++
		}
	}

	accuracy = float64(correct) / float64(len(labels))
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return accuracy, precision, recall, f1
}
