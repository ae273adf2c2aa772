package vectorizer

// PadSequences returns a len(seqs) x maxLen matrix. Short sequences are
// left-padded with 0; long ones keep their first maxLen ids.
func PadSequences(seqs [][]int32, maxLen int) [][]int32 {
	out := make([][]int32, len(seqs))
	for i, seq := range seqs {
		row := make([]int32, maxLen)
		if len(seq) > maxLen {
			seq = seq[:maxLen]
		}
		copy(row[maxLen-len(seq):], seq)
		out[i] = row
	}
	return out
}
