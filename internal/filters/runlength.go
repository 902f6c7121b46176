package filters

import "fmt"

// runLengthEOD ends RunLengthDecode data.
const runLengthEOD = 0x80

// RunLengthDecode expands RunLengthDecode data. A length byte n < 128 is
// followed by n+1 literal bytes; n > 128 repeats the next byte 257-n times.
func RunLengthDecode(data []byte) ([]byte, error) {
	out := make([]byte, 0, 2*len(data))
	for i := 0; i < len(data); {
		n := int(data[i])
		i++
		switch {
		case n == runLengthEOD:
			return out, nil
		case n < runLengthEOD:
			end := i + n + 1
			if end > len(data) {
				return out, fmt.Errorf("run-length literal overruns data at %d", i-1)
			}
			out = append(out, data[i:end]...)
			i = end
		default:
			if i >= len(data) {
				return out, fmt.Errorf("run-length repeat without value at %d", i-1)
			}
			for j := 0; j < 257-n; j++ {
				out = append(out, data[i])
			}
			i++
		}
	}
	return out, nil
}

// RunLengthEncode is the inverse of RunLengthDecode.
func RunLengthEncode(data []byte) []byte {
	var out []byte
	for i := 0; i < len(data); {
		run := 1
		for i+run < len(data) && run < 128 && data[i+run] == data[i] {
			run++
		}
		if run > 1 {
			out = append(out, byte(257-run), data[i])
			i += run
			continue
		}

		start := i
		for i < len(data) && i-start < 128 {
			if i+1 < len(data) && data[i+1] == data[i] {
				break
			}
			i++
		}
		if i == start {
			i++
		}
		out = append(out, byte(i-start-1))
		out = append(out, data[start:i]...)
	}
	return append(out, runLengthEOD)
}
