package metrics

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	metricNameRE = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)
	labelNameRE  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

	labelValueEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
)

// WriteLines renders samples as newline-terminated exposition lines:
//
//	name{label="value",...} value timestamp_ms
func WriteLines(w io.Writer, samples []Sample) error {
	bw := bufio.NewWriter(w)
	for _, s := range samples {
		if err := writeLine(bw, s); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Encode is WriteLines into a byte slice.
func Encode(samples []Sample) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(samples) * 96)
	if err := WriteLines(&buf, samples); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Line renders a single sample without the trailing newline.
func Line(s Sample) (string, error) {
	var sb strings.Builder
	bw := bufio.NewWriter(&sb)
	if err := writeLine(bw, s); err != nil {
		return "", err
	}
	if err := bw.Flush(); err != nil {
		return "", err
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

func writeLine(w *bufio.Writer, s Sample) error {
	if !metricNameRE.MatchString(s.Name) {
		return fmt.Errorf("invalid metric name %q", s.Name)
	}
	w.WriteString(s.Name)
	if len(s.Labels) > 0 {
		w.WriteByte('{')
		for i, l := range s.Labels {
			if !labelNameRE.MatchString(l.Name) {
				return fmt.Errorf("metric %s: invalid label name %q", s.Name, l.Name)
			}
			if i > 0 {
				w.WriteByte(',')
			}
			w.WriteString(l.Name)
			w.WriteString(`="`)
			labelValueEscaper.WriteString(w, l.Value)
			w.WriteByte('"')
		}
		w.WriteByte('}')
	}
	w.WriteByte(' ')
	w.WriteString(s.Value.String())
	w.WriteByte(' ')
	w.WriteString(strconv.FormatInt(s.TimestampMs, 10))
	_, err := w.WriteString("\n")
	return err
}
