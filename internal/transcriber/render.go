package transcriber

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/juniormartinxo/transcription/internal/models"
)

// speakerLabel maps engine speaker tags to the user-facing Portuguese
// label: SPEAKER_00 becomes "Falante 00".
func speakerLabel(speaker string) string {
	return strings.Replace(speaker, "SPEAKER_", "Falante ", 1)
}

// formatTime renders seconds as MM:SS.mmm, growing to HH:MM:SS.mmm past
// the first hour.
func formatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	ms := int((seconds - float64(total)) * 1000)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
	}
	return fmt.Sprintf("%02d:%02d.%03d", m, s, ms)
}

// formatTimeSRT renders seconds in the SubRip HH:MM:SS,mmm form.
func formatTimeSRT(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	ms := int((seconds - float64(total)) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", total/3600, (total%3600)/60, total%60, ms)
}

// Render produces the transcript artifact for the requested format.
func Render(res Result, opts models.TaskOptions) ([]byte, error) {
	switch opts.OutputFormat {
	case models.OutputFormatTxt:
		return renderTxt(res.Segments, opts), nil
	case models.OutputFormatSRT:
		return renderSRT(res.Segments, opts), nil
	case models.OutputFormatJSON:
		return renderJSON(res)
	default:
		return nil, fmt.Errorf("%w: output_format %q", models.ErrInvalidOptions, opts.OutputFormat)
	}
}

// renderTxt writes one line per segment. Timestamps and speaker labels
// follow the task options; a blank line separates speaker turns so long
// conversations stay readable.
func renderTxt(segments []Segment, opts models.TaskOptions) []byte {
	var b strings.Builder
	currentSpeaker := ""

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		speaker := ""
		if opts.Diarization && seg.Speaker != "" {
			speaker = speakerLabel(seg.Speaker)
		}

		// blank line on speaker change, never before the first turn
		if speaker != "" && speaker != currentSpeaker {
			if currentSpeaker != "" {
				b.WriteByte('\n')
			}
			currentSpeaker = speaker
		}

		var line string
		switch {
		case opts.Timestamps && speaker != "":
			line = fmt.Sprintf("[%s -> %s] %s: %s", formatTime(seg.Start), formatTime(seg.End), speaker, text)
		case opts.Timestamps:
			line = fmt.Sprintf("[%s -> %s] %s", formatTime(seg.Start), formatTime(seg.End), text)
		case speaker != "":
			line = fmt.Sprintf("%s: %s", speaker, text)
		default:
			line = text
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// renderSRT writes numbered SubRip blocks. The speaker prefix appears
// only when diarization was requested; segments the engine left
// unattributed fall back to "Desconhecido".
func renderSRT(segments []Segment, opts models.TaskOptions) []byte {
	var b strings.Builder
	n := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d\n", n)
		fmt.Fprintf(&b, "%s --> %s\n", formatTimeSRT(seg.Start), formatTimeSRT(seg.End))
		if opts.Diarization {
			speaker := "Desconhecido"
			if seg.Speaker != "" {
				speaker = speakerLabel(seg.Speaker)
			}
			fmt.Fprintf(&b, "%s: %s\n\n", speaker, text)
		} else {
			fmt.Fprintf(&b, "%s\n\n", text)
		}
	}
	return []byte(b.String())
}

type jsonTranscript struct {
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// renderJSON keeps the parsed segment list with two-space indentation.
func renderJSON(res Result) ([]byte, error) {
	doc := jsonTranscript{Language: res.Language, Segments: res.Segments}
	if doc.Segments == nil {
		doc.Segments = []Segment{}
	}
	return json.MarshalIndent(doc, "", "  ")
}
