package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain name", "audio.mp3", "audio.mp3"},
		{"portuguese diacritics", "reunião.mp3", "reuniao.mp3"},
		{"mixed accents", "ação_à_vista.wav", "acao_a_vista.wav"},
		{"uppercase extension", "Entrevista.MP3", "Entrevista.mp3"},
		{"spaces and parens", "aula 02 (final).mp4", "aula_02__final_.mp4"},
		{"path traversal", "../../etc/passwd", "passwd"},
		{"windows path", `C:\Users\user\áudio.wav`, "audio.wav"},
		{"hidden-style name", ".mp3", "upload.mp3"},
		{"only separators", "///", "upload"},
		{"empty", "", "upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}
