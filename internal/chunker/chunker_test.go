package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_Short(t *testing.T) {
	for _, text := range []string{"", "short text", strings.Repeat("x", 500)} {
		got := Split(text, 500, 50)
		if len(got) != 1 || got[0] != text {
			t.Errorf("Split(%d chars) = %d chunks", len(text), len(got))
		}
	}
}

func TestSplit_NoBoundaries(t *testing.T) {
	var sb strings.Builder
	for sb.Len() < 1200 {
		sb.WriteString("abcdefghij")
	}
	text := sb.String()

	chunks := Split(text, 500, 50)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > 500 {
			t.Errorf("chunk %d has %d chars", i, len(c))
		}
	}
	// consecutive windows share exactly the overlap
	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i][len(chunks[i])-50:]
		if !strings.HasPrefix(chunks[i+1], tail) {
			t.Errorf("chunk %d does not start with the last 50 chars of chunk %d", i+1, i)
		}
	}
	if chunks[0] != text[:500] || chunks[1] != text[450:950] || chunks[2] != text[900:] {
		t.Error("unexpected chunk windows")
	}
}

func TestSplit_Reconstructs(t *testing.T) {
	var sb strings.Builder
	for sb.Len() < 1300 {
		sb.WriteString("0123456789")
	}
	text := sb.String()
	chunks := Split(text, 400, 40)

	rebuilt := chunks[0]
	for _, c := range chunks[1:] {
		rebuilt += c[40:]
	}
	if rebuilt != text {
		t.Errorf("rebuilt text differs: %d vs %d chars", len(rebuilt), len(text))
	}
}

func TestSplit_PrefersSentenceBoundary(t *testing.T) {
	sentence := strings.Repeat("word ", 60) // 300 chars
	text := sentence + ". " + strings.Repeat("more ", 100)

	chunks := Split(text, 500, 50)
	if !strings.HasSuffix(chunks[0], ".") {
		t.Errorf("first chunk should end at the sentence boundary, ends with %q", chunks[0][len(chunks[0])-5:])
	}
	if n := utf8.RuneCountInString(chunks[0]); n > 302 {
		t.Errorf("first chunk has %d chars", n)
	}
}

func TestSplit_IgnoresEarlyBoundary(t *testing.T) {
	// boundary at position 10 lies before the midpoint of the window
	text := "Hi there. " + strings.Repeat("z", 990)
	chunks := Split(text, 500, 50)
	if utf8.RuneCountInString(chunks[0]) != 500 {
		t.Errorf("first chunk has %d chars, want raw window of 500", utf8.RuneCountInString(chunks[0]))
	}
}

func TestSplit_Runes(t *testing.T) {
	text := strings.Repeat("é", 1200)
	chunks := Split(text, 500, 50)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
	}
}

func TestSplit_DropsBlankChunks(t *testing.T) {
	text := strings.Repeat("a", 450) + strings.Repeat(" ", 600)
	for _, c := range Split(text, 500, 50) {
		if strings.TrimSpace(c) == "" {
			t.Error("blank chunk returned")
		}
	}
}

func TestNew_Clamps(t *testing.T) {
	tests := []struct {
		size, overlap     int
		wantSize, wantOvl int
	}{
		{0, 50, DefaultSize, 50},
		{100, -5, 100, 0},
		{100, 100, 100, 99},
		{100, 500, 100, 99},
	}
	for _, tt := range tests {
		s := New(tt.size, tt.overlap)
		if s.Size != tt.wantSize || s.Overlap != tt.wantOvl {
			t.Errorf("New(%d, %d) = %+v", tt.size, tt.overlap, s)
		}
	}
	// a huge overlap must still terminate
	if got := Split(strings.Repeat("q", 300), 100, 1000); len(got) == 0 {
		t.Error("expected chunks")
	}
}
