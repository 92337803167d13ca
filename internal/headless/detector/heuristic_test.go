package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristicShouldPromote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want bool
	}{
		{"empty body", "", true},
		{"whitespace only", "  \n\t", true},
		{"spa shell", `<div id="__next"></div>`, true},
		{"script heavy small page", `<html><script>var a=1;var b=2;</script><p>t</p></html>`, true},
		{"unterminated script", `<p>x</p><script src="a.js"`, true},
		{"age gate", `<div class="agegate_birthday_selector">Enter your birth date</div><div id="ReviewText"></div>`, true},
		{"review page", `<div id="ReviewText">Great game</div><script>track()</script>`, false},
		{"plain page", `<html><body><p>` + strings.Repeat("content ", 50) + `</p></body></html>`, false},
	}

	h := NewHeuristic(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, h.ShouldPromote([]byte(tt.body)))
		})
	}
}

func TestNewHeuristicDefaultThreshold(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultBodyLengthThreshold, NewHeuristic(0).BodyLengthThreshold)
	require.Equal(t, 10, NewHeuristic(10).BodyLengthThreshold)
}

func TestScriptDensityLargePage(t *testing.T) {
	t.Parallel()

	body := "<p>" + strings.Repeat("x", 4096) + "</p><script>1</script>"
	require.False(t, NewHeuristic(100).ShouldPromote([]byte(body)))
}
