package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	cases := map[string]string{
		"plain":          "box 4 was sent twice",
		"tags":           "<b>box 4</b> was sent <i>twice</i>",
		"encoded tags":   "&lt;script&gt;alert(1)&lt;/script&gt;box 4 was sent twice",
		"extra space":    "  box 4\n\twas   sent twice ",
		"nothing useful": "<br/>",
	}
	want := map[string]string{
		"plain":          "box 4 was sent twice",
		"tags":           "box 4 was sent twice",
		"encoded tags":   "alert(1)box 4 was sent twice",
		"extra space":    "box 4 was sent twice",
		"nothing useful": "",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want[name], Text(in))
		})
	}
}
