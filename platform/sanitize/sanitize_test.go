package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := map[string]string{
		"  Jl. <b>Merdeka</b>  10 ":             "Jl. Merdeka 10",
		"&lt;script&gt;alert(1)&lt;/script&gt;ok": "alert(1)ok",
		"line\nbreak":                            "line break",
	}
	for input, want := range tests {
		if got := Text(input); got != want {
			t.Errorf("Text(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestBodyKeepsLineBreaks(t *testing.T) {
	got := Body("Hi  there\r\n\r\n\r\n\r\n<i>see</i> you")
	want := "Hi there\n\nsee you"
	if got != want {
		t.Fatalf("Body() = %q, want %q", got, want)
	}
}
