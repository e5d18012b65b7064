package textcodec

import "testing"

func TestDecodeRfc2047Text(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "q word",
			input: "=?iso-8859-1?Q?Hello_World?=",
			want:  "Hello World",
		},
		{
			name:  "q word with hex escape",
			input: "=?iso-8859-1?Q?caf=E9?=",
			want:  "café",
		},
		{
			name:  "b word",
			input: "=?utf-8?B?R3LDvMOfZQ==?=",
			want:  "Grüße",
		},
		{
			name:  "lowercase encoding letter",
			input: "=?iso-8859-1?q?a=20b?=",
			want:  "a b",
		},
		{
			name:  "word embedded in plain text",
			input: "Re: =?iso-8859-1?Q?=C4rger?= again",
			want:  "Re: Ärger again",
		},
		{
			name:  "plain text copied verbatim",
			input: "nothing encoded here",
			want:  "nothing encoded here",
		},
		{
			name:  "underscore outside word becomes space",
			input: "a_b",
			want:  "a b",
		},
		{
			name:  "control outside word becomes space",
			input: "a\tb",
			want:  "a b",
		},
		{
			name:  "truncated word returns input",
			input: "plain =?bad",
			want:  "plain =?bad",
		},
		{
			name:  "missing closing returns input",
			input: "=?iso-8859-1?Q?unterminated",
			want:  "=?iso-8859-1?Q?unterminated",
		},
		{
			name:  "unknown encoding returns input",
			input: "=?iso-8859-1?X?abc?=",
			want:  "=?iso-8859-1?X?abc?=",
		},
		{
			name:  "unknown charset returns input",
			input: "see =?not-a-charset?Q?abc?= here",
			want:  "see =?not-a-charset?Q?abc?= here",
		},
		{
			name:  "bad hex escape returns input",
			input: "=?iso-8859-1?Q?a=ZZ?=",
			want:  "=?iso-8859-1?Q?a=ZZ?=",
		},
		{
			name:  "bad base64 returns input",
			input: "=?utf-8?B?***?=",
			want:  "=?utf-8?B?***?=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cache DecoderCache
			if got := cache.DecodeRfc2047(tt.input); got != tt.want {
				t.Errorf("DecodeRfc2047(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeRfc2047TextDefaultCache(t *testing.T) {
	if got := DecodeRfc2047Text("=?iso-8859-1?Q?Hello_World?="); got != "Hello World" {
		t.Errorf("DecodeRfc2047Text = %q, want %q", got, "Hello World")
	}
}
