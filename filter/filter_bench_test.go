package filter

import (
	"testing"
)

var (
	benchHeader = []byte("From: test@example.com\nTo: user@example.com\nSubject: Test\n")
	benchBody   = []byte("This is a test message body with some content.")
)

func BenchmarkAllows_NoFilters(b *testing.B) {
	f, err := New(Options{})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Allows(benchHeader, benchBody)
	}
}

func BenchmarkAllows_IncludeFilter(b *testing.B) {
	f, err := New(Options{
		IncludeHeader: []string{`From:.*@example\.com`},
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Allows(benchHeader, benchBody)
	}
}

func BenchmarkAllows_ExcludeFilter(b *testing.B) {
	f, err := New(Options{
		ExcludeHeader: []string{`From:.*@spam\.com`},
		ExcludeBody:   []string{`unsubscribe`, `click here`},
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Allows(benchHeader, benchBody)
	}
}
