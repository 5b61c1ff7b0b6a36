package scanner

import "testing"

func FuzzScanner(f *testing.F) {
	f.Add([]byte("<< /Type /Page >>"))
	f.Add([]byte("[ 1 2.5 -3 ]"))
	f.Add([]byte("stream\n...data...\nendstream"))
	f.Add([]byte("(Hello (nested) \\) World)"))
	f.Add([]byte("<AABBCC>"))
	f.Add([]byte("/Na#6De 1 0 R % comment\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		s := New(data, Config{MaxStringLength: 1024})
		for {
			pos := s.Position()
			if _, err := s.Next(); err != nil {
				break
			}
			if s.Position() <= pos {
				t.Fatalf("Next() did not advance past %d", pos)
			}
		}
	})
}
