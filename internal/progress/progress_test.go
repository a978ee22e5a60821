package progress

import (
	"strings"
	"testing"
)

func TestReaderReportsCumulativeBytes(t *testing.T) {
	data := strings.NewReader("0123456789")
	var calls [][2]int64
	r := NewReader(data, 10, func(done, total int64) {
		calls = append(calls, [2]int64{done, total})
	})

	buf := make([]byte, 4)
	for {
		n, err := r.Read(buf)
		_ = n
		if err != nil {
			break
		}
	}

	if len(calls) == 0 {
		t.Fatal("expected at least one progress callback")
	}
	last := calls[len(calls)-1]
	if last[0] != 10 || last[1] != 10 {
		t.Errorf("expected final callback (10, 10), got %v", last)
	}
}

func TestSummary(t *testing.T) {
	got := Summary("build2.tar.zst", 1024)
	if !strings.Contains(got, "build2.tar.zst") || !strings.Contains(got, "1.0 kB") {
		t.Errorf("unexpected summary: %q", got)
	}
}
